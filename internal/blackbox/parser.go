package blackbox

import (
	"os"
	"strings"

	"github.com/atomgomba/orangebox/internal/common"
)

// Parser is the façade over a possibly-merged log file: it owns the
// session pointer table, the currently selected session's header map and
// field-definition tables, and the frame dispatcher driving that session.
type Parser struct {
	data         []byte
	logPointers  []int64
	allowInvalid bool

	logIndex   int
	headers    Headers
	fieldDefs  map[FrameType][]FieldDef
	fieldNames []string
	decoder    *sessionDecoder
	events     []Event

	// ResyncCount is the number of resynchronizations performed while
	// decoding the currently selected session.
	ResyncCount int64

	// Metrics, when set, receives per-frame byte/throughput accounting as
	// the session is decoded.
	Metrics *common.Metrics
}

// Load reads the file at path and constructs a Parser positioned at
// logIndex (1-based). allowInvalidHeader relaxes the product-signature and
// non-ASCII-byte checks in the header scanner.
func Load(path string, logIndex int, allowInvalidHeader bool) (*Parser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(data, logIndex, allowInvalidHeader)
}

// LoadBytes builds a Parser directly from an in-memory log buffer.
func LoadBytes(data []byte, logIndex int, allowInvalidHeader bool) (*Parser, error) {
	pointers := scanLogPointers(data)
	if len(pointers) == 0 {
		if !allowInvalidHeader {
			return nil, newInvalidHeaderError(0, "product signature not found")
		}
		pointers = []int64{0}
	}
	p := &Parser{data: data, logPointers: pointers, allowInvalid: allowInvalidHeader}
	if err := p.SetLogIndex(logIndex); err != nil {
		return nil, err
	}
	return p, nil
}

// SetLogIndex selects session index (1-based), resetting history and
// re-parsing headers. Out-of-range values fail with ErrNoSuchLog.
func (p *Parser) SetLogIndex(index int) error {
	if index < 1 || index > len(p.logPointers) {
		return ErrNoSuchLog
	}
	start := p.logPointers[index-1]
	if !p.allowInvalid && !hasProductSignatureAt(p.data, start) {
		return newInvalidHeaderError(start, "product signature not found")
	}

	parsed, err := readHeaders(p.data[start:], p.allowInvalid)
	if err != nil {
		return err
	}
	headers := stripFieldKeys(parsed.raw)
	inspectHeaders(headers)

	fieldDefs, err := buildFieldDefs(parsed.raw)
	if err != nil {
		return err
	}

	var end int64
	if index < len(p.logPointers) {
		end = p.logPointers[index]
	} else {
		end = int64(len(p.data))
	}
	payloadStart := start + parsed.headerSize
	if payloadStart > end {
		payloadStart = end
	}
	payload := p.data[payloadStart:end]

	p.logIndex = index
	p.headers = headers
	p.fieldDefs = fieldDefs
	p.fieldNames = collectFieldNames(fieldDefs)
	p.decoder = newSessionDecoder(payload, headers, fieldDefs)
	p.decoder.metrics = p.Metrics
	p.events = nil
	p.ResyncCount = 0
	return nil
}

// Headers returns the parsed key/value header map for the current session,
// with the per-field "Field ..." keys stripped out.
func (p *Parser) Headers() Headers {
	out := make(Headers, len(p.headers))
	for k, v := range p.headers {
		out[k] = v
	}
	return out
}

// FieldNames returns the I-frame field name order for the current session.
func (p *Parser) FieldNames() []string {
	return append([]string(nil), p.fieldNames...)
}

// LogCount returns the number of sessions found in the file.
func (p *Parser) LogCount() int {
	return len(p.logPointers)
}

// LogPointers returns the byte offset of every session signature, in
// ascending order.
func (p *Parser) LogPointers() []int64 {
	return append([]int64(nil), p.logPointers...)
}

// LogIndex returns the currently selected 1-based session index.
func (p *Parser) LogIndex() int {
	return p.logIndex
}

// Events returns the events accumulated so far by draining Frames(); like
// the reference parser, it is only complete once the frame iterator has
// been fully consumed.
func (p *Parser) Events() []Event {
	return append([]Event(nil), p.events...)
}

// FrameIter is a single-pass, non-restartable pull iterator over one
// session's frames, produced by Parser.Frames().
type FrameIter struct {
	p *Parser
}

// Frames returns a fresh frame iterator over the currently selected
// session. Obtaining another one after this one is exhausted requires
// calling SetLogIndex again.
func (p *Parser) Frames() *FrameIter {
	p.decoder.metrics = p.Metrics
	return &FrameIter{p: p}
}

// Next advances the iterator and returns the next decoded frame, or
// io.EOF once the session is exhausted. Events encountered along the way
// are appended to the Parser's accumulated event list rather than
// returned here.
func (it *FrameIter) Next() (*Frame, error) {
	d := it.p.decoder
	for {
		frame, event, err := d.next()
		it.p.ResyncCount = d.resyncCount
		if err != nil {
			return nil, err
		}
		if event != nil {
			it.p.events = append(it.p.events, *event)
			continue
		}
		return frame, nil
	}
}

func hasProductSignatureAt(data []byte, start int64) bool {
	sig := []byte(productSignatureLine)
	end := start + int64(len(sig))
	if start < 0 || end > int64(len(data)) {
		return false
	}
	return string(data[start:end]) == productSignatureLine
}

func stripFieldKeys(raw Headers) Headers {
	out := make(Headers, len(raw))
	for k, v := range raw {
		if strings.Contains(k, "Field") {
			continue
		}
		out[k] = v
	}
	return out
}

func collectFieldNames(fieldDefs map[FrameType][]FieldDef) []string {
	defs := fieldDefs[FrameIntra]
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
