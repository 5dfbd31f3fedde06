package blackbox

import (
	"io"

	"github.com/atomgomba/orangebox/internal/common"
)

// maxTimeJumpMicros and maxLoopIterationJump bound how far an accepted I/P
// frame's time or loopIteration field may regress relative to the last
// accepted frame before it is treated as corrupt rather than as a genuine
// reset. The reference decoder's equivalent guard ANDs a backward-jump
// test with a forward-jump magnitude test, which can never be true; this
// one actually rejects a regression past the threshold.
const (
	maxTimeJumpMicros    = 10 * 1000 * 1000
	maxLoopIterationJump = 5000
)

// sessionDecoder owns the bit-stream cursor and the predictor Context for
// one session and dispatches each one-byte frame-type token to the
// matching field decode, resyncing on anything it doesn't recognize.
type sessionDecoder struct {
	bs        *bitstream
	ctx       *Context
	fieldDefs map[FrameType][]FieldDef
	metrics   *common.Metrics

	resyncCount int64
	endOfLog    bool

	haveTime  bool
	lastTimeV int64
	haveIter  bool
	lastIterV int64
}

func newSessionDecoder(payload []byte, headers Headers, fieldDefs map[FrameType][]FieldDef) *sessionDecoder {
	return &sessionDecoder{
		bs:        newBitstream(payload),
		ctx:       newContext(headers, fieldDefs),
		fieldDefs: fieldDefs,
	}
}

// resyncFrom seeks the cursor to one byte past where the aborted frame
// attempt began and records the resync.
func (d *sessionDecoder) resyncFrom(start int64) {
	d.markInvalid()
	common.Logf("resync at payload offset %d", start)
	d.bs.seek(start + 1)
}

// markInvalid records a rejected frame attempt without touching the
// bit-stream cursor; resyncFrom calls this before seeking past the bad byte.
func (d *sessionDecoder) markInvalid() {
	d.resyncCount++
	d.ctx.invalidFrameCount++
	if d.metrics != nil {
		d.metrics.IncResync()
	}
}

// next dispatches a single frame-type token and returns exactly one of
// (frame, event); both nil with io.EOF marks the end of the session.
func (d *sessionDecoder) next() (*Frame, *Event, error) {
	for {
		if d.endOfLog || d.bs.eof() {
			return nil, nil, io.EOF
		}
		start := d.bs.tell()
		t, err := d.bs.readU8()
		if err != nil {
			return nil, nil, io.EOF
		}
		if !isFrameType(t) {
			d.resyncFrom(start)
			continue
		}
		ft := FrameType(t)
		d.ctx.readFrameCount++

		if ft == FrameEvent {
			ev, err := d.decodeEvent()
			if err != nil {
				d.resyncFrom(start)
				continue
			}
			if ev == nil {
				// Unknown subtype: already logged, nothing to surface, and
				// (as in the reference) we don't reseek — the next byte is
				// assumed to be the following frame's type token.
				continue
			}
			if ev.Type == EventLogEnd {
				d.endOfLog = true
			}
			return nil, ev, nil
		}

		defs, ok := d.fieldDefs[ft]
		if !ok || len(defs) == 0 {
			d.resyncFrom(start)
			continue
		}

		if ft == FrameInter && len(d.ctx.pastFrames[0].Data) == 0 {
			// A P-frame can't be decoded before any I-frame has
			// established a baseline; discard it rather than predict
			// against a zeroed history.
			d.markInvalid()
			continue
		}

		values, err := decodeFrameFields(d.bs, d.ctx, ft, defs)
		if err != nil {
			d.resyncFrom(start)
			continue
		}

		if (ft == FrameIntra || ft == FrameInter) && !d.timeAndIterSane(ft, values) {
			d.markInvalid()
			continue
		}
		if ft == FrameIntra || ft == FrameInter {
			if ii, ok := d.ctx.namesToIndices[ft]["loopIteration"]; ok && ii < len(values) {
				d.ctx.lastIter = int64(values[ii])
			}
		}

		frame := Frame{Type: ft, Data: values, StartOffset: start, EndOffset: d.bs.tell()}
		d.ctx.addFrame(frame)
		if d.metrics != nil {
			d.metrics.AddFrame(frame.EndOffset - frame.StartOffset)
		}
		return &frame, nil, nil
	}
}

// timeAndIterSane rejects a frame whose time field regresses by more than
// maxTimeJumpMicros, or whose loopIteration field regresses by more than
// maxLoopIterationJump, relative to the last accepted I/P frame. Smaller
// regressions and forward jumps of any size are accepted.
func (d *sessionDecoder) timeAndIterSane(ft FrameType, values []int32) bool {
	names := d.ctx.namesToIndices[ft]
	ti, hasTime := names["time"]
	hasTime = hasTime && ti < len(values)
	ii, hasIter := names["loopIteration"]
	hasIter = hasIter && ii < len(values)
	if hasTime {
		t := int64(values[ti])
		if d.haveTime && t < d.lastTimeV && d.lastTimeV-t > maxTimeJumpMicros {
			return false
		}
	}
	if hasIter {
		it := int64(values[ii])
		if d.haveIter && it < d.lastIterV && d.lastIterV-it > maxLoopIterationJump {
			return false
		}
	}
	if hasTime {
		d.haveTime = true
		d.lastTimeV = int64(values[ti])
	}
	if hasIter {
		d.haveIter = true
		d.lastIterV = int64(values[ii])
	}
	return true
}

func (d *sessionDecoder) decodeEvent() (*Event, error) {
	subtype, err := d.bs.readU8()
	if err != nil {
		return nil, err
	}
	et := EventType(subtype)
	parser, ok := eventParsers[et]
	if !ok {
		common.Logf("unknown event subtype: %d", subtype)
		return nil, nil
	}
	data, err := parser(d.bs)
	if err != nil {
		return nil, err
	}
	return &Event{Type: et, Data: data}, nil
}

// decodeFrameFields decodes every field of one frame in order, consulting
// the numeric codec for the raw token(s) and the predictor engine for the
// final logical value, honoring encoding-group boundaries.
func decodeFrameFields(bs *bitstream, ctx *Context, ft FrameType, defs []FieldDef) ([]int32, error) {
	ctx.frameType = ft
	result := make([]int32, len(defs))
	ctx.currentFrame = result

	i := 0
	for i < len(defs) {
		slots := groupSizeAt(defs, i)
		ctx.fieldIndex = i
		raw, err := decodeEncodingGroup(bs, defs[i].Encoding, slots, ctx)
		if err != nil {
			return nil, err
		}
		for j, v := range raw {
			idx := i + j
			if idx >= len(defs) {
				break
			}
			ctx.fieldIndex = idx
			pf, ok := predictorTable[defs[idx].Predictor]
			if !ok {
				return nil, &encodingError{frameType: ft, offset: bs.tell(), detail: "no predictor function registered"}
			}
			result[idx] = pf(v, ctx)
		}
		if len(raw) == 0 {
			i++
		} else {
			i += len(raw)
		}
	}
	return result, nil
}

// decodeEncodingGroup reads the raw token(s) for one encoding-group read,
// dispatching to the numeric codec for the given encoding kind.
func decodeEncodingGroup(bs *bitstream, enc EncodingKind, slots int, ctx *Context) ([]int32, error) {
	switch enc {
	case EncodingSignedVB:
		v, err := decodeSignedVB(bs)
		if err != nil {
			return nil, err
		}
		return []int32{v}, nil
	case EncodingUnsignedVB:
		v, err := decodeUnsignedVB(bs)
		if err != nil {
			return nil, err
		}
		return []int32{int32(v)}, nil
	case EncodingNeg14Bit:
		v, err := decodeNeg14Bit(bs)
		if err != nil {
			return nil, err
		}
		return []int32{v}, nil
	case EncodingTag8_8SVB:
		return decodeTag8_8SVB(bs, slots)
	case EncodingTag2_3S32:
		out, err := decodeTag2_3S32(bs)
		if err != nil {
			return nil, err
		}
		return out[:], nil
	case EncodingTag8_4S16:
		var out [4]int32
		var err error
		if ctx.dataVersion < 2 {
			out, err = decodeTag8_4S16V1(bs)
		} else {
			out, err = decodeTag8_4S16V2(bs)
		}
		if err != nil {
			return nil, err
		}
		return out[:], nil
	case EncodingNull:
		return []int32{0}, nil
	case EncodingTag2_3SVarint:
		return nil, &encodingError{offset: bs.tell(), detail: "TAG2_3SVARIABLE encoding not implemented"}
	default:
		return nil, &encodingError{offset: bs.tell(), detail: "unknown encoding id"}
	}
}
