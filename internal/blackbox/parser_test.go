package blackbox

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// fixture builds a minimal session: the product signature line, the given
// "H "-prefixed header lines (without the "H " prefix), and a binary
// payload, matching the wire format in spec §6.
func fixture(headerLines []string, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(productSignatureLine + "\n")
	for _, l := range headerLines {
		buf.WriteString("H " + l + "\n")
	}
	buf.Write(payload)
	return buf.Bytes()
}

var minimalIHeaders = []string{
	"Field I name:loopIteration,time",
	"Field I signed:0,0",
	"Field I predictor:0,0",
	"Field I encoding:1,1",
	"I interval:1",
	"P interval:1/1",
}

func TestSingleSessionMinimum(t *testing.T) {
	// S1: one I-frame with two UNSIGNED_VB zero fields.
	data := fixture(minimalIHeaders, []byte{'I', 0x00, 0x00})

	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	it := p.Frames()
	frame, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Type != FrameIntra {
		t.Fatalf("Type = %v, want INTRA", frame.Type)
	}
	if !int32SliceEqual(frame.Data, []int32{0, 0}) {
		t.Fatalf("Data = %v, want [0 0]", frame.Data)
	}
	if _, err := it.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after single frame, got %v", err)
	}
}

func TestIThenPDelta(t *testing.T) {
	// S2: I-frame followed by a P-frame with PREVIOUS predictor, SIGNED_VB
	// encoding. Zig-zag: 0x00 -> 0, 0x02 -> 1.
	headers := append(append([]string(nil), minimalIHeaders...),
		"Field P signed:0,0",
		"Field P predictor:1,1",
		"Field P encoding:0,0",
	)
	data := fixture(headers, []byte{'I', 0x00, 0x00, 'P', 0x00, 0x02})

	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	it := p.Frames()

	iFrame, err := it.Next()
	if err != nil {
		t.Fatalf("Next (I): %v", err)
	}
	if iFrame.Type != FrameIntra {
		t.Fatalf("first frame type = %v, want INTRA", iFrame.Type)
	}

	pFrame, err := it.Next()
	if err != nil {
		t.Fatalf("Next (P): %v", err)
	}
	if pFrame.Type != FrameInter {
		t.Fatalf("second frame type = %v, want INTER", pFrame.Type)
	}
	if !int32SliceEqual(pFrame.Data, []int32{0, 1}) {
		t.Fatalf("P frame Data = %v, want [0 1]", pFrame.Data)
	}
}

func TestTag8_8SVBGroup(t *testing.T) {
	// S3: one I-field group of 8 SIGNED_VB fields, predictor ZERO. Tag byte
	// 0b00000101 selects fields 0 and 2; zig-zag bytes 02 -> 1, 04 -> 2.
	headers := []string{
		"Field I name:a,b,c,d,e,f,g,h",
		"Field I signed:1,1,1,1,1,1,1,1",
		"Field I predictor:0,0,0,0,0,0,0,0",
		"Field I encoding:6,6,6,6,6,6,6,6",
		"I interval:1",
		"P interval:1/1",
	}
	data := fixture(headers, []byte{'I', 0b00000101, 0x02, 0x04})

	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	frame, err := p.Frames().Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := []int32{1, 0, 2, 0, 0, 0, 0, 0}
	if !int32SliceEqual(frame.Data, want) {
		t.Fatalf("Data = %v, want %v", frame.Data, want)
	}
}

func TestSessionSplit(t *testing.T) {
	// S4: two concatenated sessions; the second begins at offset 4096.
	session1 := fixture(minimalIHeaders, []byte{'I', 0x00, 0x00})
	session2 := fixture(minimalIHeaders, []byte{'I', 0x02, 0x04})

	const secondStart = 4096
	buf := make([]byte, secondStart)
	copy(buf, session1)
	buf = append(buf, session2...)

	p, err := LoadBytes(buf, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if p.LogCount() != 2 {
		t.Fatalf("LogCount() = %d, want 2", p.LogCount())
	}
	pointers := p.LogPointers()
	if len(pointers) != 2 || pointers[0] != 0 || pointers[1] != secondStart {
		t.Fatalf("LogPointers() = %v, want [0 %d]", pointers, secondStart)
	}

	if err := p.SetLogIndex(2); err != nil {
		t.Fatalf("SetLogIndex(2): %v", err)
	}
	frame, err := p.Frames().Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	// UNSIGNED_VB, not zig-zagged: 0x02 -> 2, 0x04 -> 4.
	if !int32SliceEqual(frame.Data, []int32{2, 4}) {
		t.Fatalf("Data = %v, want [2 4]", frame.Data)
	}
}

func TestSlowFrameDoesNotPollutePHistory(t *testing.T) {
	// I, S, P: the S-frame must not become pastFrames[0] for the P-frame's
	// PREVIOUS predictor. Same I/P layout and expected result as
	// TestIThenPDelta; only a slow frame is now spliced in between.
	headers := append(append([]string(nil), minimalIHeaders...),
		"Field P signed:0,0",
		"Field P predictor:1,1",
		"Field P encoding:0,0",
		"Field S name:slowField",
		"Field S signed:0",
		"Field S predictor:0",
		"Field S encoding:1",
	)
	data := fixture(headers, []byte{'I', 0x00, 0x00, 'S', 0x07, 'P', 0x00, 0x02})

	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	it := p.Frames()

	if _, err := it.Next(); err != nil {
		t.Fatalf("Next (I): %v", err)
	}

	sFrame, err := it.Next()
	if err != nil {
		t.Fatalf("Next (S): %v", err)
	}
	if sFrame.Type != FrameSlow {
		t.Fatalf("second frame type = %v, want SLOW", sFrame.Type)
	}
	if !int32SliceEqual(sFrame.Data, []int32{7}) {
		t.Fatalf("S frame Data = %v, want [7]", sFrame.Data)
	}

	pFrame, err := it.Next()
	if err != nil {
		t.Fatalf("Next (P): %v", err)
	}
	if pFrame.Type != FrameInter {
		t.Fatalf("third frame type = %v, want INTER", pFrame.Type)
	}
	if !int32SliceEqual(pFrame.Data, []int32{0, 1}) {
		t.Fatalf("P frame Data = %v, want [0 1] (unaffected by the intervening S frame)", pFrame.Data)
	}
}

func TestSlowFrameIncUsesLastSlow(t *testing.T) {
	// Two consecutive S-frames with an INC field: the second must read
	// lastSlow, not pastFrames[0] (which stays empty throughout).
	headers := []string{
		"Field S name:count",
		"Field S signed:0",
		"Field S predictor:6",
		"Field S encoding:1",
	}
	data := fixture(headers, []byte{'S', 0x00, 'S', 0x00})

	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	it := p.Frames()

	first, err := it.Next()
	if err != nil {
		t.Fatalf("Next (first S): %v", err)
	}
	if !int32SliceEqual(first.Data, []int32{1}) {
		t.Fatalf("first S Data = %v, want [1]", first.Data)
	}

	second, err := it.Next()
	if err != nil {
		t.Fatalf("Next (second S): %v", err)
	}
	if !int32SliceEqual(second.Data, []int32{2}) {
		t.Fatalf("second S Data = %v, want [2]", second.Data)
	}
}

func TestAllowInvalidHeader(t *testing.T) {
	var buf bytes.Buffer
	for _, l := range minimalIHeaders {
		buf.WriteString("H " + l + "\n")
	}
	buf.Write([]byte{'I', 0x00, 0x00})
	data := buf.Bytes()

	if _, err := LoadBytes(data, 1, false); !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("strict mode: expected ErrInvalidHeader, got %v", err)
	}

	p, err := LoadBytes(data, 1, true)
	if err != nil {
		t.Fatalf("permissive mode: unexpected error: %v", err)
	}
	frame, err := p.Frames().Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Type != FrameIntra {
		t.Fatalf("Type = %v, want INTRA", frame.Type)
	}
}

func TestResync(t *testing.T) {
	// S6: inject a stray byte between two well-formed I-frames.
	payload := []byte{'I', 0x00, 0x00, 0x2A, 'I', 0x00, 0x00}
	data := fixture(minimalIHeaders, payload)

	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	it := p.Frames()

	first, err := it.Next()
	if err != nil {
		t.Fatalf("Next (1): %v", err)
	}
	if first.Type != FrameIntra {
		t.Fatalf("first.Type = %v, want INTRA", first.Type)
	}
	second, err := it.Next()
	if err != nil {
		t.Fatalf("Next (2): %v", err)
	}
	if second.Type != FrameIntra {
		t.Fatalf("second.Type = %v, want INTRA", second.Type)
	}
	if p.ResyncCount < 1 {
		t.Fatalf("ResyncCount = %d, want >= 1", p.ResyncCount)
	}
}

func TestNoSuchLog(t *testing.T) {
	data := fixture(minimalIHeaders, []byte{'I', 0x00, 0x00})
	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if err := p.SetLogIndex(2); !errors.Is(err, ErrNoSuchLog) {
		t.Fatalf("SetLogIndex(2): expected ErrNoSuchLog, got %v", err)
	}
}

func TestFirstFrameIsIntra(t *testing.T) {
	// The first emitted (non-event) frame is always INTRA.
	data := fixture(minimalIHeaders, []byte{'I', 0x00, 0x00})
	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	frame, err := p.Frames().Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Type != FrameIntra {
		t.Fatalf("first frame type = %v, want INTRA", frame.Type)
	}
}

func TestFrameDataLengthMatchesFieldCount(t *testing.T) {
	// Every decoded frame carries exactly one value per I-frame field.
	data := fixture(minimalIHeaders, []byte{'I', 0x00, 0x00})
	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	frame, err := p.Frames().Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(frame.Data) != len(p.FieldNames()) {
		t.Fatalf("len(Data) = %d, want %d", len(frame.Data), len(p.FieldNames()))
	}
}

func TestSetLogIndexIdempotent(t *testing.T) {
	// Re-selecting the same session resets decode state identically.
	data := fixture(minimalIHeaders, []byte{'I', 0x00, 0x00})
	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if err := p.SetLogIndex(1); err != nil {
		t.Fatalf("SetLogIndex(1) again: %v", err)
	}
	frame, err := p.Frames().Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !int32SliceEqual(frame.Data, []int32{0, 0}) {
		t.Fatalf("Data = %v, want [0 0]", frame.Data)
	}
}

func TestEventEndOfLog(t *testing.T) {
	payload := append([]byte{'I', 0x00, 0x00}, 'E', byte(EventLogEnd))
	payload = append(payload, endOfLogMessage...)
	data := fixture(minimalIHeaders, payload)

	p, err := LoadBytes(data, 1, false)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	it := p.Frames()
	frame, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Type != FrameIntra {
		t.Fatalf("Type = %v, want INTRA", frame.Type)
	}
	if _, err := it.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after END_OF_LOG, got %v", err)
	}
	events := p.Events()
	if len(events) != 1 || events[0].Type != EventLogEnd {
		t.Fatalf("Events() = %v, want one EventLogEnd", events)
	}
}

func int32SliceEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
