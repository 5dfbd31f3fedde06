package blackbox

import (
	"strconv"
	"strings"
)

// productSignatureLine is the ASCII header line every genuine session
// begins with; it also doubles as the needle the scanner searches for to
// locate session boundaries inside a merged (concatenated) log file.
const productSignatureLine = "H Product:Blackbox flight data recorder by Nicholas Sherlock"

const maxHeaderLineLen = 4096

// scanLogPointers returns the byte offset of every occurrence of the
// product signature line in data, in ascending order and without overlap.
func scanLogPointers(data []byte) []int64 {
	needle := []byte(productSignatureLine)
	var pointers []int64
	from := 0
	for {
		idx := indexFrom(data, needle, from)
		if idx < 0 {
			break
		}
		pointers = append(pointers, int64(idx))
		from = idx + len(needle)
	}
	return pointers
}

func indexFrom(data, needle []byte, from int) int {
	if from >= len(data) {
		return -1
	}
	idx := indexBytes(data[from:], needle)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func indexBytes(haystack, needle []byte) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}

// parsedHeaders is the result of scanning one session's header block: the
// raw key/value map (still containing the "Field ..." keys fielddef.go
// needs) and the byte length of the header block itself.
type parsedHeaders struct {
	raw        Headers
	headerSize int64
}

// readHeaders reads header lines from data starting at offset 0 until a
// line that doesn't begin with "H " is encountered (which is the first
// frame-type byte of the payload), or EOF. When allowInvalidHeader is
// false, a non-ASCII byte inside a header line is fatal.
func readHeaders(data []byte, allowInvalidHeader bool) (*parsedHeaders, error) {
	raw := make(Headers)
	pos := 0
	for {
		if pos < len(data) && data[pos] != 'H' {
			// Not a header line: the payload starts here.
			return &parsedHeaders{raw: raw, headerSize: int64(pos)}, nil
		}
		line, next, stoppedOnInvalidByte, err := readHeaderLine(data, pos, allowInvalidHeader)
		if err != nil {
			return nil, err
		}
		if line == nil {
			// EOF with nothing left to read.
			return &parsedHeaders{raw: raw, headerSize: int64(pos)}, nil
		}
		if stoppedOnInvalidByte {
			// Header reading was cut short by a non-ASCII byte in
			// permissive mode: the payload starts at this line, so
			// rewind to before it and leave raw untouched.
			return &parsedHeaders{raw: raw, headerSize: int64(pos)}, nil
		}
		if !parseHeaderLine(line, raw) {
			// Not a header line: the payload starts here.
			return &parsedHeaders{raw: raw, headerSize: int64(pos)}, nil
		}
		pos = next
	}
}

// readHeaderLine reads bytes from data[pos:] up to (but not including) a
// '\n' or EOF. It returns the line with no trailing newline, the offset
// just past the newline (or EOF), and whether reading stopped early
// because of a non-ASCII byte in permissive mode. line is nil only at
// true EOF with zero bytes read.
func readHeaderLine(data []byte, pos int, allowInvalidHeader bool) (line []byte, next int, stoppedOnInvalidByte bool, err error) {
	start := pos
	for pos < len(data) {
		b := data[pos]
		if b == '\n' {
			return data[start:pos], pos + 1, false, nil
		}
		if b >= 0x80 {
			if allowInvalidHeader {
				return data[start:pos], pos, true, nil
			}
			return nil, 0, false, newInvalidHeaderError(int64(start), "non-ASCII byte in header line")
		}
		if pos-start > maxHeaderLineLen {
			return nil, 0, false, newMalformedHeaderError(int64(start), "header line too long")
		}
		pos++
	}
	if pos == start {
		return nil, pos, false, nil
	}
	return data[start:pos], pos, false, nil
}

// parseHeaderLine parses one "H key:value" line into raw, splitting
// comma-separated values into a []interface{} of trycast'd scalars. It
// returns false when data isn't actually a header line (doesn't start
// with 'H' or has no colon), signalling the caller to stop header
// scanning.
func parseHeaderLine(data []byte, raw Headers) bool {
	if len(data) == 0 || data[0] != 'H' {
		return false
	}
	line := strings.Replace(string(data), "H ", "", 1)
	name, value, found := strings.Cut(line, ":")
	if !found {
		return false
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		values := make([]interface{}, len(parts))
		for i, p := range parts {
			values[i] = trycast(strings.TrimSpace(p))
		}
		raw[name] = values
	} else {
		raw[name] = trycast(value)
	}
	return true
}

// trycast converts a header value token to the most specific type it
// parses as: hex int64 ("0x..."), decimal int64, float64, or the original
// string.
func trycast(s string) interface{} {
	if strings.HasPrefix(s, "0x") {
		if n, err := strconv.ParseInt(s[2:], 16, 64); err == nil {
			return n
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
