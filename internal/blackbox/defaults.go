package blackbox

import "github.com/atomgomba/orangebox/internal/common"

// headerDefaults holds the fallback values used when a header key that the
// decoder depends on is absent from the file.
var headerDefaults = map[string]interface{}{
	"Data version": int64(1),
	"I interval":   int64(1),
	"P interval":   "1/1",
	"minthrottle":  int64(0),
	"motorOutput":  []int64{0, 0},
	"vbatref":      int64(0),
}

// inspectHeaders logs a warning for every key in headerDefaults that is
// missing from headers, without mutating the map.
func inspectHeaders(headers Headers) {
	for key, def := range headerDefaults {
		if _, ok := headers[key]; !ok {
			common.Logf("header not found in file: %s (using default value: %v)", key, def)
		}
	}
}

func headerInt64(headers Headers, key string, fallback int64) int64 {
	v, ok := headers[key]
	if !ok {
		if def, ok := headerDefaults[key]; ok {
			if n, ok := def.(int64); ok {
				return n
			}
		}
		return fallback
	}
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return fallback
	}
}

func headerInt64Slice(headers Headers, key string) []int64 {
	v, ok := headers[key]
	if !ok {
		if def, ok := headerDefaults[key]; ok {
			if s, ok := def.([]int64); ok {
				return s
			}
		}
		return nil
	}
	switch s := v.(type) {
	case []int64:
		return s
	case int64:
		return []int64{s}
	case []interface{}:
		// comma-separated header values are parsed into []interface{} by
		// parseHeaderLine, not []int64; convert element by element.
		out := make([]int64, len(s))
		for i, item := range s {
			n, err := asInt64(item)
			if err != nil {
				return nil
			}
			out[i] = n
		}
		return out
	default:
		return nil
	}
}
