package blackbox

import "fmt"

// eventParserFunc decodes the payload following an event subtype byte. It
// returns a nil map for subtypes that carry no further structured data
// (including the ones this decoder doesn't parse yet).
type eventParserFunc func(b *bitstream) (map[string]int64, error)

var eventParsers = map[EventType]eventParserFunc{
	EventSyncBeep: func(b *bitstream) (map[string]int64, error) {
		t, err := decodeUnsignedVB(b)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"time": int64(t)}, nil
	},
	EventFlightMode: func(b *bitstream) (map[string]int64, error) {
		newFlags, err := decodeUnsignedVB(b)
		if err != nil {
			return nil, err
		}
		oldFlags, err := decodeUnsignedVB(b)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"new_flags": int64(newFlags), "old_flags": int64(oldFlags)}, nil
	},
	// Autotune/GTune result payloads and the inflight-adjustment/logging-
	// resume/twitch-test/custom-blank subtypes aren't parsed into
	// structured data; this mirrors the reference decoder, which never
	// got around to them either.
	EventAutotuneTargets:     func(*bitstream) (map[string]int64, error) { return nil, nil },
	EventAutotuneCycleStart:  func(*bitstream) (map[string]int64, error) { return nil, nil },
	EventAutotuneCycleResult: func(*bitstream) (map[string]int64, error) { return nil, nil },
	EventGtuneCycleResult:    func(*bitstream) (map[string]int64, error) { return nil, nil },
	EventCustomBlank:         func(*bitstream) (map[string]int64, error) { return nil, nil },
	EventTwitchTest:          func(*bitstream) (map[string]int64, error) { return nil, nil },
	EventInflightAdjustment:  func(*bitstream) (map[string]int64, error) { return nil, nil },
	EventLoggingResume:       func(*bitstream) (map[string]int64, error) { return nil, nil },
	EventLogEnd: func(b *bitstream) (map[string]int64, error) {
		if !b.hasSubsequent(endOfLogMessage) {
			return nil, fmt.Errorf("blackbox: invalid 'End of log' message")
		}
		b.seek(b.tell() + int64(len(endOfLogMessage)))
		return nil, nil
	},
}
