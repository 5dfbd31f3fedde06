package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/atomgomba/orangebox/internal/blackbox"
	"github.com/atomgomba/orangebox/internal/common"
)

// FrameCount pairs a frame type with how many times it was accepted.
type FrameCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Summary is a compact, serializable view of one decoded session, built by
// draining a blackbox.Parser's frame iterator.
type Summary struct {
	Source      string            `json:"source"`
	SourceHash  string            `json:"source_hash,omitempty"`
	LogIndex    int               `json:"log_index"`
	LogCount    int               `json:"log_count"`
	Headers     map[string]string `json:"headers"`
	FieldNames  []string          `json:"field_names"`
	FrameCounts []FrameCount      `json:"frame_counts"`
	EventCount  int               `json:"event_count"`
	ResyncCount int64             `json:"resync_count"`
	FirstTimeUs int64             `json:"first_time_us,omitempty"`
	LastTimeUs  int64             `json:"last_time_us,omitempty"`
	HasTime     bool              `json:"has_time"`
}

// Summarize drains p's remaining frames and builds a Summary. It assumes
// p.SetLogIndex has already selected the desired session and that nothing
// else has begun consuming p.Frames().
func Summarize(p *blackbox.Parser, source string) (Summary, error) {
	rep := Summary{
		Source:     source,
		LogIndex:   p.LogIndex(),
		LogCount:   p.LogCount(),
		Headers:    stringifyHeaders(p.Headers()),
		FieldNames: p.FieldNames(),
	}

	timeIdx := -1
	for i, name := range rep.FieldNames {
		if name == "time" {
			timeIdx = i
			break
		}
	}

	counts := make(map[string]int)
	it := p.Frames()
	for {
		frame, err := it.Next()
		if err != nil {
			break
		}
		counts[frame.Type.String()]++
		isMain := frame.Type == blackbox.FrameIntra || frame.Type == blackbox.FrameInter
		if isMain && timeIdx >= 0 && timeIdx < len(frame.Data) {
			t := int64(frame.Data[timeIdx])
			if !rep.HasTime {
				rep.FirstTimeUs = t
				rep.HasTime = true
			}
			rep.LastTimeUs = t
		}
	}

	rep.ResyncCount = p.ResyncCount
	rep.EventCount = len(p.Events())
	rep.FrameCounts = sortedFrameCounts(counts)
	if hash, _, err := common.Sha256OfFile(source); err == nil {
		rep.SourceHash = hash
	}
	return rep, nil
}

func sortedFrameCounts(counts map[string]int) []FrameCount {
	out := make([]FrameCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, FrameCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func stringifyHeaders(h blackbox.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = headerValueString(v)
	}
	return out
}

func headerValueString(v interface{}) string {
	if list, ok := v.([]interface{}); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

// SaveSummaryJSON writes rep as indented JSON to out.
func SaveSummaryJSON(rep Summary, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

// LoadSummaryJSON reads a Summary previously written by SaveSummaryJSON.
func LoadSummaryJSON(path string) (Summary, error) {
	var rep Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
