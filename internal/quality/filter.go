// Package quality scores a recording's worthiness of becoming a memory from
// cheap local signals, gating the expensive extraction call.
package quality

import (
	"log/slog"
	"strings"

	"github.com/recallhq/recall/internal/recording"
)

// Score is the result of the heuristic gate: a 0–10 value and the memorize
// decision derived from it. Computed per run, never stored standalone.
type Score struct {
	Value          float64 `json:"value"`
	ShouldMemorize bool    `json:"should_memorize"`
}

// Filter scores recordings against a configurable memorize threshold.
type Filter struct {
	threshold float64
}

// NewFilter creates a quality filter. The threshold is policy, not contract;
// 5 matches observed production behavior.
func NewFilter(threshold float64) *Filter {
	return &Filter{threshold: threshold}
}

// actionWords signal decisions and commitments worth remembering.
var actionWords = []string{
	"will ", "need to", "should ", "must ", "todo", "to-do", "remember",
	"deadline", "schedule", "meeting", "decide", "decided", "agreed",
	"plan ", "review", "follow up", "due ",
}

// Evaluate computes the score for one recording. It never fails: any internal
// panic is recovered and the filter fails open, preferring a wasted extraction
// call over silently dropping a recording.
func (f *Filter) Evaluate(rec *recording.Recording) (score Score) {
	defer func() {
		if r := recover(); r != nil {
			id := "unknown"
			if rec != nil {
				id = rec.ID
			}
			slog.Error("quality filter panicked, failing open", "recording_id", id, "panic", r)
			score = Score{Value: f.threshold, ShouldMemorize: true}
		}
	}()

	transcript := strings.ToLower(rec.TranscriptText())
	value := 0.0

	// Transcript length: up to 4 points.
	switch n := len(transcript); {
	case n >= 2000:
		value += 4
	case n >= 500:
		value += 3
	case n >= 150:
		value += 2
	case n >= 40:
		value += 1
	}

	// Questions imply dialogue rather than media playback: up to 2 points.
	switch q := strings.Count(transcript, "?"); {
	case q >= 3:
		value += 2
	case q >= 1:
		value += 1
	}

	// Decision/action keywords: up to 3 points.
	hits := 0
	for _, w := range actionWords {
		if strings.Contains(transcript, w) {
			hits++
		}
	}
	switch {
	case hits >= 4:
		value += 3
	case hits >= 2:
		value += 2
	case hits >= 1:
		value += 1
	}

	// A non-trivial summary from the source is a quality signal: 1 point.
	if len(strings.TrimSpace(rec.Summary)) >= 20 {
		value++
	}

	if value > 10 {
		value = 10
	}

	return Score{Value: value, ShouldMemorize: value >= f.threshold}
}
