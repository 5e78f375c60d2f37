package insight

import (
	"fmt"
	"strings"
	"time"

	"github.com/recallhq/recall/internal/recording"
)

// Consolidate builds the single memory content string for a recording. One
// recording yields one narrative covering every fact, task and event;
// per-person detail travels in metadata, not in extra memory rows.
func Consolidate(rec *recording.Recording, ins *Insight) string {
	var b strings.Builder

	title := rec.Title
	if title == "" {
		title = "Recorded conversation"
	}
	fmt.Fprintf(&b, "%s (%s)", title, rec.StartedAt.Format("Jan 2, 2006 15:04"))

	if rec.Summary != "" {
		fmt.Fprintf(&b, "\n%s", rec.Summary)
	}

	if len(ins.Facts) > 0 {
		b.WriteString("\n\nKey points:")
		for _, f := range ins.Facts {
			fmt.Fprintf(&b, "\n- %s", f)
		}
	}

	if len(ins.Tasks) > 0 {
		b.WriteString("\n\nTasks:")
		for _, t := range ins.Tasks {
			if t.DueDate != "" {
				fmt.Fprintf(&b, "\n- %s (due %s)", t.Description, t.DueDate)
			} else {
				fmt.Fprintf(&b, "\n- %s", t.Description)
			}
		}
	}

	if len(ins.Events) > 0 {
		b.WriteString("\n\nEvents:")
		for _, ev := range ins.Events {
			if ev.When != "" {
				fmt.Fprintf(&b, "\n- %s (%s)", ev.Description, ev.When)
			} else {
				fmt.Fprintf(&b, "\n- %s", ev.Description)
			}
		}
	}

	if len(ins.People) > 0 {
		names := make([]string, 0, len(ins.People))
		for _, p := range ins.People {
			names = append(names, p.Name)
		}
		fmt.Fprintf(&b, "\n\nWith: %s", strings.Join(names, ", "))
	}

	return b.String()
}

// Importance derives a 1–10 importance for the consolidated memory from how
// much actionable content the recording produced.
func Importance(ins *Insight) int {
	score := 3 + len(ins.Tasks) + len(ins.Events)
	if len(ins.Facts) > 2 {
		score++
	}
	if score > 10 {
		score = 10
	}
	if score < 1 {
		score = 1
	}
	return score
}

// ParseDueDate converts a model-supplied due date into a time, accepting the
// date-only form the prompt asks for. Returns zero time when absent/invalid.
func ParseDueDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
