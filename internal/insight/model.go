// Package insight turns a recording's transcript into structured facts, tasks,
// people and events via a single AI call, and consolidates them into one
// memory payload per recording.
package insight

// Task is an actionable item extracted from a recording, including ones
// phrased as natural-language asides ("someone should review the doc").
type Task struct {
	Description string `json:"description"`
	DueDate     string `json:"due_date,omitempty"`
	Source      string `json:"source"`
}

// Person is someone mentioned in a recording, cross-referenced against the
// resolved canonical speakers.
type Person struct {
	Name      string `json:"name"`
	Context   string `json:"context"`
	IsSpeaker bool   `json:"is_speaker"`
}

// Event is a timestamped happening extracted from a recording.
type Event struct {
	Description string `json:"description"`
	When        string `json:"when,omitempty"`
}

// Insight is the structured payload produced at most once per recording.
type Insight struct {
	Facts  []string `json:"facts"`
	Tasks  []Task   `json:"tasks"`
	People []Person `json:"people_mentioned"`
	Events []Event  `json:"events"`
}

// Empty returns an Insight with all collections present but empty, the shape
// handed back when extraction fails.
func Empty() *Insight {
	return &Insight{
		Facts:  []string{},
		Tasks:  []Task{},
		People: []Person{},
		Events: []Event{},
	}
}

// IsEmpty reports whether the insight carries nothing worth persisting.
func (i *Insight) IsEmpty() bool {
	return len(i.Facts) == 0 && len(i.Tasks) == 0 && len(i.People) == 0 && len(i.Events) == 0
}
