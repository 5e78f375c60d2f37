package recording

import "time"

// TranscriptSegment is one attributed utterance in a recording transcript.
// Speaker ids and names come straight from the capture device's diarization
// and are unreliable: distinct ids frequently share the name "Unknown".
type TranscriptSegment struct {
	RawSpeakerID   string `json:"speaker_id"`
	RawSpeakerName string `json:"speaker_name"`
	Text           string `json:"text"`
	IsOwner        bool   `json:"is_owner"`
}

// Recording is one captured audio session as reported by the external capture
// source. It is read-only to this service and referenced only by ID.
type Recording struct {
	ID          string              `json:"id"`
	OwnerID     string              `json:"owner_id"`
	StartedAt   time.Time           `json:"started_at"`
	Title       string              `json:"title"`
	Summary     string              `json:"summary"`
	Segments    []TranscriptSegment `json:"transcript_segments"`
	IsProcessed bool                `json:"is_processed"`
}

// TranscriptText joins all segment texts into a single string.
func (r *Recording) TranscriptText() string {
	var n int
	for _, s := range r.Segments {
		n += len(s.Text) + 1
	}
	buf := make([]byte, 0, n)
	for i, s := range r.Segments {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, s.Text...)
	}
	return string(buf)
}
