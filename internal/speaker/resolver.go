// Package speaker resolves raw diarization labels from one recording into a
// stable set of canonical identities.
package speaker

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/recallhq/recall/internal/recording"
)

// Canonical is the resolved identity for one raw speaker id within a single
// recording. It is embedded into the resulting memory's metadata and never
// persisted on its own.
type Canonical struct {
	RawSpeakerID string `json:"raw_speaker_id"`
	DisplayName  string `json:"display_name"`
	IsSelf       bool   `json:"is_self"`
}

// OwnerLabel is the display name given to the device wearer.
const OwnerLabel = "You"

var genericSpeakerRe = regexp.MustCompile(`(?i)^speaker$`)

// Resolve maps every distinct raw speaker id in the recording to exactly one
// canonical identity. Unresolvable ids receive "Speaker N" ordinals assigned in
// order of first appearance; the counter is keyed off raw ids, never names, so
// two ids that both report "Unknown" get two distinct labels. A recording with
// no segments resolves to an empty map, which is not an error.
func Resolve(rec *recording.Recording) map[string]Canonical {
	resolved := make(map[string]Canonical)
	if len(rec.Segments) == 0 {
		return resolved
	}

	// Pass 1: group names seen per raw id, remembering first-appearance order.
	namesByID := make(map[string]map[string]struct{})
	ownerIDs := make(map[string]bool)
	var order []string
	for _, seg := range rec.Segments {
		if _, seen := namesByID[seg.RawSpeakerID]; !seen {
			namesByID[seg.RawSpeakerID] = make(map[string]struct{})
			order = append(order, seg.RawSpeakerID)
		}
		if seg.RawSpeakerName != "" {
			namesByID[seg.RawSpeakerID][seg.RawSpeakerName] = struct{}{}
		}
		if seg.IsOwner {
			ownerIDs[seg.RawSpeakerID] = true
		}
	}

	// Pass 2: pick a display name per id. The ordinal counter is local to this
	// resolution pass so labels never leak across recordings.
	ordinal := 0
	for _, id := range order {
		if ownerIDs[id] {
			resolved[id] = Canonical{RawSpeakerID: id, DisplayName: OwnerLabel, IsSelf: true}
			continue
		}

		name, ok := pickName(namesByID[id])
		if !ok {
			name = fmt.Sprintf("Speaker %d", ordinal)
			ordinal++
		}
		resolved[id] = Canonical{RawSpeakerID: id, DisplayName: name}
	}

	// Validation pass: a banned placeholder slipping through here is a bug in
	// pickName, so log it loudly and repair with the next unused ordinal.
	for id, c := range resolved {
		if c.IsSelf || !isPlaceholder(c.DisplayName) {
			continue
		}
		repaired := fmt.Sprintf("Speaker %d", ordinal)
		ordinal++
		slog.Error("speaker resolution produced a placeholder label",
			"raw_speaker_id", id, "label", c.DisplayName, "repaired", repaired)
		c.DisplayName = repaired
		resolved[id] = c
	}

	return resolved
}

// pickName filters placeholder names and returns the lexicographically first
// valid one, so resolution is deterministic regardless of segment order.
func pickName(names map[string]struct{}) (string, bool) {
	var valid []string
	for name := range names {
		if !isPlaceholder(name) {
			valid = append(valid, name)
		}
	}
	if len(valid) == 0 {
		return "", false
	}
	sort.Strings(valid)
	return valid[0], true
}

func isPlaceholder(name string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	if lower == "unknown" || lower == "unidentified" {
		return true
	}
	// Bare "speaker" with no number is a diarization artifact; "Speaker 2" from
	// the device is kept as-is.
	return genericSpeakerRe.MatchString(trimmed)
}
