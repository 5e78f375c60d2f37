package speaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/recording"
)

func seg(id, name, text string) recording.TranscriptSegment {
	return recording.TranscriptSegment{RawSpeakerID: id, RawSpeakerName: name, Text: text}
}

func TestResolve_EmptyRecording(t *testing.T) {
	resolved := Resolve(&recording.Recording{ID: "r1"})
	assert.Empty(t, resolved)
}

func TestResolve_DistinctUnknownsGetDistinctOrdinals(t *testing.T) {
	rec := &recording.Recording{
		ID: "r1",
		Segments: []recording.TranscriptSegment{
			seg("a", "Unknown", "We ship Friday"),
			seg("b", "Unknown", "I'll review the doc"),
			seg("c", "Unknown", "Sounds good"),
			seg("a", "Unknown", "Great"),
		},
	}

	resolved := Resolve(rec)
	require.Len(t, resolved, 3)
	assert.Equal(t, "Speaker 0", resolved["a"].DisplayName)
	assert.Equal(t, "Speaker 1", resolved["b"].DisplayName)
	assert.Equal(t, "Speaker 2", resolved["c"].DisplayName)

	// No two raw ids may collapse into the same label.
	labels := map[string]bool{}
	for _, c := range resolved {
		assert.False(t, labels[c.DisplayName], "duplicate label %q", c.DisplayName)
		labels[c.DisplayName] = true
	}
}

func TestResolve_OwnerAlwaysResolvesToYou(t *testing.T) {
	rec := &recording.Recording{
		ID: "r1",
		Segments: []recording.TranscriptSegment{
			{RawSpeakerID: "me", RawSpeakerName: "Alice", Text: "Hi", IsOwner: true},
			seg("x", "Bob", "Hello"),
		},
	}

	resolved := Resolve(rec)
	require.Len(t, resolved, 2)
	assert.Equal(t, OwnerLabel, resolved["me"].DisplayName)
	assert.True(t, resolved["me"].IsSelf)
	assert.Equal(t, "Bob", resolved["x"].DisplayName)
	assert.False(t, resolved["x"].IsSelf)
}

func TestResolve_LexicographicallyFirstValidName(t *testing.T) {
	rec := &recording.Recording{
		ID: "r1",
		Segments: []recording.TranscriptSegment{
			seg("a", "Zoe", "one"),
			seg("a", "Alice", "two"),
			seg("a", "unknown", "three"),
		},
	}

	resolved := Resolve(rec)
	assert.Equal(t, "Alice", resolved["a"].DisplayName)
}

func TestResolve_PlaceholderVariantsFiltered(t *testing.T) {
	rec := &recording.Recording{
		ID: "r1",
		Segments: []recording.TranscriptSegment{
			seg("a", "", "one"),
			seg("b", "UNIDENTIFIED", "two"),
			seg("c", "speaker", "three"),
			seg("d", "Speaker 2", "four"),
		},
	}

	resolved := Resolve(rec)
	assert.Equal(t, "Speaker 0", resolved["a"].DisplayName)
	assert.Equal(t, "Speaker 1", resolved["b"].DisplayName)
	assert.Equal(t, "Speaker 2", resolved["c"].DisplayName)
	// A device-numbered label is not a placeholder.
	assert.Equal(t, "Speaker 2", resolved["d"].DisplayName)
}

func TestResolve_OrdinalsScopedPerRecording(t *testing.T) {
	rec := &recording.Recording{
		ID:       "r1",
		Segments: []recording.TranscriptSegment{seg("a", "Unknown", "hey")},
	}

	first := Resolve(rec)
	second := Resolve(rec)
	assert.Equal(t, "Speaker 0", first["a"].DisplayName)
	assert.Equal(t, "Speaker 0", second["a"].DisplayName)
}

func TestResolve_Deterministic(t *testing.T) {
	rec := &recording.Recording{
		ID: "r1",
		Segments: []recording.TranscriptSegment{
			seg("a", "Unknown", "one"),
			seg("b", "Carol", "two"),
			seg("c", "", "three"),
		},
	}

	first := Resolve(rec)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Resolve(rec))
	}
}
