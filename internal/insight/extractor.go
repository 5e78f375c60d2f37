package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/recording"
	"github.com/recallhq/recall/internal/speaker"
)

// Extractor produces structured insights from one recording. Implementations
// must be safe for concurrent use; the coordinator invokes Extract at most
// once per recording.
type Extractor interface {
	Extract(ctx context.Context, rec *recording.Recording, speakers map[string]speaker.Canonical) (*Insight, error)
}

// Embedder produces a vector embedding for a piece of text. Used by the
// manual-entry semantic dedup path, never by the recording pipeline.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// chatClient is the slice of the OpenAI client the extractor needs; narrowed
// for stubbing in tests.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIExtractor implements Extractor and Embedder against the OpenAI API.
type OpenAIExtractor struct {
	client         chatClient
	model          string
	embeddingModel string
	timeout        time.Duration
}

// NewOpenAIExtractor creates an extractor from config.
func NewOpenAIExtractor(cfg config.OpenAIConfig) *OpenAIExtractor {
	return &OpenAIExtractor{
		client:         openai.NewClient(cfg.APIKey),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
	}
}

const systemPrompt = `You analyze transcripts from a wearable recorder and extract durable information about the wearer's life. Respond with a single JSON object:
{
  "facts": ["standalone factual statements worth remembering"],
  "tasks": [{"description": "...", "due_date": "YYYY-MM-DD or empty"}],
  "people_mentioned": [{"name": "...", "context": "how they came up"}],
  "events": [{"description": "...", "when": "..."}]
}
Include tasks phrased as casual asides ("I'll review the doc", "someone should book the room"). Keep descriptions short and imperative. Use the speaker names exactly as they appear in the transcript. Return only JSON.`

// Extract runs the single AI call for a recording. The transcript is rendered
// with resolved canonical names so the model never sees raw diarization ids.
// The call is bounded by the configured timeout; a timeout is an extraction
// failure, not a hang.
func (e *OpenAIExtractor) Extract(ctx context.Context, rec *recording.Recording, speakers map[string]speaker.Canonical) (*Insight, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: renderPrompt(rec, speakers)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Empty(), fmt.Errorf("extraction call for recording %s: %w", rec.ID, err)
	}
	if len(resp.Choices) == 0 {
		return Empty(), fmt.Errorf("extraction call for recording %s: empty response", rec.ID)
	}

	ins, err := parseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return Empty(), fmt.Errorf("parsing extraction response for recording %s: %w", rec.ID, err)
	}

	crossReferenceSpeakers(ins, speakers)
	return ins, nil
}

// Embed returns the embedding vector for text.
func (e *OpenAIExtractor) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.embeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding text: empty response")
	}
	return resp.Data[0].Embedding, nil
}

func renderPrompt(rec *recording.Recording, speakers map[string]speaker.Canonical) string {
	var b strings.Builder
	if rec.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", rec.Title)
	}
	if rec.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", rec.Summary)
	}
	fmt.Fprintf(&b, "Recorded: %s\n\nTranscript:\n", rec.StartedAt.Format(time.RFC1123))

	for _, seg := range rec.Segments {
		name := seg.RawSpeakerName
		if c, ok := speakers[seg.RawSpeakerID]; ok {
			name = c.DisplayName
		}
		fmt.Fprintf(&b, "%s: %s\n", name, seg.Text)
	}
	return b.String()
}

// parseResponse treats the model output as an untrusted payload: code fences
// are stripped, every field defaults to empty, and entries without the
// required fields are dropped rather than failing the whole response.
func parseResponse(raw string) (*Insight, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload struct {
		Facts []any `json:"facts"`
		Tasks []struct {
			Description string `json:"description"`
			DueDate     string `json:"due_date"`
		} `json:"tasks"`
		People []struct {
			Name    string `json:"name"`
			Context string `json:"context"`
		} `json:"people_mentioned"`
		Events []struct {
			Description string `json:"description"`
			When        string `json:"when"`
		} `json:"events"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, err
	}

	ins := Empty()
	for _, f := range payload.Facts {
		if s, ok := f.(string); ok && strings.TrimSpace(s) != "" {
			ins.Facts = append(ins.Facts, s)
		}
	}
	for _, t := range payload.Tasks {
		if strings.TrimSpace(t.Description) == "" {
			continue
		}
		ins.Tasks = append(ins.Tasks, Task{Description: t.Description, DueDate: t.DueDate, Source: "recording_pipeline"})
	}
	for _, p := range payload.People {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		ins.People = append(ins.People, Person{Name: p.Name, Context: p.Context})
	}
	for _, ev := range payload.Events {
		if strings.TrimSpace(ev.Description) == "" {
			continue
		}
		ins.Events = append(ins.Events, Event{Description: ev.Description, When: ev.When})
	}
	return ins, nil
}

// crossReferenceSpeakers marks mentioned people who are also resolved speakers
// and appends speakers the model left out, so metadata always carries every
// participant.
func crossReferenceSpeakers(ins *Insight, speakers map[string]speaker.Canonical) {
	byName := make(map[string]bool, len(ins.People))
	for i := range ins.People {
		byName[strings.ToLower(ins.People[i].Name)] = true
	}

	for _, c := range speakers {
		if c.IsSelf {
			continue
		}
		lower := strings.ToLower(c.DisplayName)
		if byName[lower] {
			for i := range ins.People {
				if strings.ToLower(ins.People[i].Name) == lower {
					ins.People[i].IsSpeaker = true
				}
			}
			continue
		}
		ins.People = append(ins.People, Person{
			Name:      c.DisplayName,
			Context:   "spoke in this recording",
			IsSpeaker: true,
		})
		byName[lower] = true
	}
}

var _ Extractor = (*OpenAIExtractor)(nil)
var _ Embedder = (*OpenAIExtractor)(nil)
