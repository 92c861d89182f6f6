package extractor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"memory_orchestrator/backend/go/internal/llm"
	"memory_orchestrator/backend/go/internal/memory/llmjson"
	"memory_orchestrator/backend/go/internal/models"
)

const temperature = 0.0

const extractionPrompt = `Extract durable facts about the user from the conversation below.
Only include concrete requirements, deadlines, timelines, preferences, rules or other facts worth remembering across sessions.
Respond with a single JSON object and nothing else:
{"facts": [{"content": string, "type": "requirement"|"deadline"|"timeline"|"preference"|"rule"|"general", "confidence": number between 0 and 1, "tags": [string]}]}
Return at most %d facts. Return {"facts": []} when nothing qualifies.

Conversation:
%s`

const strictSuffix = `

Your previous answer was not valid. Output ONLY the JSON object with the single key "facts". No markdown, no commentary.`

type factPayload struct {
	Content    *string  `json:"content"`
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence"`
	Tags       []string `json:"tags"`
}

type extractionPayload struct {
	Facts *[]factPayload `json:"facts"`
}

// LlmExtractor is an Extractor backed by a text-generation call.
type LlmExtractor struct {
	gen       llm.Generator
	floor     float64
	maxFacts  int
	maxTokens int
}

// NewLlmExtractor creates an LlmExtractor returning at most maxFacts facts
// with confidence at or above floor.
func NewLlmExtractor(gen llm.Generator, floor float64, maxFacts, maxTokens int) *LlmExtractor {
	return &LlmExtractor{gen: gen, floor: floor, maxFacts: maxFacts, maxTokens: maxTokens}
}

// Extract returns the accepted facts, highest confidence first.
func (e *LlmExtractor) Extract(ctx context.Context, userID string, chunk string) ([]models.ExtractedFact, error) {
	chunk = strings.TrimSpace(chunk)
	if userID == "" || chunk == "" {
		return []models.ExtractedFact{}, fmt.Errorf("%w: user id and content are required", models.ErrInvalidInput)
	}
	prompt := fmt.Sprintf(extractionPrompt, e.maxFacts, chunk)

	facts, err := e.attempt(ctx, prompt)
	if errors.Is(err, models.ErrParse) {
		facts, err = e.attempt(ctx, prompt+strictSuffix)
		if errors.Is(err, models.ErrParse) {
			err = fmt.Errorf("%w: %w", models.ErrLLMCallFailed, err)
		}
	}
	if err != nil {
		return []models.ExtractedFact{}, err
	}
	return e.accept(facts), nil
}

func (e *LlmExtractor) attempt(ctx context.Context, prompt string) ([]models.ExtractedFact, error) {
	raw, err := e.gen.Call(ctx, prompt, e.maxTokens, temperature)
	if err != nil {
		if errors.Is(err, models.ErrLLMCallFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrLLMCallFailed, err)
	}
	var p extractionPayload
	if err := llmjson.DecodeStrict(raw, &p); err != nil {
		return nil, err
	}
	if p.Facts == nil {
		return nil, fmt.Errorf("%w: facts key is missing", models.ErrParse)
	}
	out := make([]models.ExtractedFact, 0, len(*p.Facts))
	for _, f := range *p.Facts {
		if f.Content == nil || f.Confidence == nil {
			return nil, fmt.Errorf("%w: fact without content or confidence", models.ErrParse)
		}
		out = append(out, models.ExtractedFact{
			Content:    strings.TrimSpace(*f.Content),
			Type:       models.ParseFactType(f.Type),
			Confidence: *f.Confidence,
			Tags:       f.Tags,
		})
	}
	return out, nil
}

// accept applies the confidence floor and the per-call cap.
func (e *LlmExtractor) accept(facts []models.ExtractedFact) []models.ExtractedFact {
	out := make([]models.ExtractedFact, 0, len(facts))
	for _, f := range facts {
		if f.Content == "" || f.Confidence <= 0 || f.Confidence > 1 {
			continue
		}
		if f.Confidence < e.floor {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > e.maxFacts {
		out = out[:e.maxFacts]
	}
	return out
}
