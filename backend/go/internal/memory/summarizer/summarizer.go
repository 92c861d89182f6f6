// Package summarizer compresses a window of turns into a structured summary
// with one text-generation call.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"memory_orchestrator/backend/go/internal/llm"
	"memory_orchestrator/backend/go/internal/memory/llmjson"
	"memory_orchestrator/backend/go/internal/models"
)

const (
	maxListItems = 10
	temperature  = 0.2
)

const summaryPrompt = `Summarize the conversation below for long-term memory.
Respond with a single JSON object and nothing else, using exactly these keys:
{"summary": string, "topics": [string], "key_decisions": [string], "user_preferences": [string], "next_steps": [string]}
"summary" must be at most %d characters. Use empty arrays when a list has no entries.

Conversation:
%s`

const strictSuffix = `

Your previous answer was not valid. Output ONLY the JSON object. No markdown, no code fences, no commentary, no extra keys.`

// payload mirrors the expected model output. Summary is a pointer so a missing
// key is distinguishable from an empty string.
type payload struct {
	Summary         *string  `json:"summary"`
	Topics          []string `json:"topics"`
	KeyDecisions    []string `json:"key_decisions"`
	UserPreferences []string `json:"user_preferences"`
	NextSteps       []string `json:"next_steps"`
}

// Summarizer is stateless apart from its generator.
type Summarizer struct {
	gen       llm.Generator
	maxLength int
	maxTokens int
}

// New creates a Summarizer. maxLength is the character cap requested from the model.
func New(gen llm.Generator, maxLength, maxTokens int) *Summarizer {
	return &Summarizer{gen: gen, maxLength: maxLength, maxTokens: maxTokens}
}

// Summarize returns the structured summary of window.
//
// A malformed answer is retried once with a stricter instruction. A second
// malformed answer, or any generator failure, is returned as ErrLLMCallFailed.
func (s *Summarizer) Summarize(ctx context.Context, sessionID string, window []models.Message) (models.SummaryResult, error) {
	if sessionID == "" || len(window) == 0 {
		return models.SummaryResult{}, fmt.Errorf("%w: session id and a non-empty window are required", models.ErrInvalidInput)
	}
	prompt := fmt.Sprintf(summaryPrompt, s.maxLength, Transcript(window))

	result, err := s.attempt(ctx, prompt)
	if errors.Is(err, models.ErrParse) {
		result, err = s.attempt(ctx, prompt+strictSuffix)
		if errors.Is(err, models.ErrParse) {
			return models.SummaryResult{}, fmt.Errorf("%w: %w", models.ErrLLMCallFailed, err)
		}
	}
	return result, err
}

func (s *Summarizer) attempt(ctx context.Context, prompt string) (models.SummaryResult, error) {
	raw, err := s.gen.Call(ctx, prompt, s.maxTokens, temperature)
	if err != nil {
		if errors.Is(err, models.ErrLLMCallFailed) {
			return models.SummaryResult{}, err
		}
		return models.SummaryResult{}, fmt.Errorf("%w: %v", models.ErrLLMCallFailed, err)
	}
	var p payload
	if err := llmjson.DecodeStrict(raw, &p); err != nil {
		return models.SummaryResult{}, err
	}
	if p.Summary == nil || strings.TrimSpace(*p.Summary) == "" {
		return models.SummaryResult{}, fmt.Errorf("%w: summary is missing or empty", models.ErrParse)
	}
	return models.SummaryResult{
		Summary:         strings.TrimSpace(*p.Summary),
		Topics:          cleanList(p.Topics),
		KeyDecisions:    cleanList(p.KeyDecisions),
		UserPreferences: cleanList(p.UserPreferences),
		NextSteps:       cleanList(p.NextSteps),
	}, nil
}

// Transcript renders messages one per line as "role: content".
func Transcript(msgs []models.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(m.Content))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// cleanList trims, drops blanks and duplicates, and caps the list.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		key := strings.ToLower(it)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
		if len(out) == maxListItems {
			break
		}
	}
	return out
}
