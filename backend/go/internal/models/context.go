package models

import (
	"fmt"
	"strings"
)

// MemoryContext is the ranked material injected into the prompt for one turn.
type MemoryContext struct {
	WorkingMemory       []Message      `json:"working_memory"`
	EpisodicSummary     *string        `json:"episodic_summary"`
	RelevantFacts       []SemanticFact `json:"relevant_facts"`
	ContextQualityScore float64        `json:"context_quality_score"`
}

// EmptyContext is the fully-defined fallback: no layers, quality 0.
func EmptyContext() MemoryContext {
	return MemoryContext{
		WorkingMemory: []Message{},
		RelevantFacts: []SemanticFact{},
	}
}

// Format renders the context as a prompt block.
func (c MemoryContext) Format() string {
	var sb strings.Builder
	if len(c.RelevantFacts) > 0 {
		sb.WriteString("=== KNOWN FACTS ===\n")
		for i, f := range c.RelevantFacts {
			fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, f.FactType, f.Content)
		}
		sb.WriteString("\n")
	}
	if c.EpisodicSummary != nil && *c.EpisodicSummary != "" {
		sb.WriteString("=== CONVERSATION SO FAR ===\n")
		sb.WriteString(*c.EpisodicSummary)
		sb.WriteString("\n\n")
	}
	if len(c.WorkingMemory) > 0 {
		sb.WriteString("=== RECENT MESSAGES ===\n")
		for _, m := range c.WorkingMemory {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// MemoryStats is the observability snapshot returned by GetStats.
type MemoryStats struct {
	ContextsBuilt        int64   `json:"contexts_built"`
	AvgQualityScore      float64 `json:"avg_quality_score"`
	MemoryRecallEstimate float64 `json:"memory_recall_estimate"`
	SummariesWritten     int64   `json:"summaries_written"`
	SummariesFailed      int64   `json:"summaries_failed"`
	FactsWritten         int64   `json:"facts_written"`
	FactsSkipped         int64   `json:"facts_skipped"`
	ExtractionsFailed    int64   `json:"extractions_failed"`
	BackendErrors        int64   `json:"backend_errors"`
	TasksDropped         int64   `json:"tasks_dropped"`
	ActiveSessions       int     `json:"active_sessions"`
}
