package models

import (
	"strings"
	"time"
)

// FactType classifies a semantic fact.
type FactType string

const (
	FactRequirement FactType = "requirement"
	FactDeadline    FactType = "deadline"
	FactTimeline    FactType = "timeline"
	FactPreference  FactType = "preference"
	FactRule        FactType = "rule"
	FactGeneral     FactType = "general"
)

// ParseFactType normalizes s into a known FactType. Unknown values map to FactGeneral.
func ParseFactType(s string) FactType {
	switch t := FactType(strings.ToLower(strings.TrimSpace(s))); t {
	case FactRequirement, FactDeadline, FactTimeline, FactPreference, FactRule:
		return t
	default:
		return FactGeneral
	}
}

// Importance is the type weight used when ranking facts for retrieval.
func (t FactType) Importance() float64 {
	switch t {
	case FactRequirement, FactDeadline:
		return 1.0
	case FactTimeline, FactRule:
		return 0.9
	case FactPreference:
		return 0.8
	default:
		return 0.6
	}
}

// SemanticFact is an atomic, confidence-scored statement retained per user.
type SemanticFact struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	FactType   FactType  `json:"fact_type"`
	Confidence float64   `json:"confidence"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Score is the confidence x importance product facts are ranked by.
func (f SemanticFact) Score() float64 {
	return f.Confidence * f.FactType.Importance()
}

// ExtractedFact is a fact candidate returned by the extractor before persistence.
type ExtractedFact struct {
	Content    string   `json:"content"`
	Type       FactType `json:"type"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags,omitempty"`
}

// WriteResult reports the outcome of a fact write.
type WriteResult int

const (
	FactInserted WriteResult = iota
	FactSkipped
)

func (r WriteResult) String() string {
	if r == FactInserted {
		return "inserted"
	}
	return "skipped"
}
