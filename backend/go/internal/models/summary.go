package models

import "time"

// SummaryResult is the structured output of one summarization call.
type SummaryResult struct {
	Summary         string   `json:"summary"`
	Topics          []string `json:"topics"`
	KeyDecisions    []string `json:"key_decisions"`
	UserPreferences []string `json:"user_preferences"`
	NextSteps       []string `json:"next_steps"`
}

// Importance scores how much durable signal a summary carries, in [0,1].
func (r SummaryResult) Importance() float64 {
	score := 0.3
	if len(r.KeyDecisions) > 0 {
		score += 0.3
	}
	if len(r.NextSteps) > 0 {
		score += 0.2
	}
	if len(r.UserPreferences) > 0 {
		score += 0.2
	}
	return score
}

// EpisodicSummary is one immutable row of the episodic log.
type EpisodicSummary struct {
	ID              string    `json:"id" bson:"_id"`
	SessionID       string    `json:"session_id" bson:"session_id"`
	UserID          string    `json:"user_id" bson:"user_id"`
	Summary         string    `json:"summary" bson:"summary"`
	Topics          []string  `json:"topics" bson:"topics"`
	KeyDecisions    []string  `json:"key_decisions" bson:"key_decisions"`
	UserPreferences []string  `json:"user_preferences" bson:"user_preferences"`
	NextSteps       []string  `json:"next_steps" bson:"next_steps"`
	ImportanceScore float64   `json:"importance_score" bson:"importance_score"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}
