package assembler

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"memory_orchestrator/backend/go/internal/models"
)

func msgs(n int) []models.Message {
	out := make([]models.Message, n)
	for i := range out {
		out[i] = models.Message{Role: models.SpeakerUser, Content: fmt.Sprintf("message number %d", i), Timestamp: time.Unix(int64(i), 0)}
	}
	return out
}

func facts(confs ...float64) []models.SemanticFact {
	out := make([]models.SemanticFact, len(confs))
	for i, c := range confs {
		out[i] = models.SemanticFact{ID: fmt.Sprint(i), Content: fmt.Sprintf("fact %d", i), FactType: models.FactRequirement, Confidence: c}
	}
	return out
}

func strp(s string) *string { return &s }

func TestQualityBands(t *testing.T) {
	tests := []struct {
		name    string
		working []models.Message
		summary *string
		facts   []models.SemanticFact
		lo, hi  float64 // hi is exclusive; hi < 0 means unbounded above (<= 1)
	}{
		{"none", nil, nil, nil, 0, 0},
		{"working only", msgs(3), nil, nil, 0.2, 0.3},
		{"working + summary", msgs(3), strp("we discussed a PT"), nil, 0.5, 0.6},
		{"all layers, one weak fact", msgs(3), strp("s"), facts(0.7), 0.7, -1},
		{"all layers, many strong facts", msgs(3), strp("s"), facts(1, 1, 1, 1, 1, 1), 0.7, -1},
		{"blank summary counts as absent", msgs(1), strp("   "), nil, 0.2, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build("", tt.working, tt.summary, tt.facts, Options{}).ContextQualityScore
			switch {
			case tt.lo == 0 && tt.hi == 0:
				if got != 0.0 {
					t.Errorf("quality = %v, want 0.0", got)
				}
			case tt.hi < 0:
				if got < tt.lo || got > 1 {
					t.Errorf("quality = %v, want in [%v, 1]", got, tt.lo)
				}
			default:
				if got < tt.lo || got >= tt.hi {
					t.Errorf("quality = %v, want in [%v, %v)", got, tt.lo, tt.hi)
				}
			}
		})
	}
}

func TestQualityApproachesOneWithFacts(t *testing.T) {
	prev := 0.0
	for n := 1; n <= 5; n++ {
		confs := make([]float64, n)
		for i := range confs {
			confs[i] = 1
		}
		got := QualityScore(true, true, facts(confs...))
		if got <= prev {
			t.Errorf("quality with %d facts = %v, not above %v", n, got, prev)
		}
		prev = got
	}
	if prev != 1.0 {
		t.Errorf("quality with 5 certain facts = %v, want 1.0", prev)
	}
	if lo, hi := QualityScore(true, true, facts(0.7)), QualityScore(true, true, facts(0.95)); lo >= hi {
		t.Errorf("higher confidence did not raise quality: %v >= %v", lo, hi)
	}
}

func TestBuildOrdersFactsAndCopiesInputs(t *testing.T) {
	in := []models.SemanticFact{
		{Content: "likes tea", FactType: models.FactPreference, Confidence: 0.9},
		{Content: "deadline friday", FactType: models.FactDeadline, Confidence: 0.8},
		{Content: "general note", FactType: models.FactGeneral, Confidence: 1.0},
	}
	got := Build("", msgs(1), nil, in, Options{})
	if got.RelevantFacts[0].Content != "deadline friday" || got.RelevantFacts[2].Content != "general note" {
		t.Errorf("order = %+v", got.RelevantFacts)
	}
	if in[0].Content != "likes tea" {
		t.Error("Build mutated its input")
	}
}

func TestBuildEqualScoreTieBreaksOnQueryOverlap(t *testing.T) {
	in := []models.SemanticFact{
		{Content: "office in jakarta", FactType: models.FactRule, Confidence: 0.9},
		{Content: "capital must be paid up", FactType: models.FactRule, Confidence: 0.9},
	}
	got := Build("how much capital?", nil, nil, in, Options{})
	if got.RelevantFacts[0].Content != "capital must be paid up" {
		t.Errorf("order = %+v", got.RelevantFacts)
	}
}

func TestBuildTokenBudget(t *testing.T) {
	working := msgs(10)
	fs := facts(0.9, 0.8, 0.75)

	full := Build("", working, strp("summary"), fs, Options{})
	budget := EstimateTokens(full.Format()) - 5
	got := Build("", working, strp("summary"), fs, Options{MaxTokens: budget})
	if EstimateTokens(got.Format()) > budget {
		t.Errorf("estimated tokens %d over budget %d", EstimateTokens(got.Format()), budget)
	}
	if len(got.WorkingMemory) != 10 {
		t.Errorf("messages dropped before facts: %d left", len(got.WorkingMemory))
	}
	if len(got.RelevantFacts) == 0 || got.RelevantFacts[0].Confidence != 0.9 {
		t.Errorf("highest-ranked fact dropped: %+v", got.RelevantFacts)
	}

	tiny := Build("", working, nil, fs, Options{MaxTokens: 1})
	if len(tiny.WorkingMemory) != 1 || tiny.WorkingMemory[0].Content != "message number 9" {
		t.Errorf("tiny budget kept %+v, want only the newest message", tiny.WorkingMemory)
	}
	if len(tiny.RelevantFacts) != 0 {
		t.Errorf("tiny budget kept facts %+v", tiny.RelevantFacts)
	}
}

func TestBuildEmptyIsWellFormed(t *testing.T) {
	got := Build("", nil, nil, nil, Options{MaxTokens: 100})
	if got.WorkingMemory == nil || got.RelevantFacts == nil || got.EpisodicSummary != nil {
		t.Errorf("Build() = %#v", got)
	}
	if got.Format() != "" {
		t.Errorf("Format() = %q, want empty", got.Format())
	}
}

func TestFormatSections(t *testing.T) {
	got := Build("", msgs(1), strp("summary text"), facts(0.9), Options{}).Format()
	for _, want := range []string{"=== KNOWN FACTS ===", "[requirement] fact 0", "=== CONVERSATION SO FAR ===", "summary text", "user: message number 0"} {
		if !strings.Contains(got, want) {
			t.Errorf("Format() missing %q:\n%s", want, got)
		}
	}
}
