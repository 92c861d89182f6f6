// Package assembler combines the three memory layers into one ranked,
// token-budgeted MemoryContext. Everything here is pure.
package assembler

import (
	"math"
	"sort"
	"strings"

	"memory_orchestrator/backend/go/internal/memory/keywords"
	"memory_orchestrator/backend/go/internal/models"
)

// Layer weights. The sums fix the quality bands:
// none 0.0, W 0.25, W+S 0.55, W+S+F in [0.70, 1.0].
const (
	workingWeight  = 0.25
	episodicWeight = 0.30
	factBaseWeight = 0.15
	factBonus      = 0.30
	factSaturation = 5
	charsPerToken  = 4
)

// Options tunes Build.
type Options struct {
	// MaxTokens caps the estimated size of the formatted context. Zero disables the cap.
	MaxTokens int
}

// Build assembles a MemoryContext. Inputs are copied, never mutated. Facts are
// ordered by confidence x importance; when the formatted context exceeds the
// budget, the lowest-ranked facts go first, then the oldest messages. At least
// one message is always kept. Facts with equal score are ordered by keyword
// overlap with query.
func Build(query string, working []models.Message, summary *string, facts []models.SemanticFact, opts Options) models.MemoryContext {
	ctx := models.EmptyContext()
	ctx.WorkingMemory = append(ctx.WorkingMemory, working...)
	ctx.RelevantFacts = append(ctx.RelevantFacts, facts...)
	if summary != nil && strings.TrimSpace(*summary) != "" {
		s := *summary
		ctx.EpisodicSummary = &s
	}
	words := keywords.Extract(query)
	sort.SliceStable(ctx.RelevantFacts, func(i, j int) bool {
		a, b := ctx.RelevantFacts[i], ctx.RelevantFacts[j]
		if sa, sb := a.Score(), b.Score(); sa != sb {
			return sa > sb
		}
		return keywords.Overlap(words, a.Content, a.Tags) > keywords.Overlap(words, b.Content, b.Tags)
	})

	if opts.MaxTokens > 0 {
	trim:
		for EstimateTokens(ctx.Format()) > opts.MaxTokens {
			switch {
			case len(ctx.RelevantFacts) > 0:
				ctx.RelevantFacts = ctx.RelevantFacts[:len(ctx.RelevantFacts)-1]
			case len(ctx.WorkingMemory) > 1:
				ctx.WorkingMemory = ctx.WorkingMemory[1:]
			default:
				break trim
			}
		}
	}
	ctx.ContextQualityScore = QualityScore(len(ctx.WorkingMemory) > 0, ctx.EpisodicSummary != nil, ctx.RelevantFacts)
	return ctx
}

// QualityScore is the deterministic score of the layers present. The fact
// contribution grows with fact count (saturating at five) and mean confidence.
func QualityScore(hasWorking, hasSummary bool, facts []models.SemanticFact) float64 {
	score := 0.0
	if hasWorking {
		score += workingWeight
	}
	if hasSummary {
		score += episodicWeight
	}
	if len(facts) > 0 {
		sum := 0.0
		for _, f := range facts {
			sum += f.Confidence
		}
		avg := sum / float64(len(facts))
		n := math.Min(float64(len(facts)), factSaturation)
		score += factBaseWeight + factBonus*(n/factSaturation)*avg
	}
	score = math.Max(0, math.Min(1, score))
	return math.Round(score*10000) / 10000
}

// EstimateTokens approximates the token count of s.
func EstimateTokens(s string) int {
	n := len([]rune(s))
	return (n + charsPerToken - 1) / charsPerToken
}
