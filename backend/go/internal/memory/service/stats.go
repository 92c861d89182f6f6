package service

import (
	"math"
	"sync"
	"sync/atomic"

	"memory_orchestrator/backend/go/internal/memory/keywords"
	"memory_orchestrator/backend/go/internal/models"
)

type statsCollector struct {
	summariesWritten  atomic.Int64
	summariesFailed   atomic.Int64
	factsWritten      atomic.Int64
	factsSkipped      atomic.Int64
	extractionsFailed atomic.Int64
	backendErrors     atomic.Int64

	mu            sync.Mutex
	contextsBuilt int64
	qualitySum    float64
	recallQueries int64
	recallHits    int64
}

// recordContext counts one assembled context. A query counts toward the
// recall estimate when it has keywords; it is a hit when a keyword matches a
// recalled fact or the episodic summary. Working memory never counts, since
// it holds the query itself.
func (c *statsCollector) recordContext(mc models.MemoryContext, queryWords []string) {
	hit := recalled(mc, queryWords)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.contextsBuilt++
	c.qualitySum += mc.ContextQualityScore
	if len(queryWords) > 0 {
		c.recallQueries++
		if hit {
			c.recallHits++
		}
	}
}

func recalled(mc models.MemoryContext, queryWords []string) bool {
	if len(queryWords) == 0 {
		return false
	}
	for _, f := range mc.RelevantFacts {
		if keywords.Overlap(queryWords, f.Content, f.Tags) > 0 {
			return true
		}
	}
	return mc.EpisodicSummary != nil && keywords.Overlap(queryWords, *mc.EpisodicSummary, nil) > 0
}

func (c *statsCollector) snapshot() models.MemoryStats {
	st := models.MemoryStats{
		SummariesWritten:  c.summariesWritten.Load(),
		SummariesFailed:   c.summariesFailed.Load(),
		FactsWritten:      c.factsWritten.Load(),
		FactsSkipped:      c.factsSkipped.Load(),
		ExtractionsFailed: c.extractionsFailed.Load(),
		BackendErrors:     c.backendErrors.Load(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st.ContextsBuilt = c.contextsBuilt
	if c.contextsBuilt > 0 {
		st.AvgQualityScore = round4(c.qualitySum / float64(c.contextsBuilt))
	}
	if c.recallQueries > 0 {
		st.MemoryRecallEstimate = round4(float64(c.recallHits) / float64(c.recallQueries))
	}
	return st
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
