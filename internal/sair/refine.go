package sair

import (
	"github.com/seekerlabs/seekerd/internal/taxonomy"
)

// Refine produces an updated category catalog from the window aggregates:
// phrase weights decay for categories whose classification confidence
// correlates poorly with eventual correctness, and per-category thresholds
// are nudged to trade escalation rate against agent load. It returns the
// new catalog and whether anything changed.
func Refine(agg Aggregates, cats []taxonomy.Category, cfg Config) ([]taxonomy.Category, bool) {
	out := make([]taxonomy.Category, len(cats))
	changed := false

	for i, cat := range cats {
		c := cat.Clone()
		stats, ok := agg.Categories[cat.ID]
		if !ok {
			out[i] = c
			continue
		}

		if stats.KnownCorrectness >= cfg.MinFeedback && stats.ConfidenceCorrelation < cfg.CorrelationFloor {
			for j := range c.Phrases {
				w := c.Phrases[j].Weight * cfg.PhraseDecay
				if w < cfg.MinPhraseWeight {
					w = cfg.MinPhraseWeight
				}
				if w > cfg.MaxPhraseWeight {
					w = cfg.MaxPhraseWeight
				}
				if w != c.Phrases[j].Weight {
					c.Phrases[j].Weight = w
					changed = true
				}
			}
		}

		if stats.Requests >= cfg.MinFeedback {
			threshold := c.Threshold
			switch {
			case stats.EscalationRate > cfg.EscalationHigh:
				// Too much lands on humans; admit more candidates.
				threshold -= cfg.ThresholdStep
			case stats.EscalationRate < cfg.EscalationLow &&
				stats.KnownCorrectness >= cfg.MinFeedback &&
				stats.MeanCorrectness < cfg.CorrectnessLow:
				// Wrong answers are slipping through; tighten.
				threshold += cfg.ThresholdStep
			}
			if threshold < cfg.MinThreshold {
				threshold = cfg.MinThreshold
			}
			if threshold > cfg.MaxThreshold {
				threshold = cfg.MaxThreshold
			}
			if threshold != c.Threshold {
				c.Threshold = threshold
				changed = true
			}
		}

		out[i] = c
	}

	return out, changed
}
