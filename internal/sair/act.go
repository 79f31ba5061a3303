package sair

import (
	"sort"

	"github.com/seekerlabs/seekerd/internal/agents"
)

// Act proposes routing-weight adjustments for pairs whose mean satisfaction
// sits outside the tolerance band around the category baseline. Each delta
// is bounded by StepFraction of the pair's current weight, scaled by the
// pair's adaptive gain. Proposals are sorted for deterministic application.
func Act(agg Aggregates, baselines map[string]float64, gains map[Pair]float64, fleet *agents.Snapshot, cfg Config) []agents.WeightAdjustment {
	var adjs []agents.WeightAdjustment

	for pair, ps := range agg.Pairs {
		if ps.FeedbackCount < cfg.MinFeedback {
			continue
		}

		baseline, ok := baselines[pair.Category]
		if !ok {
			// First cycle for this category: the window mean is the only
			// baseline available, and every pair sits at it.
			baseline = agg.Categories[pair.Category].MeanSatisfaction
		}

		diff := ps.MeanSatisfaction - baseline
		if diff > -cfg.Tolerance && diff < cfg.Tolerance {
			continue
		}

		view, ok := fleet.Agent(pair.AgentID)
		if !ok {
			continue
		}
		weight := view.RoutingWeight(pair.Category)

		gain, ok := gains[pair]
		if !ok {
			gain = 1.0
		}

		step := cfg.StepFraction * weight * gain
		delta := step
		if diff < 0 {
			delta = -step
		}
		adjs = append(adjs, agents.WeightAdjustment{
			AgentID:  pair.AgentID,
			Category: pair.Category,
			Delta:    delta,
		})
	}

	sort.Slice(adjs, func(i, j int) bool {
		if adjs[i].Category != adjs[j].Category {
			return adjs[i].Category < adjs[j].Category
		}
		return adjs[i].AgentID < adjs[j].AgentID
	})
	return adjs
}
