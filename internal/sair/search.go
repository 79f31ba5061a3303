package sair

import (
	"math"

	"github.com/seekerlabs/seekerd/internal/types"
)

// Search aggregates a window of outcome records per category and per
// (category, agent) pair. Records without feedback contribute to request
// and escalation counts but never to satisfaction or correctness means:
// missing feedback is not a signal.
func Search(window []types.OutcomeRecord) Aggregates {
	agg := Aggregates{
		Categories: make(map[string]CategoryStats),
		Pairs:      make(map[Pair]PairStats),
	}

	corrSamples := make(map[string][]corrSample)

	catSat := make(map[string]float64)
	pairSat := make(map[Pair]float64)
	catCorrect := make(map[string]float64)
	var totalSat float64

	for _, rec := range window {
		agg.Requests++
		cat := rec.Classification.Primary

		cs := agg.Categories[cat]
		cs.Requests++
		if rec.Routing.Escalated {
			cs.Escalations++
		}

		if rec.HasFeedback() {
			agg.FeedbackCount++
			totalSat += rec.Feedback.Satisfaction
			cs.FeedbackCount++
			catSat[cat] += rec.Feedback.Satisfaction

			if rec.HasKnownCorrectness() {
				cs.KnownCorrectness++
				var correct float64
				if *rec.Feedback.Correct {
					correct = 1
				}
				catCorrect[cat] += correct
				corrSamples[cat] = append(corrSamples[cat], corrSample{
					confidence: rec.Classification.Confidence,
					correct:    correct,
				})
			}
		}
		agg.Categories[cat] = cs

		for _, assignment := range rec.Routing.Assignments {
			key := Pair{Category: assignment.Category, AgentID: assignment.AgentID}
			ps := agg.Pairs[key]
			ps.Requests++
			if rec.HasFeedback() {
				ps.FeedbackCount++
				pairSat[key] += rec.Feedback.Satisfaction
			}
			agg.Pairs[key] = ps
		}
	}

	if agg.FeedbackCount > 0 {
		agg.MeanSatisfaction = totalSat / float64(agg.FeedbackCount)
	}

	for cat, cs := range agg.Categories {
		if cs.Requests > 0 {
			cs.EscalationRate = float64(cs.Escalations) / float64(cs.Requests)
		}
		if cs.FeedbackCount > 0 {
			cs.MeanSatisfaction = catSat[cat] / float64(cs.FeedbackCount)
		}
		if cs.KnownCorrectness > 0 {
			cs.MeanCorrectness = catCorrect[cat] / float64(cs.KnownCorrectness)
		}
		cs.ConfidenceCorrelation = pearson(corrSamples[cat])
		agg.Categories[cat] = cs
	}

	for key, ps := range agg.Pairs {
		if ps.FeedbackCount > 0 {
			ps.MeanSatisfaction = pairSat[key] / float64(ps.FeedbackCount)
		}
		agg.Pairs[key] = ps
	}

	return agg
}

type corrSample struct{ confidence, correct float64 }

// pearson computes the correlation between confidence and correctness.
// With fewer than two samples, or zero variance on either side, there is
// no evidence of miscalibration, so it reports 1.0.
func pearson(samples []corrSample) float64 {
	n := float64(len(samples))
	if n < 2 {
		return 1.0
	}

	var sumX, sumY float64
	for _, s := range samples {
		sumX += s.confidence
		sumY += s.correct
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for _, s := range samples {
		dx, dy := s.confidence-meanX, s.correct-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 1.0
	}
	return cov / math.Sqrt(varX*varY)
}
