package sair

// Interpret judges whether the previous cycle's adjustments helped, by
// comparing each adjusted pair's satisfaction across the two cycles. Pairs
// that got worse have their step gain decayed toward GainFloor; pairs that
// improved recover gain toward 1.0. It returns the gain map for the next
// cycle; pairs never adjusted keep an implicit gain of 1.0.
func Interpret(prev, curr Aggregates, adjusted []Pair, gains map[Pair]float64, cfg Config) map[Pair]float64 {
	next := make(map[Pair]float64, len(gains))
	for k, v := range gains {
		next[k] = v
	}

	for _, pair := range adjusted {
		prevStats, okPrev := prev.Pairs[pair]
		currStats, okCurr := curr.Pairs[pair]
		if !okPrev || !okCurr {
			continue
		}
		if prevStats.FeedbackCount < cfg.MinFeedback || currStats.FeedbackCount < cfg.MinFeedback {
			continue
		}

		gain, ok := next[pair]
		if !ok {
			gain = 1.0
		}

		switch {
		case currStats.MeanSatisfaction < prevStats.MeanSatisfaction-cfg.Tolerance:
			gain *= cfg.GainDecay
			if gain < cfg.GainFloor {
				gain = cfg.GainFloor
			}
		case currStats.MeanSatisfaction > prevStats.MeanSatisfaction+cfg.Tolerance:
			gain += cfg.GainRecovery
			if gain > 1.0 {
				gain = 1.0
			}
		}
		next[pair] = gain
	}

	return next
}
