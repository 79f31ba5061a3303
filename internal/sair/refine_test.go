package sair

import (
	"math"
	"testing"

	"github.com/seekerlabs/seekerd/internal/taxonomy"
)

func refineCatalog() []taxonomy.Category {
	return []taxonomy.Category{
		{
			ID: "product_search", Label: "Product Search", Priority: 1, Threshold: 0.60,
			Phrases:      []taxonomy.PhraseWeight{{Phrase: "find", Weight: 1.0}, {Phrase: "supplier", Weight: 0.5}},
			Capabilities: []string{"global_search"},
		},
		{
			ID: "technical", Label: "Technical", Priority: 2, Threshold: 0.60,
			Phrases:      []taxonomy.PhraseWeight{{Phrase: "debug", Weight: 1.0}},
			Capabilities: []string{"code_analysis"},
		},
	}
}

func TestRefineDecaysPoorlyCorrelatedPhrases(t *testing.T) {
	cfg := DefaultConfig()
	agg := Aggregates{Categories: map[string]CategoryStats{
		"product_search": {
			Requests:              10,
			KnownCorrectness:      5,
			ConfidenceCorrelation: -0.4,
			EscalationRate:        0.1,
		},
	}}

	out, changed := Refine(agg, refineCatalog(), cfg)
	if !changed {
		t.Fatal("expected a change")
	}
	if want := 1.0 * cfg.PhraseDecay; out[0].Phrases[0].Weight != want {
		t.Errorf("expected decayed weight %f, got %f", want, out[0].Phrases[0].Weight)
	}
	// The uncorrelated category is untouched.
	if out[1].Phrases[0].Weight != 1.0 {
		t.Errorf("technical phrases should be unchanged, got %f", out[1].Phrases[0].Weight)
	}
}

func TestRefinePhraseWeightClamped(t *testing.T) {
	cfg := DefaultConfig()
	cats := refineCatalog()
	cats[0].Phrases[0].Weight = cfg.MinPhraseWeight

	agg := Aggregates{Categories: map[string]CategoryStats{
		"product_search": {Requests: 10, KnownCorrectness: 5, ConfidenceCorrelation: -0.9},
	}}

	out, _ := Refine(agg, cats, cfg)
	if out[0].Phrases[0].Weight != cfg.MinPhraseWeight {
		t.Errorf("weight must not drop below %f, got %f", cfg.MinPhraseWeight, out[0].Phrases[0].Weight)
	}
}

func TestRefineLowersThresholdOnHighEscalation(t *testing.T) {
	cfg := DefaultConfig()
	agg := Aggregates{Categories: map[string]CategoryStats{
		"product_search": {Requests: 10, EscalationRate: 0.5, ConfidenceCorrelation: 1.0},
	}}

	out, changed := Refine(agg, refineCatalog(), cfg)
	if !changed {
		t.Fatal("expected a change")
	}
	if want := 0.60 - cfg.ThresholdStep; math.Abs(out[0].Threshold-want) > 1e-12 {
		t.Errorf("expected threshold %f, got %f", want, out[0].Threshold)
	}
}

func TestRefineRaisesThresholdOnWrongAnswers(t *testing.T) {
	cfg := DefaultConfig()
	agg := Aggregates{Categories: map[string]CategoryStats{
		"product_search": {
			Requests:              10,
			EscalationRate:        0.0,
			KnownCorrectness:      5,
			MeanCorrectness:       0.2,
			ConfidenceCorrelation: 1.0,
		},
	}}

	out, changed := Refine(agg, refineCatalog(), cfg)
	if !changed {
		t.Fatal("expected a change")
	}
	if want := 0.60 + cfg.ThresholdStep; math.Abs(out[0].Threshold-want) > 1e-12 {
		t.Errorf("expected threshold %f, got %f", want, out[0].Threshold)
	}
}

func TestRefineThresholdClamped(t *testing.T) {
	cfg := DefaultConfig()
	cats := refineCatalog()
	cats[0].Threshold = cfg.MinThreshold

	agg := Aggregates{Categories: map[string]CategoryStats{
		"product_search": {Requests: 10, EscalationRate: 0.9, ConfidenceCorrelation: 1.0},
	}}

	out, changed := Refine(agg, cats, cfg)
	if changed {
		t.Error("clamped threshold should report no change")
	}
	if out[0].Threshold != cfg.MinThreshold {
		t.Errorf("threshold must not drop below %f, got %f", cfg.MinThreshold, out[0].Threshold)
	}
}

func TestRefineNoSignalNoChange(t *testing.T) {
	cfg := DefaultConfig()
	agg := Aggregates{Categories: map[string]CategoryStats{}}

	out, changed := Refine(agg, refineCatalog(), cfg)
	if changed {
		t.Error("no aggregates should mean no change")
	}
	if len(out) != 2 {
		t.Fatalf("catalog size changed: %d", len(out))
	}

	// The returned catalog is detached from the input.
	out[0].Phrases[0].Weight = 0.01
	fresh := refineCatalog()
	if fresh[0].Phrases[0].Weight != 1.0 {
		t.Error("input catalog mutated")
	}
}
