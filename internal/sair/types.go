// Package sair is the adaptive loop: Search aggregates the trailing outcome
// window, Act proposes bounded routing-weight changes, Interpret tunes the
// step gain for pairs whose prior adjustments did not help, and Refine
// updates phrase weights and category thresholds. Each phase is a pure
// function; the loop applies their combined LearningUpdate atomically.
package sair

import (
	"time"

	"github.com/seekerlabs/seekerd/internal/agents"
	"github.com/seekerlabs/seekerd/internal/taxonomy"
)

// Pair identifies a (category, agent) routing pairing.
type Pair struct {
	Category string `json:"category"`
	AgentID  string `json:"agent_id"`
}

// CategoryStats aggregates one category's outcomes over a window.
type CategoryStats struct {
	Requests         int     `json:"requests"`
	Escalations      int     `json:"escalations"`
	EscalationRate   float64 `json:"escalation_rate"`
	FeedbackCount    int     `json:"feedback_count"`
	MeanSatisfaction float64 `json:"mean_satisfaction"`
	KnownCorrectness int     `json:"known_correctness"`
	MeanCorrectness  float64 `json:"mean_correctness"`

	// ConfidenceCorrelation is the Pearson correlation between classifier
	// confidence and eventual correctness, over records where correctness
	// is known. Undefined correlations (no variance) report 1.0 so a
	// uniformly correct category is never decayed.
	ConfidenceCorrelation float64 `json:"confidence_correlation"`
}

// PairStats aggregates one (category, agent) pairing's outcomes.
type PairStats struct {
	Requests         int     `json:"requests"`
	FeedbackCount    int     `json:"feedback_count"`
	MeanSatisfaction float64 `json:"mean_satisfaction"`
}

// Aggregates is the Search phase output.
type Aggregates struct {
	Requests         int                       `json:"requests"`
	FeedbackCount    int                       `json:"feedback_count"`
	MeanSatisfaction float64                   `json:"mean_satisfaction"`
	Categories       map[string]CategoryStats  `json:"categories"`
	Pairs            map[Pair]PairStats        `json:"-"`
}

// LearningUpdate is one cycle's complete, atomically-applied output. It is
// journaled before apply so a crash between journal and commit is visible
// at startup.
type LearningUpdate struct {
	Cycle             uint64                    `json:"cycle"`
	WindowSize        int                       `json:"window_size"`
	Adjustments       []agents.WeightAdjustment `json:"adjustments,omitempty"`
	CatalogChanged    bool                      `json:"catalog_changed"`
	Catalog           []taxonomy.Category       `json:"catalog,omitempty"`
	GeneratedAt       time.Time                 `json:"generated_at"`
	ElapsedMs         int64                     `json:"elapsed_ms"`
}

// Config tunes the loop. Zero fields take defaults.
type Config struct {
	// Interval between background cycles.
	Interval time.Duration `json:"interval"`

	// Lookback and MaxRecords bound the outcome window; the smaller of the
	// two applies.
	Lookback   time.Duration `json:"lookback"`
	MaxRecords int           `json:"max_records"`

	// MinFeedback is the minimum number of feedback-bearing records a pair
	// or category needs before the loop will act on it.
	MinFeedback int `json:"min_feedback"`

	// StepFraction caps the per-cycle relative change of any routing weight.
	StepFraction float64 `json:"step_fraction"`

	// Tolerance is the dead band around the baseline within which no
	// adjustment is proposed.
	Tolerance float64 `json:"tolerance"`

	// BaselineAlpha is the weight of the current cycle in the moving
	// per-category satisfaction baseline.
	BaselineAlpha float64 `json:"baseline_alpha"`

	// GainDecay shrinks a pair's step gain when its prior adjustment did
	// not help; GainRecovery grows it back toward 1.0 when it did.
	// GainFloor bounds the shrinkage.
	GainDecay    float64 `json:"gain_decay"`
	GainRecovery float64 `json:"gain_recovery"`
	GainFloor    float64 `json:"gain_floor"`

	// PhraseDecay is the multiplier applied to phrase weights of categories
	// whose confidence correlates poorly with correctness.
	PhraseDecay       float64 `json:"phrase_decay"`
	CorrelationFloor  float64 `json:"correlation_floor"`
	MinPhraseWeight   float64 `json:"min_phrase_weight"`
	MaxPhraseWeight   float64 `json:"max_phrase_weight"`

	// Threshold nudging trades escalation rate against agent load.
	ThresholdStep   float64 `json:"threshold_step"`
	EscalationHigh  float64 `json:"escalation_high"`
	EscalationLow   float64 `json:"escalation_low"`
	CorrectnessLow  float64 `json:"correctness_low"`
	MinThreshold    float64 `json:"min_threshold"`
	MaxThreshold    float64 `json:"max_threshold"`
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		Interval:         15 * time.Minute,
		Lookback:         24 * time.Hour,
		MaxRecords:       1000,
		MinFeedback:      3,
		StepFraction:     0.10,
		Tolerance:        0.05,
		BaselineAlpha:    0.3,
		GainDecay:        0.5,
		GainRecovery:     0.25,
		GainFloor:        0.1,
		PhraseDecay:      0.95,
		CorrelationFloor: 0.2,
		MinPhraseWeight:  0.1,
		MaxPhraseWeight:  2.0,
		ThresholdStep:    0.02,
		EscalationHigh:   0.30,
		EscalationLow:    0.05,
		CorrectnessLow:   0.5,
		MinThreshold:     0.30,
		MaxThreshold:     0.90,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Lookback <= 0 {
		c.Lookback = def.Lookback
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = def.MaxRecords
	}
	if c.MinFeedback <= 0 {
		c.MinFeedback = def.MinFeedback
	}
	if c.StepFraction <= 0 {
		c.StepFraction = def.StepFraction
	}
	if c.Tolerance <= 0 {
		c.Tolerance = def.Tolerance
	}
	if c.BaselineAlpha <= 0 {
		c.BaselineAlpha = def.BaselineAlpha
	}
	if c.GainDecay <= 0 {
		c.GainDecay = def.GainDecay
	}
	if c.GainRecovery <= 0 {
		c.GainRecovery = def.GainRecovery
	}
	if c.GainFloor <= 0 {
		c.GainFloor = def.GainFloor
	}
	if c.PhraseDecay <= 0 {
		c.PhraseDecay = def.PhraseDecay
	}
	if c.CorrelationFloor <= 0 {
		c.CorrelationFloor = def.CorrelationFloor
	}
	if c.MinPhraseWeight <= 0 {
		c.MinPhraseWeight = def.MinPhraseWeight
	}
	if c.MaxPhraseWeight <= 0 {
		c.MaxPhraseWeight = def.MaxPhraseWeight
	}
	if c.ThresholdStep <= 0 {
		c.ThresholdStep = def.ThresholdStep
	}
	if c.EscalationHigh <= 0 {
		c.EscalationHigh = def.EscalationHigh
	}
	if c.EscalationLow <= 0 {
		c.EscalationLow = def.EscalationLow
	}
	if c.CorrectnessLow <= 0 {
		c.CorrectnessLow = def.CorrectnessLow
	}
	if c.MinThreshold <= 0 {
		c.MinThreshold = def.MinThreshold
	}
	if c.MaxThreshold <= 0 {
		c.MaxThreshold = def.MaxThreshold
	}
	return c
}
