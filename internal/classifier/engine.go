// Package classifier scores request text against every category in a
// taxonomy snapshot and produces a confidence-ranked classification.
// Scoring is a pure function of (text, snapshot): deterministic for
// identical inputs, no state carried between calls.
package classifier

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/seekerlabs/seekerd/internal/taxonomy"
	"github.com/seekerlabs/seekerd/internal/types"
)

// Config tunes confidence normalization. The confidence formula divides the
// top raw score by the sum of scores above the relevance floor, so values
// here are deliberately configurable rather than hard-coded.
type Config struct {
	// RelevanceFloor is the minimum raw score for a category to count
	// toward the confidence denominator.
	RelevanceFloor float64 `json:"relevanceFloor"`
	// SecondaryFraction is the fraction of the top score a category must
	// reach to be carried as a secondary (fan-out) category.
	SecondaryFraction float64 `json:"secondaryFraction"`
	// MaxSecondary caps the secondary list.
	MaxSecondary int `json:"maxSecondary"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		RelevanceFloor:    0.05,
		SecondaryFraction: 0.30,
		MaxSecondary:      4,
	}
}

// Engine is the classification engine. Safe for concurrent use; all state
// lives in the snapshot passed to Classify.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Engine. Zero-valued config fields fall back to defaults.
func New(cfg Config, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.RelevanceFloor <= 0 {
		cfg.RelevanceFloor = def.RelevanceFloor
	}
	if cfg.SecondaryFraction <= 0 {
		cfg.SecondaryFraction = def.SecondaryFraction
	}
	if cfg.MaxSecondary <= 0 {
		cfg.MaxSecondary = def.MaxSecondary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger.With("component", "classifier")}
}

// Classify scores text against every category in the snapshot. Malformed
// input never fails: unknown characters are stripped during normalization
// and empty text yields confidence 0 with the unclassified category.
func (e *Engine) Classify(requestID, text string, snap *taxonomy.Snapshot) types.ClassificationResult {
	result := e.classify(requestID, text, snap)
	e.logger.Debug("request classified",
		"request_id", requestID,
		"primary", result.Primary,
		"confidence", result.Confidence,
		"secondary", len(result.Secondary),
		"snapshot_version", snap.Version)
	return result
}

func (e *Engine) classify(requestID, text string, snap *taxonomy.Snapshot) types.ClassificationResult {
	result := types.ClassificationResult{
		RequestID:       requestID,
		Scores:          make(map[string]float64, len(snap.Categories)),
		Primary:         types.CategoryUnclassified,
		SnapshotVersion: snap.Version,
	}

	norm := Normalize(text)
	if norm == "" {
		for _, c := range snap.Categories {
			result.Scores[c.ID] = 0
		}
		return result
	}

	// Score in snapshot order (priority rank) so top-score ties resolve
	// to the higher-priority category, independent of input order.
	var top float64
	var denom float64
	for _, c := range snap.Categories {
		score := scoreCategory(norm, c)
		result.Scores[c.ID] = score
		if score > top {
			top = score
			result.Primary = c.ID
		}
		if score > e.cfg.RelevanceFloor {
			denom += score
		}
	}

	if top == 0 {
		result.Primary = types.CategoryUnclassified
		return result
	}

	if denom > 0 {
		result.Confidence = clamp01(top / denom)
	}

	cutoff := top * e.cfg.SecondaryFraction
	for _, c := range snap.Categories {
		if c.ID == result.Primary {
			continue
		}
		if s := result.Scores[c.ID]; s >= cutoff && s > 0 {
			result.Secondary = append(result.Secondary, types.CategoryScore{Category: c.ID, Score: s})
		}
	}
	// Descending by score; equal scores keep priority order (stable).
	insertionSortDesc(result.Secondary)
	if len(result.Secondary) > e.cfg.MaxSecondary {
		result.Secondary = result.Secondary[:e.cfg.MaxSecondary]
	}

	return result
}

// scoreCategory sums the weights of every phrase present in the normalized
// text. Matching is substring-based, so overlapping and nested phrases all
// contribute.
func scoreCategory(norm string, c taxonomy.Category) float64 {
	var score float64
	for _, p := range c.Phrases {
		if phrase := Normalize(p.Phrase); phrase != "" && strings.Contains(norm, phrase) {
			score += p.Weight
		}
	}
	return score
}

// Normalize lower-cases text and folds every non-alphanumeric rune to a
// space, collapsing runs. The result is what phrases are matched against.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// insertionSortDesc sorts a short secondary list by score descending,
// preserving the existing order for equal scores.
func insertionSortDesc(s []types.CategoryScore) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
