// Package router turns a classification result and the current agent fleet
// into a routing decision. It is pure decision production: dispatch is the
// orchestrator's job, and all inputs arrive as immutable snapshots so Route
// is safe from any number of goroutines.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/seekerlabs/seekerd/internal/agents"
	"github.com/seekerlabs/seekerd/internal/taxonomy"
	"github.com/seekerlabs/seekerd/internal/types"
)

// ErrNoCapableAgents reports a category whose required capabilities no
// registered agent covers. This is a fleet configuration fault, not a
// scoring outcome: the category can never route until an agent with the
// missing tags is registered.
var ErrNoCapableAgents = errors.New("no agent covers required capabilities")

// Config tunes decision production.
type Config struct {
	// FanOutCap bounds the total number of agent assignments across the
	// primary and all secondary categories.
	FanOutCap int `json:"fan_out_cap"`

	// SuccessRateFloor bounds how far an agent's observed success rate can
	// drag its score down. Agents with no history score with a neutral 1.0
	// instead, so a cold fleet is still routable.
	SuccessRateFloor float64 `json:"success_rate_floor"`

	// ColdEstimateMs is the processing-time estimate used for agents with
	// no latency history.
	ColdEstimateMs int64 `json:"cold_estimate_ms"`

	// LogDecisions emits one log line per decision.
	LogDecisions bool `json:"log_decisions"`
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() Config {
	return Config{
		FanOutCap:        3,
		SuccessRateFloor: 0.5,
		ColdEstimateMs:   2000,
		LogDecisions:     true,
	}
}

// Stats is the decision mix since startup.
type Stats struct {
	TotalDecisions int64            `json:"total_decisions"`
	Escalations    int64            `json:"escalations"`
	ByLogic        map[string]int64 `json:"by_logic"`
	AvgConfidence  float64          `json:"avg_confidence"`
}

type statsTracker struct {
	mu            sync.RWMutex
	stats         Stats
	confidenceSum float64
}

// Router produces routing decisions.
type Router struct {
	cfg    Config
	logger *slog.Logger
	stats  *statsTracker
}

// New creates a Router. Zero config fields fall back to defaults.
func New(cfg Config, logger *slog.Logger) *Router {
	def := DefaultConfig()
	if cfg.FanOutCap <= 0 {
		cfg.FanOutCap = def.FanOutCap
	}
	if cfg.SuccessRateFloor <= 0 {
		cfg.SuccessRateFloor = def.SuccessRateFloor
	}
	if cfg.ColdEstimateMs <= 0 {
		cfg.ColdEstimateMs = def.ColdEstimateMs
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:    cfg,
		logger: logger.With("component", "router"),
		stats:  &statsTracker{stats: Stats{ByLogic: make(map[string]int64)}},
	}
}

// candidate is one scored (agent, category) pairing.
type candidate struct {
	agentID  string
	category string
	score    float64
}

// Route scores capable agents for the classification's primary and secondary
// categories and selects up to FanOutCap assignments. An empty result with
// Escalated set is the designed fallback for low-confidence or unmatched
// requests. A non-nil error reports capability gaps in the fleet; the
// returned decision is still valid for the categories that could route.
func (r *Router) Route(cls types.ClassificationResult, tax *taxonomy.Snapshot, fleet *agents.Snapshot) (types.RoutingDecision, error) {
	decision := types.RoutingDecision{
		RequestID:       cls.RequestID,
		Confidence:      cls.Confidence,
		SnapshotVersion: tax.Version,
		Timestamp:       time.Now(),
	}

	var gaps []error

	if cls.Primary != types.CategoryUnclassified {
		topScore := cls.Scores[cls.Primary]
		assigned := make(map[string]bool)

		r.routeCategory(&decision, cls.Primary, cls.Confidence, tax, fleet, assigned, &gaps)
		for _, sec := range cls.Secondary {
			if len(decision.Assignments) >= r.cfg.FanOutCap {
				break
			}
			conf := cls.Confidence
			if topScore > 0 {
				conf = cls.Confidence * (sec.Score / topScore)
			}
			r.routeCategory(&decision, sec.Category, conf, tax, fleet, assigned, &gaps)
		}
	}

	if len(decision.Assignments) == 0 {
		decision.Escalated = true
		decision.Logic = types.LogicEscalate
	} else if len(decision.Assignments) == 1 {
		decision.Logic = types.LogicAutoRoute
	} else {
		decision.Logic = types.LogicFanOut
	}
	decision.EstimatedMs = r.estimate(decision.Assignments, fleet)

	r.track(decision)
	if r.cfg.LogDecisions {
		r.logger.Info("routing decision",
			"request_id", decision.RequestID,
			"logic", decision.Logic,
			"category", cls.Primary,
			"confidence", fmt.Sprintf("%.3f", cls.Confidence),
			"assignments", len(decision.Assignments),
			"escalated", decision.Escalated,
		)
	}

	return decision, errors.Join(gaps...)
}

// routeCategory appends qualifying assignments for one category, skipping
// agents already assigned by a higher-priority category.
func (r *Router) routeCategory(decision *types.RoutingDecision, categoryID string, confidence float64, tax *taxonomy.Snapshot, fleet *agents.Snapshot, assigned map[string]bool, gaps *[]error) {
	cat, ok := tax.Category(categoryID)
	if !ok {
		// Classification snapshot and taxonomy snapshot disagree; the
		// category was removed between classify and route. Skip it.
		return
	}

	capable := 0
	var cands []candidate
	for i := range fleet.Agents {
		view := &fleet.Agents[i]
		if !view.HasCapabilities(cat.Capabilities) {
			continue
		}
		capable++
		score := confidence * view.RoutingWeight(categoryID) * r.effectiveSuccessRate(view)
		if score < cat.Threshold {
			continue
		}
		cands = append(cands, candidate{agentID: view.ID, category: categoryID, score: score})
	}

	if capable == 0 {
		*gaps = append(*gaps, fmt.Errorf("category %s: %w", categoryID, ErrNoCapableAgents))
		return
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].agentID < cands[j].agentID
	})

	for _, c := range cands {
		if len(decision.Assignments) >= r.cfg.FanOutCap {
			return
		}
		if assigned[c.agentID] {
			continue
		}
		assigned[c.agentID] = true
		decision.Assignments = append(decision.Assignments, types.AgentAssignment{
			AgentID:    c.agentID,
			Category:   c.category,
			Confidence: c.score,
		})
	}
}

// effectiveSuccessRate gives cold agents a neutral 1.0 and floors observed
// rates so early failures cannot permanently starve an agent.
func (r *Router) effectiveSuccessRate(v *agents.View) float64 {
	if v.Samples == 0 {
		return 1.0
	}
	if v.SuccessRate < r.cfg.SuccessRateFloor {
		return r.cfg.SuccessRateFloor
	}
	return v.SuccessRate
}

// estimate predicts processing time as the slowest assigned agent's mean
// latency, since fan-out completes when the last agent responds.
func (r *Router) estimate(assignments []types.AgentAssignment, fleet *agents.Snapshot) int64 {
	if len(assignments) == 0 {
		return 0
	}
	var worst int64
	for _, a := range assignments {
		ms := r.cfg.ColdEstimateMs
		if view, ok := fleet.Agent(a.AgentID); ok && view.Samples > 0 {
			ms = int64(view.MeanLatencyMs)
		}
		if ms > worst {
			worst = ms
		}
	}
	return worst
}

func (r *Router) track(d types.RoutingDecision) {
	t := r.stats
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.TotalDecisions++
	t.stats.ByLogic[d.Logic]++
	if d.Escalated {
		t.stats.Escalations++
	}
	t.confidenceSum += d.Confidence
	t.stats.AvgConfidence = t.confidenceSum / float64(t.stats.TotalDecisions)
}

// Stats returns a copy of the decision mix since startup.
func (r *Router) Stats() Stats {
	t := r.stats
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := t.stats
	out.ByLogic = make(map[string]int64, len(t.stats.ByLogic))
	for k, v := range t.stats.ByLogic {
		out.ByLogic[k] = v
	}
	return out
}
