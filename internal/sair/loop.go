package sair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seekerlabs/seekerd/internal/agents"
	"github.com/seekerlabs/seekerd/internal/taxonomy"
	"github.com/seekerlabs/seekerd/internal/types"
	"github.com/seekerlabs/seekerd/internal/wal"
)

// ErrCycleRunning is returned when a cycle is triggered while another is
// still in flight. Cycles are single-flight.
var ErrCycleRunning = errors.New("learning cycle already running")

// WindowSource provides the bounded trailing outcome window.
type WindowSource interface {
	Window(ctx context.Context, lookback time.Duration, maxRecords int) ([]types.OutcomeRecord, error)
}

// Status reports the loop's progress for the API.
type Status struct {
	Cycle      uint64          `json:"cycle"`
	LastRun    time.Time       `json:"last_run,omitempty"`
	LastUpdate *LearningUpdate `json:"last_update,omitempty"`
	Running    bool            `json:"running"`
}

// Loop runs the periodic learning cycle.
type Loop struct {
	cfg      Config
	logger   *slog.Logger
	source   WindowSource
	taxonomy *taxonomy.Store
	registry *agents.Registry
	journal  *wal.WAL

	// runMu enforces single-flight cycles.
	runMu sync.Mutex

	mu         sync.RWMutex
	cycle      uint64
	baselines  map[string]float64
	gains      map[Pair]float64
	prevAgg    Aggregates
	adjusted   []Pair
	lastRun    time.Time
	lastUpdate *LearningUpdate
	running    bool
}

// NewLoop creates a Loop. Zero config fields take defaults.
func NewLoop(cfg Config, source WindowSource, tax *taxonomy.Store, reg *agents.Registry, journal *wal.WAL, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "sair"),
		source:    source,
		taxonomy:  tax,
		registry:  reg,
		journal:   journal,
		baselines: make(map[string]float64),
		gains:     make(map[Pair]float64),
	}
}

// Start runs cycles on the configured interval until ctx is cancelled.
func (l *Loop) Start(ctx context.Context) {
	l.logger.Info("learning loop started", "interval", l.cfg.Interval)

	if orphans := l.journal.Unapplied(); len(orphans) > 0 {
		l.logger.Warn("unapplied learning updates found in journal", "count", len(orphans))
	}

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("learning loop stopped")
			return
		case <-ticker.C:
			if _, err := l.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleRunning) {
				l.logger.Error("learning cycle failed", "error", err)
			}
		}
	}
}

// RunCycle executes one Search-Act-Interpret-Refine cycle and applies its
// LearningUpdate atomically. Concurrent calls beyond the first return
// ErrCycleRunning. The cycle may be cancelled via ctx any time before the
// commit point; nothing is applied in that case.
func (l *Loop) RunCycle(ctx context.Context) (*LearningUpdate, error) {
	if !l.runMu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer l.runMu.Unlock()

	l.setRunning(true)
	defer l.setRunning(false)

	start := time.Now()

	window, err := l.source.Window(ctx, l.cfg.Lookback, l.cfg.MaxRecords)
	if err != nil {
		return nil, fmt.Errorf("read outcome window: %w", err)
	}

	l.mu.RLock()
	cycle := l.cycle + 1
	baselines := l.baselines
	gains := l.gains
	prevAgg := l.prevAgg
	adjusted := l.adjusted
	l.mu.RUnlock()

	update := &LearningUpdate{
		Cycle:       cycle,
		WindowSize:  len(window),
		GeneratedAt: start,
	}

	if len(window) == 0 {
		l.logger.Info("learning cycle skipped, empty window", "cycle", cycle)
		update.ElapsedMs = time.Since(start).Milliseconds()
		l.mu.Lock()
		l.cycle = cycle
		l.lastRun = start
		l.lastUpdate = update
		l.mu.Unlock()
		return update, nil
	}

	agg := Search(window)
	fleet := l.registry.Snapshot()
	adjs := Act(agg, baselines, gains, fleet, l.cfg)
	nextGains := Interpret(prevAgg, agg, adjusted, gains, l.cfg)
	taxSnap := l.taxonomy.Snapshot()
	newCats, catalogChanged := Refine(agg, taxSnap.Categories, l.cfg)

	update.Adjustments = adjs
	update.CatalogChanged = catalogChanged
	if catalogChanged {
		update.Catalog = newCats
	}

	// Commit point. Abort cleanly on cancellation; nothing applied yet.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, err := l.journal.Append(cycle, update)
	if err != nil {
		return nil, fmt.Errorf("journal update: %w", err)
	}
	if catalogChanged {
		if _, err := l.taxonomy.Replace(newCats); err != nil {
			return nil, fmt.Errorf("replace taxonomy: %w", err)
		}
	}
	if len(adjs) > 0 {
		if err := l.registry.ApplyAdjustments(adjs); err != nil {
			return nil, fmt.Errorf("apply adjustments: %w", err)
		}
	}
	if err := l.journal.MarkApplied(idx); err != nil {
		return nil, fmt.Errorf("mark applied: %w", err)
	}

	adjustedPairs := make([]Pair, 0, len(adjs))
	for _, a := range adjs {
		adjustedPairs = append(adjustedPairs, Pair{Category: a.Category, AgentID: a.AgentID})
	}

	l.commitState(update, agg, l.foldBaselines(baselines, agg), nextGains, adjustedPairs, start)

	l.logger.Info("learning cycle applied",
		"cycle", cycle,
		"window", len(window),
		"adjustments", len(adjs),
		"catalog_changed", catalogChanged,
		"elapsed", time.Since(start),
	)
	return update, nil
}

// foldBaselines folds the cycle's per-category satisfaction into the moving
// baselines without mutating the previous map.
func (l *Loop) foldBaselines(prev map[string]float64, agg Aggregates) map[string]float64 {
	next := make(map[string]float64, len(prev))
	for k, v := range prev {
		next[k] = v
	}
	for cat, cs := range agg.Categories {
		if cs.FeedbackCount == 0 {
			continue
		}
		if old, ok := next[cat]; ok {
			next[cat] = l.cfg.BaselineAlpha*cs.MeanSatisfaction + (1-l.cfg.BaselineAlpha)*old
		} else {
			next[cat] = cs.MeanSatisfaction
		}
	}
	return next
}

func (l *Loop) commitState(update *LearningUpdate, agg Aggregates, baselines map[string]float64, gains map[Pair]float64, adjusted []Pair, start time.Time) {
	update.ElapsedMs = time.Since(start).Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.cycle = update.Cycle
	l.prevAgg = agg
	l.baselines = baselines
	l.gains = gains
	l.adjusted = adjusted
	l.lastRun = start
	l.lastUpdate = update
}

func (l *Loop) setRunning(v bool) {
	l.mu.Lock()
	l.running = v
	l.mu.Unlock()
}

// Status returns the loop's current progress.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{
		Cycle:      l.cycle,
		LastRun:    l.lastRun,
		LastUpdate: l.lastUpdate,
		Running:    l.running,
	}
}
