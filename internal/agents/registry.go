// Package agents manages the registry of specialized processing agents:
// their capability tags, learned per-category routing weights and rolling
// performance metrics. The router reads the registry through immutable
// versioned snapshots; only the adaptive loop mutates weights.
package agents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRoutingWeight is the weight used for any (agent, category) pair
// that has never been adjusted.
const DefaultRoutingWeight = 1.0

// sampleWindow bounds the rolling metrics window per agent.
const sampleWindow = 200

// Sample is one observed response used for rolling metrics. Satisfaction is
// negative when no feedback was attached, so missing feedback never drags
// the mean down.
type Sample struct {
	Success      bool      `json:"success"`
	LatencyMs    int64     `json:"latency_ms"`
	Satisfaction float64   `json:"satisfaction"`
	At           time.Time `json:"at"`
}

// Agent is a registered processing agent.
type Agent struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Capabilities []string           `json:"capabilities"`
	Weights      map[string]float64 `json:"weights"` // categoryID -> routing weight
	Samples      []Sample           `json:"samples,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`

	mu sync.RWMutex
}

// RoutingWeight returns the learned weight for a category, defaulting to 1.0.
func (a *Agent) RoutingWeight(category string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if w, ok := a.Weights[category]; ok {
		return w
	}
	return DefaultRoutingWeight
}

// Registry manages all agents and their state.
type Registry struct {
	agents  map[string]*Agent
	dataDir string
	logger  *slog.Logger
	mu      sync.RWMutex

	version uint64
	snap    atomic.Pointer[Snapshot]
}

// NewRegistry creates a registry persisting agents under dataDir/agents.
func NewRegistry(dataDir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	agentsDir := filepath.Join(dataDir, "agents")
	if err := os.MkdirAll(agentsDir, 0750); err != nil {
		return nil, fmt.Errorf("create agents dir: %w", err)
	}

	r := &Registry{
		agents:  make(map[string]*Agent),
		dataDir: agentsDir,
		logger:  logger.With("component", "agents"),
	}
	r.rebuildSnapshot()
	return r, nil
}

// Register adds a new agent.
func (r *Registry) Register(def Def) (*Agent, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("agent id required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[def.ID]; exists {
		return nil, fmt.Errorf("agent already exists: %s", def.ID)
	}

	weights := make(map[string]float64, len(def.Weights))
	for k, v := range def.Weights {
		weights[k] = v
	}

	agent := &Agent{
		ID:           def.ID,
		Name:         def.Name,
		Capabilities: append([]string(nil), def.Capabilities...),
		Weights:      weights,
		CreatedAt:    time.Now(),
	}
	r.agents[def.ID] = agent
	r.rebuildSnapshot()

	if err := r.save(agent); err != nil {
		r.logger.Error("failed to persist agent", "id", def.ID, "error", err)
		// Registration still succeeds; persistence retries on SaveAll.
	}

	r.logger.Info("agent registered", "id", def.ID, "capabilities", len(agent.Capabilities))
	return agent, nil
}

// Get retrieves an agent by ID.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", id)
	}
	return agent, nil
}

// List returns all agents sorted by ID.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecordResponse appends one response sample to an agent's rolling window.
// satisfaction < 0 means no feedback was attached.
func (r *Registry) RecordResponse(id string, success bool, latencyMs int64, satisfaction float64) error {
	agent, err := r.Get(id)
	if err != nil {
		return err
	}

	agent.mu.Lock()
	agent.Samples = append(agent.Samples, Sample{
		Success:      success,
		LatencyMs:    latencyMs,
		Satisfaction: satisfaction,
		At:           time.Now(),
	})
	if len(agent.Samples) > sampleWindow {
		agent.Samples = agent.Samples[len(agent.Samples)-sampleWindow:]
	}
	agent.mu.Unlock()

	r.mu.Lock()
	r.rebuildSnapshot()
	r.mu.Unlock()
	return nil
}

// WeightAdjustment is one bounded routing-weight delta from a learning cycle.
type WeightAdjustment struct {
	AgentID  string  `json:"agent_id"`
	Category string  `json:"category"`
	Delta    float64 `json:"delta"`
}

// Weight bounds: adjustments are clamped so a weight can never collapse to
// zero or run away.
const (
	MinRoutingWeight = 0.1
	MaxRoutingWeight = 3.0
)

// ApplyAdjustments applies a batch of weight deltas and swaps in a new
// snapshot in one step. Readers observe either all adjustments or none.
func (r *Registry) ApplyAdjustments(adjs []WeightAdjustment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Resolve every target up front so a bad batch mutates nothing.
	for _, adj := range adjs {
		if _, ok := r.agents[adj.AgentID]; !ok {
			return fmt.Errorf("adjustment for unknown agent: %s", adj.AgentID)
		}
	}

	for _, adj := range adjs {
		agent := r.agents[adj.AgentID]
		agent.mu.Lock()
		if agent.Weights == nil {
			agent.Weights = make(map[string]float64)
		}
		w, ok := agent.Weights[adj.Category]
		if !ok {
			w = DefaultRoutingWeight
		}
		w += adj.Delta
		if w < MinRoutingWeight {
			w = MinRoutingWeight
		}
		if w > MaxRoutingWeight {
			w = MaxRoutingWeight
		}
		agent.Weights[adj.Category] = w
		agent.mu.Unlock()
	}

	r.rebuildSnapshot()
	r.logger.Info("routing weights adjusted", "adjustments", len(adjs), "version", r.version)
	return nil
}

// Load restores agents from disk.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read agents dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(r.dataDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Error("failed to read agent file", "path", path, "error", err)
			continue
		}
		var agent Agent
		if err := json.Unmarshal(data, &agent); err != nil {
			r.logger.Error("failed to parse agent file", "path", path, "error", err)
			continue
		}
		r.agents[agent.ID] = &agent
		r.logger.Info("agent loaded", "id", agent.ID)
	}

	r.rebuildSnapshot()
	return nil
}

// SaveAll persists all agents to disk.
func (r *Registry) SaveAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, agent := range r.agents {
		if err := r.save(agent); err != nil {
			r.logger.Error("failed to save agent", "id", agent.ID, "error", err)
		}
	}
	return nil
}

func (r *Registry) save(agent *Agent) error {
	agent.mu.RLock()
	data, err := json.MarshalIndent(agent, "", "  ")
	agent.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal agent: %w", err)
	}

	path := filepath.Join(r.dataDir, agent.ID+".json")
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("write agent file: %w", err)
	}
	return nil
}
