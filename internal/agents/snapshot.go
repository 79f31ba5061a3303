package agents

import "sort"

// View is the immutable per-agent slice of a Snapshot: everything the
// router needs to score a candidate, detached from registry locks.
type View struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Capabilities     map[string]bool    `json:"-"`
	CapabilityList   []string           `json:"capabilities"`
	Weights          map[string]float64 `json:"weights"`
	SuccessRate      float64            `json:"success_rate"`
	MeanSatisfaction float64            `json:"mean_satisfaction"`
	MeanLatencyMs    float64            `json:"mean_latency_ms"`
	Samples          int                `json:"samples"`
}

// RoutingWeight returns the learned weight for a category, defaulting to 1.0.
func (v *View) RoutingWeight(category string) float64 {
	if w, ok := v.Weights[category]; ok {
		return w
	}
	return DefaultRoutingWeight
}

// HasCapabilities reports whether the agent's capability set covers every
// required tag.
func (v *View) HasCapabilities(required []string) bool {
	for _, tag := range required {
		if !v.Capabilities[tag] {
			return false
		}
	}
	return true
}

// Snapshot is an immutable, versioned view of the registry, ordered by
// agent ID for deterministic routing.
type Snapshot struct {
	Version uint64 `json:"version"`
	Agents  []View `json:"agents"`

	byID map[string]int
}

// Agent looks up a view by ID.
func (s *Snapshot) Agent(id string) (View, bool) {
	i, ok := s.byID[id]
	if !ok {
		return View{}, false
	}
	return s.Agents[i], true
}

// Snapshot returns the current registry view. Lock-free.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// rebuildSnapshot recomputes the immutable view. Caller must hold r.mu.
func (r *Registry) rebuildSnapshot() {
	r.version++

	views := make([]View, 0, len(r.agents))
	for _, a := range r.agents {
		views = append(views, a.view())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	byID := make(map[string]int, len(views))
	for i, v := range views {
		byID[v.ID] = i
	}

	r.snap.Store(&Snapshot{Version: r.version, Agents: views, byID: byID})
}

// view computes an agent's rolling metrics into a detached copy.
func (a *Agent) view() View {
	a.mu.RLock()
	defer a.mu.RUnlock()

	caps := make(map[string]bool, len(a.Capabilities))
	for _, c := range a.Capabilities {
		caps[c] = true
	}
	weights := make(map[string]float64, len(a.Weights))
	for k, w := range a.Weights {
		weights[k] = w
	}

	v := View{
		ID:             a.ID,
		Name:           a.Name,
		Capabilities:   caps,
		CapabilityList: append([]string(nil), a.Capabilities...),
		Weights:        weights,
		Samples:        len(a.Samples),
	}

	if len(a.Samples) == 0 {
		return v
	}

	var successes int
	var latencySum float64
	var satSum float64
	var satCount int
	for _, s := range a.Samples {
		if s.Success {
			successes++
		}
		latencySum += float64(s.LatencyMs)
		if s.Satisfaction >= 0 {
			satSum += s.Satisfaction
			satCount++
		}
	}
	v.SuccessRate = float64(successes) / float64(len(a.Samples))
	v.MeanLatencyMs = latencySum / float64(len(a.Samples))
	if satCount > 0 {
		v.MeanSatisfaction = satSum / float64(satCount)
	}
	return v
}
