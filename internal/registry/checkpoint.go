package registry

import "time"

// CounterSnapshot is one (signature, provider) learning row, the unit
// persisted across restarts (spec.md §6 "Persisted state": analytics and
// recommendations survive a restart).
type CounterSnapshot struct {
	Signature  string    `yaml:"signature"`
	ProviderID string    `yaml:"provider_id"`
	Alpha      float64   `yaml:"alpha"`
	Beta       float64   `yaml:"beta"`
	LastUsed   time.Time `yaml:"last_used"`
	UsageCount int       `yaml:"usage_count"`
}

// Checkpoint is the full on-disk shape of a Registry's learned state.
// Recommendations are not stored directly; Optimize rebuilds them from
// Counters on load, keeping one source of truth.
type Checkpoint struct {
	Counters      []CounterSnapshot `yaml:"counters"`
	SuccessWeight float64           `yaml:"success_weight"`
}

// ExportCheckpoint snapshots the registry's learned analytics state.
func (r *Registry) ExportCheckpoint() Checkpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out Checkpoint
	out.SuccessWeight = r.analytics.successWeight
	for sig, byProvider := range r.analytics.counters {
		for id, c := range byProvider {
			out.Counters = append(out.Counters, CounterSnapshot{
				Signature:  sig,
				ProviderID: id,
				Alpha:      c.alpha,
				Beta:       c.beta,
				LastUsed:   c.lastUsed,
				UsageCount: c.usageCount,
			})
		}
	}
	return out
}

// ImportCheckpoint restores a previously exported analytics snapshot and
// rebuilds recommendations from it. Intended to run once at startup before
// any provider traffic.
func (r *Registry) ImportCheckpoint(cp Checkpoint) {
	r.mu.Lock()
	r.analytics.successWeight = cp.SuccessWeight
	for _, snap := range cp.Counters {
		c := r.analytics.counter(snap.Signature, snap.ProviderID)
		c.alpha = snap.Alpha
		c.beta = snap.Beta
		c.lastUsed = snap.LastUsed
		c.usageCount = snap.UsageCount
	}
	r.mu.Unlock()

	r.Optimize()
}
