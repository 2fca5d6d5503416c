package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/trybotster/botster-orchestrator/internal/project"
)

// K_ACT and T_REL are the ActivationSet truncation defaults from spec.md §3.
const (
	DefaultKAct = 5
	DefaultTRel = 0.3
)

// Registry is C7: it stores providers, selects and ranks a per-session
// subset against a ProjectContext, and records usage feedback.
//
// The provider table is read-mostly: writers build a whole new map and swap
// the pointer under mu, so Select can read the map snapshot() returns without
// holding the lock across scoring (spec.md §5 "copy-on-write replacement of
// the immutable descriptor").
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ProviderDescriptor

	analytics       *analytics
	recommendations map[string][]string // ProjectSignature -> provider IDs, ranked

	weights Weights
	kAct    int
	tRel    float64

	logger *slog.Logger
}

// New constructs an empty Registry with default weights and thresholds.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers:       make(map[string]ProviderDescriptor),
		analytics:       newAnalytics(),
		recommendations: make(map[string][]string),
		weights:         DefaultWeights,
		kAct:            DefaultKAct,
		tRel:            DefaultTRel,
		logger:          logger,
	}
}

// Register inserts or replaces a ProviderDescriptor (spec.md §4.6 register()).
func (r *Registry) Register(desc ProviderDescriptor) {
	if desc.LastSeen.IsZero() {
		desc.LastSeen = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]ProviderDescriptor, len(r.providers)+1)
	for k, v := range r.providers {
		next[k] = v
	}
	next[desc.ID] = desc
	r.providers = next
}

// Unregister removes a provider by id, used when discovery no longer finds it
// (fires ProviderLost in the orchestrator layer).
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[id]; !ok {
		return
	}
	next := make(map[string]ProviderDescriptor, len(r.providers))
	for k, v := range r.providers {
		if k != id {
			next[k] = v
		}
	}
	r.providers = next
}

// snapshot returns the current provider table without holding the lock
// across any caller-side work.
func (r *Registry) snapshot() map[string]ProviderDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers
}

// Providers returns every registered descriptor, order unspecified.
func (r *Registry) Providers() []ProviderDescriptor {
	snap := r.snapshot()
	out := make([]ProviderDescriptor, 0, len(snap))
	for _, d := range snap {
		out = append(out, d)
	}
	return out
}

// Select implements select(ProjectContext) -> ActivationSet (spec.md §4.6):
// scores every provider, keeps the top kAct above tRel, and ranks
// capabilities within the union (selection determinism invariant 8).
func (r *Registry) Select(ctx project.Context, generation uint64) *ActivationSet {
	snap := r.snapshot()
	sig := ctx.Signature()

	r.mu.RLock()
	w := r.weights
	kAct, tRel := r.kAct, r.tRel
	an := r.analytics
	r.mu.RUnlock()

	scored := make([]ScoredProvider, 0, len(snap))
	for _, p := range snap {
		s := score(p, ctx, w)
		if s < tRel {
			continue
		}
		scored = append(scored, ScoredProvider{Provider: p, Score: s})
	}

	sortScored(scored, tieBreaker{
		successRate: func(id string) float64 { return an.successRate(sig, id) },
		lastUsed:    func(id string) (time.Time, bool) { return an.lastUsed(sig, id) },
	})
	if len(scored) > kAct {
		scored = scored[:kAct]
	}

	capabilities := rankCapabilities(scored, ctx.ProjectType)

	return &ActivationSet{
		Providers:    scored,
		Capabilities: capabilities,
		Generation:   generation,
	}
}

// rankCapabilities builds the deduped, re-ranked capability list drawn from
// the selected providers (spec.md §3 ActivationSet.capabilities). Dedup key
// is capability name; the highest-scoring owner wins ties deterministically
// via provider order (providers is already sorted).
func rankCapabilities(providers []ScoredProvider, projectType string) []ScoredCapability {
	seen := make(map[string]bool)
	out := make([]ScoredCapability, 0)
	for _, sp := range providers {
		for _, c := range sp.Provider.Capabilities {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			out = append(out, ScoredCapability{
				Capability: c,
				ProviderID: sp.Provider.ID,
				Score:      baseScore(c.Kind) * contextBonus(c.Kind, projectType),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Capability.Name < out[j].Capability.Name
	})
	return out
}

// RecordFeedback implements record_feedback (spec.md §4.6): updates
// analytics and nudges selection weights.
func (r *Registry) RecordFeedback(rec UsageRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analytics.recordFeedback(rec)
}

// Optimize implements the periodic optimize() pass: rebuilds recommendations
// from analytics, ranking providers per signature by success rate then
// recency (spec.md §4.6).
func (r *Registry) Optimize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	rebuilt := make(map[string][]string, len(r.analytics.counters))
	for sig, byProvider := range r.analytics.counters {
		ids := make([]string, 0, len(byProvider))
		for id := range byProvider {
			ids = append(ids, id)
		}
		sort.SliceStable(ids, func(i, j int) bool {
			ci, cj := byProvider[ids[i]], byProvider[ids[j]]
			if ci.successRate() != cj.successRate() {
				return ci.successRate() > cj.successRate()
			}
			if !ci.lastUsed.Equal(cj.lastUsed) {
				return ci.lastUsed.After(cj.lastUsed)
			}
			return ids[i] < ids[j]
		})
		rebuilt[sig] = ids
	}
	r.recommendations = rebuilt
}

// Recommendations returns the ranked provider-id list optimize() computed
// for a signature, for warm-starting or diagnostics.
func (r *Registry) Recommendations(signature string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recommendations[signature]
}
