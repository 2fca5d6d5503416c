// Package registry discovers tool providers (C6), ranks and scores them
// against a session's project context (C7), and recomputes per-session
// activation sets as that context changes (C8).
package registry

import "time"

// ProviderStatus is the ProviderDescriptor.status field from spec.md §3.
type ProviderStatus string

const (
	StatusDiscovered ProviderStatus = "discovered"
	StatusAvailable  ProviderStatus = "available"
	StatusRunning    ProviderStatus = "running"
	StatusFailed     ProviderStatus = "failed"
)

// CapabilityKind is the closed vocabulary of capability kinds from spec.md §3.
type CapabilityKind string

const (
	CodeAnalysis        CapabilityKind = "code_analysis"
	Testing              CapabilityKind = "testing"
	Documentation        CapabilityKind = "documentation"
	Deployment           CapabilityKind = "deployment"
	DatabaseQuery        CapabilityKind = "database_query"
	FileOperation        CapabilityKind = "file_operation"
	WebRequest           CapabilityKind = "web_request"
	GitOperation         CapabilityKind = "git_operation"
	ProjectScaffolding   CapabilityKind = "project_scaffolding"
	GeneralAssistance    CapabilityKind = "general_assistance"
)

// OtherKind builds the Other(tag) capability kind variant.
func OtherKind(tag string) CapabilityKind { return CapabilityKind("other:" + tag) }

// Capability is a named, kind-tagged operation a provider exposes.
type Capability struct {
	Name        string
	Description string
	Kind        CapabilityKind
	Input       map[string]any // opaque JSON-shaped schema, may be nil
	Output      map[string]any
}

// Supports constrains which project contexts a ProviderDescriptor applies to.
// All three fields empty means "universal" (spec.md §3).
type Supports struct {
	Languages    []string
	Frameworks   []string
	ProjectTypes []string
}

func (s Supports) isUniversal() bool {
	return len(s.Languages) == 0 && len(s.Frameworks) == 0 && len(s.ProjectTypes) == 0
}

// ProviderDescriptor is immutable for a given discovered version; updates are
// replace-whole-value, never in-place mutation (spec.md §5 "copy-on-write").
type ProviderDescriptor struct {
	ID           string
	Name         string
	Version      string
	Description  string
	Invocation   string // command-line template, see provider package
	Capabilities []Capability
	Supports     Supports
	Status       ProviderStatus
	LastSeen     time.Time
}

// signatures returns every ProjectSignature this descriptor would serve:
// the cross product of supports.languages × supports.project_types (a
// language-only or type-only signature when the other list is empty), plus
// one "framework:<name>" signature per supports.frameworks entry. Languages
// are not paired with frameworks, and capability kinds contribute no
// signature. A universal provider (empty Supports) serves no explicit
// signature entry — it is matched at score time via the universal-weak-match
// rule instead.
func (p ProviderDescriptor) signatures() []string {
	if p.Supports.isUniversal() {
		return nil
	}
	var sigs []string
	langs := p.Supports.Languages
	if len(langs) == 0 {
		langs = []string{""}
	}
	types := p.Supports.ProjectTypes
	if len(types) == 0 {
		types = []string{""}
	}
	for _, l := range langs {
		for _, t := range types {
			if l == "" && t == "" {
				continue
			}
			sigs = append(sigs, l+":"+t)
		}
	}
	for _, f := range p.Supports.Frameworks {
		sigs = append(sigs, "framework:"+f)
	}
	return sigs
}

// ScoredProvider pairs a descriptor with its relevance score for one
// ActivationSet computation.
type ScoredProvider struct {
	Provider ProviderDescriptor
	Score    float64
}

// ScoredCapability pairs a capability with its owning provider id and its
// context-adjusted score, for the deduped capability list in ActivationSet.
type ScoredCapability struct {
	Capability Capability
	ProviderID string
	Score      float64
}

// ActivationSet is the ranked subset of providers and capabilities currently
// applicable to a session (spec.md §3). It is immutable: every recompute
// produces a new value rather than mutating an existing one, so a reader
// holding a snapshot never observes a torn set (invariant I-10).
type ActivationSet struct {
	Providers    []ScoredProvider
	Capabilities []ScoredCapability
	Generation   uint64
}

// Empty is the zero activation set used before the first selection.
func Empty() *ActivationSet {
	return &ActivationSet{Generation: 0}
}

// FindCapability returns the highest-scoring capability matching kind, if any.
func (a *ActivationSet) FindCapability(kind CapabilityKind) (ScoredCapability, bool) {
	if a == nil {
		return ScoredCapability{}, false
	}
	for _, c := range a.Capabilities {
		if c.Capability.Kind == kind {
			return c, true
		}
	}
	return ScoredCapability{}, false
}

// Outcome is the UsageRecord.outcome sum type from spec.md §3.
type Outcome int

const (
	OutcomeUnused Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// UsageRecord feeds the feedback-learning loop (spec.md §3/§4.6).
type UsageRecord struct {
	ProjectSignature string
	ProviderID       string
	CapabilityName   string
	Outcome          Outcome
	Usefulness       float64 // meaningful only when Outcome == OutcomeSuccess, in [0,1]
	Timestamp        time.Time
}
