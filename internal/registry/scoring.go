package registry

import (
	"sort"
	"time"

	"github.com/trybotster/botster-orchestrator/internal/project"
)

// Weights are the scoring coefficients from spec.md §4.6.
type Weights struct {
	Language     float64
	Framework    float64
	ProjectType  float64
	Capability   float64
}

// DefaultWeights are wL=0.4, wF=0.3, wT=0.2, wC=0.25.
var DefaultWeights = Weights{Language: 0.4, Framework: 0.3, ProjectType: 0.2, Capability: 0.25}

// universalLanguageMatch is the "universal weak match" constant applied to
// providers with no declared supports constraints at all.
const universalLanguageMatch = 0.25

var capabilityBaseScore = map[CapabilityKind]float64{
	CodeAnalysis:  0.9,
	Testing:       0.8,
	Documentation: 0.6,
	Deployment:    0.7,
	DatabaseQuery: 0.5,
}

func baseScore(kind CapabilityKind) float64 {
	if s, ok := capabilityBaseScore[kind]; ok {
		return s
	}
	return 0.3
}

func contextBonus(kind CapabilityKind, projectType string) float64 {
	switch {
	case kind == Deployment && projectType == "web":
		return 1.5
	case kind == DatabaseQuery && projectType == "api":
		return 1.4
	case kind == Testing:
		return 1.2
	default:
		return 1.0
	}
}

func matches(set []string, item string) float64 {
	if item == "" {
		return 0
	}
	for _, s := range set {
		if s == item {
			return 1
		}
	}
	return 0
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	inter := 0
	union := make(map[string]bool, len(a)+len(b))
	for _, v := range a {
		union[v] = true
	}
	for _, v := range b {
		if set[v] {
			inter++
		}
		union[v] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(inter) / float64(len(union))
}

// capabilityRelevance is the mean of per-capability base*bonus scores for
// a provider's capability list (spec.md §4.6).
func capabilityRelevance(caps []Capability, projectType string) float64 {
	if len(caps) == 0 {
		return 0
	}
	var sum float64
	for _, c := range caps {
		sum += baseScore(c.Kind) * contextBonus(c.Kind, projectType)
	}
	return sum / float64(len(caps))
}

// score implements the score(P, X) formula from spec.md §4.6.
func score(p ProviderDescriptor, ctx project.Context, w Weights) float64 {
	if p.Supports.isUniversal() {
		return w.Language*universalLanguageMatch + w.Capability*capabilityRelevance(p.Capabilities, ctx.ProjectType)
	}
	return w.Language*matches(p.Supports.Languages, ctx.PrimaryLanguage) +
		w.Framework*jaccard(p.Supports.Frameworks, ctx.Frameworks) +
		w.ProjectType*matches(p.Supports.ProjectTypes, ctx.ProjectType) +
		w.Capability*capabilityRelevance(p.Capabilities, ctx.ProjectType)
}

// tieBreaker supplies the deterministic ordering for equal scores: higher
// prior success rate, then higher last-used recency, then lexical id
// (spec.md §4.6).
type tieBreaker struct {
	successRate func(providerID string) float64
	lastUsed    func(providerID string) (time.Time, bool)
}

func sortScored(scored []ScoredProvider, tb tieBreaker) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if tb.successRate != nil {
			ra, rb := tb.successRate(a.Provider.ID), tb.successRate(b.Provider.ID)
			if ra != rb {
				return ra > rb
			}
		}
		if tb.lastUsed != nil {
			ta, oka := tb.lastUsed(a.Provider.ID)
			tbb, okb := tb.lastUsed(b.Provider.ID)
			if oka && okb && !ta.Equal(tbb) {
				return ta.After(tbb)
			}
			if oka != okb {
				return oka
			}
		}
		return a.Provider.ID < b.Provider.ID
	})
}
