// Package command implements the conversational command bridge: parsing a
// reserved command prefix out of session input (C9) and binding the result
// to a provider invocation (C10).
package command

import (
	"strings"
)

// Closed action vocabulary (spec.md §6).
const (
	ActionAnalyzeCode           = "analyze_code"
	ActionExplain                = "explain"
	ActionRunTests               = "run_tests"
	ActionGenerateDocumentation  = "generate_documentation"
	ActionSuggestImprovements    = "suggest_improvements"
	ActionReviewCode             = "review_code"
	ActionHelp                   = "help"
	ActionGeneralAssistance      = "general_assistance"
	ActionFallback               = "fallback"
	ActionError                  = "error"
)

// ParsedIntent is the parser's output for a reserved-prefix line (spec.md §3).
type ParsedIntent struct {
	Action     string
	Target     *string
	Parameters map[string]any
	Confidence float64
}

// reservedPrefixLen reports how many runes of the (already-trimmed) line
// form the reserved "ae " / "ae:" prefix, case-insensitive, or 0 if the line
// is plain passthrough.
func reservedPrefixLen(trimmed string) int {
	lower := strings.ToLower(trimmed)
	switch {
	case lower == "ae":
		return len(trimmed)
	case strings.HasPrefix(lower, "ae:"):
		return 3
	case strings.HasPrefix(lower, "ae "):
		return 3
	default:
		return 0
	}
}

// rule is one entry in the closed, ordered pattern table (spec.md §4.8).
// match reports whether residue is recognized by this rule and, if so, the
// extracted target/parameters and a confidence score.
type rule struct {
	action     string
	match      func(residue string) (ok bool, target *string, confidence float64)
}

// actionTable is the fixed ordered vocabulary. Order matters: earlier rules
// are more specific and are tried first ("longest specific match wins").
var actionTable = []rule{
	{action: ActionHelp, match: matchHelp},
	{action: ActionRunTests, match: keywordRule([]string{"run tests", "run test", "test"})},
	{action: ActionGenerateDocumentation, match: keywordRule([]string{"generate docs", "generate documentation", "document"})},
	{action: ActionSuggestImprovements, match: keywordRule([]string{"suggest improvements", "suggest", "improve"})},
	{action: ActionReviewCode, match: keywordRule([]string{"review code", "review"})},
	{action: ActionExplain, match: explainRule},
	{action: ActionAnalyzeCode, match: keywordRule([]string{"analyze code", "analyse code", "analyze", "analyse"})},
}

func matchHelp(residue string) (bool, *string, float64) {
	if residue == "" || residue == "help" {
		return true, nil, 1.0
	}
	return false, nil, 0
}

// keywordRule builds a match func that recognizes residue as this action
// when it equals, or begins with, one of keywords (checked longest-first so
// a more specific phrase takes priority over a short one like "test").
func keywordRule(keywords []string) func(string) (bool, *string, float64) {
	sorted := append([]string(nil), keywords...)
	sortByLengthDesc(sorted)
	return func(residue string) (bool, *string, float64) {
		for _, kw := range sorted {
			if residue == kw {
				return true, nil, 0.95
			}
			if strings.HasPrefix(residue, kw+" ") {
				rest := strings.TrimSpace(strings.TrimPrefix(residue, kw))
				return true, targetOrNil(rest), 0.9
			}
		}
		return false, nil, 0
	}
}

func explainRule(residue string) (bool, *string, float64) {
	for _, kw := range []string{"explain", "what is"} {
		if residue == kw {
			return true, nil, 0.9
		}
		if strings.HasPrefix(residue, kw+" ") {
			rest := strings.TrimSpace(strings.TrimPrefix(residue, kw))
			return true, targetOrNil(rest), 0.85
		}
	}
	return false, nil, 0
}

func targetOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sortByLengthDesc(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && len(s[j-1]) < len(s[j]); j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Parse implements C9: it classifies one trimmed input line as either
// passthrough (ok=false) or a ParsedIntent (ok=true).
func Parse(line string) (intent ParsedIntent, ok bool) {
	trimmed := strings.TrimSpace(line)
	n := reservedPrefixLen(trimmed)
	if n == 0 {
		return ParsedIntent{}, false
	}
	residue := strings.TrimSpace(trimmed[n:])

	for _, r := range actionTable {
		if matched, target, confidence := r.match(residue); matched {
			return ParsedIntent{
				Action:     r.action,
				Target:     target,
				Parameters: map[string]any{},
				Confidence: confidence,
			}, true
		}
	}

	return ParsedIntent{
		Action:     ActionGeneralAssistance,
		Target:     targetOrNil(residue),
		Parameters: map[string]any{},
		Confidence: 0.5,
	}, true
}
