package command

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func strp(s string) *string { return &s }

func TestParsePassthroughWithoutPrefix(t *testing.T) {
	_, ok := Parse("ls -la")
	if ok {
		t.Error("Parse() ok = true, want passthrough for a line without the reserved prefix")
	}
}

func TestParseCaseInsensitivePrefix(t *testing.T) {
	intent, ok := Parse("AE: run tests")
	if !ok {
		t.Fatal("Parse() ok = false, want recognized")
	}
	if intent.Action != ActionRunTests {
		t.Errorf("Action = %q, want %q", intent.Action, ActionRunTests)
	}
}

func TestParseHelpAlwaysRecognizedOnEmptyResidue(t *testing.T) {
	for _, line := range []string{"ae", "ae ", "ae help", "ae: help"} {
		intent, ok := Parse(line)
		if !ok {
			t.Errorf("Parse(%q) ok = false, want recognized", line)
			continue
		}
		if intent.Action != ActionHelp {
			t.Errorf("Parse(%q).Action = %q, want help", line, intent.Action)
		}
	}
}

func TestParseActionTable(t *testing.T) {
	cases := []struct {
		line string
		want ParsedIntent
	}{
		{"ae analyze code", ParsedIntent{Action: ActionAnalyzeCode, Parameters: map[string]any{}, Confidence: 0.95}},
		{"ae analyze main.go", ParsedIntent{Action: ActionAnalyzeCode, Target: strp("main.go"), Parameters: map[string]any{}, Confidence: 0.9}},
		{"ae run tests", ParsedIntent{Action: ActionRunTests, Parameters: map[string]any{}, Confidence: 0.95}},
		{"ae test current changes", ParsedIntent{Action: ActionRunTests, Target: strp("current changes"), Parameters: map[string]any{}, Confidence: 0.9}},
		{"ae generate docs", ParsedIntent{Action: ActionGenerateDocumentation, Parameters: map[string]any{}, Confidence: 0.95}},
		{"ae suggest improvements", ParsedIntent{Action: ActionSuggestImprovements, Parameters: map[string]any{}, Confidence: 0.95}},
		{"ae review", ParsedIntent{Action: ActionReviewCode, Parameters: map[string]any{}, Confidence: 0.95}},
		{"ae explain error in output", ParsedIntent{Action: ActionExplain, Target: strp("error in output"), Parameters: map[string]any{}, Confidence: 0.85}},
		{"ae what is a goroutine", ParsedIntent{Action: ActionExplain, Target: strp("a goroutine"), Parameters: map[string]any{}, Confidence: 0.85}},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.line)
		if !ok {
			t.Errorf("Parse(%q) ok = false, want recognized", tc.line)
			continue
		}
		if diff := cmp.Diff(tc.want, got, cmpopts.IgnoreFields(ParsedIntent{}, "Parameters")); diff != "" {
			t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tc.line, diff)
		}
	}
}

func TestParseGeneralAssistanceFallback(t *testing.T) {
	intent, ok := Parse("ae can you help me understand this codebase")
	if !ok {
		t.Fatal("Parse() ok = false")
	}
	if intent.Action != ActionGeneralAssistance {
		t.Errorf("Action = %q, want general_assistance", intent.Action)
	}
	if intent.Confidence >= 0.7 {
		t.Errorf("Confidence = %v, want fuzzy match below 0.7", intent.Confidence)
	}
}
