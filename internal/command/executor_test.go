package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/trybotster/botster-orchestrator/internal/project"
	"github.com/trybotster/botster-orchestrator/internal/provider"
	"github.com/trybotster/botster-orchestrator/internal/registry"
	"github.com/trybotster/botster-orchestrator/internal/session"
)

func writeProviderScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "provider.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write provider script: %v", err)
	}
	return path
}

func newTestSession(t *testing.T, workingDir string, activation *registry.ActivationSet) *session.Session {
	t.Helper()
	sess := session.New(session.NewConfig{WorkingDir: workingDir, RingCap: 16})
	sess.SetActivation(activation)
	return sess
}

func TestExecuteInvokesMatchingCapability(t *testing.T) {
	dir := t.TempDir()
	script := writeProviderScript(t, dir, `cat >/dev/null
printf '%s' '{"summary":"3 issues found","suggestions":["fix x"]}'
`)

	desc := registry.ProviderDescriptor{ID: "pkg:analyzer", Invocation: script, Capabilities: []registry.Capability{{Name: "analyze", Kind: registry.CodeAnalysis}}}
	activation := &registry.ActivationSet{
		Providers:    []registry.ScoredProvider{{Provider: desc, Score: 0.9}},
		Capabilities: []registry.ScoredCapability{{Capability: desc.Capabilities[0], ProviderID: desc.ID, Score: 0.9}},
		Generation:   1,
	}
	sess := newTestSession(t, dir, activation)

	reg := registry.New(nil)
	exec := NewExecutor(reg, provider.NewInvoker(), nil)

	resp := exec.Execute(context.Background(), sess, ParsedIntent{Action: ActionAnalyzeCode, Confidence: 0.9, Parameters: map[string]any{}})
	if resp.Action != ActionAnalyzeCode {
		t.Errorf("Action = %q, want %q", resp.Action, ActionAnalyzeCode)
	}
	if resp.Summary != "3 issues found" {
		t.Errorf("Summary = %q", resp.Summary)
	}
}

func TestExecuteFallbackWhenNoCapability(t *testing.T) {
	dir := t.TempDir()
	activation := registry.Empty()
	sess := newTestSession(t, dir, activation)

	reg := registry.New(nil)
	exec := NewExecutor(reg, provider.NewInvoker(), nil)

	resp := exec.Execute(context.Background(), sess, ParsedIntent{Action: ActionRunTests, Confidence: 0.9, Parameters: map[string]any{}})
	if resp.Action != ActionFallback {
		t.Errorf("Action = %q, want fallback", resp.Action)
	}
	if resp.Confidence > 0.1 {
		t.Errorf("Confidence = %v, want <= 0.1", resp.Confidence)
	}
}

func TestResolveFilesWithExplicitTarget(t *testing.T) {
	target := "foo.go"
	got := resolveFiles(&target, "/work", "go")
	if len(got) != 1 || got[0] != "foo.go" {
		t.Errorf("resolveFiles() = %v, want [foo.go]", got)
	}
}

func TestResolveFilesDefaultsToLanguageExtensions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"main.go", "helper.go", "README.md", "script.py"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "vendor.go"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got := resolveFiles(nil, dir, "go")

	want := map[string]bool{
		filepath.Join(dir, "main.go"):   true,
		filepath.Join(dir, "helper.go"): true,
	}
	if len(got) != len(want) {
		t.Fatalf("resolveFiles() = %v, want exactly %v", got, want)
	}
	for _, f := range got {
		if !want[f] {
			t.Errorf("resolveFiles() included unexpected file %q", f)
		}
	}
}

func TestResolveFilesUnknownLanguageReturnsNil(t *testing.T) {
	dir := t.TempDir()
	if got := resolveFiles(nil, dir, "cobol"); got != nil {
		t.Errorf("resolveFiles() = %v, want nil for unmapped language", got)
	}
}

func TestExecuteRejectsMissingRequiredParameter(t *testing.T) {
	dir := t.TempDir()
	script := writeProviderScript(t, dir, `cat >/dev/null
printf '%s' '{"summary":"should not run"}'
`)
	cap := registry.Capability{
		Name: "analyze",
		Kind: registry.CodeAnalysis,
		Input: map[string]any{
			"required": []any{"target"},
		},
	}
	desc := registry.ProviderDescriptor{ID: "pkg:analyzer", Invocation: script, Capabilities: []registry.Capability{cap}}
	activation := &registry.ActivationSet{
		Providers:    []registry.ScoredProvider{{Provider: desc, Score: 0.9}},
		Capabilities: []registry.ScoredCapability{{Capability: cap, ProviderID: desc.ID, Score: 0.9}},
		Generation:   1,
	}
	sess := newTestSession(t, dir, activation)

	reg := registry.New(nil)
	exec := NewExecutor(reg, provider.NewInvoker(), nil)

	resp := exec.Execute(context.Background(), sess, ParsedIntent{Action: ActionAnalyzeCode, Confidence: 0.9, Parameters: map[string]any{}})
	if resp.Action != ActionError {
		t.Fatalf("Action = %q, want error for missing required parameter", resp.Action)
	}
}

func TestValidateParametersAllowsPresentRequiredKey(t *testing.T) {
	cap := registry.Capability{Name: "analyze", Input: map[string]any{"required": []any{"target"}}}
	if err := validateParameters(cap, map[string]any{"target": "foo.go"}); err != nil {
		t.Errorf("validateParameters() error = %v, want nil", err)
	}
}

func TestValidateParametersNilSchemaAlwaysPasses(t *testing.T) {
	if err := validateParameters(registry.Capability{}, map[string]any{}); err != nil {
		t.Errorf("validateParameters() error = %v, want nil for schema-less capability", err)
	}
}

func TestExecuteProviderErrorRecordsFailure(t *testing.T) {
	dir := t.TempDir()
	script := writeProviderScript(t, dir, `cat >/dev/null
exit 1
`)
	desc := registry.ProviderDescriptor{ID: "pkg:flaky", Invocation: script, Capabilities: []registry.Capability{{Name: "run", Kind: registry.Testing}}}
	activation := &registry.ActivationSet{
		Providers:    []registry.ScoredProvider{{Provider: desc, Score: 0.8}},
		Capabilities: []registry.ScoredCapability{{Capability: desc.Capabilities[0], ProviderID: desc.ID, Score: 0.8}},
		Generation:   1,
	}
	sess := newTestSession(t, dir, activation)
	sess.SetProjectContext(&project.Context{PrimaryLanguage: "go", ProjectType: "cli"})

	reg := registry.New(nil)
	exec := NewExecutor(reg, provider.NewInvoker(), nil)

	resp := exec.Execute(context.Background(), sess, ParsedIntent{Action: ActionRunTests, Confidence: 0.9, Parameters: map[string]any{}})
	if resp.Action != ActionError {
		t.Errorf("Action = %q, want error", resp.Action)
	}
}
