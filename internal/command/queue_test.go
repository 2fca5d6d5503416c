package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trybotster/botster-orchestrator/internal/provider"
	"github.com/trybotster/botster-orchestrator/internal/registry"
	"github.com/trybotster/botster-orchestrator/internal/session"
)

func TestQueueSubmitExecutesInOrder(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "p.sh")
	os.WriteFile(script, []byte("#!/bin/sh\ncat >/dev/null\nprintf '%s' '{\"summary\":\"ok\"}'\n"), 0o755)

	desc := registry.ProviderDescriptor{ID: "pkg:p", Invocation: script, Capabilities: []registry.Capability{{Name: "help", Kind: registry.GeneralAssistance}}}
	activation := &registry.ActivationSet{
		Providers:    []registry.ScoredProvider{{Provider: desc, Score: 0.5}},
		Capabilities: []registry.ScoredCapability{{Capability: desc.Capabilities[0], ProviderID: desc.ID, Score: 0.5}},
	}
	sess := newTestSession(t, dir, activation)

	reg := registry.New(nil)
	exec := NewExecutor(reg, provider.NewInvoker(), nil)
	q := NewQueue(exec, nil)
	defer q.Close()

	var results []<-chan CommandResponse
	for i := 0; i < 3; i++ {
		ch, err := q.Submit(context.Background(), sess, ParsedIntent{Action: ActionGeneralAssistance, Confidence: 0.5, Parameters: map[string]any{}})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		results = append(results, ch)
	}

	for i, ch := range results {
		select {
		case resp := <-ch:
			if resp.Action != ActionGeneralAssistance {
				t.Errorf("result %d: Action = %q", i, resp.Action)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("result %d: timed out", i)
		}
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "slow.sh")
	os.WriteFile(script, []byte("#!/bin/sh\nsleep 2\nprintf '%s' '{\"summary\":\"ok\"}'\n"), 0o755)

	desc := registry.ProviderDescriptor{ID: "pkg:slow", Invocation: script, Capabilities: []registry.Capability{{Name: "help", Kind: registry.GeneralAssistance}}}
	activation := &registry.ActivationSet{
		Providers:    []registry.ScoredProvider{{Provider: desc, Score: 0.5}},
		Capabilities: []registry.ScoredCapability{{Capability: desc.Capabilities[0], ProviderID: desc.ID, Score: 0.5}},
	}
	sess := newTestSession(t, dir, activation)

	reg := registry.New(nil)
	exec := NewExecutor(reg, provider.NewInvoker(), nil)
	q := NewQueue(exec, nil)
	defer q.Close()

	ok := 0
	busy := 0
	for i := 0; i < QMax+4; i++ {
		_, err := q.Submit(context.Background(), sess, ParsedIntent{Action: ActionGeneralAssistance, Confidence: 0.5, Parameters: map[string]any{}})
		if err == ErrBusy {
			busy++
		} else {
			ok++
		}
	}
	if busy == 0 {
		t.Error("never hit ErrBusy despite submitting more than QMax jobs behind one slow worker")
	}
}
