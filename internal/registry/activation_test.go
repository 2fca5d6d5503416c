package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestTrackerInitialActivationHasNoLanguageSpecificProvider is the setup half
// of Testable Property S-C: an empty directory yields generation 0 and no
// language-specific providers.
func TestTrackerInitialActivationHasNoLanguageSpecificProvider(t *testing.T) {
	dir := t.TempDir()
	reg := New(nil)
	reg.Register(ProviderDescriptor{ID: "pkg:rust-tool", Supports: Supports{Languages: []string{"rust"}}})

	tr, err := NewTracker("sess-1", dir, reg, 20*time.Millisecond, nil, nil)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	defer tr.Close()

	set := tr.Activation()
	if set.Generation != 0 {
		t.Errorf("Generation = %d, want 0", set.Generation)
	}
	for _, sp := range set.Providers {
		if sp.Provider.ID == "pkg:rust-tool" {
			t.Error("rust-tool present in initial activation over an empty directory")
		}
	}
}

// TestTrackerRecomputesOnDependencyChange is Testable Property S-C.
func TestTrackerRecomputesOnDependencyChange(t *testing.T) {
	dir := t.TempDir()
	reg := New(nil)
	reg.Register(ProviderDescriptor{ID: "pkg:rust-tool", Supports: Supports{Languages: []string{"rust"}}})

	changed := make(chan uint64, 4)
	tr, err := NewTracker("sess-1", dir, reg, 20*time.Millisecond, func(sessionID string, gen uint64, set *ActivationSet) {
		changed <- gen
	}, nil)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	defer tr.Close()

	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname=\"x\"\nversion=\"0.1.0\"\n"), 0o644); err != nil {
		t.Fatalf("write Cargo.toml: %v", err)
	}

	select {
	case gen := <-changed:
		if gen != 1 {
			t.Errorf("generation = %d, want 1", gen)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ActivationChanged")
	}

	set := tr.Activation()
	found := false
	for _, sp := range set.Providers {
		if sp.Provider.ID == "pkg:rust-tool" {
			found = true
		}
	}
	if !found {
		t.Errorf("Providers = %+v, want rust-tool present after Cargo.toml appears", set.Providers)
	}
}
