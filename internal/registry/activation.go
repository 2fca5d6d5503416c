package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trybotster/botster-orchestrator/internal/project"
)

// detectTimeout bounds a single recompute pass; marker files are small and
// local so this is generous headroom, not a real budget.
const detectTimeout = 5 * time.Second

// ActivationChangedFunc is called whenever a Tracker swaps in a new
// ActivationSet. sessionID is opaque to this package (registry must not
// import session, to keep session -> registry a one-way edge).
type ActivationChangedFunc func(sessionID string, generation uint64, set *ActivationSet)

// Tracker is C8: per session, it keeps (ProjectContext, ActivationSet) and
// recomputes both on debounced file-system events under the session's
// working directory.
type Tracker struct {
	mu sync.RWMutex

	sessionID  string
	workingDir string
	registry   *Registry
	watcher    *project.Watcher

	current    project.Context
	activation *ActivationSet

	onChanged ActivationChangedFunc
	logger    *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewTracker computes the initial (ProjectContext, ActivationSet) pair and
// starts watching workingDir for changes (spec.md §4.7 "on session spawn,
// computes both once").
func NewTracker(sessionID, workingDir string, reg *Registry, debounce time.Duration, onChanged ActivationChangedFunc, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(context.Background(), detectTimeout)
	initial, err := project.Detect(ctx, workingDir)
	cancel()
	if err != nil {
		initial = project.Unknown(workingDir)
		logger.Warn("activation: initial detect failed", "session", sessionID, "dir", workingDir, "error", err)
	}

	watcher, err := project.NewWatcher(workingDir, debounce, logger)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		sessionID:  sessionID,
		workingDir: workingDir,
		registry:   reg,
		watcher:    watcher,
		current:    initial,
		activation: reg.Select(initial, 0),
		onChanged:  onChanged,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go t.run()
	return t, nil
}

func (t *Tracker) run() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case _, ok := <-t.watcher.Changed():
			if !ok {
				return
			}
			t.recompute()
		}
	}
}

// recompute is the "on event batch" step from spec.md §4.7: it is cancellable
// and idempotent, and a failure here logs and retains the previous
// ActivationSet rather than surfacing a user-visible error.
func (t *Tracker) recompute() {
	ctx, cancel := context.WithTimeout(context.Background(), detectTimeout)
	next, err := project.Detect(ctx, t.workingDir)
	cancel()
	if err != nil {
		t.logger.Warn("activation: recompute failed, keeping previous set", "session", t.sessionID, "error", err)
		return
	}

	t.mu.Lock()
	prev := t.current
	if project.SameSignature(prev, next) {
		t.current = next
		t.mu.Unlock()
		return
	}
	t.current = next
	nextGen := t.activation.Generation + 1
	newSet := t.registry.Select(next, nextGen)
	t.activation = newSet
	t.mu.Unlock()

	if t.onChanged != nil {
		t.onChanged(t.sessionID, nextGen, newSet)
	}
}

// Context returns the tracker's current ProjectContext.
func (t *Tracker) Context() project.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Activation returns the tracker's current immutable ActivationSet snapshot.
func (t *Tracker) Activation() *ActivationSet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.activation
}

// Close stops the underlying watcher and waits for the run loop to exit.
func (t *Tracker) Close() error {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	err := t.watcher.Close()
	<-t.done
	return err
}
