// Package orchestrator implements C11, the top-level façade binding sessions,
// the PTY pool, provider discovery/ranking, and the command bridge together,
// and driving the periodic maintenance that keeps them in sync (spec.md §4,
// §7). Shape follows the teacher's internal/hub/hub.go Run/tick loop.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/trybotster/botster-orchestrator/internal/command"
	"github.com/trybotster/botster-orchestrator/internal/config"
	"github.com/trybotster/botster-orchestrator/internal/project"
	"github.com/trybotster/botster-orchestrator/internal/provider"
	"github.com/trybotster/botster-orchestrator/internal/ptypool"
	"github.com/trybotster/botster-orchestrator/internal/registry"
	"github.com/trybotster/botster-orchestrator/internal/session"
)

// defaultShell returns the PTY child command for a fresh/recovered spawn:
// the user's login shell, or /bin/bash if $SHELL is unset.
func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// TGrace is the post-recovery-failure close delay from spec.md §7: "on second
// failure, session remains Failed and is closed after a grace period
// T_GRACE=5s".
const TGrace = 5 * time.Second

// DefaultTickPeriod drives the maintenance loop (registry optimize, discovery
// rescan, failed-session close sweep, checkpoint save). The idle-pool sweep
// runs separately in Pool.Run on its own period.
const DefaultTickPeriod = time.Second

// entry bundles everything the orchestrator owns per open session.
type entry struct {
	sess    *session.Session
	tracker *registry.Tracker
	queue   *command.Queue

	failedAt time.Time // zero unless sess is Failed and already used its one recovery
}

// Orchestrator is C11.
type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger

	pool       *ptypool.Pool
	attach     *session.AttachManager
	registry   *registry.Registry
	discoverer *registry.Discoverer
	executor   *command.Executor
	bus        *Bus

	mu       sync.RWMutex
	sessions map[session.ID]*entry

	knownProviders map[string]bool

	stop chan struct{}
	done chan struct{}
}

// New wires up an Orchestrator from cfg. It imports any checkpointed
// analytics state and runs an initial discovery pass before returning.
func New(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool := ptypool.NewPool(
		cfg.PoolCapacity,
		time.Duration(cfg.IdleTTLSeconds)*time.Second,
		time.Duration(cfg.GracePeriodSeconds)*time.Second,
		logger,
	)
	reg := registry.New(logger)

	o := &Orchestrator{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		registry:       reg,
		discoverer:     registry.NewDiscoverer(logger),
		executor:       command.NewExecutor(reg, provider.NewInvoker(), logger),
		bus:            NewBus(),
		sessions:       make(map[session.ID]*entry),
		knownProviders: make(map[string]bool),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	o.attach = session.NewAttachManager(
		pool,
		session.DefaultDrainPeriod,
		time.Duration(cfg.GracePeriodSeconds)*time.Second,
		o.onCrash,
		o.onAttentionChange,
		logger,
	)

	if cfg.CheckpointPath != "" {
		cp, err := config.LoadCheckpoint(cfg.CheckpointPath)
		if err != nil {
			logger.Warn("orchestrator: checkpoint load failed, starting cold", "error", err)
		} else {
			reg.ImportCheckpoint(cp)
		}
	}

	o.rescanProviders()

	return o, nil
}

// Run drives periodic maintenance until stop is requested via Shutdown. It
// follows the teacher's hub.Run/tick shape: a ticker, with every beat doing a
// short lock-guarded pass rather than spawning per-concern goroutines.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)

	poolStop := make(chan struct{})
	go o.pool.Run(poolStop, time.Duration(o.cfg.SweepPeriodSeconds)*time.Second)
	defer close(poolStop)

	ticker := time.NewTicker(DefaultTickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.stop:
			return nil
		case <-ticker.C:
			o.tick()
		}
	}
}

// tick runs one round of maintenance: recommendation rebuild, provider
// rediscovery, and the failed-session recovery/close sweep.
func (o *Orchestrator) tick() {
	o.registry.Optimize()
	o.rescanProviders()
	o.sweepFailedSessions()
	o.saveCheckpoint()
}

// Shutdown stops the tick loop, closes every open session, and drains the
// idle pool.
func (o *Orchestrator) Shutdown() {
	select {
	case <-o.stop:
	default:
		close(o.stop)
	}
	<-o.done

	o.mu.Lock()
	ids := make([]session.ID, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		_ = o.CloseSession(id)
	}

	o.pool.Drain()
	o.saveCheckpoint()
}

func (o *Orchestrator) saveCheckpoint() {
	if o.cfg.CheckpointPath == "" {
		return
	}
	cp := o.registry.ExportCheckpoint()
	if err := config.SaveCheckpoint(o.cfg.CheckpointPath, cp); err != nil {
		o.logger.Warn("orchestrator: checkpoint save failed", "error", err)
	}
}

// rescanProviders re-runs C6 discovery and diffs the result against the
// previously known provider ids, publishing ProviderDiscovered/ProviderLost
// for whatever changed (spec.md §4.10 event stream).
func (o *Orchestrator) rescanProviders() {
	found := o.discoverer.Discover(o.cfg.DiscoveryRoots, o.cfg.LocalProviderConfigs)

	seen := make(map[string]bool, len(found))
	for _, desc := range found {
		desc.Status = registry.StatusAvailable
		o.registry.Register(desc)
		seen[desc.ID] = true

		o.mu.Lock()
		isNew := !o.knownProviders[desc.ID]
		o.knownProviders[desc.ID] = true
		o.mu.Unlock()

		if isNew {
			o.bus.Publish(DomainEvent{Type: EventProviderDiscovered, ProviderID: desc.ID})
		}
	}

	o.mu.Lock()
	var lost []string
	for id := range o.knownProviders {
		if !seen[id] {
			lost = append(lost, id)
			delete(o.knownProviders, id)
		}
	}
	o.mu.Unlock()

	for _, id := range lost {
		o.registry.Unregister(id)
		o.bus.Publish(DomainEvent{Type: EventProviderLost, ProviderID: id})
	}
}

// onCrash is AttachManager's CrashFunc: it publishes SessionFailed and
// attempts the single allowed recovery (spec.md §7).
func (o *Orchestrator) onCrash(sess *session.Session) {
	o.bus.Publish(DomainEvent{Type: EventSessionFailed, SessionID: sess.ID()})

	if sess.HasRecovered() {
		o.mu.Lock()
		if e, ok := o.sessions[sess.ID()]; ok {
			e.failedAt = time.Now()
		}
		o.mu.Unlock()
		return
	}

	sess.MarkRecovered()
	if err := o.attach.Recover(sess, ptypool.SpawnConfig{Command: defaultShell()}); err != nil {
		o.logger.Warn("orchestrator: recovery re-attach failed", "session_id", sess.ID(), "error", err)
		o.mu.Lock()
		if e, ok := o.sessions[sess.ID()]; ok {
			e.failedAt = time.Now()
		}
		o.mu.Unlock()
	}
}

// onAttentionChange is AttachManager's AttentionFunc: it publishes
// AttentionRaised/AttentionCleared on every real flag transition (spec.md §6
// closed event vocabulary).
func (o *Orchestrator) onAttentionChange(sess *session.Session, raised bool) {
	evType := EventAttentionCleared
	if raised {
		evType = EventAttentionRaised
	}
	o.bus.Publish(DomainEvent{Type: evType, SessionID: sess.ID()})
}

// sweepFailedSessions closes any session that has been Failed, already spent
// its one recovery attempt, and has sat past T_GRACE (spec.md §7).
func (o *Orchestrator) sweepFailedSessions() {
	o.mu.RLock()
	var toClose []session.ID
	for id, e := range o.sessions {
		if e.sess.Status() == session.StatusFailed && !e.failedAt.IsZero() && time.Since(e.failedAt) > TGrace {
			toClose = append(toClose, id)
		}
	}
	o.mu.RUnlock()

	for _, id := range toClose {
		_ = o.CloseSession(id)
	}
}

// OpenSession implements open_session(working_dir, title) -> SessionId
// (spec.md §4.3): spawns/acquires a PTY instance, starts the C8 activation
// tracker, and gives the session its own command queue.
func (o *Orchestrator) OpenSession(workingDir, title string, hints session.PresentationHints) (*session.Session, error) {
	sess := session.New(session.NewConfig{
		WorkingDir: workingDir,
		Title:      title,
		RingCap:    o.cfg.RingCapacity,
		Hints:      hints,
	})

	if err := o.attach.Spawn(sess, ptypool.SpawnConfig{Command: defaultShell()}); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	tracker, err := registry.NewTracker(
		string(sess.ID()),
		workingDir,
		o.registry,
		time.Duration(o.cfg.DebounceMillis)*time.Millisecond,
		o.onActivationChanged,
		o.logger,
	)
	if err != nil {
		_ = o.attach.Terminate(sess)
		return nil, fmt.Errorf("open session: start activation tracker: %w", err)
	}

	ctx := tracker.Context()
	sess.SetProjectContext(&ctx)
	sess.SetActivation(tracker.Activation())

	queue := command.NewQueue(o.executor, o.logger)

	o.mu.Lock()
	o.sessions[sess.ID()] = &entry{sess: sess, tracker: tracker, queue: queue}
	o.mu.Unlock()

	o.bus.Publish(DomainEvent{Type: EventSessionOpened, SessionID: sess.ID()})
	return sess, nil
}

// onActivationChanged is C8's ActivationChangedFunc: it swaps the new
// ActivationSet onto the owning Session and publishes ActivationChanged.
func (o *Orchestrator) onActivationChanged(sessionID string, generation uint64, set *registry.ActivationSet) {
	id := session.ID(sessionID)

	o.mu.RLock()
	e, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return
	}

	e.sess.SetActivation(set)
	o.bus.Publish(DomainEvent{Type: EventActivationChanged, SessionID: id, Generation: generation})
}

// CloseSession implements close_session(id) (spec.md §4.3): stops the
// activation tracker, drains and closes the command queue, tears down the PTY
// instance, and removes the session from the table.
func (o *Orchestrator) CloseSession(id session.ID) error {
	o.mu.Lock()
	e, ok := o.sessions[id]
	if ok {
		delete(o.sessions, id)
	}
	o.mu.Unlock()
	if !ok {
		return &session.Error{Kind: session.ErrNotRunning, Message: "no such session"}
	}

	if e.queue != nil {
		e.queue.Close()
	}
	if e.tracker != nil {
		_ = e.tracker.Close()
	}
	_ = o.attach.Terminate(e.sess)

	o.bus.Publish(DomainEvent{Type: EventSessionClosed, SessionID: id})
	return nil
}

// ListSessions implements list_sessions() -> [SessionSummary].
func (o *Orchestrator) ListSessions() []session.Summary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]session.Summary, 0, len(o.sessions))
	for _, e := range o.sessions {
		out = append(out, e.sess.Summarize())
	}
	return out
}

// SendInput implements send_input(id, bytes) -> {Delivered | IntentResponse}
// (spec.md §4.3, §6): a reserved-prefix line is parsed by C9 and enqueued for
// C10 execution; everything else is forwarded straight to the PTY.
func (o *Orchestrator) SendInput(ctx context.Context, id session.ID, data []byte) (*command.CommandResponse, error) {
	o.mu.RLock()
	e, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return nil, &session.Error{Kind: session.ErrNotRunning, Message: "no such session"}
	}

	intent, isIntent := command.Parse(string(data))
	if !isIntent {
		if err := o.attach.WriteInput(e.sess, data); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if e.sess.ClearAttention() {
		o.onAttentionChange(e.sess, false)
	}

	resultCh, err := e.queue.Submit(ctx, e.sess, intent)
	if err != nil {
		return nil, err
	}

	select {
	case resp := <-resultCh:
		return &resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AttentionState implements attention_state(id) -> bool.
func (o *Orchestrator) AttentionState(id session.ID) (bool, error) {
	o.mu.RLock()
	e, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return false, &session.Error{Kind: session.ErrNotRunning, Message: "no such session"}
	}
	return e.sess.NeedsAttention(), nil
}

// SubscribeEvents implements subscribe_events() -> stream of DomainEvent.
func (o *Orchestrator) SubscribeEvents() (<-chan DomainEvent, func()) {
	return o.bus.Subscribe()
}

// AvailableCapabilities implements available_capabilities(id) -> [Capability].
func (o *Orchestrator) AvailableCapabilities(id session.ID) ([]registry.Capability, error) {
	o.mu.RLock()
	e, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return nil, &session.Error{Kind: session.ErrNotRunning, Message: "no such session"}
	}

	activation := e.sess.Activation()
	if activation == nil {
		return nil, nil
	}
	out := make([]registry.Capability, 0, len(activation.Capabilities))
	for _, c := range activation.Capabilities {
		out = append(out, c.Capability)
	}
	return out, nil
}

// Resize forwards a terminal resize to a session's attached PTY (spec.md §4.1
// C1.resize, exposed through C11 for transport layers like sshapi/wsapi).
func (o *Orchestrator) Resize(id session.ID, rows, cols uint16) error {
	o.mu.RLock()
	e, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return &session.Error{Kind: session.ErrNotRunning, Message: "no such session"}
	}
	return o.attach.Resize(e.sess, rows, cols)
}

// Registry exposes the underlying C7 registry read-only surface, for CLI
// subcommands that list/rank providers directly (cmd/botster-orchestrator).
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// ProjectContextOf returns a session's currently detected project context,
// for transport layers that want to display it (e.g. a status line).
func (o *Orchestrator) ProjectContextOf(id session.ID) *project.Context {
	o.mu.RLock()
	e, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return nil
	}
	return e.sess.ProjectContext()
}

// SessionRing exposes a session's ring buffer for transport layers that tail
// raw output directly (e.g. sshapi) instead of going through events.
func (o *Orchestrator) SessionRing(id session.ID) (*session.Session, bool) {
	o.mu.RLock()
	e, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.sess, true
}
