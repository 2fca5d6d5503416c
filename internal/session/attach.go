package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/trybotster/botster-orchestrator/internal/ptypool"
)

// DefaultDrainPeriod is the interval the attach manager polls an attached
// instance's queued output. Short enough that a session feels live without
// busy-looping the way the teacher's own tick loop balances responsiveness
// against CPU (internal/hub/hub.go's Run/tick).
const DefaultDrainPeriod = 25 * time.Millisecond

// DefaultGracePeriod bounds how long Terminate waits for a child process to
// exit before force-killing it.
const DefaultGracePeriod = 2 * time.Second

// CrashFunc is invoked when an attached instance is found dead mid-drain, so
// the orchestrator can emit SessionFailed and drive recovery (spec.md §7).
// Called outside any AttachManager lock.
type CrashFunc func(sess *Session)

// AttentionFunc is invoked whenever a session's attention flag flips, so the
// orchestrator can emit AttentionRaised/AttentionCleared (spec.md §6, "Event
// stream"). raised is true on a false->true transition, false on true->false.
// Called outside any AttachManager lock, and only on an actual transition.
type AttentionFunc func(sess *Session, raised bool)

// AttachManager binds Sessions to pooled ptypool.Instances (C4), draining
// each attached instance's output into the session's Ring and running the
// needs_attention heuristic over every chunk. It is the sole place that
// enforces S1 (at most one attached_instance per session) and, together with
// Pool.Acquire's remove-on-claim behavior, S2 (an instance belongs to at most
// one session at a time).
type AttachManager struct {
	pool        *ptypool.Pool
	drainPeriod time.Duration
	grace       time.Duration
	onCrash     CrashFunc
	onAttention AttentionFunc
	logger      *slog.Logger

	mu      sync.Mutex
	handles map[ID]*attachHandle
}

type attachHandle struct {
	instance *ptypool.Instance
	stop     chan struct{}
	done     chan struct{}
}

// NewAttachManager creates an AttachManager. onCrash and onAttention may be
// nil.
func NewAttachManager(pool *ptypool.Pool, drainPeriod, grace time.Duration, onCrash CrashFunc, onAttention AttentionFunc, logger *slog.Logger) *AttachManager {
	if drainPeriod <= 0 {
		drainPeriod = DefaultDrainPeriod
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachManager{
		pool:        pool,
		drainPeriod: drainPeriod,
		grace:       grace,
		onCrash:     onCrash,
		onAttention: onAttention,
		logger:      logger,
		handles:     make(map[ID]*attachHandle),
	}
}

// Spawn attaches sess to a warm pooled instance for sess.WorkingDir() if one
// exists, or spawns a fresh one otherwise, then transitions sess to Running.
// Fails with ErrAlreadyAttached if sess already has an attached_instance (S1).
func (m *AttachManager) Spawn(sess *Session, cfg ptypool.SpawnConfig) error {
	m.mu.Lock()
	_, exists := m.handles[sess.ID()]
	m.mu.Unlock()
	if exists {
		return &Error{Kind: ErrAlreadyAttached, Message: "session already has an attached instance"}
	}

	cfg.Dir = sess.WorkingDir()

	inst, hit := m.pool.Acquire(cfg.Dir)
	if !hit {
		var err error
		inst, err = ptypool.New(cfg, m.logger)
		if err != nil {
			sess.setStatus(StatusFailed)
			return err
		}
	}
	return m.attach(sess, inst)
}

func (m *AttachManager) attach(sess *Session, inst *ptypool.Instance) error {
	id := inst.ID()

	handle := &attachHandle{instance: inst, stop: make(chan struct{}), done: make(chan struct{})}
	m.mu.Lock()
	m.handles[sess.ID()] = handle
	m.mu.Unlock()

	sess.setAttachedInstance(&id)
	sess.setStatus(StatusRunning)
	sess.touch()

	go m.drain(sess, handle)
	return nil
}

func (m *AttachManager) drain(sess *Session, h *attachHandle) {
	defer close(h.done)

	ticker := time.NewTicker(m.drainPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			if !h.instance.IsHealthy() {
				m.handleCrash(sess, h)
				return
			}

			data := h.instance.ReadOutput()
			if len(data) == 0 {
				continue
			}

			sess.Ring().Append(data)
			sess.touch()

			if len(detectOSCNotifications(data)) > 0 || looksLikePrompt(data) {
				if sess.raiseAttention() && m.onAttention != nil {
					m.onAttention(sess, true)
				}
			}
		}
	}
}

// handleCrash reacts to a dead instance discovered mid-drain: marks the
// session Failed, releases the handle, and terminates the dead instance. Does
// not itself re-attach; that is the orchestrator's recovery policy (§7),
// driven off onCrash.
func (m *AttachManager) handleCrash(sess *Session, h *attachHandle) {
	m.mu.Lock()
	delete(m.handles, sess.ID())
	m.mu.Unlock()

	sess.setAttachedInstance(nil)
	sess.setStatus(StatusFailed)

	m.logger.Warn("pty instance died, session marked failed", "session_id", sess.ID(), "instance_id", h.instance.ID())
	h.instance.Terminate(m.grace)

	if m.onCrash != nil {
		m.onCrash(sess)
	}
}

// Detach stops draining, returns sess to Idle, and releases the instance back
// to the pool (it may be reused by a later session at the same working_dir).
func (m *AttachManager) Detach(sess *Session) error {
	h, ok := m.take(sess)
	if !ok {
		return &Error{Kind: ErrNotRunning, Message: "session has no attached instance"}
	}

	sess.setAttachedInstance(nil)
	sess.setStatus(StatusIdle)

	m.pool.Release(h.instance)
	return nil
}

// Terminate stops draining and destroys the instance outright, for closing a
// session rather than parking it.
func (m *AttachManager) Terminate(sess *Session) error {
	h, ok := m.take(sess)
	if !ok {
		sess.setStatus(StatusClosed)
		return nil
	}

	sess.setAttachedInstance(nil)
	sess.setStatus(StatusClosed)

	h.instance.Terminate(m.grace)
	return nil
}

// take removes and returns sess's handle, if any, stopping its drain
// goroutine and waiting for it to exit before returning.
func (m *AttachManager) take(sess *Session) (*attachHandle, bool) {
	m.mu.Lock()
	h, ok := m.handles[sess.ID()]
	if ok {
		delete(m.handles, sess.ID())
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	<-h.done
	return h, true
}

// Recover spawns a fresh instance at sess.WorkingDir() and re-attaches a
// Failed session, per spec.md §7's single re-attach policy. Callers must
// check sess.HasRecovered() first and call sess.MarkRecovered() after a
// successful call; AttachManager does not track the attempt count itself so
// the orchestrator's T_GRACE bookkeeping stays in one place.
func (m *AttachManager) Recover(sess *Session, cfg ptypool.SpawnConfig) error {
	cfg.Dir = sess.WorkingDir()
	inst, err := ptypool.New(cfg, m.logger)
	if err != nil {
		return err
	}
	return m.attach(sess, inst)
}

// WriteInput forwards p to sess's attached instance. On I/O failure the
// session is marked Failed the same way a detected crash is (spec.md §4.3
// "Forward to attached instance; on I/O error, mark status=Failed").
func (m *AttachManager) WriteInput(sess *Session, p []byte) error {
	m.mu.Lock()
	h, ok := m.handles[sess.ID()]
	m.mu.Unlock()
	if !ok {
		return &Error{Kind: ErrNotRunning, Message: "session has no attached instance"}
	}

	if _, err := h.instance.WriteInput(p); err != nil {
		m.handleCrash(sess, h)
		return err
	}

	sess.touch()
	if sess.ClearAttention() && m.onAttention != nil {
		m.onAttention(sess, false)
	}
	return nil
}

// Resize changes the PTY dimensions of sess's attached instance.
func (m *AttachManager) Resize(sess *Session, rows, cols uint16) error {
	m.mu.Lock()
	h, ok := m.handles[sess.ID()]
	m.mu.Unlock()
	if !ok {
		return &Error{Kind: ErrNotRunning, Message: "session has no attached instance"}
	}
	return h.instance.Resize(rows, cols)
}

// Attached reports whether sess currently has a live attached instance.
func (m *AttachManager) Attached(sess *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handles[sess.ID()]
	return ok
}
