// Package session implements the user-visible logical terminal (C3) and the
// attach/detach protocol binding a Session to a pooled ptypool.Instance (C4).
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trybotster/botster-orchestrator/internal/project"
	"github.com/trybotster/botster-orchestrator/internal/ptypool"
	"github.com/trybotster/botster-orchestrator/internal/registry"
)

// ID identifies a Session. Stable for the session's lifetime.
type ID string

// NewID generates a fresh session identifier.
func NewID() ID { return ID(uuid.NewString()) }

// Status is the Session.status field from spec.md §3.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusIdle     Status = "idle"
	StatusFailed   Status = "failed"
	StatusClosed   Status = "closed"
)

// PresentationHints are opaque UI hints forwarded verbatim; the orchestrator
// never interprets them (spec.md §3).
type PresentationHints struct {
	Position string
	Opacity  float64
	IsPopup  bool
}

// ErrKind enumerates SessionError/AttachError kinds from spec.md §4.3.
type ErrKind int

const (
	ErrNotRunning ErrKind = iota
	ErrAttachMismatch
	ErrAlreadyAttached
)

// Error is the SessionError/AttachError type.
type Error struct {
	Kind    ErrKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Session is the user-visible logical terminal (C3).
//
// Invariants enforced by this type together with AttachManager:
//
//	S1: at most one attachedInstance per session
//	S2: a PTY instance is referenced by at most one session (AttachManager's job)
//	S3: status=Running ⇒ attachedInstance.is_some()
//	S4: lastActivity >= createdAt
type Session struct {
	mu sync.RWMutex

	id         ID
	workingDir string
	title      string
	status     Status

	ring           *Ring
	needsAttention bool
	hints          PresentationHints

	createdAt    time.Time
	lastActivity time.Time

	attachedInstance *ptypool.InstanceID
	recovered        bool

	projectContext *project.Context
	activation     *registry.ActivationSet
}

// NewConfig configures a new Session.
type NewConfig struct {
	WorkingDir string
	Title      string
	RingCap    int
	Hints      PresentationHints
}

// New creates a Session in the Starting state. It does not attach a PTY
// instance; callers use AttachManager.Spawn for that (spec.md §4.3).
func New(cfg NewConfig) *Session {
	now := time.Now()
	return &Session{
		id:           NewID(),
		workingDir:   cfg.WorkingDir,
		title:        cfg.Title,
		status:       StatusStarting,
		ring:         NewRing(cfg.RingCap),
		hints:        cfg.Hints,
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) ID() ID             { return s.id }
func (s *Session) WorkingDir() string { return s.workingDir }
func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// AttachedInstance returns the currently attached instance id, if any.
func (s *Session) AttachedInstance() (ptypool.InstanceID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.attachedInstance == nil {
		return "", false
	}
	return *s.attachedInstance, true
}

func (s *Session) setAttachedInstance(id *ptypool.InstanceID) {
	s.mu.Lock()
	s.attachedInstance = id
	s.mu.Unlock()
}

// HasRecovered reports whether this session's one re-attach attempt has
// already been spent, as recorded by MarkRecovered (spec.md §7 "orchestrator
// attempts one recovery").
func (s *Session) HasRecovered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recovered
}

// MarkRecovered records that the single allowed re-attach has been used.
func (s *Session) MarkRecovered() {
	s.mu.Lock()
	s.recovered = true
	s.mu.Unlock()
}

// NeedsAttention reports the attention flag.
func (s *Session) NeedsAttention() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.needsAttention
}

// ClearAttention clears the attention flag (called on SendInput, spec.md
// §4.3). changed reports whether the flag was actually set beforehand, so
// callers can tell a real true->false transition from a no-op.
func (s *Session) ClearAttention() (changed bool) {
	s.mu.Lock()
	changed = s.needsAttention
	s.needsAttention = false
	s.mu.Unlock()
	return changed
}

func (s *Session) raiseAttention() (changed bool) {
	s.mu.Lock()
	changed = !s.needsAttention
	s.needsAttention = true
	s.mu.Unlock()
	return changed
}

// Ring returns the session's bounded output ring buffer.
func (s *Session) Ring() *Ring { return s.ring }

// CreatedAt and LastActivity satisfy invariant S4 (LastActivity >= CreatedAt).
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Hints returns the opaque presentation hints.
func (s *Session) Hints() PresentationHints { return s.hints }

// ProjectContext returns the session's current detected project context.
func (s *Session) ProjectContext() *project.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectContext
}

// SetProjectContext replaces the session's detected project context, called
// by the activation tracker after each recompute.
func (s *Session) SetProjectContext(ctx *project.Context) {
	s.mu.Lock()
	s.projectContext = ctx
	s.mu.Unlock()
}

// Activation returns an immutable snapshot of the session's current
// activation set. The snapshot is safe to read without synchronizing with
// concurrent activation swaps (spec.md §5 "Activation set: immutable
// snapshot per generation").
func (s *Session) Activation() *registry.ActivationSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activation
}

// SetActivation swaps in a new activation set, e.g. after C8 recomputes one.
func (s *Session) SetActivation(a *registry.ActivationSet) {
	s.mu.Lock()
	s.activation = a
	s.mu.Unlock()
}

// Summary is a read-only projection used by list_sessions() (C11).
type Summary struct {
	ID             ID
	WorkingDir     string
	Title          string
	Status         Status
	NeedsAttention bool
	CreatedAt      time.Time
	LastActivity   time.Time
}

// Summarize returns a point-in-time Summary.
func (s *Session) Summarize() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		ID:             s.id,
		WorkingDir:     s.workingDir,
		Title:          s.title,
		Status:         s.status,
		NeedsAttention: s.needsAttention,
		CreatedAt:      s.createdAt,
		LastActivity:   s.lastActivity,
	}
}
