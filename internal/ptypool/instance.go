// Package ptypool provides pseudo-terminal instance management and a warm,
// directory-keyed idle pool of those instances.
//
// An Instance owns exactly one child process attached to one PTY. Instances
// are either attached to a session (owned by the attach manager) or sitting
// idle in a Pool; never both.
package ptypool

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
)

// MaxRawChunks bounds the number of undrained output chunks buffered by an
// instance before the reader begins dropping the oldest. This is independent
// of the session-level ring (spec.md C_RING); it exists so a detached
// instance sitting in the pool never grows without bound.
const MaxRawChunks = 4096

// ErrKind enumerates PtyError kinds from spec.md §4.1.
type ErrKind int

const (
	ErrSpawn ErrKind = iota
	ErrIO
	ErrAlreadyDead
)

// Error is the PtyError type from spec.md §4.1.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrSpawn:
		return "pty: spawn failed: " + e.Err.Error()
	case ErrIO:
		return "pty: io error: " + e.Err.Error()
	case ErrAlreadyDead:
		return "pty: instance already dead"
	default:
		return "pty: error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// InstanceID identifies a PtyInstance. Never reused across destroy.
type InstanceID string

func newInstanceID() InstanceID {
	return InstanceID(uuid.NewString())
}

// Health is the PtyInstance.health field from spec.md §3.
type Health int

const (
	Healthy Health = iota
	Dead
)

// Instance is one child process + PTY pair (C1).
type Instance struct {
	id         InstanceID
	workingDir string

	ptyFile *os.File
	cmd     *exec.Cmd
	pid     int

	rows, cols uint16

	rawOutput     [][]byte
	rawOutputLock sync.Mutex

	done     chan struct{}
	readerWg sync.WaitGroup

	mu        sync.Mutex
	health    Health
	isIdle    bool
	idleSince time.Time

	logger *slog.Logger
}

// SpawnConfig configures the child process started inside the PTY.
type SpawnConfig struct {
	// Command is the command to run (e.g. "bash", or a full shell line).
	Command string
	// Args are additional arguments. If empty, Command is run as a shell line
	// via `/bin/bash -c`.
	Args []string
	// Dir is the working directory; required.
	Dir string
	// Env are additional "key=value" environment entries appended to the
	// process environment.
	Env []string
	// Rows, Cols are the initial PTY size; defaults to 24x80 (spec.md §4.1).
	Rows, Cols uint16
}

// New creates and spawns a new Instance. Returns an *Error with ErrSpawn on
// failure.
func New(cfg SpawnConfig, logger *slog.Logger) (*Instance, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Rows == 0 {
		cfg.Rows = 24
	}
	if cfg.Cols == 0 {
		cfg.Cols = 80
	}

	args := cfg.Args
	command := cfg.Command
	if len(args) == 0 && command != "" {
		args = []string{"-c", command}
		command = "/bin/bash"
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: cfg.Rows, Cols: cfg.Cols})
	if err != nil {
		return nil, &Error{Kind: ErrSpawn, Err: err}
	}

	inst := &Instance{
		id:         newInstanceID(),
		workingDir: cfg.Dir,
		ptyFile:    ptmx,
		cmd:        cmd,
		rows:       cfg.Rows,
		cols:       cfg.Cols,
		done:       make(chan struct{}),
		health:     Healthy,
		logger:     logger,
	}
	if cmd.Process != nil {
		inst.pid = cmd.Process.Pid
	}

	inst.readerWg.Add(1)
	go inst.readerLoop()

	logger.Info("pty instance spawned", "instance_id", inst.id, "dir", cfg.Dir, "pid", inst.pid)
	return inst, nil
}

func (i *Instance) readerLoop() {
	defer i.readerWg.Done()

	buf := make([]byte, 4096)
	for {
		select {
		case <-i.done:
			return
		default:
		}

		n, err := i.ptyFile.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				i.logger.Debug("pty read error", "instance_id", i.id, "error", err)
			}
			i.setHealth(Dead)
			return
		}
		if n == 0 {
			continue
		}

		chunk := append([]byte{}, buf[:n]...)
		i.rawOutputLock.Lock()
		i.rawOutput = append(i.rawOutput, chunk)
		if len(i.rawOutput) > MaxRawChunks {
			i.rawOutput = i.rawOutput[1:]
		}
		i.rawOutputLock.Unlock()
	}
}

// ID returns the instance's identifier.
func (i *Instance) ID() InstanceID { return i.id }

// WorkingDir returns the directory the instance's child process runs in.
func (i *Instance) WorkingDir() string { return i.workingDir }

// PID returns the child process id, or 0 if unknown.
func (i *Instance) PID() int { return i.pid }

// WriteInput writes bytes to the PTY's input stream.
func (i *Instance) WriteInput(p []byte) (int, error) {
	if i.ptyFile == nil {
		return 0, &Error{Kind: ErrAlreadyDead}
	}
	n, err := i.ptyFile.Write(p)
	if err != nil {
		i.setHealth(Dead)
		return n, &Error{Kind: ErrIO, Err: err}
	}
	return n, nil
}

// ReadOutput drains and returns all output bytes queued since the last call,
// in arrival order. Returns nil if nothing is queued.
func (i *Instance) ReadOutput() []byte {
	i.rawOutputLock.Lock()
	defer i.rawOutputLock.Unlock()

	if len(i.rawOutput) == 0 {
		return nil
	}
	var out []byte
	for _, chunk := range i.rawOutput {
		out = append(out, chunk...)
	}
	i.rawOutput = i.rawOutput[:0]
	return out
}

// Resize changes the PTY dimensions.
func (i *Instance) Resize(rows, cols uint16) error {
	i.rows, i.cols = rows, cols
	if i.ptyFile == nil {
		return nil
	}
	if err := pty.Setsize(i.ptyFile, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return &Error{Kind: ErrIO, Err: err}
	}
	return nil
}

// Size returns the current PTY dimensions.
func (i *Instance) Size() (rows, cols uint16) { return i.rows, i.cols }

// IsHealthy reports whether the instance's process/PTY is usable.
func (i *Instance) IsHealthy() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.health == Healthy
}

func (i *Instance) setHealth(h Health) {
	i.mu.Lock()
	i.health = h
	i.mu.Unlock()
}

// MarkIdle records this instance as admitted into a Pool.
func (i *Instance) MarkIdle(now time.Time) {
	i.mu.Lock()
	i.isIdle = true
	i.idleSince = now
	i.mu.Unlock()
}

// MarkAttached records this instance as claimed out of the Pool (or never
// having entered it).
func (i *Instance) MarkAttached() {
	i.mu.Lock()
	i.isIdle = false
	i.mu.Unlock()
}

// IdleSince returns the timestamp the instance was last marked idle.
func (i *Instance) IdleSince() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.idleSince
}

// Terminate sends a polite signal, waits up to gracePeriod, then force-kills.
// Reaps the child either way. Safe to call multiple times.
func (i *Instance) Terminate(gracePeriod time.Duration) error {
	select {
	case <-i.done:
		// already terminated
	default:
		close(i.done)
	}

	if i.cmd == nil || i.cmd.Process == nil {
		if i.ptyFile != nil {
			i.ptyFile.Close()
		}
		i.readerWg.Wait()
		i.setHealth(Dead)
		return nil
	}

	waitDone := make(chan struct{})
	go func() {
		i.cmd.Wait()
		close(waitDone)
	}()

	i.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitDone:
	case <-time.After(gracePeriod):
		i.logger.Warn("pty instance did not exit gracefully, force-killing", "instance_id", i.id)
		i.cmd.Process.Kill()
		<-waitDone
	}

	if i.ptyFile != nil {
		i.ptyFile.Close()
	}
	i.readerWg.Wait()
	i.setHealth(Dead)
	return nil
}
