// Package sshapi is the optional raw-terminal attach surface for a session's
// PTY (spec.md §6 leaves the external transport open; SPEC_FULL §3 wires it
// as an SSH surface the way the teacher did for its browser-via-Tailscale
// relay). Unlike the teacher's tsnet-bound server, this one listens on a
// plain net.Listener (BOTSTER_ORCH_SSHAPI_ADDR); disabled entirely when that
// address is empty.
package sshapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gliderlabs/ssh"

	"github.com/trybotster/botster-orchestrator/internal/orchestrator"
	"github.com/trybotster/botster-orchestrator/internal/session"
)

// sessionUserPrefix is the SSH username convention selecting a session to
// attach to, e.g. `ssh session-<id>@host`, mirroring the teacher's
// "agent-<agentID>" convention in internal/sshserver.
const sessionUserPrefix = "session-"

// tailPollPeriod is how often an attached SSH connection polls the session's
// ring buffer for bytes it hasn't sent yet.
const tailPollPeriod = 30 * time.Millisecond

// Server serves raw terminal attach over SSH.
type Server struct {
	listener net.Listener
	orch     *orchestrator.Orchestrator
	logger   *slog.Logger
}

// New creates a Server bound to listener and orch.
func New(listener net.Listener, orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{listener: listener, orch: orch, logger: logger}
}

// Serve runs the SSH server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	server := &ssh.Server{
		Handler: s.handleSession,
		PtyCallback: func(ctx ssh.Context, pty ssh.Pty) bool {
			return true
		},
	}

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.logger.Info("sshapi: server starting", "addr", s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				s.logger.Warn("sshapi: accept error", "error", err)
				continue
			}
		}
		go server.HandleConn(conn)
	}
}

// Close shuts down the listener.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleSession(sshSess ssh.Session) {
	user := sshSess.User()

	if !strings.HasPrefix(user, sessionUserPrefix) {
		s.listSessions(sshSess)
		return
	}

	id := session.ID(strings.TrimPrefix(user, sessionUserPrefix))
	if _, err := s.orch.AttentionState(id); err != nil {
		fmt.Fprintf(sshSess, "session %s not found\n", id)
		sshSess.Exit(1)
		return
	}

	pty, winCh, isPty := sshSess.Pty()
	if isPty {
		_ = s.orch.Resize(id, uint16(pty.Window.Height), uint16(pty.Window.Width))
	}
	go func() {
		for win := range winCh {
			if err := s.orch.Resize(id, uint16(win.Height), uint16(win.Width)); err != nil {
				s.logger.Warn("sshapi: resize failed", "session_id", id, "error", err)
			}
		}
	}()

	ctx, cancel := context.WithCancel(sshSess.Context())
	defer cancel()

	go s.tailOutput(ctx, sshSess, id)
	s.forwardInput(ctx, sshSess, id)
}

func (s *Server) listSessions(sshSess ssh.Session) {
	summaries := s.orch.ListSessions()
	if len(summaries) == 0 {
		fmt.Fprintln(sshSess, "no open sessions")
		sshSess.Exit(0)
		return
	}
	fmt.Fprintln(sshSess, "open sessions:")
	for _, sum := range summaries {
		fmt.Fprintf(sshSess, "  ssh %s%s@<host>  (%s, %s)\n", sessionUserPrefix, sum.ID, sum.WorkingDir, sum.Status)
	}
	sshSess.Exit(0)
}

// tailOutput polls the session's ring for bytes not yet sent to this
// connection. A per-connection cursor (not the ring itself, which is a
// single shared buffer) tracks how much of the concatenated ring has already
// been written out, the same "poll on a ticker, drain what's new" shape
// AttachManager.drain uses against the PTY itself.
func (s *Server) tailOutput(ctx context.Context, w io.Writer, id session.ID) {
	sess, ok := s.lookupSession(id)
	if !ok {
		return
	}

	var sent int
	ticker := time.NewTicker(tailPollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data := sess.Ring().Bytes()
			if len(data) <= sent {
				if len(data) < sent {
					sent = 0 // ring overflowed and dropped what we'd already sent
				}
				continue
			}
			if _, err := w.Write(data[sent:]); err != nil {
				return
			}
			sent = len(data)
		}
	}
}

func (s *Server) forwardInput(ctx context.Context, r io.Reader, id session.ID) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, sendErr := s.orch.SendInput(ctx, id, append([]byte(nil), buf[:n]...)); sendErr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// lookupSession is a narrow seam onto the orchestrator's session table,
// declared narrowly so sshapi depends on nothing beyond Ring().
func (s *Server) lookupSession(id session.ID) (ringHolder, bool) {
	return s.orch.SessionRing(id)
}

// ringHolder is satisfied by *session.Session.
type ringHolder interface {
	Ring() *session.Ring
}
