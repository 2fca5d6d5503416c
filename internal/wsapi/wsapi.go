// Package wsapi exposes Orchestrator.SubscribeEvents() as a websocket stream
// of JSON-encoded DomainEvents — the external transport spec.md §6 leaves
// open for subscribe_events(). Connection/send-buffer shape follows the
// teacher's internal/relay TerminalOutputSender/BrowserState idiom: a
// bounded outbound channel per connection, non-blocking send, and an explicit
// connected/disconnected lifecycle — repurposed here from one shared browser
// relay to any number of independent event subscribers.
package wsapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trybotster/botster-orchestrator/internal/orchestrator"
)

// OutboundBuffer equals orchestrator.EventBufferSize: the Bus subscription
// channel each connection reads from is the only buffer between the Bus and
// the socket, and wsapi adds no queue of its own, so a slow websocket client
// can't apply backpressure to the Bus.
const OutboundBuffer = orchestrator.EventBufferSize

// eventFrame is the wire shape of one DomainEvent.
type eventFrame struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
	ProviderID string    `json:"provider_id,omitempty"`
	At         time.Time `json:"at"`
}

func toFrame(ev orchestrator.DomainEvent) eventFrame {
	return eventFrame{
		Type:       string(ev.Type),
		SessionID:  string(ev.SessionID),
		Generation: ev.Generation,
		ProviderID: ev.ProviderID,
		At:         ev.At,
	}
}

// Server serves the event stream over websocket.
type Server struct {
	orch     *orchestrator.Orchestrator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New constructs a Server bound to orch. Origin checking is left permissive
// (same posture as the teacher's relay, which trusted the Tailscale mesh
// boundary instead of origin headers); callers that need it can wrap the
// returned http.Handler with their own check.
func New(orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orch:   orch,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and streams DomainEvents to the client
// until it disconnects. Incoming frames are not a command channel here; the
// connection is read-only from the orchestrator's perspective, so any
// inbound message is simply discarded except for control/ping frames, the
// way the teacher's browser relay treated events it did not recognize.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("wsapi: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := newSubscription(s.orch, s.logger)
	defer sub.close()

	go sub.drainInbound(conn)
	sub.pump(conn)
}

// subscription binds one websocket connection to one Bus subscriber.
type subscription struct {
	events <-chan orchestrator.DomainEvent
	unsub  func()
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newSubscription(orch *orchestrator.Orchestrator, logger *slog.Logger) *subscription {
	events, unsub := orch.SubscribeEvents()
	return &subscription{events: events, unsub: unsub, logger: logger, done: make(chan struct{})}
}

func (s *subscription) close() {
	s.closeOnce.Do(func() {
		s.unsub()
		close(s.done)
	})
}

// drainInbound discards client frames but notices when the connection drops,
// the only way gorilla/websocket surfaces a client-initiated close on a
// read-only connection.
func (s *subscription) drainInbound(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.close()
			return
		}
	}
}

// pump writes every event this subscription receives until the connection
// closes. A write error ends the connection; the Bus itself already applies
// drop-oldest backpressure on its side so pump never blocks the publisher.
func (s *subscription) pump(conn *websocket.Conn) {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			data, err := json.Marshal(toFrame(ev))
			if err != nil {
				s.logger.Warn("wsapi: marshal event failed", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		}
	}
}
