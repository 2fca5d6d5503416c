package wsapi

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trybotster/botster-orchestrator/internal/config"
	"github.com/trybotster/botster-orchestrator/internal/orchestrator"
	"github.com/trybotster/botster-orchestrator/internal/session"
)

func newTestOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	cfg := &config.Config{
		PoolCapacity:       4,
		IdleTTLSeconds:     60,
		SweepPeriodSeconds: 60,
		GracePeriodSeconds: 1,
		DebounceMillis:     20,
		RingCapacity:       64,
	}
	o, err := orchestrator.New(cfg, nil)
	if err != nil {
		t.Fatalf("orchestrator.New() error = %v", err)
	}
	t.Cleanup(o.Shutdown)
	return o
}

func TestServeHTTPStreamsSessionOpenedEvent(t *testing.T) {
	orch := newTestOrchestrator(t)
	srv := New(orch, nil)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	dir := t.TempDir()
	sess, err := orch.OpenSession(dir, "t", session.PresentationHints{})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame eventFrame
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if frame.Type == "session_opened" {
			break
		}
	}

	if frame.SessionID != string(sess.ID()) {
		t.Errorf("SessionID = %q, want %q", frame.SessionID, sess.ID())
	}
}
