package sshapi

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/trybotster/botster-orchestrator/internal/config"
	"github.com/trybotster/botster-orchestrator/internal/orchestrator"
	"github.com/trybotster/botster-orchestrator/internal/session"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newTestOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	cfg := &config.Config{
		PoolCapacity:       4,
		IdleTTLSeconds:     60,
		SweepPeriodSeconds: 60,
		GracePeriodSeconds: 1,
		DebounceMillis:     20,
		RingCapacity:       4096,
	}
	o, err := orchestrator.New(cfg, nil)
	if err != nil {
		t.Fatalf("orchestrator.New() error = %v", err)
	}
	t.Cleanup(o.Shutdown)
	return o
}

func dialClient(t *testing.T, addr, user string) *ssh.Client {
	t.Helper()
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password("")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         2 * time.Second,
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		t.Fatalf("ssh.Dial() error = %v", err)
	}
	return client
}

func TestListSessionsWithNoSessionUser(t *testing.T) {
	orch := newTestOrchestrator(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	srv := New(ln, orch, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	client := dialClient(t, ln.Addr().String(), "anyone")
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer sess.Close()

	out, err := sess.Output("")
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if !strings.Contains(string(out), "no open sessions") {
		t.Errorf("output = %q, want mention of no open sessions", out)
	}
}

func TestAttachEchoesSessionOutput(t *testing.T) {
	orch := newTestOrchestrator(t)

	dir := t.TempDir()
	sess, err := orch.OpenSession(dir, "t", session.PresentationHints{})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	srv := New(ln, orch, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	client := dialClient(t, ln.Addr().String(), sessionUserPrefix+string(sess.ID()))
	defer client.Close()

	sshSess, err := client.NewSession()
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer sshSess.Close()

	if err := sshSess.RequestPty("xterm", 24, 80, ssh.TerminalModes{}); err != nil {
		t.Fatalf("RequestPty() error = %v", err)
	}

	stdin, err := sshSess.StdinPipe()
	if err != nil {
		t.Fatalf("StdinPipe() error = %v", err)
	}
	stdout, err := sshSess.StdoutPipe()
	if err != nil {
		t.Fatalf("StdoutPipe() error = %v", err)
	}
	if err := sshSess.Shell(); err != nil {
		t.Fatalf("Shell() error = %v", err)
	}

	marker := "sshapi-roundtrip-marker"
	if _, err := stdin.Write([]byte("echo " + marker + "\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	reader := bufio.NewReader(stdout)
	done := make(chan struct{})
	var seen bool
	go func() {
		defer close(done)
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			line, rerr := reader.ReadString('\n')
			if strings.Contains(line, marker) && !strings.Contains(line, "echo "+marker) {
				seen = true
				return
			}
			if rerr != nil {
				return
			}
		}
	}()
	<-done

	if !seen {
		t.Errorf("did not observe marker echoed back through sshapi")
	}
}
