// Package provider implements the process-exec transport the executor (C10)
// uses to invoke a tool provider's invocation command template, per the
// request/response contract in spec.md §6.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/anmitsu/go-shlex"
)

// Request is the JSON-shaped invocation request sent on the provider
// process's stdin (spec.md §6).
type Request struct {
	Action         string           `json:"action"`
	WorkingDir     string           `json:"working_dir"`
	ProjectContext ContextPayload   `json:"project_context"`
	Target         *string          `json:"target"`
	Parameters     map[string]any   `json:"parameters"`
	Files          []string         `json:"files"`
}

// ContextPayload is the project_context object shape from spec.md §6.
type ContextPayload struct {
	ProjectType           string   `json:"project_type"`
	PrimaryLanguage       string   `json:"primary_language"`
	Frameworks            []string `json:"frameworks"`
	DependencyFingerprint string   `json:"dependency_fingerprint"`
}

// Result is the JSON-shaped response read from the provider process's
// stdout. Unknown fields are ignored by json.Unmarshal already; ours only
// names the fields spec.md §6 specifies.
type Result struct {
	Summary       string         `json:"summary"`
	Details       string         `json:"details"`
	Suggestions   []string       `json:"suggestions"`
	FilesAffected []string       `json:"files_affected"`
	Metrics       map[string]any `json:"metrics"`
}

// ErrKind enumerates invocation failure modes (spec.md §6, §7 error table).
type ErrKind int

const (
	ErrSpawn ErrKind = iota
	ErrTimeout
	ErrNonZeroExit
	ErrUnparseable
)

// Error wraps an invocation failure with its kind.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrTimeout:
		return fmt.Sprintf("provider invocation timed out: %v", e.Err)
	case ErrNonZeroExit:
		return fmt.Sprintf("provider exited non-zero: %v", e.Err)
	case ErrUnparseable:
		return fmt.Sprintf("provider returned unparseable output: %v", e.Err)
	default:
		return fmt.Sprintf("provider invocation failed to start: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Invoker runs a provider's invocation command template as a child process,
// feeding it the JSON request on stdin and parsing the JSON response from
// stdout (spec.md §6 "provider invocation contract"; providers are opaque
// black boxes).
type Invoker struct{}

// NewInvoker constructs an Invoker. It holds no state; every call is an
// independent process-exec round trip.
func NewInvoker() *Invoker { return &Invoker{} }

// Invoke runs invocation (a shell-style command-line template, e.g.
// "node ./provider.js --serve") against req, honoring ctx's deadline for
// T_ACTION enforcement (spec.md §4.9). Cancelling ctx terminates the
// provider's process tree.
func (inv *Invoker) Invoke(ctx context.Context, invocation string, req Request) (*Result, error) {
	argv, err := shlex.Split(invocation, true)
	if err != nil || len(argv) == 0 {
		return nil, &Error{Kind: ErrSpawn, Err: fmt.Errorf("invalid invocation template %q: %w", invocation, err)}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: ErrSpawn, Err: err}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) }
	cmd.Dir = req.WorkingDir
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, &Error{Kind: ErrTimeout, Err: ctx.Err()}
	}
	if runErr != nil {
		return nil, &Error{Kind: ErrNonZeroExit, Err: fmt.Errorf("%w: %s", runErr, stderr.String())}
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, &Error{Kind: ErrUnparseable, Err: err}
	}
	return &result, nil
}

// DefaultTimeout is T_ACTION from spec.md §4.9.
const DefaultTimeout = 30 * time.Second

// TimeoutForAction returns the per-action T_ACTION override (120s for
// run_tests, 60s for generate_documentation, DefaultTimeout otherwise).
func TimeoutForAction(action string) time.Duration {
	switch action {
	case "run_tests":
		return 120 * time.Second
	case "generate_documentation":
		return 60 * time.Second
	default:
		return DefaultTimeout
	}
}
