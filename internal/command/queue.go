package command

import (
	"context"
	"log/slog"

	"github.com/trybotster/botster-orchestrator/internal/session"
)

// QMax is the per-session invocation queue depth from spec.md §5.
const QMax = 16

type job struct {
	ctx      context.Context
	sess     *session.Session
	intent   ParsedIntent
	resultCh chan CommandResponse
}

// Queue is a per-session FIFO of pending command invocations, draining on a
// single worker goroutine so `ae` commands on one session execute in
// submission order while other sessions' queues run concurrently (spec.md
// §5 ordering guarantees). Submit never blocks: a full queue rejects with
// ErrBusy (spec.md §5 backpressure).
type Queue struct {
	exec   *Executor
	ch     chan job
	stop   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// NewQueue starts a worker goroutine bound to exec. Callers must Close it
// when the owning session closes.
func NewQueue(exec *Executor, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		exec:   exec,
		ch:     make(chan job, QMax),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			return
		case j := <-q.ch:
			j.resultCh <- q.exec.Execute(j.ctx, j.sess, j.intent)
		}
	}
}

// Submit enqueues intent for sess and returns a channel that receives
// exactly one CommandResponse once the invocation completes. Returns
// ErrBusy immediately if the queue is at QMax (spec.md §5).
func (q *Queue) Submit(ctx context.Context, sess *session.Session, intent ParsedIntent) (<-chan CommandResponse, error) {
	resultCh := make(chan CommandResponse, 1)
	select {
	case q.ch <- job{ctx: ctx, sess: sess, intent: intent, resultCh: resultCh}:
		return resultCh, nil
	default:
		return nil, ErrBusy
	}
}

// Close stops accepting new work and waits for any in-flight invocation to
// finish (cancellation of ctx, if the caller wired one, is what actually
// terminates a hung provider — Close itself does not cancel in-flight work).
func (q *Queue) Close() {
	select {
	case <-q.stop:
	default:
		close(q.stop)
	}
	<-q.done
}
