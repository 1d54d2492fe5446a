package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

// DefaultGrace is how long a session may outlive its deadline while it
// records its final state.
const DefaultGrace = 15 * time.Second

var ErrShuttingDown = errors.New("dispatcher is shutting down")

type Runner interface {
	Run(ctx context.Context, req solver.Request) solver.Outcome
}

// Inline runs each session on its own goroutine inside the serving
// process. Sessions are detached from the request that started them and
// are cancelled by their own deadline or by Shutdown.
type Inline struct {
	runner Runner
	grace  time.Duration

	mu      sync.Mutex
	closed  bool
	base    context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	onDone  func(solver.Outcome)
	running int
}

func NewInline(runner Runner, grace time.Duration) *Inline {
	if grace <= 0 {
		grace = DefaultGrace
	}
	base, cancel := context.WithCancel(context.Background())
	return &Inline{runner: runner, grace: grace, base: base, cancel: cancel}
}

// OnDone registers a callback invoked with every finished session's outcome.
func (d *Inline) OnDone(fn func(solver.Outcome)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDone = fn
}

func (d *Inline) StartSession(_ context.Context, req solver.Request) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrShuttingDown
	}
	d.wg.Add(1)
	d.running++
	onDone := d.onDone
	d.mu.Unlock()

	ctx, cancel := d.base, context.CancelFunc(func() {})
	if !req.Deadline.IsZero() {
		ctx, cancel = context.WithDeadline(d.base, req.Deadline.Add(d.grace))
	}
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			d.mu.Lock()
			d.running--
			d.mu.Unlock()
		}()
		outcome := d.runner.Run(ctx, req)
		log.Printf("session finished session_id=%s status=%s submissions=%d reason=%q", outcome.SessionID, outcome.Status, outcome.Submissions, outcome.Reason)
		if onDone != nil {
			onDone(outcome)
		}
	}()
	return nil
}

// Running reports the number of sessions currently in flight.
func (d *Inline) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Shutdown stops accepting sessions and waits for running ones to finish.
// When ctx expires first, running sessions are cancelled and waited for.
func (d *Inline) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
