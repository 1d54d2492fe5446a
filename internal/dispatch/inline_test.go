package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

type runnerFunc func(ctx context.Context, req solver.Request) solver.Outcome

func (f runnerFunc) Run(ctx context.Context, req solver.Request) solver.Outcome {
	return f(ctx, req)
}

func TestStartSessionDetachesFromCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var observedErr error
	d := NewInline(runnerFunc(func(ctx context.Context, req solver.Request) solver.Outcome {
		close(started)
		<-release
		observedErr = ctx.Err()
		return solver.Outcome{SessionID: req.SessionID, Status: solver.StatusDone}
	}), time.Second)

	outcomes := make(chan solver.Outcome, 1)
	d.OnDone(func(outcome solver.Outcome) { outcomes <- outcome })

	reqCtx, cancelReq := context.WithCancel(context.Background())
	require.NoError(t, d.StartSession(reqCtx, solver.Request{SessionID: "s-1", Deadline: time.Now().Add(time.Minute)}))
	cancelReq()
	<-started
	require.Equal(t, 1, d.Running())
	close(release)

	outcome := <-outcomes
	require.Equal(t, "s-1", outcome.SessionID)
	require.NoError(t, observedErr)
	require.NoError(t, d.Shutdown(context.Background()))
	require.Zero(t, d.Running())
}

func TestSessionContextEndsAfterDeadlinePlusGrace(t *testing.T) {
	done := make(chan time.Time, 1)
	d := NewInline(runnerFunc(func(ctx context.Context, req solver.Request) solver.Outcome {
		deadline, _ := ctx.Deadline()
		done <- deadline
		return solver.Outcome{}
	}), 5*time.Second)

	sessionDeadline := time.Now().Add(time.Minute)
	require.NoError(t, d.StartSession(context.Background(), solver.Request{Deadline: sessionDeadline}))
	require.WithinDuration(t, sessionDeadline.Add(5*time.Second), <-done, time.Millisecond)
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestShutdownCancelsRunningSessions(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	d := NewInline(runnerFunc(func(ctx context.Context, req solver.Request) solver.Outcome {
		wg.Done()
		<-ctx.Done()
		return solver.Outcome{Status: solver.StatusFailed}
	}), 0)

	require.NoError(t, d.StartSession(context.Background(), solver.Request{SessionID: "a"}))
	require.NoError(t, d.StartSession(context.Background(), solver.Request{SessionID: "b"}))
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
	require.Zero(t, d.Running())
	require.ErrorIs(t, d.StartSession(context.Background(), solver.Request{}), ErrShuttingDown)
}
