package workflows

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/anas-786ss/llm-quiz-solver/internal/secrets"
	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

const (
	SolveQuizActivityName = "SolveQuiz"

	// activityGrace covers the final journal and notification writes after
	// the session deadline.
	activityGrace      = 30 * time.Second
	minActivityTimeout = time.Minute
)

// SolveQuizWorkflow runs a whole session as one activity. The session keeps
// its own retry and deadline logic, so the activity is attempted once.
func SolveQuizWorkflow(ctx workflow.Context, req solver.Request) (solver.Outcome, error) {
	timeout := minActivityTimeout
	if !req.Deadline.IsZero() {
		if remaining := req.Deadline.Sub(workflow.Now(ctx)) + activityGrace; remaining > timeout {
			timeout = remaining
		}
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	logger := workflow.GetLogger(ctx)
	var outcome solver.Outcome
	if err := workflow.ExecuteActivity(ctx, SolveQuizActivityName, req).Get(ctx, &outcome); err != nil {
		logger.Error("solve activity failed", "session_id", req.SessionID, "error", err)
		return solver.Outcome{
			SessionID: req.SessionID,
			Status:    solver.StatusFailed,
			Reason:    "activity: " + err.Error(),
			StartURL:  req.URL,
			FinalURL:  req.URL,
		}, nil
	}
	logger.Info("session finished", "session_id", outcome.SessionID, "status", string(outcome.Status))
	return outcome, nil
}

type SessionRunner interface {
	Run(ctx context.Context, req solver.Request) solver.Outcome
}

var errNoSealKey = errors.New("secret is sealed but no SESSION_SEAL_KEY is configured")

type SessionActivities struct {
	runner SessionRunner
	sealer *secrets.Sealer
}

type ActivitiesOption func(*SessionActivities)

// WithOpener lets the activity open secrets sealed by Service.
func WithOpener(sealer *secrets.Sealer) ActivitiesOption {
	return func(a *SessionActivities) {
		a.sealer = sealer
	}
}

func NewSessionActivities(runner SessionRunner, opts ...ActivitiesOption) *SessionActivities {
	activities := &SessionActivities{runner: runner}
	for _, opt := range opts {
		opt(activities)
	}
	return activities
}

func (a *SessionActivities) SolveQuiz(ctx context.Context, req solver.Request) (solver.Outcome, error) {
	if secrets.IsSealed(req.Secret) {
		if a.sealer == nil {
			return solver.Outcome{}, temporal.NewNonRetryableApplicationError(errNoSealKey.Error(), "SealedSecret", errNoSealKey)
		}
		opened, err := a.sealer.Open(req.Secret)
		if err != nil {
			return solver.Outcome{}, temporal.NewNonRetryableApplicationError("open sealed secret", "SealedSecret", err)
		}
		req.Secret = opened
	}
	ctx = solver.ContextWithLogger(ctx, activity.GetLogger(ctx))
	return a.runner.Run(ctx, req), nil
}
