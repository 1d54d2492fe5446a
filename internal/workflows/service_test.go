package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/anas-786ss/llm-quiz-solver/internal/secrets"
	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

func TestNewServiceDefaultsTaskQueue(t *testing.T) {
	service := NewService(mocks.NewClient(t), "")
	require.Equal(t, DefaultTaskQueue, service.taskQueue)
}

func TestStartSession(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)
	req := solver.Request{
		SessionID: "session-123",
		Email:     "student@example.com",
		Secret:    "s3cret",
		URL:       "https://quiz.example.com/1",
		Deadline:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	mockClient.On(
		"ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(opts client.StartWorkflowOptions) bool {
			return opts.ID == "session:session-123" && opts.TaskQueue == "quiz-test"
		}),
		mock.Anything,
		req,
	).Return(workflowRun, nil)

	require.NoError(t, NewService(mockClient, "quiz-test").StartSession(context.Background(), req))
}

func TestStartSessionError(t *testing.T) {
	mockClient := mocks.NewClient(t)
	expectedErr := errors.New("start failed")
	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return((*mocks.WorkflowRun)(nil), expectedErr)

	err := NewService(mockClient, "").StartSession(context.Background(), solver.Request{SessionID: "s"})
	require.ErrorIs(t, err, expectedErr)
}

func TestStartSessionSealsSecret(t *testing.T) {
	sealer, err := secrets.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)

	var started solver.Request
	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.AnythingOfType("solver.Request")).
		Run(func(args mock.Arguments) {
			started = args.Get(3).(solver.Request)
		}).
		Return(workflowRun, nil)

	req := solver.Request{SessionID: "s", Secret: "s3cret", URL: "https://quiz.example.com/1"}
	require.NoError(t, NewService(mockClient, "", WithSealer(sealer)).StartSession(context.Background(), req))

	require.True(t, secrets.IsSealed(started.Secret))
	require.NotContains(t, started.Secret, "s3cret")
	opened, err := sealer.Open(started.Secret)
	require.NoError(t, err)
	require.Equal(t, "s3cret", opened)
	require.Equal(t, "s3cret", req.Secret)
}
