package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/anas-786ss/llm-quiz-solver/internal/secrets"
	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

const DefaultTaskQueue = "quiz-sessions"

// Service starts quiz sessions as Temporal workflows.
type Service struct {
	client    client.Client
	taskQueue string
	sealer    *secrets.Sealer
}

type ServiceOption func(*Service)

// WithSealer seals the quiz secret before it is written to workflow history.
func WithSealer(sealer *secrets.Sealer) ServiceOption {
	return func(s *Service) {
		s.sealer = sealer
	}
}

func NewService(client client.Client, taskQueue string, opts ...ServiceOption) *Service {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	service := &Service{client: client, taskQueue: taskQueue}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *Service) StartSession(ctx context.Context, req solver.Request) error {
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(req.Secret)
		if err != nil {
			return fmt.Errorf("seal secret: %w", err)
		}
		req.Secret = sealed
	}
	options := client.StartWorkflowOptions{
		ID:        workflowID(req.SessionID),
		TaskQueue: s.taskQueue,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, SolveQuizWorkflow, req)
	return err
}

func workflowID(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}
