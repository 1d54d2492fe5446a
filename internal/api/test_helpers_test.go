package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/anas-786ss/llm-quiz-solver/internal/config"
	"github.com/anas-786ss/llm-quiz-solver/internal/events"
	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
	"github.com/anas-786ss/llm-quiz-solver/internal/store"
)

type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) AppendEvent(ctx context.Context, event store.SessionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockJournal) ListEvents(ctx context.Context, sessionID string, afterSeq int64) ([]store.SessionEvent, error) {
	args := m.Called(ctx, sessionID, afterSeq)
	var result []store.SessionEvent
	if value := args.Get(0); value != nil {
		result = value.([]store.SessionEvent)
	}
	return result, args.Error(1)
}

func (m *MockJournal) NextSeq(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJournal) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Publish(event events.SessionEvent) {
	m.Called(event)
}

func (m *MockBroker) Subscribe(ctx context.Context, sessionID string) <-chan events.SessionEvent {
	args := m.Called(ctx, sessionID)
	if value := args.Get(0); value != nil {
		if ch, ok := value.(chan events.SessionEvent); ok {
			return ch
		}
		if ch, ok := value.(<-chan events.SessionEvent); ok {
			return ch
		}
	}
	return nil
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) StartSession(ctx context.Context, req solver.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func newTestServer(t *testing.T, journal store.Journal, broker Broker, dispatcher Dispatcher, cfg config.Config) *httptest.Server {
	t.Helper()
	server := NewServer(journal, broker, dispatcher, cfg)
	return httptest.NewServer(server.Router())
}
