package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/anas-786ss/llm-quiz-solver/internal/config"
)

func TestNewServer(t *testing.T) {
	server := NewServer(&MockJournal{}, &MockBroker{}, &MockDispatcher{}, config.Config{})
	require.NotNil(t, server)
	require.NotNil(t, server.Router())
}

func TestRootAndHealth(t *testing.T) {
	server := newTestServer(t, &MockJournal{}, &MockBroker{}, nil, config.Config{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	var banner map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&banner))
	_ = resp.Body.Close()
	require.Equal(t, "running", banner["status"])

	resp, err = http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "ok", payload["status"])
}

func TestReady(t *testing.T) {
	t.Run("ready when dependencies healthy", func(t *testing.T) {
		journalMock := &MockJournal{}
		journalMock.On("Ping", mock.Anything).Return(nil).Once()

		toolRunner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/ready", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer toolRunner.Close()

		server := newTestServer(t, journalMock, &MockBroker{}, nil, config.Config{ToolRunnerURL: toolRunner.URL})
		defer server.Close()

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload readinessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "ok", payload.Status)
		require.Equal(t, "ok", payload.Subsystems["journal"].Status)
		require.Equal(t, "ok", payload.Subsystems["tool_runner"].Status)
		journalMock.AssertExpectations(t)
	})

	t.Run("degraded when journal unavailable", func(t *testing.T) {
		journalMock := &MockJournal{}
		journalMock.On("Ping", mock.Anything).Return(errors.New("db unavailable")).Once()

		server := newTestServer(t, journalMock, &MockBroker{}, nil, config.Config{})
		defer server.Close()

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var payload readinessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "degraded", payload.Status)
		require.Equal(t, "error", payload.Subsystems["journal"].Status)
		require.Equal(t, "skipped", payload.Subsystems["tool_runner"].Status)
	})

	t.Run("falls back to /health when /ready missing", func(t *testing.T) {
		journalMock := &MockJournal{}
		journalMock.On("Ping", mock.Anything).Return(nil).Once()

		requested := make([]string, 0, 2)
		toolRunner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requested = append(requested, r.URL.Path)
			if r.URL.Path == "/ready" {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer toolRunner.Close()

		server := newTestServer(t, journalMock, &MockBroker{}, nil, config.Config{ToolRunnerURL: toolRunner.URL})
		defer server.Close()

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Equal(t, []string{"/ready", "/health"}, requested)
	})
}

func TestCORSMiddleware(t *testing.T) {
	server := newTestServer(t, &MockJournal{}, &MockBroker{}, nil, config.Config{})
	defer server.Close()

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/quiz", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestShouldSuppressRequestLog(t *testing.T) {
	require.True(t, shouldSuppressRequestLog(http.MethodGet, "/health"))
	require.True(t, shouldSuppressRequestLog(http.MethodGet, "/sessions/s-1/stream"))
	require.True(t, shouldSuppressRequestLog(http.MethodOptions, "/quiz"))
	require.False(t, shouldSuppressRequestLog(http.MethodPost, "/quiz"))
}

func TestStart(t *testing.T) {
	server := NewServer(&MockJournal{}, &MockBroker{}, nil, config.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	result := make(chan error, 1)
	go func() {
		result <- server.Start(ctx, addr)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-result, http.ErrServerClosed)
}
