package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/anas-786ss/llm-quiz-solver/internal/config"
	"github.com/anas-786ss/llm-quiz-solver/internal/events"
	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
	"github.com/anas-786ss/llm-quiz-solver/internal/store"
)

type Server struct {
	journal    store.Journal
	broker     Broker
	dispatcher Dispatcher
	cfg        config.Config
	httpClient *http.Client
	now        func() time.Time
}

type Broker interface {
	Publish(event events.SessionEvent)
	Subscribe(ctx context.Context, sessionID string) <-chan events.SessionEvent
}

// Dispatcher starts a session in the background. It must not block on the
// session itself.
type Dispatcher interface {
	StartSession(ctx context.Context, req solver.Request) error
}

func NewServer(journal store.Journal, broker Broker, dispatcher Dispatcher, cfg config.Config) *Server {
	return &Server{
		journal:    journal,
		broker:     broker,
		dispatcher: dispatcher,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Post("/quiz", s.acceptQuiz)
	r.Get("/sessions/{id}/events", s.listEvents)
	r.Get("/sessions/{id}/stream", s.streamEvents)

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if method == http.MethodGet && (cleanPath == "/health" || cleanPath == "/ready") {
		return true
	}
	if method == http.MethodGet && strings.HasPrefix(cleanPath, "/sessions/") {
		return true
	}
	return method == http.MethodOptions
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, map[string]string{"status": "running", "message": "LLM Quiz Solver API online"}, http.StatusOK)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	if err := s.journal.Ping(ctx); err != nil {
		subsystems["journal"] = subsystemStatus{Status: "error", Error: err.Error()}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["journal"] = subsystemStatus{Status: "ok"}
	}

	toolRunnerURL := strings.TrimSpace(s.cfg.ToolRunnerURL)
	if toolRunnerURL == "" {
		subsystems["tool_runner"] = subsystemStatus{Status: "skipped"}
	} else {
		baseURL := strings.TrimRight(toolRunnerURL, "/")
		resp, err := s.probeHTTP(ctx, baseURL+"/ready")
		if err == nil && resp != nil && resp.StatusCode == http.StatusNotFound {
			resp, err = s.probeHTTP(ctx, baseURL+"/health")
		}
		if err != nil {
			subsystems["tool_runner"] = subsystemStatus{Status: "error", Error: err.Error()}
			overall = http.StatusServiceUnavailable
		} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			subsystems["tool_runner"] = subsystemStatus{Status: "error", Error: fmt.Sprintf("health status %d", resp.StatusCode)}
			overall = http.StatusServiceUnavailable
		} else {
			subsystems["tool_runner"] = subsystemStatus{Status: "ok"}
		}
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func (s *Server) probeHTTP(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, resp.Body.Close()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	return server.ListenAndServe()
}
