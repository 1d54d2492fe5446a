package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/anas-786ss/llm-quiz-solver/internal/api"
	"github.com/anas-786ss/llm-quiz-solver/internal/app"
	"github.com/anas-786ss/llm-quiz-solver/internal/config"
	"github.com/anas-786ss/llm-quiz-solver/internal/dispatch"
	"github.com/anas-786ss/llm-quiz-solver/internal/events"
	"github.com/anas-786ss/llm-quiz-solver/internal/journal"
	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
	"github.com/anas-786ss/llm-quiz-solver/internal/store"
	"github.com/anas-786ss/llm-quiz-solver/internal/workflows"
)

const shutdownTimeout = 30 * time.Second

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig         = config.Load
	newBroker          = events.NewBroker
	openJournal        = app.OpenJournal
	newEngine          = app.NewEngine
	dialTemporal       = client.Dial
	newWorkflowService = workflows.NewService
	newSealer          = app.NewSealer
	newServer          = func(journal store.Journal, broker *events.Broker, dispatcher api.Dispatcher, cfg config.Config) server {
		return api.NewServer(journal, broker, dispatcher, cfg)
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := newBroker()
	sessionJournal, err := openJournal(cfg)
	if err != nil {
		return err
	}

	var dispatcher api.Dispatcher
	switch cfg.DispatchMode {
	case "temporal":
		workflowClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			return err
		}
		if workflowClient != nil {
			defer workflowClient.Close()
		}
		sealer, err := newSealer(cfg)
		if err != nil {
			return err
		}
		var opts []workflows.ServiceOption
		if sealer != nil {
			opts = append(opts, workflows.WithSealer(sealer))
		}
		dispatcher = newWorkflowService(workflowClient, cfg.TemporalTaskQueue, opts...)
	case "", "inline":
		engine, err := newEngine(cfg, journal.NewRecorder(sessionJournal, broker, "engine"))
		if err != nil {
			return err
		}
		inline := dispatch.NewInline(engine, dispatch.DefaultGrace)
		inline.OnDone(reportStreams(broker))
		defer drain(inline)
		dispatcher = inline
	default:
		return fmt.Errorf("unsupported dispatch mode %q", cfg.DispatchMode)
	}

	srv := newServer(sessionJournal, broker, dispatcher, cfg)

	addr := fmt.Sprintf(":%s", cfg.SolverPort)
	log.Printf("Quiz solver listening on %s dispatch=%s store=%s", addr, cfg.DispatchMode, cfg.StoreBackend)
	if err := srv.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// reportStreams logs finished sessions that still have clients on their
// event stream.
func reportStreams(broker *events.Broker) func(solver.Outcome) {
	return func(outcome solver.Outcome) {
		if n := broker.Subscribers(outcome.SessionID); n > 0 {
			log.Printf("session finished with %d stream subscribers session_id=%s status=%s", n, outcome.SessionID, outcome.Status)
		}
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
	Running() int
}

func drain(d shutdowner) {
	if running := d.Running(); running > 0 {
		log.Printf("waiting for %d running sessions", running)
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		log.Printf("warning: sessions cancelled at shutdown: %v", err)
	}
}
