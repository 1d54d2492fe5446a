package main

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/anas-786ss/llm-quiz-solver/internal/app"
	"github.com/anas-786ss/llm-quiz-solver/internal/config"
	"github.com/anas-786ss/llm-quiz-solver/internal/journal"
	"github.com/anas-786ss/llm-quiz-solver/internal/workflows"
)

var (
	loadConfig      = config.Load
	dialTemporal    = client.Dial
	openJournal     = app.OpenJournal
	newEngine       = app.NewEngine
	newSealer       = app.NewSealer
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
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
	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	sessionJournal, err := openJournal(cfg)
	if err != nil {
		return err
	}

	// Live subscribers only exist inside the API process; the worker writes
	// the journal and leaves streaming to replay.
	engine, err := newEngine(cfg, journal.NewRecorder(sessionJournal, nil, "worker"))
	if err != nil {
		return err
	}

	sealer, err := newSealer(cfg)
	if err != nil {
		return err
	}
	var opts []workflows.ActivitiesOption
	if sealer != nil {
		opts = append(opts, workflows.WithOpener(sealer))
	}

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SolveQuizWorkflow)
	w.RegisterActivity(workflows.NewSessionActivities(engine, opts...))

	log.Printf("Quiz worker started task_queue=%s store=%s", cfg.TemporalTaskQueue, cfg.StoreBackend)
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}
