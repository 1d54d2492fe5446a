package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anas-786ss/llm-quiz-solver/internal/config"
	"github.com/anas-786ss/llm-quiz-solver/internal/llm"
	"github.com/anas-786ss/llm-quiz-solver/internal/notify"
	"github.com/anas-786ss/llm-quiz-solver/internal/render"
	"github.com/anas-786ss/llm-quiz-solver/internal/secrets"
	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
	"github.com/anas-786ss/llm-quiz-solver/internal/store"
	"github.com/anas-786ss/llm-quiz-solver/internal/store/memory"
	"github.com/anas-786ss/llm-quiz-solver/internal/store/postgres"
	redisstore "github.com/anas-786ss/llm-quiz-solver/internal/store/redis"
	"github.com/anas-786ss/llm-quiz-solver/internal/workers"
)

var (
	newPostgres = func(conn string) (store.Journal, error) {
		return postgres.New(conn)
	}
	newRedis = func(url string) (store.Journal, error) {
		return redisstore.New(url, 0)
	}
)

// OpenJournal returns the session journal selected by STORE_BACKEND.
func OpenJournal(cfg config.Config) (store.Journal, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return memory.New(), nil
	case "postgres":
		return newPostgres(cfg.PostgresURL)
	case "redis":
		return newRedis(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

// NewSealer returns nil when SESSION_SEAL_KEY is unset.
func NewSealer(cfg config.Config) (*secrets.Sealer, error) {
	if strings.TrimSpace(cfg.SessionSealKey) == "" {
		return nil, nil
	}
	key, err := secrets.ParseKey(cfg.SessionSealKey)
	if err != nil {
		return nil, err
	}
	return secrets.NewSealer(key)
}

func EngineOptions(cfg config.Config) solver.Options {
	return solver.Options{
		Budget:            cfg.GlobalTimeout,
		NextRenderTimeout: cfg.NextRenderTimeout,
		SubmitTimeout:     cfg.SubmitTimeout,
		RetryDelay:        cfg.RetryDelay,
		MaxAttempts:       cfg.MaxAttempts,
		SafetyMargin:      cfg.SafetyMargin,
	}
}

func NewRenderer(cfg config.Config, client *http.Client) solver.Renderer {
	if strings.TrimSpace(cfg.ToolRunnerURL) != "" {
		return render.NewToolRunnerRenderer(render.ToolRunnerConfig{
			BaseURL:       cfg.ToolRunnerURL,
			MaxConcurrent: cfg.MaxConcurrentRenders,
		})
	}
	return render.NewStaticRenderer(client)
}

// NewEngine assembles the solver with every worker, the configured
// renderer and the optional journal recorder and webhook notifier.
func NewEngine(cfg config.Config, recorder solver.Recorder) (*solver.Engine, error) {
	provider, err := llm.NewProvider(llm.Config{
		Mode:             cfg.LLMMode,
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		BaseURL:          cfg.LLMBaseURL,
		AIPipeToken:      cfg.AIPipeToken,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	registry := workers.NewRegistry(workers.Deps{
		Downloader: workers.NewDownloader(httpClient, cfg.DownloadMaxBytes),
		HTTPClient: httpClient,
		LLM:        provider,
	})
	router := solver.NewRouter(registry, solver.WithCommandTarget(cfg.CommandDefaultTarget))

	options := []solver.EngineOption{
		solver.WithRecorder(recorder),
		solver.WithPlaceholderPolicy(solver.NewHostPlaceholderPolicy(cfg.PlaceholderHosts, cfg.PlaceholderAnswer)),
	}
	if notifier := notify.NewDiscord(cfg.DiscordWebhookURL, nil); notifier != nil {
		options = append(options, solver.WithNotifier(notifier))
	}
	return solver.NewEngine(
		NewRenderer(cfg, &http.Client{}),
		router,
		solver.NewHTTPSubmitter(cfg.SubmitTimeout),
		EngineOptions(cfg),
		options...,
	), nil
}
