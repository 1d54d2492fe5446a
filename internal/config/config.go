package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SolverPort           string
	Secret               string
	GlobalTimeout        time.Duration
	NextRenderTimeout    time.Duration
	SubmitTimeout        time.Duration
	RetryDelay           time.Duration
	MaxAttempts          int
	SafetyMargin         time.Duration
	DownloadMaxBytes     int64
	ToolRunnerURL        string
	MaxConcurrentRenders int
	LLMMode              string
	LLMProvider          string
	LLMModel             string
	LLMBaseURL           string
	AIPipeToken          string
	OpenAIAPIKey         string
	OpenRouterAPIKey     string
	StoreBackend         string
	PostgresURL          string
	RedisURL             string
	DispatchMode         string
	TemporalAddress      string
	TemporalTaskQueue    string
	SessionSealKey       string
	DiscordWebhookURL    string
	PlaceholderHosts     []string
	PlaceholderAnswer    string
	CommandDefaultTarget string
}

// Load reads configuration from the environment. When CONFIG_FILE points at a
// YAML document, its top-level keys (named like the environment variables)
// provide values for anything the environment leaves unset.
func Load() (Config, error) {
	overlay := map[string]string{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		parsed, err := readOverlay(path)
		if err != nil {
			return Config{}, err
		}
		overlay = parsed
	}
	return build(source{overlay: overlay}), nil
}

func build(src source) Config {
	postgresURL := src.getEnv("POSTGRES_URL", "")
	if postgresURL == "" {
		postgresURL = src.buildPostgresURL()
	}
	return Config{
		SolverPort:           src.getEnv("SOLVER_PORT", "8080"),
		Secret:               src.getEnv("SECRET", ""),
		GlobalTimeout:        src.getEnvSeconds("GLOBAL_TIMEOUT", 170),
		NextRenderTimeout:    src.getEnvSeconds("NEXT_RENDER_TIMEOUT", 40),
		SubmitTimeout:        src.getEnvSeconds("SUBMIT_TIMEOUT", 15),
		RetryDelay:           time.Duration(src.getEnvInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,
		MaxAttempts:          src.getEnvInt("MAX_ATTEMPTS", 3),
		SafetyMargin:         src.getEnvSeconds("SAFETY_MARGIN", 10),
		DownloadMaxBytes:     int64(src.getEnvInt("DOWNLOAD_MAX_BYTES", 52428800)),
		ToolRunnerURL:        src.getEnv("TOOL_RUNNER_URL", ""),
		MaxConcurrentRenders: src.getEnvInt("MAX_CONCURRENT_RENDERS", 4),
		LLMMode:              src.getEnv("LLM_MODE", "remote"),
		LLMProvider:          src.getEnv("LLM_PROVIDER", "aipipe"),
		LLMModel:             src.getEnv("LLM_MODEL", "openai/gpt-4o-mini"),
		LLMBaseURL:           src.getEnv("LLM_BASE_URL", ""),
		AIPipeToken:          src.getEnv("AIPIPE_TOKEN", ""),
		OpenAIAPIKey:         src.getEnv("OPENAI_API_KEY", ""),
		OpenRouterAPIKey:     src.getEnv("OPENROUTER_API_KEY", ""),
		StoreBackend:         strings.ToLower(src.getEnv("STORE_BACKEND", "memory")),
		PostgresURL:          postgresURL,
		RedisURL:             src.getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DispatchMode:         strings.ToLower(src.getEnv("DISPATCH_MODE", "inline")),
		TemporalAddress:      src.getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue:    src.getEnv("TEMPORAL_TASK_QUEUE", "quiz-sessions"),
		SessionSealKey:       src.getEnv("SESSION_SEAL_KEY", ""),
		DiscordWebhookURL:    src.getEnv("DISCORD_WEBHOOK_URL", ""),
		PlaceholderHosts:     src.getEnvList("PLACEHOLDER_HOSTS", []string{"tds-llm-analysis.s-anand.net"}),
		PlaceholderAnswer:    src.getEnv("PLACEHOLDER_ANSWER", "hello"),
		CommandDefaultTarget: src.getEnv("COMMAND_DEFAULT_TARGET", ""),
	}
}

func readOverlay(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for key, value := range raw {
		if value == nil {
			continue
		}
		switch typed := value.(type) {
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			values[strings.ToUpper(key)] = strings.Join(parts, ",")
		default:
			values[strings.ToUpper(key)] = fmt.Sprint(typed)
		}
	}
	return values, nil
}

type source struct {
	overlay map[string]string
}

func (s source) getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value := s.overlay[key]; value != "" {
		return value
	}
	return fallback
}

func (s source) getEnvInt(key string, fallback int) int {
	if value := s.getEnv(key, ""); value != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func (s source) getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(s.getEnvInt(key, fallback)) * time.Second
}

func (s source) getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		value, ok = s.overlay[key]
	}
	if !ok {
		return fallback
	}
	items := []string{}
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func (s source) buildPostgresURL() string {
	user := s.getEnv("POSTGRES_USER", "quiz")
	password := s.getEnv("POSTGRES_PASSWORD", "quiz")
	host := s.getEnv("POSTGRES_HOST", "localhost")
	port := s.getEnv("POSTGRES_PORT", "5432")
	database := s.getEnv("POSTGRES_DB", "quiz")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}
