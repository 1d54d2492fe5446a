package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const defaultAIPipeBaseURL = "https://aipipe.org/openrouter/v1"

type AIPipeConfig struct {
	Token   string
	Model   string
	BaseURL string
}

// AIPipeProvider calls the OpenRouter responses API through the AI Pipe
// proxy. The proxy has served several response shapes over time, so the
// answer text is located leniently.
type AIPipeProvider struct {
	token   string
	model   string
	baseURL string
	client  *http.Client
}

func NewAIPipeProvider(cfg AIPipeConfig) *AIPipeProvider {
	return &AIPipeProvider{
		token:   cfg.Token,
		model:   defaultIfEmpty(cfg.Model, "openai/gpt-4o-mini"),
		baseURL: strings.TrimRight(defaultIfEmpty(cfg.BaseURL, defaultAIPipeBaseURL), "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *AIPipeProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	if p.token == "" {
		return "", errors.New("missing API key for remote provider")
	}
	var parsed map[string]any
	err := postJSON(ctx, p.client, p.baseURL+"/responses", p.token, map[string]any{
		"model": p.model,
		"input": flattenMessages(messages),
	}, &parsed)
	if err != nil {
		return "", err
	}
	text := extractResponseText(parsed)
	if text == "" {
		return "", errors.New("LLM response was empty")
	}
	return text, nil
}

func flattenMessages(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, message := range messages {
		if content := strings.TrimSpace(message.Content); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func extractResponseText(resp map[string]any) string {
	if resp == nil {
		return ""
	}
	for _, key := range []string{"output_text", "output", "text", "content"} {
		if text := stringValue(resp[key]); text != "" {
			return text
		}
	}
	if output, ok := resp["output"].([]any); ok && len(output) > 0 {
		if message, ok := output[0].(map[string]any); ok {
			parts, _ := message["content"].([]any)
			if len(parts) == 0 {
				parts, _ = message["parts"].([]any)
			}
			for _, part := range parts {
				entry, ok := part.(map[string]any)
				if !ok {
					continue
				}
				for _, key := range []string{"text", "output_text", "content"} {
					if text := stringValue(entry[key]); text != "" {
						return text
					}
				}
			}
		}
	}
	if data, ok := resp["data"].(map[string]any); ok {
		choices, _ := data["choices"].([]any)
		if len(choices) == 0 {
			choices, _ = data["outputs"].([]any)
		}
		if text := firstChoiceText(choices); text != "" {
			return text
		}
	}
	choices, _ := resp["choices"].([]any)
	return firstChoiceText(choices)
}

func firstChoiceText(choices []any) string {
	if len(choices) == 0 {
		return ""
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return ""
	}
	if message, ok := choice["message"].(map[string]any); ok {
		if text := stringValue(message["content"]); text != "" {
			return text
		}
	}
	for _, key := range []string{"text", "output", "content"} {
		if text := stringValue(choice[key]); text != "" {
			return text
		}
	}
	return ""
}

func stringValue(value any) string {
	text, _ := value.(string)
	return strings.TrimSpace(text)
}
