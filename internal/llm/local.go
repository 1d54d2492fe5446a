package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var localAnswerRE = regexp.MustCompile(`(?i)\banswer\s*(?:is|:|=)\s*["'\x60]?([^\s"'\x60]+)`)

// LocalProvider runs without a model. It only recognises instructions that
// state their answer outright, which is enough for offline runs against
// fixture quizzes.
type LocalProvider struct{}

func (LocalProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		match := localAnswerRE.FindStringSubmatch(messages[i].Content)
		if len(match) == 2 {
			if answer := strings.TrimRight(match[1], ".,;:"); answer != "" {
				return answer, nil
			}
		}
	}
	return "", errors.New("local LLM mode could not derive an answer")
}
