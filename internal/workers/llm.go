package workers

import (
	"context"
	"strings"
	"time"

	"github.com/anas-786ss/llm-quiz-solver/internal/llm"
	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

const maxPromptChars = 12000

const answerOnlyPrompt = "You are a precise assistant. Read the instructions from the webpage and extract ONLY the exact answer.\n" +
	"Do NOT add explanation. Do NOT rewrite the question.\n" +
	"Return only the answer."

type LLM struct {
	provider llm.Provider
	attempts int
}

func (w *LLM) Handle(ctx context.Context, page solver.PageInfo, req solver.Request, deadline time.Time) (solver.WorkerResult, error) {
	instruction := strings.TrimSpace(page.Instruction)
	if instruction == "" {
		instruction = strings.TrimSpace(page.HTML)
	}
	if instruction == "" {
		return solver.ErrorResult(solver.CapabilityLLM, "no instruction found"), nil
	}
	if w.provider == nil {
		return solver.ErrorResult(solver.CapabilityLLM, "no llm provider configured"), nil
	}
	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()

	var prompt strings.Builder
	prompt.WriteString("Instruction:\n")
	prompt.WriteString(truncateRunes(instruction, maxPromptChars))
	if len(page.DataURLs) > 0 {
		prompt.WriteString("\n\nData files:\n")
		prompt.WriteString(strings.Join(page.DataURLs, "\n"))
	}
	prompt.WriteString("\n\nAnswer:")
	answer, err := llm.GenerateWithRetry(ctx, w.provider, []llm.Message{
		{Role: "system", Content: answerOnlyPrompt},
		{Role: "user", Content: prompt.String()},
	}, w.attempts)
	if err != nil {
		return solver.ErrorResult(solver.CapabilityLLM, err.Error()), nil
	}
	return solver.AnswerResult(solver.CapabilityLLM, answer, solver.AnswerTypeString), nil
}

func truncateRunes(value string, maxChars int) string {
	runes := []rune(value)
	if len(runes) <= maxChars {
		return value
	}
	return string(runes[:maxChars])
}
