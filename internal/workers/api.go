package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

var (
	apiURLRE    = regexp.MustCompile(`https?://[A-Za-z0-9./?=_&%:-]+`)
	apiHeaderRE = regexp.MustCompile(`(?im)^\s*(?:header\s+)?([A-Za-z][A-Za-z0-9-]*-[A-Za-z0-9-]+|Authorization|Accept)\s*:\s*(\S.*?)\s*$`)
)

// APISourcing fetches the first API URL mentioned in the instruction.
// Transport failures are returned as errors so the router can cascade.
type APISourcing struct {
	client  *http.Client
	timeout time.Duration
}

func (w *APISourcing) Handle(ctx context.Context, page solver.PageInfo, req solver.Request, deadline time.Time) (solver.WorkerResult, error) {
	target := apiTarget(page)
	if target == "" {
		return solver.ErrorResult(solver.CapabilityAPISourcing, "no API url found in instruction"), nil
	}
	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, w.timeout)
	defer cancelTimeout()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return solver.WorkerResult{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	for _, match := range apiHeaderRE.FindAllStringSubmatch(page.Instruction, -1) {
		httpReq.Header.Set(match[1], match[2])
	}
	resp, err := w.client.Do(httpReq)
	if err != nil {
		return solver.WorkerResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return solver.WorkerResult{}, fmt.Errorf("api %s: %s", target, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return solver.WorkerResult{}, err
	}
	return interpretAPIBody(body), nil
}

func apiTarget(page solver.PageInfo) string {
	for _, candidate := range apiURLRE.FindAllString(page.Instruction, -1) {
		candidate = strings.TrimRight(candidate, ".,;:)")
		if strings.Contains(candidate, "submit") || candidate == page.SourceURL {
			continue
		}
		return candidate
	}
	return ""
}

func interpretAPIBody(body []byte) solver.WorkerResult {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return solver.FallbackResult(solver.CapabilityAPISourcing, "non-JSON response: "+truncate(strings.TrimSpace(string(body)), 200))
	}
	if object, ok := payload.(map[string]any); ok {
		if answer, ok := object["answer"]; ok && answer != nil {
			return scalarAnswer(answer)
		}
		return solver.FallbackResult(solver.CapabilityAPISourcing, "JSON response without an answer field")
	}
	if payload == nil {
		return solver.FallbackResult(solver.CapabilityAPISourcing, "empty JSON response")
	}
	if _, ok := payload.([]any); ok {
		return solver.FallbackResult(solver.CapabilityAPISourcing, "JSON array response")
	}
	return scalarAnswer(payload)
}

func scalarAnswer(value any) solver.WorkerResult {
	switch typed := value.(type) {
	case json.Number:
		if integer, err := typed.Int64(); err == nil {
			return solver.AnswerResult(solver.CapabilityAPISourcing, integer, solver.AnswerTypeNumber)
		}
		if float, err := typed.Float64(); err == nil {
			return solver.AnswerResult(solver.CapabilityAPISourcing, float, solver.AnswerTypeNumber)
		}
		return solver.AnswerResult(solver.CapabilityAPISourcing, typed.String(), solver.AnswerTypeString)
	case bool:
		return solver.AnswerResult(solver.CapabilityAPISourcing, typed, solver.AnswerTypeBoolean)
	case string:
		return solver.AnswerResult(solver.CapabilityAPISourcing, typed, solver.AnswerTypeString)
	default:
		return solver.AnswerResult(solver.CapabilityAPISourcing, typed, solver.AnswerTypeJSON)
	}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
