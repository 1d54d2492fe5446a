package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

type toolExecutionError struct {
	InvocationID string
	Message      string
}

func (e *toolExecutionError) Error() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Message)
}

func (e *toolExecutionError) timedOut() bool {
	lower := strings.ToLower(e.Message)
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out")
}

type toolRunnerResponse struct {
	Status string         `json:"status"`
	Output map[string]any `json:"output"`
	Error  string         `json:"error,omitempty"`
}

type ToolRunnerConfig struct {
	BaseURL       string
	MaxConcurrent int
	Settle        time.Duration
	Client        *http.Client
}

// ToolRunnerRenderer drives a headless browser hosted by the tool runner.
// At most MaxConcurrent renders are in flight at once.
type ToolRunnerRenderer struct {
	baseURL string
	client  *http.Client
	settle  time.Duration
	slots   chan struct{}
}

func NewToolRunnerRenderer(cfg ToolRunnerConfig) *ToolRunnerRenderer {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &ToolRunnerRenderer{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  client,
		settle:  cfg.Settle,
		slots:   make(chan struct{}, maxConcurrent),
	}
}

func (r *ToolRunnerRenderer) Render(ctx context.Context, pageURL string, timeout time.Duration) (solver.PageInfo, error) {
	if r.baseURL == "" {
		return solver.PageInfo{}, &toolExecutionError{Message: "tool runner url not configured"}
	}
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return solver.PageInfo{}, ctx.Err()
	}
	defer func() { <-r.slots }()

	started := time.Now()
	first, relaxed := splitBudget(timeout)
	renderID := uuid.New().String()
	_, err := r.execute(ctx, renderID, "browser.navigate", map[string]any{
		"url":        pageURL,
		"wait_until": "networkidle",
	}, first)
	if err != nil && r.escalate(ctx, err) {
		_, err = r.execute(ctx, renderID, "browser.navigate", map[string]any{
			"url":        pageURL,
			"wait_until": "domcontentloaded",
		}, relaxed)
		if err != nil && r.escalate(ctx, err) {
			return solver.PageInfo{}, &TimeoutError{URL: pageURL, Timeout: timeout, Err: err}
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return solver.PageInfo{}, &TimeoutError{URL: pageURL, Timeout: timeout, Err: err}
		}
		return solver.PageInfo{}, err
	}
	if r.settle > 0 {
		timer := time.NewTimer(r.settle)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return solver.PageInfo{}, ctx.Err()
		}
	}
	snapshotTimeout := time.Duration(0)
	if timeout > 0 {
		snapshotTimeout = timeout - time.Since(started)
		if snapshotTimeout <= 0 {
			return solver.PageInfo{}, &TimeoutError{URL: pageURL, Timeout: timeout, Err: context.DeadlineExceeded}
		}
	}
	output, err := r.execute(ctx, renderID, "browser.snapshot", map[string]any{
		"include_html": true,
		"include_text": true,
	}, snapshotTimeout)
	if err != nil {
		return solver.PageInfo{}, err
	}
	html := readString(output, "html")
	if html == "" {
		return solver.PageInfo{}, fmt.Errorf("render %s: snapshot returned no html", pageURL)
	}
	finalURL := readString(output, "url")
	if finalURL == "" {
		finalURL = pageURL
	}
	page := Extract(finalURL, html, readString(output, "text"))
	page.SourceURL = pageURL
	return page, nil
}

func (r *ToolRunnerRenderer) escalate(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if isTimeout(err) {
		return true
	}
	var execErr *toolExecutionError
	return errors.As(err, &execErr) && execErr.timedOut()
}

func (r *ToolRunnerRenderer) execute(ctx context.Context, renderID string, toolName string, input map[string]any, timeout time.Duration) (map[string]any, error) {
	invocationID := uuid.New().String()
	payload := map[string]any{
		"contract_version": "tool_contract_v2",
		"run_id":           renderID,
		"invocation_id":    invocationID,
		"idempotency_key":  invocationID,
		"tool_name":        toolName,
		"input":            input,
	}
	requestCtx := ctx
	if timeout > 0 {
		payload["timeout_ms"] = int(timeout / time.Millisecond)
		var cancel context.CancelFunc
		// Leave the runner a moment to report its own timeout first.
		requestCtx, cancel = context.WithTimeout(ctx, timeout+2*time.Second)
		defer cancel()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &toolExecutionError{InvocationID: invocationID, Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, r.baseURL+"/tools/execute", bytes.NewReader(body))
	if err != nil {
		return nil, &toolExecutionError{InvocationID: invocationID, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &toolExecutionError{InvocationID: invocationID, Message: parseToolRunnerErrorMessage(resp.StatusCode, responseBody)}
	}
	var result toolRunnerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &toolExecutionError{InvocationID: invocationID, Message: err.Error()}
	}
	if result.Error != "" {
		return nil, &toolExecutionError{InvocationID: invocationID, Message: strings.TrimSpace(result.Error)}
	}
	return result.Output, nil
}

func parseToolRunnerErrorMessage(statusCode int, responseBody []byte) string {
	trimmed := strings.TrimSpace(string(responseBody))
	if trimmed == "" {
		return fmt.Sprintf("tool runner returned status %d", statusCode)
	}
	payload := map[string]any{}
	if err := json.Unmarshal(responseBody, &payload); err != nil {
		return trimmed
	}
	for _, key := range []string{"error", "message", "detail"} {
		if text := readString(payload, key); text != "" {
			return text
		}
	}
	return trimmed
}

func readString(values map[string]any, key string) string {
	if values == nil {
		return ""
	}
	text, _ := values[key].(string)
	return strings.TrimSpace(text)
}
