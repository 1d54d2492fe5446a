package solver

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	tlog "go.temporal.io/sdk/log"
)

// Options are the timing and retry knobs shared by every session.
type Options struct {
	Budget            time.Duration
	NextRenderTimeout time.Duration
	SubmitTimeout     time.Duration
	RetryDelay        time.Duration
	MaxAttempts       int
	SafetyMargin      time.Duration
}

func DefaultOptions() Options {
	return Options{
		Budget:            170 * time.Second,
		NextRenderTimeout: 40 * time.Second,
		SubmitTimeout:     15 * time.Second,
		RetryDelay:        time.Second,
		MaxAttempts:       3,
		SafetyMargin:      10 * time.Second,
	}
}

type Engine struct {
	renderer  Renderer
	router    *Router
	submitter Submitter
	opts      Options
	policy    PlaceholderPolicy
	recorder  Recorder
	notifier  Notifier
	logger    tlog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

type EngineOption func(*Engine)

func WithRecorder(recorder Recorder) EngineOption {
	return func(e *Engine) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

func WithNotifier(notifier Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

func WithPlaceholderPolicy(policy PlaceholderPolicy) EngineOption {
	return func(e *Engine) {
		if policy != nil {
			e.policy = policy
		}
	}
}

func WithLogger(logger tlog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

func NewEngine(renderer Renderer, router *Router, submitter Submitter, opts Options, options ...EngineOption) *Engine {
	defaults := DefaultOptions()
	if opts.Budget <= 0 {
		opts.Budget = defaults.Budget
	}
	if opts.NextRenderTimeout <= 0 {
		opts.NextRenderTimeout = defaults.NextRenderTimeout
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaults.SubmitTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.SafetyMargin < 0 {
		opts.SafetyMargin = 0
	}
	engine := &Engine{
		renderer:  renderer,
		router:    router,
		submitter: submitter,
		opts:      opts,
		policy:    NoPlaceholder{},
		recorder:  nopRecorder{},
		logger:    tlog.NewStructuredLogger(slog.Default()),
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	return engine
}

func (e *Engine) Options() Options {
	return e.opts
}

// Deadline returns the absolute deadline a session accepted at the given
// instant must finish by.
func (e *Engine) Deadline(acceptedAt time.Time) time.Time {
	return acceptedAt.Add(e.opts.Budget)
}

type loggerKey struct{}

// ContextWithLogger makes Run log through logger instead of the engine's
// default, e.g. the activity logger when running under a worker.
func ContextWithLogger(ctx context.Context, logger tlog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func (e *Engine) loggerFor(ctx context.Context) tlog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(tlog.Logger); ok && logger != nil {
		return logger
	}
	return e.logger
}

// Run drives one quiz session to a terminal state. It never panics and never
// returns an error: every failure ends up in the outcome.
func (e *Engine) Run(ctx context.Context, req Request) (outcome Outcome) {
	run := e.newRun(ctx, req)
	defer func() {
		if recovered := recover(); recovered != nil {
			run.logger.Error("session aborted by unexpected fault", "session_id", run.session.ID, "panic", fmt.Sprint(recovered), "stack", string(debug.Stack()))
			run.state = StateFailed
			run.reason = fmt.Sprintf("unexpected fault: %v", recovered)
		}
		outcome = e.finish(ctx, run)
	}()
	run.logger.Info("session started", "session_id", run.session.ID, "url", run.session.StartURL, "deadline", run.session.Deadline.Format(time.RFC3339))
	e.recorder.Record(ctx, run.session.ID, "session.started", map[string]any{
		"url":      run.session.StartURL,
		"email":    run.session.Email,
		"deadline": run.session.Deadline.UTC().Format(time.RFC3339Nano),
	})
	run.loop(ctx)
	return outcome
}

func (e *Engine) newRun(ctx context.Context, req Request) *sessionRun {
	startedAt := e.now()
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = uuid.New().String()
	}
	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = e.Deadline(startedAt)
	}
	req.SessionID = id
	req.Deadline = deadline
	return &sessionRun{
		engine: e,
		req:    req,
		logger: e.loggerFor(ctx),
		session: &Session{
			ID:         id,
			Email:      req.Email,
			Secret:     req.Secret,
			StartURL:   req.URL,
			CurrentURL: req.URL,
			Deadline:   deadline,
		},
		state:     StateRendering,
		startedAt: startedAt,
	}
}

func (e *Engine) finish(ctx context.Context, run *sessionRun) Outcome {
	status := StatusFailed
	if run.state == StateDone {
		status = StatusDone
	}
	outcome := Outcome{
		SessionID:   run.session.ID,
		Status:      status,
		Reason:      run.reason,
		StartURL:    run.session.StartURL,
		FinalURL:    run.session.CurrentURL,
		Pages:       run.pages,
		Submissions: run.submissions,
		StartedAt:   run.startedAt,
		FinishedAt:  e.now(),
	}
	eventType := "session.completed"
	if status == StatusFailed {
		eventType = "session.failed"
		run.logger.Warn("session failed", "session_id", outcome.SessionID, "reason", outcome.Reason, "url", outcome.FinalURL, "submissions", outcome.Submissions)
	} else {
		run.logger.Info("session completed", "session_id", outcome.SessionID, "url", outcome.FinalURL, "submissions", outcome.Submissions)
	}
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	e.recorder.Record(finalCtx, outcome.SessionID, eventType, map[string]any{
		"status":      string(outcome.Status),
		"reason":      outcome.Reason,
		"final_url":   outcome.FinalURL,
		"pages":       outcome.Pages,
		"submissions": outcome.Submissions,
	})
	if e.notifier != nil {
		if err := e.notifier.Notify(finalCtx, outcome); err != nil {
			run.logger.Warn("session notification failed", "session_id", outcome.SessionID, "error", err)
		}
	}
	return outcome
}

// sessionRun is the per-session state machine. It is confined to the
// goroutine executing Run.
type sessionRun struct {
	engine      *Engine
	req         Request
	session     *Session
	logger      tlog.Logger
	state       State
	page        PageInfo
	answer      any
	answerFrom  Capability
	nextURL     string
	reason      string
	pages       int
	submissions int
	startedAt   time.Time
}

func (r *sessionRun) loop(ctx context.Context) {
	for !r.state.Terminal() {
		if err := ctx.Err(); err != nil {
			r.transition(StateFailed, "session cancelled: "+err.Error())
			return
		}
		if !r.engine.now().Before(r.session.Deadline) {
			r.transition(StateFailed, "global deadline reached")
			return
		}
		var next State
		switch r.state {
		case StateRendering:
			next = r.render(ctx)
		case StateRouting:
			next = r.route(ctx)
		case StateLLMFallback:
			next = r.fallback(ctx)
		case StateSubmitting:
			next = r.submit(ctx)
		case StateFollowNext:
			next = r.follow(ctx)
		case StateRetry:
			next = r.retry(ctx)
		default:
			r.transition(StateFailed, fmt.Sprintf("unknown session state %q", r.state))
			return
		}
		r.transition(next, r.reason)
	}
}

func (r *sessionRun) transition(to State, reason string) {
	if err := ValidateTransition(r.state, to); err != nil {
		r.logger.Error("rejected session transition", "session_id", r.session.ID, "error", err)
		to = StateFailed
		reason = err.Error()
	}
	r.state = to
	if to == StateFailed {
		r.reason = reason
	}
}

func (r *sessionRun) fail(format string, args ...any) State {
	r.reason = fmt.Sprintf(format, args...)
	return StateFailed
}

func (r *sessionRun) render(ctx context.Context) State {
	e := r.engine
	timeout := r.session.remaining(e.now())
	if r.pages > 0 && e.opts.NextRenderTimeout < timeout {
		timeout = e.opts.NextRenderTimeout
	}
	started := e.now()
	// The timeout bounds the whole render, including any relaxed retry the
	// renderer makes.
	renderCtx, cancel := context.WithTimeout(ctx, timeout)
	page, err := e.renderer.Render(renderCtx, r.session.CurrentURL, timeout)
	cancel()
	if err != nil {
		r.logger.Error("render failed", "session_id", r.session.ID, "url", r.session.CurrentURL, "error", err)
		return r.fail("render %s: %v", r.session.CurrentURL, err)
	}
	if page.SourceURL == "" {
		page.SourceURL = r.session.CurrentURL
	}
	r.page = page
	r.pages++
	r.session.SubmitURL = page.SubmitURL
	r.logger.Info("page rendered", "session_id", r.session.ID, "url", r.session.CurrentURL, "submit_url", page.SubmitURL, "data_urls", len(page.DataURLs), "took", e.now().Sub(started).String())
	e.recorder.Record(ctx, r.session.ID, "page.rendered", map[string]any{
		"url":               r.session.CurrentURL,
		"submit_url":        page.SubmitURL,
		"data_urls":         page.DataURLs,
		"instruction_chars": len(page.Instruction),
	})
	return StateRouting
}

func (r *sessionRun) route(ctx context.Context) State {
	e := r.engine
	r.session.AttemptCount++
	result := e.router.Route(ctx, r.page, r.req, r.session.Deadline)
	r.logger.Info("task routed", "session_id", r.session.ID, "worker", string(result.Worker), "attempt", r.session.AttemptCount, "answered", result.HasAnswer(), "fallback_to", string(result.FallbackTo), "error", result.Error)
	e.recorder.Record(ctx, r.session.ID, "task.routed", map[string]any{
		"worker":      string(result.Worker),
		"attempt":     r.session.AttemptCount,
		"answered":    result.HasAnswer(),
		"type":        result.Type,
		"fallback_to": string(result.FallbackTo),
		"error":       result.Error,
		"note":        result.Note,
	})
	if result.HasAnswer() {
		r.answer = Normalize(result.Answer)
		r.answerFrom = result.Worker
		if strings.TrimSpace(r.session.SubmitURL) == "" {
			return r.fail("no submit url known for %s", r.session.CurrentURL)
		}
		return StateSubmitting
	}
	if result.FallbackTo == CapabilityLLM {
		return StateLLMFallback
	}
	if result.Failed() {
		return r.fail("no worker produced an answer: %s", result.Error)
	}
	return r.fail("no worker produced an answer")
}

func (r *sessionRun) fallback(ctx context.Context) State {
	e := r.engine
	r.logger.Info("falling back to llm worker", "session_id", r.session.ID, "url", r.session.CurrentURL)
	result := e.router.Invoke(ctx, CapabilityLLM, r.page, r.req, r.session.Deadline)
	var answer any
	source := CapabilityLLM
	placeholder := false
	if result.HasAnswer() {
		answer = result.Answer
	} else if strings.TrimSpace(r.session.SubmitURL) != "" {
		if value, ok := e.policy.Placeholder(*r.session); ok {
			answer = value
			placeholder = true
			r.logger.Info("substituting placeholder answer", "session_id", r.session.ID, "submit_url", r.session.SubmitURL)
		}
	}
	e.recorder.Record(ctx, r.session.ID, "llm.fallback", map[string]any{
		"answered":    answer != nil,
		"placeholder": placeholder,
		"error":       result.Error,
	})
	if answer == nil {
		if result.Failed() {
			return r.fail("llm fallback produced no answer: %s", result.Error)
		}
		return r.fail("llm fallback produced no answer")
	}
	if strings.TrimSpace(r.session.SubmitURL) == "" {
		return r.fail("no submit url known for %s", r.session.CurrentURL)
	}
	r.answer = Normalize(answer)
	r.answerFrom = source
	return StateSubmitting
}

func (r *sessionRun) submit(ctx context.Context) State {
	e := r.engine
	payload := Submission{
		Email:  r.session.Email,
		Secret: r.session.Secret,
		URL:    r.session.CurrentURL,
		Answer: r.answer,
	}
	submitCtx, cancel := context.WithTimeout(ctx, e.opts.SubmitTimeout)
	response, err := e.submitter.Submit(submitCtx, r.session.SubmitURL, payload)
	cancel()
	if err != nil {
		r.logger.Error("submission failed", "session_id", r.session.ID, "submit_url", r.session.SubmitURL, "error", err)
		response = SubmitResponse{Error: err.Error()}
	}
	r.submissions++
	r.logger.Info("submit response", "session_id", r.session.ID, "worker", string(r.answerFrom), "correct", response.Correct, "next_url", response.URL, "reason", response.Reason)
	e.recorder.Record(ctx, r.session.ID, "answer.submitted", map[string]any{
		"submit_url": r.session.SubmitURL,
		"url":        r.session.CurrentURL,
		"worker":     string(r.answerFrom),
		"answer":     summarizeAnswer(r.answer),
		"attempt":    r.session.AttemptCount,
		"correct":    response.Correct,
		"next_url":   response.URL,
		"reason":     response.Reason,
		"error":      response.Error,
	})
	return r.evaluate(response)
}

func (r *sessionRun) evaluate(response SubmitResponse) State {
	e := r.engine
	if strings.TrimSpace(response.URL) != "" {
		r.nextURL = strings.TrimSpace(response.URL)
		return StateFollowNext
	}
	if response.Correct {
		r.reason = "quiz finished"
		return StateDone
	}
	remaining := r.session.remaining(e.now())
	if remaining > e.opts.SafetyMargin && r.session.AttemptCount < e.opts.MaxAttempts {
		return StateRetry
	}
	detail := response.Reason
	if detail == "" {
		detail = response.Error
	}
	if r.session.AttemptCount >= e.opts.MaxAttempts {
		return r.fail("answer not accepted after %d attempts: %s", r.session.AttemptCount, detail)
	}
	return r.fail("answer not accepted and too little time left to retry: %s", detail)
}

func (r *sessionRun) follow(ctx context.Context) State {
	r.logger.Info("advancing to next url", "session_id", r.session.ID, "from", r.session.CurrentURL, "to", r.nextURL)
	r.engine.recorder.Record(ctx, r.session.ID, "session.advanced", map[string]any{
		"from": r.session.CurrentURL,
		"to":   r.nextURL,
	})
	r.session.CurrentURL = r.nextURL
	r.session.SubmitURL = ""
	r.session.AttemptCount = 0
	r.nextURL = ""
	r.answer = nil
	r.answerFrom = ""
	return StateRendering
}

func (r *sessionRun) retry(ctx context.Context) State {
	e := r.engine
	r.logger.Info("re-attempting same url", "session_id", r.session.ID, "url", r.session.CurrentURL, "attempt", r.session.AttemptCount+1)
	e.recorder.Record(ctx, r.session.ID, "session.retrying", map[string]any{
		"url":          r.session.CurrentURL,
		"next_attempt": r.session.AttemptCount + 1,
	})
	if err := e.sleep(ctx, e.opts.RetryDelay); err != nil {
		return r.fail("session cancelled: %v", err)
	}
	return StateRouting
}

func summarizeAnswer(answer any) string {
	text := fmt.Sprint(answer)
	const limit = 200
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
