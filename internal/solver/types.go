package solver

import (
	"context"
	"strings"
	"time"
)

// Capability names a worker the router can dispatch to.
type Capability string

const (
	CapabilityCommand        Capability = "command"
	CapabilityDataProcessing Capability = "data_processing"
	CapabilityAPISourcing    Capability = "api_sourcing"
	CapabilityDataCleaning   Capability = "data_cleaning"
	CapabilityVisualization  Capability = "visualization"
	CapabilityAnalysis       Capability = "analysis"
	CapabilityWebScraping    Capability = "web_scraper"
	CapabilityLLM            Capability = "llm"
)

const (
	AnswerTypeNumber  = "number"
	AnswerTypeBoolean = "boolean"
	AnswerTypeString  = "string"
	AnswerTypeJSON    = "json"
	AnswerTypeImage   = "image"
)

// PageInfo is the snapshot a single render produces. It is never mutated after
// the renderer returns it.
type PageInfo struct {
	Instruction string   `json:"instruction"`
	SubmitURL   string   `json:"submit_url,omitempty"`
	DataURLs    []string `json:"data_urls"`
	HTML        string   `json:"html"`
	SourceURL   string   `json:"url"`
}

// WorkerResult carries exactly one of Answer, Error or FallbackTo.
type WorkerResult struct {
	Worker     Capability `json:"worker,omitempty"`
	Answer     any        `json:"answer,omitempty"`
	Type       string     `json:"type,omitempty"`
	Error      string     `json:"error,omitempty"`
	FallbackTo Capability `json:"fallback_to,omitempty"`
	Note       string     `json:"note,omitempty"`
}

// HasAnswer reports whether the result holds a usable answer. Blank strings
// count as no answer.
func (r WorkerResult) HasAnswer() bool {
	if r.Answer == nil {
		return false
	}
	if text, ok := r.Answer.(string); ok {
		return strings.TrimSpace(text) != ""
	}
	return true
}

func (r WorkerResult) Failed() bool {
	return strings.TrimSpace(r.Error) != ""
}

func AnswerResult(worker Capability, answer any, answerType string) WorkerResult {
	return WorkerResult{Worker: worker, Answer: answer, Type: answerType}
}

func ErrorResult(worker Capability, message string) WorkerResult {
	return WorkerResult{Worker: worker, Error: message}
}

func FallbackResult(worker Capability, note string) WorkerResult {
	return WorkerResult{Worker: worker, FallbackTo: CapabilityLLM, Note: note}
}

// Request is the validated inbound payload a session is started from.
type Request struct {
	SessionID string         `json:"session_id"`
	Email     string         `json:"email"`
	Secret    string         `json:"secret"`
	URL       string         `json:"url"`
	Extra     map[string]any `json:"extra,omitempty"`
	Deadline  time.Time      `json:"deadline"`
}

// Submission is the payload posted to a quiz submit endpoint.
type Submission struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
	Answer any    `json:"answer"`
}

// SubmitResponse is what the quiz endpoint answers. Error is only set on
// synthetic responses built from transport failures.
type SubmitResponse struct {
	Correct bool   `json:"correct"`
	URL     string `json:"url,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Session is the mutable progress state of one run. Only the engine touches it.
type Session struct {
	ID           string
	Email        string
	Secret       string
	StartURL     string
	CurrentURL   string
	SubmitURL    string
	Deadline     time.Time
	AttemptCount int
}

func (s *Session) remaining(now time.Time) time.Duration {
	return s.Deadline.Sub(now)
}

type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Outcome summarises a finished session.
type Outcome struct {
	SessionID   string    `json:"session_id"`
	Status      Status    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	StartURL    string    `json:"start_url"`
	FinalURL    string    `json:"final_url"`
	Pages       int       `json:"pages"`
	Submissions int       `json:"submissions"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

type Renderer interface {
	Render(ctx context.Context, url string, timeout time.Duration) (PageInfo, error)
}

// Worker computes an answer for a rendered page. A returned error means the
// call itself failed; ordinary "could not compute" outcomes are expressed in
// the result.
type Worker interface {
	Handle(ctx context.Context, page PageInfo, req Request, deadline time.Time) (WorkerResult, error)
}

type WorkerFunc func(ctx context.Context, page PageInfo, req Request, deadline time.Time) (WorkerResult, error)

func (f WorkerFunc) Handle(ctx context.Context, page PageInfo, req Request, deadline time.Time) (WorkerResult, error) {
	return f(ctx, page, req, deadline)
}

type Submitter interface {
	Submit(ctx context.Context, submitURL string, payload Submission) (SubmitResponse, error)
}

// Recorder receives session events. Implementations swallow their own
// failures.
type Recorder interface {
	Record(ctx context.Context, sessionID string, eventType string, payload map[string]any)
}

type Notifier interface {
	Notify(ctx context.Context, outcome Outcome) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, string, map[string]any) {}
