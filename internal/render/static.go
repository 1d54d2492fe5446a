package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

const defaultMaxPageBytes = 5 << 20

// TimeoutError is returned when a page never reached its wait condition, even
// after the relaxed second attempt.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("render %s timed out after %s: %v", e.URL, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StaticRenderer fetches pages with a plain GET. It cannot run scripts, so
// pages that build their content client side only expose what Extract can
// decode from the markup.
type StaticRenderer struct {
	client   *http.Client
	maxBytes int64
}

func NewStaticRenderer(client *http.Client) *StaticRenderer {
	if client == nil {
		client = &http.Client{}
	}
	return &StaticRenderer{client: client, maxBytes: defaultMaxPageBytes}
}

// splitBudget divides a render budget between the first attempt and the
// relaxed retry, which gets twice as long. A zero budget means unbounded.
func splitBudget(timeout time.Duration) (time.Duration, time.Duration) {
	if timeout <= 0 {
		return 0, 0
	}
	first := timeout / 3
	return first, timeout - first
}

// Render fetches the page within timeout, the relaxed retry included.
func (r *StaticRenderer) Render(ctx context.Context, pageURL string, timeout time.Duration) (solver.PageInfo, error) {
	first, relaxed := splitBudget(timeout)
	html, err := r.fetch(ctx, pageURL, first)
	if err != nil && isTimeout(err) && ctx.Err() == nil {
		html, err = r.fetch(ctx, pageURL, relaxed)
	}
	if err != nil && isTimeout(err) {
		return solver.PageInfo{}, &TimeoutError{URL: pageURL, Timeout: timeout, Err: err}
	}
	if err != nil {
		return solver.PageInfo{}, err
	}
	return Extract(pageURL, html, ""), nil
}

func (r *StaticRenderer) fetch(ctx context.Context, pageURL string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("render %s: %s", pageURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
