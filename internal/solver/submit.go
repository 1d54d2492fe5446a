package solver

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
)

// SubmitError is returned when the quiz endpoint answers with an error status.
type SubmitError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *SubmitError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("submit failed: %s", e.Status)
	}
	return fmt.Sprintf("submit failed: %s: %s", e.Status, e.Body)
}

type HTTPSubmitter struct {
	client *http.Client
}

func NewHTTPSubmitter(timeout time.Duration) *HTTPSubmitter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSubmitter{client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSubmitter) Submit(ctx context.Context, submitURL string, payload Submission) (SubmitResponse, error) {
	if strings.TrimSpace(submitURL) == "" {
		return SubmitResponse{}, errors.New("submit url is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return SubmitResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(body))
	if err != nil {
		return SubmitResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SubmitResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SubmitResponse{}, err
	}
	if resp.StatusCode >= 400 {
		return SubmitResponse{}, &SubmitError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(truncate(string(raw), 300)),
		}
	}
	var parsed SubmitResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return SubmitResponse{}, fmt.Errorf("decode submit response: %w", err)
	}
	return parsed, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
