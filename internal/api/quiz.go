package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

const maxQuizBodyBytes = 1 << 20

const (
	detailInvalidJSON   = "Invalid JSON"
	detailInvalidSecret = "Invalid secret"
)

type acceptedResponse struct {
	Status    string `json:"status"`
	Note      string `json:"note"`
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) acceptQuiz(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQuizBodyBytes)
	var body map[string]any
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil || body == nil {
		writeJSONStatus(w, errorResponse{Detail: detailInvalidJSON}, http.StatusBadRequest)
		return
	}
	req, err := parseQuizRequest(body)
	if err != nil {
		writeJSONStatus(w, errorResponse{Detail: "Invalid payload: " + err.Error()}, http.StatusBadRequest)
		return
	}
	if !s.secretMatches(req.Secret) {
		writeJSONStatus(w, errorResponse{Detail: detailInvalidSecret}, http.StatusForbidden)
		return
	}

	acceptedAt := s.now()
	req.SessionID = uuid.New().String()
	req.Deadline = acceptedAt.Add(s.cfg.GlobalTimeout)
	log.Printf("quiz accepted session_id=%s url=%s email=%s", req.SessionID, req.URL, req.Email)

	if err := s.dispatcher.StartSession(context.WithoutCancel(r.Context()), req); err != nil {
		log.Printf("quiz dispatch failed session_id=%s err=%v", req.SessionID, err)
		writeJSONStatus(w, errorResponse{Detail: "could not start session"}, http.StatusServiceUnavailable)
		return
	}
	writeJSONStatus(w, acceptedResponse{Status: "accepted", Note: "processing started", SessionID: req.SessionID}, http.StatusOK)
}

// parseQuizRequest validates the required fields and keeps every other
// top-level key as extra.
func parseQuizRequest(body map[string]any) (solver.Request, error) {
	email, err := requiredString(body, "email")
	if err != nil {
		return solver.Request{}, err
	}
	secret, err := requiredString(body, "secret")
	if err != nil {
		return solver.Request{}, err
	}
	rawURL, err := requiredString(body, "url")
	if err != nil {
		return solver.Request{}, err
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return solver.Request{}, fmt.Errorf("url: %q is not a valid http(s) URL", rawURL)
	}
	extra := map[string]any{}
	for key, value := range body {
		switch key {
		case "email", "secret", "url":
		default:
			extra[key] = value
		}
	}
	if len(extra) == 0 {
		extra = nil
	}
	return solver.Request{Email: email, Secret: secret, URL: parsed.String(), Extra: extra}, nil
}

func requiredString(body map[string]any, key string) (string, error) {
	value, ok := body[key]
	if !ok || value == nil {
		return "", fmt.Errorf("%s: field required", key)
	}
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s: must be a string", key)
	}
	return text, nil
}

// secretMatches refuses every request when no secret is configured.
func (s *Server) secretMatches(candidate string) bool {
	expected := s.cfg.Secret
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1
}
