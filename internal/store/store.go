package store

import (
	"context"
	"strings"
)

// SessionEvent is one journal entry of a quiz session. Seq is allocated by
// NextSeq and is strictly increasing per session.
type SessionEvent struct {
	SessionID string
	Seq       int64
	Type      string
	Timestamp string
	Source    string
	TraceID   string
	Payload   map[string]any
}

// Journal persists session events.
type Journal interface {
	AppendEvent(ctx context.Context, event SessionEvent) error
	ListEvents(ctx context.Context, sessionID string, afterSeq int64) ([]SessionEvent, error)
	NextSeq(ctx context.Context, sessionID string) (int64, error)
	Ping(ctx context.Context) error
}

func NormalizeEventType(eventType string) string {
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	return strings.ReplaceAll(normalized, "_", ".")
}
