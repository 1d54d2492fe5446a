package journal

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/anas-786ss/llm-quiz-solver/internal/events"
	"github.com/anas-786ss/llm-quiz-solver/internal/store"
)

const writeTimeout = 5 * time.Second

type Publisher interface {
	Publish(event events.SessionEvent)
}

// Recorder writes engine events to a journal and fans them out to live
// subscribers. Journal failures are logged and otherwise ignored.
type Recorder struct {
	journal   store.Journal
	publisher Publisher
	source    string
	now       func() time.Time
}

func NewRecorder(journal store.Journal, publisher Publisher, source string) *Recorder {
	if source == "" {
		source = "engine"
	}
	return &Recorder{journal: journal, publisher: publisher, source: source, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, sessionID string, eventType string, payload map[string]any) {
	// The session's own context may already be cancelled when it finishes.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	event := store.SessionEvent{
		SessionID: sessionID,
		Type:      store.NormalizeEventType(eventType),
		Timestamp: r.now().UTC().Format(time.RFC3339Nano),
		Source:    r.source,
		TraceID:   uuid.New().String(),
		Payload:   payload,
	}
	if r.journal != nil {
		seq, err := r.journal.NextSeq(ctx, sessionID)
		if err != nil {
			log.Printf("journal.next_seq failed session_id=%s type=%s err=%v", sessionID, event.Type, err)
		} else {
			event.Seq = seq
			if err := r.journal.AppendEvent(ctx, event); err != nil {
				log.Printf("journal.append failed session_id=%s seq=%d type=%s err=%v", sessionID, seq, event.Type, err)
			}
		}
	}
	if r.publisher != nil {
		r.publisher.Publish(ToEvent(event))
	}
}

func ToEvent(event store.SessionEvent) events.SessionEvent {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return events.SessionEvent{
		SessionID: event.SessionID,
		Seq:       event.Seq,
		Type:      events.NormalizeType(event.Type),
		Ts:        event.Timestamp,
		Source:    event.Source,
		TraceID:   event.TraceID,
		Payload:   payload,
	}
}
