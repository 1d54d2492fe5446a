package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/anas-786ss/llm-quiz-solver/internal/store"
)

type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]store.SessionEvent
	seq    map[string]int64
}

func New() *MemoryStore {
	return &MemoryStore{
		events: map[string][]store.SessionEvent{},
		seq:    map[string]int64{},
	}
}

func (m *MemoryStore) AppendEvent(ctx context.Context, event store.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Type = store.NormalizeEventType(event.Type)
	event.Payload = copyPayload(event.Payload)
	events := append(m.events[event.SessionID], event)
	// Appends from concurrent writers may land out of seq order.
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	m.events[event.SessionID] = events
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, sessionID string, afterSeq int64) ([]store.SessionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	filtered := []store.SessionEvent{}
	for _, event := range m.events[sessionID] {
		if event.Seq > afterSeq {
			event.Payload = copyPayload(event.Payload)
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

func (m *MemoryStore) NextSeq(ctx context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[sessionID] += 1
	return m.seq[sessionID], nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		out[key] = value
	}
	return out
}
