package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anas-786ss/llm-quiz-solver/internal/store"
)

const defaultTTL = 24 * time.Hour

// commands is the subset of the go-redis client the journal uses.
type commands interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStore keeps each session's journal as a list of JSON entries with a
// counter key for sequence allocation. Both keys expire after ttl.
type RedisStore struct {
	client commands
	ttl    time.Duration
}

type record struct {
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Timestamp string         `json:"ts"`
	Source    string         `json:"source"`
	TraceID   string         `json:"trace_id,omitempty"`
	Payload   map[string]any `json:"payload"`
}

func New(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newWithClient(client, ttl), nil
}

func newWithClient(client commands, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func eventsKey(sessionID string) string {
	return "session:" + sessionID + ":events"
}

func seqKey(sessionID string) string {
	return "session:" + sessionID + ":seq"
}

func (r *RedisStore) AppendEvent(ctx context.Context, event store.SessionEvent) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	timestamp := event.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(record{
		SessionID: event.SessionID,
		Seq:       event.Seq,
		Type:      store.NormalizeEventType(event.Type),
		Timestamp: timestamp,
		Source:    event.Source,
		TraceID:   event.TraceID,
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	key := eventsKey(event.SessionID)
	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, r.ttl).Err()
}

func (r *RedisStore) ListEvents(ctx context.Context, sessionID string, afterSeq int64) ([]store.SessionEvent, error) {
	entries, err := r.client.LRange(ctx, eventsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	results := []store.SessionEvent{}
	for _, entry := range entries {
		var rec record
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		if rec.Seq <= afterSeq {
			continue
		}
		if rec.Payload == nil {
			rec.Payload = map[string]any{}
		}
		results = append(results, store.SessionEvent{
			SessionID: rec.SessionID,
			Seq:       rec.Seq,
			Type:      rec.Type,
			Timestamp: rec.Timestamp,
			Source:    rec.Source,
			TraceID:   rec.TraceID,
			Payload:   rec.Payload,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Seq < results[j].Seq })
	return results, nil
}

func (r *RedisStore) NextSeq(ctx context.Context, sessionID string) (int64, error) {
	key := seqKey(sessionID)
	seq, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if seq == 1 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return 0, err
		}
	}
	return seq, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
