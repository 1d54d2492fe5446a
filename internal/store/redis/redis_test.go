package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/anas-786ss/llm-quiz-solver/internal/store"
)

// fakeRedis implements the list and counter commands in memory.
type fakeRedis struct {
	mu       sync.Mutex
	lists    map[string][]string
	counters map[string]int64
	expiries map[string]time.Duration
	err      error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		lists:    map[string][]string{},
		counters: map[string]int64{},
		expiries: map[string]time.Duration{},
	}
}

func (f *fakeRedis) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, value := range values {
		f.lists[key] = append(f.lists[key], string(value.([]byte)))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringSliceResult(nil, f.err)
	}
	return redis.NewStringSliceResult(append([]string{}, f.lists[key]...), nil)
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counters[key]++
	return redis.NewIntResult(f.counters[key], nil)
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiries[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	return redis.NewStatusResult("PONG", nil)
}

func TestAppendAndListEvents(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	journal := newWithClient(client, time.Hour)

	require.NoError(t, journal.AppendEvent(ctx, store.SessionEvent{SessionID: "s-1", Seq: 2, Type: "Task_Routed", Payload: map[string]any{"worker": "scraper"}}))
	require.NoError(t, journal.AppendEvent(ctx, store.SessionEvent{SessionID: "s-1", Seq: 1, Type: "session.started"}))

	events, err := journal.ListEvents(ctx, "s-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(1), events[0].Seq)
	require.NotEmpty(t, events[0].Timestamp)
	require.NotNil(t, events[0].Payload)
	require.Equal(t, "task.routed", events[1].Type)
	require.Equal(t, "scraper", events[1].Payload["worker"])
	require.Equal(t, time.Hour, client.expiries["session:s-1:events"])

	events, err = journal.ListEvents(ctx, "s-1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestListEventsRejectsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.lists["session:s-1:events"] = []string{"{bad"}
	_, err := newWithClient(client, 0).ListEvents(ctx, "s-1", 0)
	require.ErrorContains(t, err, "decode journal entry")
}

func TestNextSeqSetsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	journal := newWithClient(client, 0)

	first, err := journal.NextSeq(ctx, "s-1")
	require.NoError(t, err)
	second, err := journal.NextSeq(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), first)
	require.Equal(t, int64(2), second)
	require.Equal(t, defaultTTL, client.expiries["session:s-1:seq"])
}

func TestErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	journal := newWithClient(client, 0)

	require.Error(t, journal.AppendEvent(ctx, store.SessionEvent{SessionID: "s-1", Seq: 1}))
	_, err := journal.ListEvents(ctx, "s-1", 0)
	require.Error(t, err)
	_, err = journal.NextSeq(ctx, "s-1")
	require.Error(t, err)
	require.Error(t, journal.Ping(ctx))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("not a url", 0)
	require.ErrorContains(t, err, "parse redis url")
}
