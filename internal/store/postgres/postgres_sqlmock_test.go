package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/anas-786ss/llm-quiz-solver/internal/store"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PostgresStore{db: db}, mock
}

func TestVerifySchema(t *testing.T) {
	ctx := context.Background()

	t.Run("query error", func(t *testing.T) {
		pgStore, mock := newMockStore(t)
		mock.ExpectQuery("SELECT to_regclass").WillReturnError(errors.New("query error"))
		require.Error(t, verifySchema(ctx, pgStore.db))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing table", func(t *testing.T) {
		pgStore, mock := newMockStore(t)
		mock.ExpectQuery("SELECT to_regclass").WithArgs("public.session_events").
			WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow("session_events"))
		mock.ExpectQuery("SELECT to_regclass").WithArgs("public.session_event_sequences").
			WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow(nil))
		err := verifySchema(ctx, pgStore.db)
		require.ErrorContains(t, err, "session_event_sequences table not found")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNewOpenError(t *testing.T) {
	prev := openDB
	openDB = func(driverName string, dataSourceName string) (*sql.DB, error) {
		return nil, errors.New("open error")
	}
	defer func() { openDB = prev }()

	_, err := New("postgres://unused")
	require.EqualError(t, err, "open error")
}

func TestAppendEvent(t *testing.T) {
	ctx := context.Background()
	pgStore, mock := newMockStore(t)
	traceID := "4f0c5a5e-7c55-4b8f-9d8c-0d5b1b6f4a10"

	mock.ExpectExec("INSERT INTO session_events").
		WithArgs("s-1", int64(3), "answer.submitted", sqlmock.AnyArg(), "engine", traceID, []byte(`{"correct":true}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := pgStore.AppendEvent(ctx, store.SessionEvent{
		SessionID: "s-1",
		Seq:       3,
		Type:      "Answer_Submitted",
		Timestamp: "2026-01-02T03:04:05Z",
		Source:    "engine",
		TraceID:   traceID,
		Payload:   map[string]any{"correct": true},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendEventDropsInvalidTraceID(t *testing.T) {
	ctx := context.Background()
	pgStore, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO session_events").
		WithArgs("s-1", int64(1), "session.started", sqlmock.AnyArg(), "", nil, []byte(`{}`)).
		WillReturnError(errors.New("insert failed"))

	err := pgStore.AppendEvent(ctx, store.SessionEvent{SessionID: "s-1", Seq: 1, Type: "session.started", TraceID: "not-a-uuid"})
	require.EqualError(t, err, "insert failed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	pgStore, mock := newMockStore(t)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"session_id", "seq", "type", "timestamp", "source", "trace_id", "payload"}).
		AddRow("s-1", int64(2), "page.rendered", ts, "engine", nil, []byte(`{"url":"https://quiz/1"}`)).
		AddRow("s-1", int64(3), "task.routed", ts, "engine", "4f0c5a5e-7c55-4b8f-9d8c-0d5b1b6f4a10", nil)
	mock.ExpectQuery("SELECT session_id, seq, type").WithArgs("s-1", int64(1)).WillReturnRows(rows)

	events, err := pgStore.ListEvents(ctx, "s-1", 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "https://quiz/1", events[0].Payload["url"])
	require.Equal(t, "2026-01-02T03:04:05Z", events[0].Timestamp)
	require.Empty(t, events[0].TraceID)
	require.Equal(t, "4f0c5a5e-7c55-4b8f-9d8c-0d5b1b6f4a10", events[1].TraceID)
	require.NotNil(t, events[1].Payload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("query", func(t *testing.T) {
		pgStore, mock := newMockStore(t)
		mock.ExpectQuery("SELECT session_id").WillReturnError(errors.New("query error"))
		_, err := pgStore.ListEvents(ctx, "s-1", 0)
		require.Error(t, err)
	})

	t.Run("scan", func(t *testing.T) {
		pgStore, mock := newMockStore(t)
		mock.ExpectQuery("SELECT session_id").WillReturnRows(
			sqlmock.NewRows([]string{"session_id", "seq"}).AddRow("s-1", "not-a-number"))
		_, err := pgStore.ListEvents(ctx, "s-1", 0)
		require.Error(t, err)
	})

	t.Run("payload", func(t *testing.T) {
		pgStore, mock := newMockStore(t)
		mock.ExpectQuery("SELECT session_id").WillReturnRows(
			sqlmock.NewRows([]string{"session_id", "seq", "type", "timestamp", "source", "trace_id", "payload"}).
				AddRow("s-1", int64(1), "x", time.Now(), "", nil, []byte(`{bad`)))
		_, err := pgStore.ListEvents(ctx, "s-1", 0)
		require.Error(t, err)
	})

	t.Run("rows", func(t *testing.T) {
		pgStore, mock := newMockStore(t)
		mock.ExpectQuery("SELECT session_id").WillReturnRows(
			sqlmock.NewRows([]string{"session_id", "seq", "type", "timestamp", "source", "trace_id", "payload"}).
				AddRow("s-1", int64(1), "x", time.Now(), "", nil, []byte(`{}`)).
				RowError(0, errors.New("row error")))
		_, err := pgStore.ListEvents(ctx, "s-1", 0)
		require.Error(t, err)
	})
}

func TestNextSeq(t *testing.T) {
	ctx := context.Background()
	pgStore, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO session_event_sequences").WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"last_seq"}).AddRow(int64(7)))
	seq, err := pgStore.NextSeq(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, int64(7), seq)

	mock.ExpectQuery("INSERT INTO session_event_sequences").WillReturnError(errors.New("seq error"))
	_, err = pgStore.NextSeq(ctx, "s-1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTraceIDValue(t *testing.T) {
	require.Nil(t, traceIDValue(""))
	require.Nil(t, traceIDValue("abc"))
	require.Equal(t, "4f0c5a5e-7c55-4b8f-9d8c-0d5b1b6f4a10", traceIDValue(" 4f0c5a5e-7c55-4b8f-9d8c-0d5b1b6f4a10 "))
}
