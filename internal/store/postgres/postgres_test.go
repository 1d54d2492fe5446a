//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/anas-786ss/llm-quiz-solver/internal/store"
)

var (
	testDB   *sql.DB
	testConn string
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tcpostgres.Run(
		ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("quiz"),
		tcpostgres.WithUsername("quiz"),
		tcpostgres.WithPassword("quiz"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "start postgres container:", err)
		os.Exit(1)
	}
	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintln(os.Stderr, "connection string:", err)
		os.Exit(1)
	}
	ldb, err := sql.Open("pgx", conn)
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	if err := waitForDB(ldb); err != nil {
		_ = ldb.Close()
		_ = container.Terminate(ctx)
		fmt.Fprintln(os.Stderr, "ping db:", err)
		os.Exit(1)
	}
	if err := applyMigrations(ctx, ldb); err != nil {
		_ = ldb.Close()
		_ = container.Terminate(ctx)
		fmt.Fprintln(os.Stderr, "apply migrations:", err)
		os.Exit(1)
	}
	testDB = ldb
	testConn = conn
	code := m.Run()
	_ = ldb.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	migrationsDir := filepath.Join(root, "infra", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return err
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		contents, err := os.ReadFile(filepath.Join(migrationsDir, name))
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func waitForDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var lastErr error
	for i := 0; i < 20; i++ {
		if lastErr = db.PingContext(ctx); lastErr == nil {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func repoRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("resolve repo root")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "..")), nil
}

func cleanDB(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(`TRUNCATE TABLE session_events, session_event_sequences`)
	require.NoError(t, err)
}

func TestNewVerifiesSchema(t *testing.T) {
	pgStore, err := New(testConn)
	require.NoError(t, err)
	require.NoError(t, pgStore.Ping(context.Background()))
	require.NoError(t, pgStore.Close())
}

func TestNewMissingTable(t *testing.T) {
	ctx := context.Background()
	_, err := testDB.ExecContext(ctx, "DROP TABLE IF EXISTS session_event_sequences")
	require.NoError(t, err)
	_, err = New(testConn)
	require.ErrorContains(t, err, "session_event_sequences")
	require.NoError(t, applyMigrations(ctx, testDB))
}

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	cleanDB(t)
	pgStore := &PostgresStore{db: testDB}
	sessionID := uuid.NewString()

	for i := 0; i < 3; i++ {
		seq, err := pgStore.NextSeq(ctx, sessionID)
		require.NoError(t, err)
		require.NoError(t, pgStore.AppendEvent(ctx, store.SessionEvent{
			SessionID: sessionID,
			Seq:       seq,
			Type:      "page.rendered",
			Source:    "engine",
			TraceID:   uuid.NewString(),
			Payload:   map[string]any{"index": i},
		}))
	}

	events, err := pgStore.ListEvents(ctx, sessionID, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(2), events[0].Seq)
	require.Equal(t, float64(1), events[0].Payload["index"])
	require.NotEmpty(t, events[0].TraceID)
}

func TestNextSeqConcurrent(t *testing.T) {
	ctx := context.Background()
	cleanDB(t)
	pgStore := &PostgresStore{db: testDB}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int64]struct{}{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := pgStore.NextSeq(ctx, "s-concurrent")
			require.NoError(t, err)
			mu.Lock()
			seen[seq] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, 20)
}
