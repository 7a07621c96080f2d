//go:build integration

package startup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/logging"
	"github.com/filotkyc/engine/queue"
)

// setupPostgresContainer mirrors db/postgres_integration_test.go's helper:
// a disposable Postgres so reconciliation runs against the real wire
// protocol instead of a mock.
func setupPostgresContainer(t *testing.T) *db.Pool {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "filotkyc",
			"POSTGRES_PASSWORD": "filotkyc",
			"POSTGRES_DB":       "filotkyc_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://filotkyc:filotkyc@%s:%s/filotkyc_test?sslmode=disable", host, port.Port())
	pool, err := db.Open(ctx, dsn, 5, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Raw().Exec(ctx, `
		CREATE TABLE users (
			id UUID PRIMARY KEY,
			subject TEXT UNIQUE NOT NULL,
			email TEXT,
			verification_status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now());
		CREATE TABLE documents (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			type TEXT NOT NULL,
			blob_key TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'uploaded',
			verification_status TEXT NOT NULL DEFAULT 'pending',
			ai_score INT,
			ai_decision TEXT,
			result_json JSONB,
			ocr_text TEXT,
			buli2_ticket_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed_at TIMESTAMPTZ);`)
	require.NoError(t, err)

	return pool
}

func newTestSubstrate(t *testing.T) *queue.Substrate {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := queue.New(context.Background(), queue.Config{
		URL:    "redis://" + mr.Addr() + "/0",
		Prefix: "filot:test:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecoverResetsAndReenqueuesStuckDocument(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgresContainer(t)
	substrate := newTestSubstrate(t)
	documents := db.NewDocumentRepository(pool)
	users := db.NewUserRepository(pool)
	log := logging.ForComponent("test")

	user, err := users.GetOrCreateBySubject(ctx, "sub-1", "a@b.com")
	require.NoError(t, err)

	doc, err := documents.Create(ctx, user.ID, db.DocTypeKTP, "key-1")
	require.NoError(t, err)
	require.NoError(t, documents.TransitionToProcessing(ctx, doc.ID))

	_, err = substrate.Enqueue(ctx, queue.CPU, doc.ID)
	require.NoError(t, err)
	_, err = substrate.Dequeue(ctx, queue.CPU, time.Second)
	require.NoError(t, err)

	require.NoError(t, Recover(ctx, substrate, documents, []queue.Family{queue.CPU}, log))

	reloaded, err := documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, db.DocumentStatusUploaded, reloaded.Status)

	set, err := substrate.ProcessingSet(ctx, queue.CPU)
	require.NoError(t, err)
	assert.NotContains(t, set, doc.ID, "processing entry should be cleared before re-enqueue")

	popped, err := substrate.Dequeue(ctx, queue.CPU, time.Second)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, popped, "stuck document should be re-enqueued")
}

func TestRecoverClearsProcessingEntryWithNoBackingDocument(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgresContainer(t)
	substrate := newTestSubstrate(t)
	documents := db.NewDocumentRepository(pool)
	log := logging.ForComponent("test")

	_, err := substrate.Enqueue(ctx, queue.CPU, "ghost-doc")
	require.NoError(t, err)
	_, err = substrate.Dequeue(ctx, queue.CPU, time.Second)
	require.NoError(t, err)

	require.NoError(t, Recover(ctx, substrate, documents, []queue.Family{queue.CPU}, log))

	set, err := substrate.ProcessingSet(ctx, queue.CPU)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestWaitForSubstrateFailsFastWhenUnreachable(t *testing.T) {
	orig := pingRetryDelay
	pingRetryDelay = time.Millisecond
	t.Cleanup(func() { pingRetryDelay = orig })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	s, err := queue.New(context.Background(), queue.Config{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	mr.Close()
	_ = s.Close()

	log := logging.ForComponent("test")
	err = waitForSubstrate(context.Background(), s, log)
	assert.Error(t, err)
}
