//go:build integration

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresContainer starts a disposable PostgreSQL instance so the
// repository SQL runs against the real wire protocol instead of a mock.
func setupPostgresContainer(t *testing.T) (string, func()) {
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

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://filotkyc:filotkyc@%s:%s/filotkyc_test?sslmode=disable", host, port.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}
	return dsn, cleanup
}

func migrate(ctx context.Context, t *testing.T, pool *Pool) {
	_, err := pool.Raw().Exec(ctx, `
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
			processed_at TIMESTAMPTZ);
		CREATE TABLE manual_reviews (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id),
			user_id UUID NOT NULL REFERENCES users(id),
			payload JSONB NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			decision TEXT,
			notes TEXT,
			buli2_task_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now());`)
	require.NoError(t, err)
}

func TestIntegration_UserLifecycle(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	defer cleanup()

	ctx := context.Background()
	pool, err := Open(ctx, dsn, 5, 10*time.Second)
	require.NoError(t, err)
	defer pool.Close()
	migrate(ctx, t, pool)

	users := NewUserRepository(pool)
	u, err := users.GetOrCreateBySubject(ctx, "idp-subject-1", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, VerificationPending, u.VerificationStatus)

	again, err := users.GetOrCreateBySubject(ctx, "idp-subject-1", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID, "second auth for the same subject must not create a duplicate user")

	require.NoError(t, users.SetVerificationStatus(ctx, u.ID, VerificationAutoApproved))
	fetched, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, VerificationAutoApproved, fetched.VerificationStatus)
}

func TestIntegration_DocumentAndManualReviewLifecycle(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	defer cleanup()

	ctx := context.Background()
	pool, err := Open(ctx, dsn, 5, 10*time.Second)
	require.NoError(t, err)
	defer pool.Close()
	migrate(ctx, t, pool)

	users := NewUserRepository(pool)
	documents := NewDocumentRepository(pool)
	reviews := NewManualReviewRepository(pool)

	u, err := users.GetOrCreateBySubject(ctx, "idp-subject-2", "bob@example.com")
	require.NoError(t, err)

	doc, err := documents.Create(ctx, u.ID, DocTypeKTP, u.ID+"/ktp_abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, DocumentStatusUploaded, doc.Status)

	require.NoError(t, documents.TransitionToProcessing(ctx, doc.ID))
	processing, err := documents.ListByStatus(ctx, DocumentStatusProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, doc.ID, processing[0].ID)

	payload, _ := json.Marshal(map[string]any{"nik": "3201xxxxxxxxxxxx"})
	active, err := reviews.GetActivePending(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	review, err := reviews.Create(ctx, doc.ID, u.ID, payload)
	require.NoError(t, err)
	assert.Equal(t, ReviewStatusPending, review.Status)

	active, err = reviews.GetActivePending(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, review.ID, active.ID)

	decided, err := reviews.UpdateDecision(ctx, review.ID, "approve", "looks genuine")
	require.NoError(t, err)
	assert.Equal(t, ReviewStatusApproved, decided.Status)

	// A duplicate decision on an already-terminal review must be a no-op.
	again, err := reviews.UpdateDecision(ctx, review.ID, "reject", "late duplicate callback")
	require.NoError(t, err)
	assert.Equal(t, ReviewStatusApproved, again.Status)
}
