package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/filotkyc/engine/ids"
)

// ManualReview mirrors the §3 ManualReview entity: a snapshot of a
// Document's processing result escalated for human judgment.
type ManualReview struct {
	ID          string
	DocumentID  string
	UserID      string
	Payload     json.RawMessage
	Status      string
	Decision    *string
	Notes       *string
	Buli2TaskID *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ManualReviewRepository persists ManualReviews.
type ManualReviewRepository struct {
	pool *Pool
}

func NewManualReviewRepository(pool *Pool) *ManualReviewRepository {
	return &ManualReviewRepository{pool: pool}
}

// Create escalates a Document by snapshotting its parsed/scored payload.
// Callers must check GetActivePending first — §3 Inv. 3 forbids a second
// concurrent pending review for the same Document, and this repository does
// not serialize the check-then-insert itself.
func (r *ManualReviewRepository) Create(ctx context.Context, documentID, userID string, payload json.RawMessage) (*ManualReview, error) {
	mr := &ManualReview{}
	err := r.pool.Raw().QueryRow(ctx, `
		INSERT INTO manual_reviews (id, document_id, user_id, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, document_id, user_id, payload, status, decision, notes, buli2_task_id, created_at, updated_at`,
		ids.New(), documentID, userID, payload, ReviewStatusPending).
		Scan(&mr.ID, &mr.DocumentID, &mr.UserID, &mr.Payload, &mr.Status, &mr.Decision, &mr.Notes, &mr.Buli2TaskID, &mr.CreatedAt, &mr.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db: create manual review: %w", err)
	}
	return mr, nil
}

func (r *ManualReviewRepository) GetByID(ctx context.Context, id string) (*ManualReview, error) {
	mr := &ManualReview{}
	err := r.pool.Raw().QueryRow(ctx, `
		SELECT id, document_id, user_id, payload, status, decision, notes, buli2_task_id, created_at, updated_at
		FROM manual_reviews WHERE id = $1`, id).
		Scan(&mr.ID, &mr.DocumentID, &mr.UserID, &mr.Payload, &mr.Status, &mr.Decision, &mr.Notes, &mr.Buli2TaskID, &mr.CreatedAt, &mr.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: get manual review %s: %w", id, err)
	}
	return mr, nil
}

// GetActivePending returns the in-flight review for a Document, if any,
// enforcing the at-most-one-active-review invariant (§3 Inv. 3) at the call
// site: callers must check this returns nil before Create.
func (r *ManualReviewRepository) GetActivePending(ctx context.Context, documentID string) (*ManualReview, error) {
	mr := &ManualReview{}
	err := r.pool.Raw().QueryRow(ctx, `
		SELECT id, document_id, user_id, payload, status, decision, notes, buli2_task_id, created_at, updated_at
		FROM manual_reviews WHERE document_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1`, documentID, ReviewStatusPending).
		Scan(&mr.ID, &mr.DocumentID, &mr.UserID, &mr.Payload, &mr.Status, &mr.Decision, &mr.Notes, &mr.Buli2TaskID, &mr.CreatedAt, &mr.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: get active review for document %s: %w", documentID, err)
	}
	return mr, nil
}

// UpdateDecision resolves a pending review. It is a no-op (not an error)
// when the review is already terminal, matching the idempotent-callback
// property in §8: a duplicate decision for an already-decided review must
// not flip state twice.
func (r *ManualReviewRepository) UpdateDecision(ctx context.Context, id, decision, notes string) (*ManualReview, error) {
	mr, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if mr == nil {
		return nil, fmt.Errorf("db: manual review not found: %s", id)
	}
	if TerminalReviewStatuses[mr.Status] {
		return mr, nil
	}

	status := ReviewStatusRejected
	if decision == "approve" || decision == ReviewStatusApproved {
		status = ReviewStatusApproved
	}

	updated := &ManualReview{}
	err = r.pool.Raw().QueryRow(ctx, `
		UPDATE manual_reviews
		SET status = $1, decision = $2, notes = $3, updated_at = now()
		WHERE id = $4
		RETURNING id, document_id, user_id, payload, status, decision, notes, buli2_task_id, created_at, updated_at`,
		status, decision, notes, id).
		Scan(&updated.ID, &updated.DocumentID, &updated.UserID, &updated.Payload, &updated.Status, &updated.Decision, &updated.Notes, &updated.Buli2TaskID, &updated.CreatedAt, &updated.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db: update manual review decision: %w", err)
	}
	return updated, nil
}

// SetBuli2TaskID records the external reviewer's opaque task ID once the
// Review Forwarder successfully submits the escalation.
func (r *ManualReviewRepository) SetBuli2TaskID(ctx context.Context, id, taskID string) error {
	_, err := r.pool.Raw().Exec(ctx, `UPDATE manual_reviews SET buli2_task_id = $1, updated_at = now() WHERE id = $2`, taskID, id)
	if err != nil {
		return fmt.Errorf("db: set buli2 task id: %w", err)
	}
	return nil
}

func (mr *ManualReview) IsTerminal() bool {
	return TerminalReviewStatuses[mr.Status]
}
