package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/filotkyc/engine/ids"
)

// Document mirrors the §3 Document entity.
type Document struct {
	ID                 string
	UserID             string
	Type               string
	BlobKey            string
	Status             string
	VerificationStatus string
	AIScore            *int
	AIDecision         *string
	ResultJSON         json.RawMessage
	OCRText            *string
	Buli2TicketID      *string
	CreatedAt          time.Time
	ProcessedAt        *time.Time
}

// DocumentRepository persists Documents.
type DocumentRepository struct {
	pool *Pool
}

func NewDocumentRepository(pool *Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// Create inserts a new Document in the `uploaded` status.
func (r *DocumentRepository) Create(ctx context.Context, userID, docType, blobKey string) (*Document, error) {
	d := &Document{}
	err := r.pool.Raw().QueryRow(ctx, `
		INSERT INTO documents (id, user_id, type, blob_key, status, verification_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, user_id, type, blob_key, status, verification_status,
		          ai_score, ai_decision, result_json, ocr_text, buli2_ticket_id, created_at, processed_at`,
		ids.New(), userID, docType, blobKey, DocumentStatusUploaded, VerificationPending).
		Scan(&d.ID, &d.UserID, &d.Type, &d.BlobKey, &d.Status, &d.VerificationStatus,
			&d.AIScore, &d.AIDecision, &d.ResultJSON, &d.OCRText, &d.Buli2TicketID, &d.CreatedAt, &d.ProcessedAt)
	if err != nil {
		return nil, fmt.Errorf("db: create document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*Document, error) {
	d := &Document{}
	err := r.pool.Raw().QueryRow(ctx, `
		SELECT id, user_id, type, blob_key, status, verification_status,
		       ai_score, ai_decision, result_json, ocr_text, buli2_ticket_id, created_at, processed_at
		FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.UserID, &d.Type, &d.BlobKey, &d.Status, &d.VerificationStatus,
			&d.AIScore, &d.AIDecision, &d.ResultJSON, &d.OCRText, &d.Buli2TicketID, &d.CreatedAt, &d.ProcessedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: get document %s: %w", id, err)
	}
	return d, nil
}

// TransitionToProcessing implements worker-pool step 5: moves
// `uploaded -> processing`. If the row is already `processing` this is not
// an error — the lock is the true mutual-exclusion primitive, the DB
// transition is advisory.
func (r *DocumentRepository) TransitionToProcessing(ctx context.Context, id string) error {
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE documents SET status = $1 WHERE id = $2 AND status = $3`,
		DocumentStatusProcessing, id, DocumentStatusUploaded)
	if err != nil {
		return fmt.Errorf("db: transition to processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either already processing (fine, lock governs) or truly missing;
		// caller already loaded the row so a missing row would have been
		// caught there.
		return nil
	}
	return nil
}

// PersistResult writes the terminal outcome of a successful processing run
// (worker-pool step 10).
func (r *DocumentRepository) PersistResult(ctx context.Context, id string, ocrText string, resultJSON json.RawMessage, score int, decision, verificationStatus string) error {
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE documents
		SET status = $1, verification_status = $2, ai_score = $3, ai_decision = $4,
		    result_json = $5, ocr_text = $6, processed_at = now()
		WHERE id = $7`,
		DocumentStatusCompleted, verificationStatus, score, decision, resultJSON, ocrText, id)
	if err != nil {
		return fmt.Errorf("db: persist result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("db: document not found: %s", id)
	}
	return nil
}

// MarkFailed persists a terminal failure with a structured error
// descriptor, used after retries are exhausted (worker-pool step, on
// attempts >= 3).
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, resultJSON json.RawMessage) error {
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE documents SET status = $1, result_json = $2, processed_at = now() WHERE id = $3`,
		DocumentStatusFailed, resultJSON, id)
	if err != nil {
		return fmt.Errorf("db: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("db: document not found: %s", id)
	}
	return nil
}

// SetVerificationStatus updates only the verification outcome, used by the
// Decision Router's explicit-evaluation path and by callback reconciliation.
func (r *DocumentRepository) SetVerificationStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE documents SET verification_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("db: set verification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("db: document not found: %s", id)
	}
	return nil
}

// SetAIScoreAndDecision persists the explicit-evaluation outcome (§4.8)
// without touching the processing `status`, which is already `completed`.
func (r *DocumentRepository) SetAIScoreAndDecision(ctx context.Context, id string, score int, decision string) error {
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE documents SET ai_score = $1, ai_decision = $2 WHERE id = $3`, score, decision, id)
	if err != nil {
		return fmt.Errorf("db: set score/decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("db: document not found: %s", id)
	}
	return nil
}

// SetBuli2TicketID records the external reviewer's opaque ticket ID.
func (r *DocumentRepository) SetBuli2TicketID(ctx context.Context, id, ticketID string) error {
	_, err := r.pool.Raw().Exec(ctx, `UPDATE documents SET buli2_ticket_id = $1 WHERE id = $2`, ticketID, id)
	if err != nil {
		return fmt.Errorf("db: set buli2 ticket id: %w", err)
	}
	return nil
}

// ResetToUploaded is the startup-recovery forced backward transition (§3
// Inv. 1 exception, §4.9 step 3): only applied to rows still `processing`.
func (r *DocumentRepository) ResetToUploaded(ctx context.Context, id string) error {
	_, err := r.pool.Raw().Exec(ctx, `
		UPDATE documents SET status = $1 WHERE id = $2 AND status = $3`,
		DocumentStatusUploaded, id, DocumentStatusProcessing)
	if err != nil {
		return fmt.Errorf("db: reset to uploaded: %w", err)
	}
	return nil
}

// ListByStatus returns every Document in the given status, used by startup
// recovery to find stuck `processing` rows.
func (r *DocumentRepository) ListByStatus(ctx context.Context, status string) ([]*Document, error) {
	rows, err := r.pool.Raw().Query(ctx, `
		SELECT id, user_id, type, blob_key, status, verification_status,
		       ai_score, ai_decision, result_json, ocr_text, buli2_ticket_id, created_at, processed_at
		FROM documents WHERE status = $1`, status)
	if err != nil {
		return nil, fmt.Errorf("db: list documents by status: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d := &Document{}
		if err := rows.Scan(&d.ID, &d.UserID, &d.Type, &d.BlobKey, &d.Status, &d.VerificationStatus,
			&d.AIScore, &d.AIDecision, &d.ResultJSON, &d.OCRText, &d.Buli2TicketID, &d.CreatedAt, &d.ProcessedAt); err != nil {
			return nil, fmt.Errorf("db: scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// IsTerminal reports whether the Document's verification_status is one of
// the terminal outcomes (§3 Inv. 2).
func (d *Document) IsTerminal() bool {
	return TerminalVerificationStatuses[d.VerificationStatus]
}
