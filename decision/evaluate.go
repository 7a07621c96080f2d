package decision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/filotkyc/engine/config"
	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/kycerr"
	"github.com/filotkyc/engine/parser"
	"github.com/filotkyc/engine/scoring"
)

// Forwarder hands a newly-escalated ManualReview to the Review Forwarder;
// defined here (rather than imported from the reviewer package) so this
// package does not need the forwarder's HTTP/circuit-breaker machinery to
// compile, mirroring the worker package's own Forwarder boundary.
type Forwarder interface {
	Forward(ctx context.Context, review *db.ManualReview, doc *db.Document, reasons []string)
}

// Record is the full decision returned synchronously by Evaluate.
type Record struct {
	DocumentID         string
	Score              int
	Decision           string
	VerificationStatus string
	ReviewID           *string
	Reasons            []string
}

// Evaluator implements the Decision Router's explicit evaluate(documentId)
// entry point (§4.8): runs the configurable policy (§4.5) rather than the
// worker pool's fixed conservative one.
type Evaluator struct {
	Documents *db.DocumentRepository
	Reviews   *db.ManualReviewRepository
	Users     *db.UserRepository
	Forwarder Forwarder
	Scoring   config.ScoringConfig
}

// Evaluate requires the Document be `completed` (already OCR'd by the
// worker pool). It is idempotent with respect to an already-terminal
// Document: it returns the existing recorded outcome without
// recomputation or side effects.
func (e *Evaluator) Evaluate(ctx context.Context, documentID string) (*Record, error) {
	doc, err := e.Documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("decision: load document: %w", err)
	}
	if doc == nil {
		return nil, kycerr.New(kycerr.NotFound, "DOCUMENT_NOT_FOUND", "document not found")
	}
	if doc.Status != db.DocumentStatusCompleted {
		return nil, kycerr.New(kycerr.Validation, "DOCUMENT_NOT_PROCESSED", "document has not finished OCR processing")
	}

	if doc.IsTerminal() {
		return e.recordFromDocument(doc), nil
	}

	ocrText := ""
	if doc.OCRText != nil {
		ocrText = *doc.OCRText
	}

	var resultFields any
	var score scoring.Result
	switch doc.Type {
	case db.DocTypeKTP:
		fields := parser.ParseKTP(ocrText)
		resultFields = fields
		score = scoring.ScoreKTP(fields, ocrText)
	case db.DocTypeNPWP:
		fields := parser.ParseNPWP(ocrText)
		resultFields = fields
		score = scoring.ScoreNPWP(fields, ocrText)
	default:
		return nil, kycerr.New(kycerr.Processing, "UNKNOWN_DOCUMENT_TYPE", fmt.Sprintf("unrecognized document type %q", doc.Type))
	}

	decisionStr, reason := scoring.DecideExplicit(score.Score, e.Scoring.AutoApproveThreshold, e.Scoring.AutoRejectThreshold)
	reasons := append(append([]string{}, score.Reasons...), reason)

	var verificationStatus string
	switch decisionStr {
	case scoring.DecisionAutoApprove:
		verificationStatus = db.VerificationAutoApproved
	case scoring.DecisionAutoReject:
		verificationStatus = db.VerificationAutoRejected
	default:
		verificationStatus = db.VerificationPendingManualReview
	}

	if err := e.Documents.SetAIScoreAndDecision(ctx, doc.ID, score.Score, decisionStr); err != nil {
		return nil, fmt.Errorf("decision: persist score: %w", err)
	}
	if err := e.Documents.SetVerificationStatus(ctx, doc.ID, verificationStatus); err != nil {
		return nil, fmt.Errorf("decision: persist verification status: %w", err)
	}

	record := &Record{
		DocumentID:         doc.ID,
		Score:              score.Score,
		Decision:           decisionStr,
		VerificationStatus: verificationStatus,
		Reasons:            reasons,
	}

	switch decisionStr {
	case scoring.DecisionNeedsReview:
		existing, err := e.Reviews.GetActivePending(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("decision: load active review: %w", err)
		}
		if existing != nil {
			record.ReviewID = &existing.ID
			break
		}
		payload, _ := json.Marshal(map[string]any{"parsed": resultFields, "reasons": reasons})
		review, err := e.Reviews.Create(ctx, doc.ID, doc.UserID, payload)
		if err != nil {
			return nil, fmt.Errorf("decision: create manual review: %w", err)
		}
		record.ReviewID = &review.ID
		if e.Forwarder != nil {
			e.Forwarder.Forward(ctx, review, doc, reasons)
		}
	default:
		if err := ApplyJoin(ctx, e.Users, doc.UserID); err != nil {
			return nil, fmt.Errorf("decision: apply user join: %w", err)
		}
	}

	return record, nil
}

func (e *Evaluator) recordFromDocument(doc *db.Document) *Record {
	score := 0
	if doc.AIScore != nil {
		score = *doc.AIScore
	}
	decisionStr := ""
	if doc.AIDecision != nil {
		decisionStr = *doc.AIDecision
	}
	return &Record{
		DocumentID:         doc.ID,
		Score:              score,
		Decision:           decisionStr,
		VerificationStatus: doc.VerificationStatus,
	}
}
