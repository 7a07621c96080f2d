package api

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/decision"
	"github.com/filotkyc/engine/kycerr"
)

// VerificationHandler implements the `/verification/*` contracts in §6,
// wired to the Decision Router's explicit evaluate() entry point.
type VerificationHandler struct {
	Documents *DocumentsHandler // reused for currentUser/ownedDocument
	Reviews   *db.ManualReviewRepository
	Evaluator *decision.Evaluator
}

type evaluateRequest struct {
	DocumentID string `json:"documentId"`
}

// Evaluate implements POST /verification/evaluate.
func (h *VerificationHandler) Evaluate(c echo.Context) error {
	var req evaluateRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || req.DocumentID == "" {
		return writeErr(c, kycerr.New(kycerr.Validation, "VALIDATION_ERROR", "documentId is required"))
	}

	c.SetParamNames("id")
	c.SetParamValues(req.DocumentID)
	if _, err := h.Documents.ownedDocument(c); err != nil {
		return writeErr(c, err)
	}

	record, err := h.Evaluator.Evaluate(c.Request().Context(), req.DocumentID)
	if err != nil {
		return writeErr(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"documentId":         record.DocumentID,
		"score":              record.Score,
		"decision":           record.Decision,
		"verificationStatus": record.VerificationStatus,
		"reviewId":           record.ReviewID,
		"reasons":            record.Reasons,
	})
}

// Status implements GET /verification/status/{docId}.
func (h *VerificationHandler) Status(c echo.Context) error {
	c.SetParamNames("id")
	c.SetParamValues(c.Param("docId"))
	doc, err := h.Documents.ownedDocument(c)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, documentView(doc))
}

// Escalate implements POST /verification/{docId}/escalate: force a Document
// into manual review regardless of its score, bypassing both decision
// policies. Idempotent against an already-pending review (§3 Inv. 3): a
// second escalate call returns the existing review rather than creating a
// duplicate.
func (h *VerificationHandler) Escalate(c echo.Context) error {
	ctx := c.Request().Context()
	c.SetParamNames("id")
	c.SetParamValues(c.Param("docId"))
	doc, err := h.Documents.ownedDocument(c)
	if err != nil {
		return writeErr(c, err)
	}
	if doc.IsTerminal() {
		return writeErr(c, kycerr.New(kycerr.Validation, "ALREADY_DECIDED", "document verification is already terminal"))
	}

	existing, err := h.Reviews.GetActivePending(ctx, doc.ID)
	if err != nil {
		return writeErr(c, kycerr.Wrap(kycerr.Internal, "LOAD_REVIEW_FAILED", "failed to check for an active review", err))
	}
	if existing != nil {
		return c.JSON(http.StatusOK, map[string]any{
			"ticketId":           existing.ID,
			"verificationStatus": db.VerificationPendingManualReview,
		})
	}

	payload, _ := json.Marshal(map[string]any{"reasons": []string{"escalated on request"}})
	review, err := h.Reviews.Create(ctx, doc.ID, doc.UserID, payload)
	if err != nil {
		return writeErr(c, kycerr.Wrap(kycerr.Internal, "CREATE_REVIEW_FAILED", "failed to create manual review", err))
	}
	if err := h.Documents.Documents.SetVerificationStatus(ctx, doc.ID, db.VerificationPendingManualReview); err != nil {
		return writeErr(c, kycerr.Wrap(kycerr.Internal, "UPDATE_DOCUMENT_FAILED", "failed to update document status", err))
	}
	if h.Evaluator.Forwarder != nil {
		h.Evaluator.Forwarder.Forward(ctx, review, doc, []string{"escalated on request"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"ticketId":           review.ID,
		"verificationStatus": db.VerificationPendingManualReview,
	})
}
