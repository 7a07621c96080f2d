package api

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/decision"
	"github.com/filotkyc/engine/kycerr"
	"github.com/filotkyc/engine/parser"
	"github.com/filotkyc/engine/scoring"
)

// InternalHandler implements the internal contract that is not already
// owned by the callback package: the alternate inbound result path. Only
// the service-key middleware guards it; Result itself checks no HMAC
// signature on the body.
type InternalHandler struct {
	Documents *db.DocumentRepository
	Reviews   *db.ManualReviewRepository
	Users     *db.UserRepository
	Forwarder decision.Forwarder
	Threshold int
}

// alternateResultPayload is the body of POST /internal/verification/result:
// a pre-computed OCR outcome pushed by an out-of-process OCR worker that
// bypassed the Worker Pool's own dequeue-download-OCR steps but still needs
// the same score-decide-persist-route tail (§4.6 steps 8–11).
type alternateResultPayload struct {
	DocumentID string `json:"documentId"`
	OCRText    string `json:"ocrText"`
}

// Result implements POST /internal/verification/result.
func (h *InternalHandler) Result(c echo.Context) error {
	var p alternateResultPayload
	if err := json.NewDecoder(c.Request().Body).Decode(&p); err != nil || p.DocumentID == "" {
		return writeErr(c, kycerr.New(kycerr.Validation, "VALIDATION_ERROR", "documentId is required"))
	}

	ctx := c.Request().Context()
	doc, err := h.Documents.GetByID(ctx, p.DocumentID)
	if err != nil {
		return writeErr(c, kycerr.Wrap(kycerr.Internal, "LOAD_DOCUMENT_FAILED", "failed to load document", err))
	}
	if doc == nil {
		return writeErr(c, kycerr.New(kycerr.NotFound, "DOCUMENT_NOT_FOUND", "document not found"))
	}
	if doc.IsTerminal() {
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}

	var resultFields any
	var score scoring.Result
	switch doc.Type {
	case db.DocTypeKTP:
		fields := parser.ParseKTP(p.OCRText)
		resultFields = fields
		score = scoring.ScoreKTP(fields, p.OCRText)
	case db.DocTypeNPWP:
		fields := parser.ParseNPWP(p.OCRText)
		resultFields = fields
		score = scoring.ScoreNPWP(fields, p.OCRText)
	default:
		return writeErr(c, kycerr.New(kycerr.Processing, "UNKNOWN_DOCUMENT_TYPE", "unrecognized document type"))
	}

	decisionStr, reason := scoring.DecideConservative(score.Score, h.Threshold)
	reasons := append(append([]string{}, score.Reasons...), reason)

	verificationStatus := db.VerificationPendingManualReview
	if decisionStr == scoring.DecisionAutoApproved {
		verificationStatus = db.VerificationAutoApproved
	}

	resultJSON, _ := json.Marshal(map[string]any{"parsed": resultFields, "reasons": reasons})
	if err := h.Documents.PersistResult(ctx, doc.ID, p.OCRText, resultJSON, score.Score, decisionStr, verificationStatus); err != nil {
		return writeErr(c, kycerr.Wrap(kycerr.Internal, "PERSIST_RESULT_FAILED", "failed to persist result", err))
	}

	switch decisionStr {
	case scoring.DecisionAutoApproved:
		if err := decision.ApplyJoin(ctx, h.Users, doc.UserID); err != nil {
			return writeErr(c, kycerr.Wrap(kycerr.Internal, "APPLY_JOIN_FAILED", "failed to apply user verification join", err))
		}
	default:
		existing, err := h.Reviews.GetActivePending(ctx, doc.ID)
		if err != nil {
			return writeErr(c, kycerr.Wrap(kycerr.Internal, "LOAD_REVIEW_FAILED", "failed to check for an active review", err))
		}
		if existing != nil {
			break
		}
		review, err := h.Reviews.Create(ctx, doc.ID, doc.UserID, resultJSON)
		if err != nil {
			return writeErr(c, kycerr.Wrap(kycerr.Internal, "CREATE_REVIEW_FAILED", "failed to create manual review", err))
		}
		if h.Forwarder != nil {
			h.Forwarder.Forward(ctx, review, doc, reasons)
		}
	}

	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
