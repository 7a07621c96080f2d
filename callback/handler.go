// Package callback implements the Callback Receiver (§4.8): the inbound
// signed-webhook endpoint the external reviewer service calls back on with
// a human decision, and the state reconciliation that follows it.
package callback

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filotkyc/engine/config"
	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/decision"
	"github.com/filotkyc/engine/logging"
	"github.com/filotkyc/engine/metrics"
)

// payload is the inbound callback body: {decision, notes?, taskId?}.
type payload struct {
	Decision string  `json:"decision"`
	Notes    *string `json:"notes"`
	TaskID   *string `json:"taskId"`
}

// Handler wires the Callback Receiver's dependencies.
type Handler struct {
	Reviews   *db.ManualReviewRepository
	Documents *db.DocumentRepository
	Users     *db.UserRepository
	Config    config.ReviewerConfig
	Logger    *logging.ContextLogger
	Metrics   *metrics.Registry
}

func (h *Handler) recordCallback(result string) {
	if h.Metrics != nil {
		h.Metrics.RecordReviewCallback(result)
	}
}

// errorBody is the uniform rejection-case response shape.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handle implements POST /internal/reviews/{reviewId}/callback.
func (h *Handler) Handle(c echo.Context) error {
	log := h.Logger.WithField("component", "callback-receiver")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Code: "VALIDATION_ERROR", Message: "unreadable request body"})
	}

	sig := c.Request().Header.Get("X-Buli2-Signature")
	if sig == "" {
		h.recordCallback("missing_signature")
		return c.JSON(http.StatusUnauthorized, errorBody{Code: "MISSING_SIGNATURE", Message: "X-Buli2-Signature header is required"})
	}
	if !verifySignature(sig, body, h.Config.HMACSecret, h.Config.HMACSecretOld) {
		h.recordCallback("invalid_signature")
		return c.JSON(http.StatusUnauthorized, errorBody{Code: "INVALID_SIGNATURE", Message: "HMAC signature does not match"})
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		h.recordCallback("validation_error")
		return c.JSON(http.StatusBadRequest, errorBody{Code: "VALIDATION_ERROR", Message: "malformed JSON body"})
	}
	if p.Decision != db.ReviewStatusApproved && p.Decision != db.ReviewStatusRejected {
		h.recordCallback("validation_error")
		return c.JSON(http.StatusBadRequest, errorBody{Code: "VALIDATION_ERROR", Message: "decision must be \"approved\" or \"rejected\""})
	}

	ctx := c.Request().Context()
	reviewID := c.Param("reviewId")

	review, err := h.Reviews.GetByID(ctx, reviewID)
	if err != nil {
		log.WithError(err).Error("load manual review failed")
		return c.JSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL_ERROR", Message: "failed to load review"})
	}
	if review == nil {
		h.recordCallback("not_found")
		return c.JSON(http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "manual review not found"})
	}

	// §3 Inv. / §5: exactly one state transition per callback; replays on
	// an already-terminal review are idempotent no-ops.
	if review.IsTerminal() {
		h.recordCallback("replay")
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}

	notes := ""
	if p.Notes != nil {
		notes = *p.Notes
	}
	updated, err := h.Reviews.UpdateDecision(ctx, reviewID, p.Decision, notes)
	if err != nil {
		log.WithError(err).Error("update manual review decision failed")
		return c.JSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL_ERROR", Message: "failed to record decision"})
	}
	if p.TaskID != nil {
		if err := h.Reviews.SetBuli2TaskID(ctx, reviewID, *p.TaskID); err != nil {
			log.WithError(err).Warn("failed to record reviewer task id")
		}
	}

	verificationStatus := db.VerificationManuallyRejected
	if updated.Decision != nil && *updated.Decision == db.ReviewStatusApproved {
		verificationStatus = db.VerificationManuallyApproved
	}
	if err := h.Documents.SetVerificationStatus(ctx, updated.DocumentID, verificationStatus); err != nil {
		log.WithError(err).Error("failed to persist document verification status")
		return c.JSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL_ERROR", Message: "failed to update document"})
	}

	if err := decision.ApplyJoin(ctx, h.Users, updated.UserID); err != nil {
		log.WithError(err).Error("failed to apply user verification join")
	}

	h.recordCallback("accepted")
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
