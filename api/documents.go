package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/ids"
	"github.com/filotkyc/engine/kycerr"
	"github.com/filotkyc/engine/queue"
	"github.com/filotkyc/engine/storage"
)

// DocumentsHandler implements the `/documents/*` contracts in §6.
type DocumentsHandler struct {
	Users     *db.UserRepository
	Documents *db.DocumentRepository
	Blob      *storage.Blob
	Substrate *queue.Substrate
	Family    queue.Family
}

// Upload implements POST /documents/upload.
func (h *DocumentsHandler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := h.currentUser(c)
	if err != nil {
		return writeErr(c, err)
	}

	docType := strings.ToUpper(c.FormValue("type"))
	if docType != db.DocTypeKTP && docType != db.DocTypeNPWP {
		return writeErr(c, kycerr.New(kycerr.Validation, "INVALID_DOCUMENT_TYPE", `type must be "KTP" or "NPWP"`))
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return writeErr(c, kycerr.New(kycerr.Validation, "MISSING_FILE", "multipart field \"file\" is required"))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return writeErr(c, kycerr.Wrap(kycerr.Validation, "UNREADABLE_FILE", "could not open uploaded file", err))
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return writeErr(c, kycerr.Wrap(kycerr.Validation, "UNREADABLE_FILE", "could not read uploaded file", err))
	}

	contentType := fileHeader.Header.Get("Content-Type")
	blobKey := ids.BlobKey(user.ID, docType, filepath.Ext(fileHeader.Filename))

	if err := h.Blob.Put(ctx, blobKey, data, contentType); err != nil {
		return writeErr(c, err)
	}

	doc, err := h.Documents.Create(ctx, user.ID, docType, blobKey)
	if err != nil {
		return writeErr(c, kycerr.Wrap(kycerr.Internal, "CREATE_DOCUMENT_FAILED", "failed to persist document", err))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"documentId": doc.ID,
		"document":   documentView(doc),
	})
}

// Process implements POST /documents/{id}/process: enqueues the owned
// Document for OCR.
func (h *DocumentsHandler) Process(c echo.Context) error {
	ctx := c.Request().Context()
	doc, err := h.ownedDocument(c)
	if err != nil {
		return writeErr(c, err)
	}
	if doc.Status != db.DocumentStatusUploaded {
		return writeErr(c, kycerr.New(kycerr.Validation, "ALREADY_QUEUED", fmt.Sprintf("document is already %s", doc.Status)))
	}

	if _, err := h.Substrate.Enqueue(ctx, h.Family, doc.ID); err != nil {
		return writeErr(c, kycerr.Wrap(kycerr.Transient, "ENQUEUE_FAILED", "failed to enqueue document", err))
	}

	return c.JSON(http.StatusOK, map[string]any{"queued": true, "documentId": doc.ID})
}

// Result implements GET /documents/{id}/result.
func (h *DocumentsHandler) Result(c echo.Context) error {
	doc, err := h.ownedDocument(c)
	if err != nil {
		return writeErr(c, err)
	}

	resp := map[string]any{"status": doc.Status}
	switch doc.Status {
	case db.DocumentStatusCompleted:
		resp["result"] = documentView(doc)
	case db.DocumentStatusFailed:
		resp["error"] = doc.ResultJSON
	}
	return c.JSON(http.StatusOK, resp)
}

// Download implements GET /documents/{id}/download: a presigned URL, never
// the raw bytes, per the Blob Interface's "keys are never public" rule.
func (h *DocumentsHandler) Download(c echo.Context) error {
	doc, err := h.ownedDocument(c)
	if err != nil {
		return writeErr(c, err)
	}
	url, err := h.Blob.Presign(c.Request().Context(), doc.BlobKey, 0)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"url": url, "expiresIn": int64(time.Hour.Seconds())})
}

// currentUser resolves the bearer subject to a User row, creating one
// lazily on first sight per §3.
func (h *DocumentsHandler) currentUser(c echo.Context) (*db.User, error) {
	subject := Subject(c)
	if subject == "" {
		return nil, kycerr.New(kycerr.AuthN, "MISSING_SUBJECT", "no authenticated subject on request")
	}
	user, err := h.Users.GetOrCreateBySubject(c.Request().Context(), subject, Email(c))
	if err != nil {
		return nil, kycerr.Wrap(kycerr.Internal, "RESOLVE_USER_FAILED", "failed to resolve user", err)
	}
	return user, nil
}

// ownedDocument loads the path-param Document and enforces the owner
// check every `user (owner)` contract cell requires.
func (h *DocumentsHandler) ownedDocument(c echo.Context) (*db.Document, error) {
	user, err := h.currentUser(c)
	if err != nil {
		return nil, err
	}
	id := c.Param("id")
	doc, err := h.Documents.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, kycerr.Wrap(kycerr.Internal, "LOAD_DOCUMENT_FAILED", "failed to load document", err)
	}
	if doc == nil {
		return nil, kycerr.New(kycerr.NotFound, "DOCUMENT_NOT_FOUND", "document not found")
	}
	if doc.UserID != user.ID {
		// 404, not 403: an ownership mismatch must look identical to a
		// missing document so probing IDs can't enumerate other users'.
		return nil, kycerr.New(kycerr.NotFound, "DOCUMENT_NOT_FOUND", "document not found")
	}
	return doc, nil
}

func documentView(doc *db.Document) map[string]any {
	return map[string]any{
		"id":                 doc.ID,
		"type":               doc.Type,
		"status":             doc.Status,
		"verificationStatus": doc.VerificationStatus,
		"aiScore":            doc.AIScore,
		"aiDecision":         doc.AIDecision,
		"createdAt":          doc.CreatedAt,
		"processedAt":        doc.ProcessedAt,
	}
}
