// Package ids centralizes UUID minting and the user-scoped blob key format,
// so every component that names a document, review, or correlation ID agrees
// on the same shape.
package ids

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// New mints a random v4 UUID string, used for document IDs, review IDs, and
// correlation IDs alike.
func New() string {
	return uuid.NewString()
}

// NewCorrelationID mints a correlation ID; the worker pool calls it when it
// picks a document up for processing. Kept as a separate name from New so call sites read intention, not just "a uuid".
func NewCorrelationID() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// BlobKey builds the user-scoped storage key `{userId}/{type}_{uuid}.{ext}`
// required by the data-model invariant that forbids cross-user blob access.
func BlobKey(userID, docType, ext string) string {
	return fmt.Sprintf("%s/%s_%s.%s", userID, strings.ToLower(docType), New(), strings.TrimPrefix(ext, "."))
}

// OwnerFromBlobKey extracts the leading userID segment of a blob key.
func OwnerFromBlobKey(key string) (string, bool) {
	dir := path.Dir(key)
	if dir == "." || dir == "/" || dir == "" {
		return "", false
	}
	return dir, true
}
