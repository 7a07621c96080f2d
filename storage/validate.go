package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/filotkyc/engine/kycerr"
)

// allowedType pairs a MIME type with its accepted file extensions and magic
// number, per the §4.2/§8 upload-validation invariant.
type allowedType struct {
	mime       string
	extensions []string
	magic      []byte
}

var allowedTypes = []allowedType{
	{mime: "image/jpeg", extensions: []string{".jpg", ".jpeg"}, magic: []byte{0xFF, 0xD8, 0xFF}},
	{mime: "image/png", extensions: []string{".png"}, magic: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{mime: "application/pdf", extensions: []string{".pdf"}, magic: []byte{0x25, 0x50, 0x44, 0x46}},
}

// ValidateUpload enforces: size <= MaxUploadBytes, magic bytes match the
// declared MIME type, MIME is one of the allowed set, and the key's
// extension is consistent with it.
func ValidateUpload(key string, data []byte, contentType string) error {
	if len(data) == 0 {
		return kycerr.New(kycerr.Validation, "EMPTY_FILE", "uploaded file is empty")
	}
	if len(data) > MaxUploadBytes {
		return kycerr.New(kycerr.Validation, "FILE_TOO_LARGE",
			fmt.Sprintf("file size %d exceeds maximum of %d bytes", len(data), MaxUploadBytes))
	}

	match, ok := matchAllowedType(contentType)
	if !ok {
		return kycerr.New(kycerr.Validation, "UNSUPPORTED_MEDIA_TYPE",
			fmt.Sprintf("content type %q is not one of image/jpeg, image/png, application/pdf", contentType))
	}

	if !bytes.HasPrefix(data, match.magic) {
		return kycerr.New(kycerr.Validation, "MAGIC_BYTES_MISMATCH",
			"file contents do not match the declared content type")
	}

	ext := strings.ToLower(filepath.Ext(key))
	if !containsString(match.extensions, ext) {
		return kycerr.New(kycerr.Validation, "EXTENSION_MISMATCH",
			fmt.Sprintf("extension %q does not match content type %q", ext, contentType))
	}

	return nil
}

func matchAllowedType(contentType string) (allowedType, bool) {
	for _, t := range allowedTypes {
		if t.mime == contentType {
			return t, true
		}
	}
	return allowedType{}, false
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
