package callback

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// verifySignature reports whether header (the raw X-Buli2-Signature value)
// is a valid HMAC-SHA256 of body under secret, or under secretOld if
// secretOld is non-empty — a one-migration-window fallback for secret
// rotation. Comparison is timing-safe.
func verifySignature(header string, body []byte, secret, secretOld string) bool {
	hexDigest, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return false
	}
	given, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false
	}

	if secret != "" && hmac.Equal(given, sign(body, secret)) {
		return true
	}
	if secretOld != "" && hmac.Equal(given, sign(body, secretOld)) {
		return true
	}
	return false
}

func sign(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
