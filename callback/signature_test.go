package callback

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sigFor(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureValidPrimary(t *testing.T) {
	body := []byte(`{"decision":"approved"}`)
	sig := sigFor(body, "primary-secret")
	if !verifySignature(sig, body, "primary-secret", "") {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifySignatureFallsBackToLegacySecret(t *testing.T) {
	body := []byte(`{"decision":"approved"}`)
	sig := sigFor(body, "old-secret")
	if !verifySignature(sig, body, "new-secret", "old-secret") {
		t.Fatal("expected legacy-secret signature to verify")
	}
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	sig := sigFor([]byte(`{"decision":"approved"}`), "primary-secret")
	tampered := []byte(`{"decision":"rejected"}`)
	if verifySignature(sig, tampered, "primary-secret", "") {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestVerifySignatureRejectsMissingPrefix(t *testing.T) {
	body := []byte(`{"decision":"approved"}`)
	mac := hmac.New(sha256.New, []byte("primary-secret"))
	mac.Write(body)
	bare := hex.EncodeToString(mac.Sum(nil))
	if verifySignature(bare, body, "primary-secret", "") {
		t.Fatal("expected signature without sha256= prefix to fail")
	}
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"decision":"approved"}`)
	sig := sigFor(body, "wrong-secret")
	if verifySignature(sig, body, "primary-secret", "old-secret") {
		t.Fatal("expected signature from an unknown secret to fail")
	}
}
