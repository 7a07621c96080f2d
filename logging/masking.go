package logging

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// maskingHook scrubs PII and secrets out of every log entry before it
// reaches an output stream, per the masking rules: NIK middle digits, NPWP
// last block, email local-part, phone middle digits, and any field that
// looks like a token/secret/credential is fully redacted.
type maskingHook struct{}

func (h *maskingHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *maskingHook) Fire(e *logrus.Entry) error {
	e.Message = MaskPII(e.Message)
	for k, v := range e.Data {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if isSecretField(k) {
			e.Data[k] = MaskSecret(s)
			continue
		}
		e.Data[k] = MaskPII(s)
	}
	return nil
}

var secretFieldNames = []string{
	"token", "secret", "password", "authorization", "signature",
	"api_key", "apikey", "hmac", "credential", "access_key", "private_key",
}

func isSecretField(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range secretFieldNames {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

var (
	nikPattern   = regexp.MustCompile(`\b\d{16}\b`)
	npwpPattern  = regexp.MustCompile(`\b\d{2}\.\d{3}\.\d{3}\.\d-\d{3}\.\d{3}\b`)
	emailPattern = regexp.MustCompile(`\b[\w.+-]+@[\w.-]+\.\w+\b`)
	phonePattern = regexp.MustCompile(`\b(\+?62|0)8\d{8,11}\b`)
)

// MaskPII redacts NIK, NPWP, email, and phone-shaped substrings found inside
// free-form text such as log messages or ocr_text snapshots.
func MaskPII(s string) string {
	s = nikPattern.ReplaceAllStringFunc(s, maskNIK)
	s = npwpPattern.ReplaceAllStringFunc(s, maskNPWP)
	s = emailPattern.ReplaceAllStringFunc(s, maskEmail)
	s = phonePattern.ReplaceAllStringFunc(s, maskPhone)
	return s
}

// maskNIK keeps the province/regency prefix and the serial suffix, masking
// the birth-date-derived middle digits.
func maskNIK(nik string) string {
	if len(nik) != 16 {
		return nik
	}
	return nik[:6] + "******" + nik[12:]
}

// maskNPWP masks the final three-digit branch-code block.
func maskNPWP(npwp string) string {
	idx := strings.LastIndex(npwp, ".")
	if idx < 0 {
		return npwp
	}
	return npwp[:idx+1] + "***"
}

// maskEmail keeps the first two characters of the local part.
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return "**" + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + domain
}

// maskPhone keeps the leading prefix and last two digits, masking the
// middle run.
func maskPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	return phone[:3] + strings.Repeat("*", len(phone)-5) + phone[len(phone)-2:]
}

// MaskSecret shows a small prefix/suffix of a long secret and fully hides
// short ones, for config dumps and header logging.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
