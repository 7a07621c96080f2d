package parser

import "regexp"

// NPWPFields is the partial structured record extracted from an NPWP
// card's OCR text.
type NPWPFields struct {
	NPWPNumber string
	Name       string
}

var (
	npwpNumberRe = regexp.MustCompile(`\b(\d{2}\.\d{3}\.\d{3}\.\d-\d{3}\.\d{3})\b`)
	npwpNameRe   = regexp.MustCompile(`(?im)^\s*nama\s*[:;]?\s*(.+)$`)
)

// ParseNPWP extracts NPWP fields from raw OCR text. Total: an empty or
// unrecognisable input yields an all-empty record.
func ParseNPWP(ocrText string) NPWPFields {
	f := NPWPFields{}
	if m := npwpNumberRe.FindStringSubmatch(ocrText); m != nil {
		f.NPWPNumber = m[1]
	}
	if m := npwpNameRe.FindStringSubmatch(ocrText); m != nil {
		f.Name = clean(m[1])
	}
	return f
}
