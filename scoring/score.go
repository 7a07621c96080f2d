package scoring

import (
	"fmt"
	"regexp"

	"github.com/filotkyc/engine/parser"
)

var nikFormatRe = regexp.MustCompile(`^\d{16}$`)
var npwpFormatRe = regexp.MustCompile(`^\d{2}\.\d{3}\.\d{3}\.\d-\d{3}\.\d{3}$`)

// Result is the scoring engine's output: a 0–100 score and the reasons
// each component contributed or didn't.
type Result struct {
	Score   int
	Reasons []string
}

// ScoreKTP implements the §4.5 KTP formula: +30 NIK, +20 name, +15
// birthDate, +15 address, plus OCR confidence weighted at 20%.
func ScoreKTP(f parser.KTPFields, ocrText string) Result {
	confidence := OCRConfidence(ocrText)
	var reasons []string
	total := 0

	if nikFormatRe.MatchString(f.NIK) {
		total += 30
		reasons = append(reasons, "NIK valid (+30)")
	} else {
		reasons = append(reasons, "NIK missing or malformed (0)")
	}

	if len(f.Name) >= 3 {
		total += 20
		reasons = append(reasons, "name present (+20)")
	} else {
		reasons = append(reasons, "name missing (0)")
	}

	if f.BirthDate != "" {
		total += 15
		reasons = append(reasons, "birth date present (+15)")
	} else {
		reasons = append(reasons, "birth date missing (0)")
	}

	if len(f.Address) >= 10 {
		total += 15
		reasons = append(reasons, "address present (+15)")
	} else {
		reasons = append(reasons, "address missing (0)")
	}

	ocrPoints := confidence * 20 / 100
	total += ocrPoints
	reasons = append(reasons, fmt.Sprintf("OCR confidence %d (+%d)", confidence, ocrPoints))

	if total > 100 {
		total = 100
	}
	return Result{Score: total, Reasons: reasons}
}

// ScoreNPWP implements the §4.5 NPWP formula: +40 npwpNumber, +30 name,
// plus OCR confidence weighted at 30%.
func ScoreNPWP(f parser.NPWPFields, ocrText string) Result {
	confidence := OCRConfidence(ocrText)
	var reasons []string
	total := 0

	if npwpFormatRe.MatchString(f.NPWPNumber) {
		total += 40
		reasons = append(reasons, "NPWP number valid (+40)")
	} else {
		reasons = append(reasons, "NPWP number missing or malformed (0)")
	}

	if len(f.Name) >= 3 {
		total += 30
		reasons = append(reasons, "name present (+30)")
	} else {
		reasons = append(reasons, "name missing (0)")
	}

	ocrPoints := confidence * 30 / 100
	total += ocrPoints
	reasons = append(reasons, fmt.Sprintf("OCR confidence %d (+%d)", confidence, ocrPoints))

	if total > 100 {
		total = 100
	}
	return Result{Score: total, Reasons: reasons}
}
