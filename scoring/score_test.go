package scoring

import (
	"testing"

	"github.com/filotkyc/engine/parser"
)

func TestScoreKTPFullFieldsClampsAt100(t *testing.T) {
	f := parser.KTPFields{
		NIK:       "3201011501900001",
		Name:      "BUDI SANTOSO",
		BirthDate: "15-01-1990",
		Address:   "JL MERDEKA NO 1 RT 02 RW 03",
	}
	ocrText := "NIK 3201011501900001\nNama BUDI SANTOSO\nAlamat JL MERDEKA NO 1 RT 02 RW 03\nLaki-laki\nIslam\n"

	res := ScoreKTP(f, ocrText)
	if res.Score > 100 {
		t.Errorf("score %d exceeds 100", res.Score)
	}
	if res.Score < 80 {
		t.Errorf("expected a high score for a complete record, got %d", res.Score)
	}
	if len(res.Reasons) != 5 {
		t.Errorf("expected 5 reasons (nik, name, birthdate, address, ocr), got %d: %v", len(res.Reasons), res.Reasons)
	}
}

func TestScoreKTPEmptyFieldsScoresOnlyOCRComponent(t *testing.T) {
	res := ScoreKTP(parser.KTPFields{}, "")
	// Empty OCR text -> confidence floors at 20 -> 20*20/100 = 4.
	if res.Score != 4 {
		t.Errorf("ScoreKTP(empty) = %d, want 4", res.Score)
	}
}

func TestScoreNPWPFullFields(t *testing.T) {
	f := parser.NPWPFields{NPWPNumber: "01.234.567.8-901.000", Name: "PT SUMBER MAKMUR"}
	ocrText := "NPWP 01.234.567.8-901.000\nNama PT SUMBER MAKMUR\n"

	res := ScoreNPWP(f, ocrText)
	if res.Score > 100 {
		t.Errorf("score %d exceeds 100", res.Score)
	}
	if res.Score < 70 {
		t.Errorf("expected a high score for a complete NPWP record, got %d", res.Score)
	}
}

func TestScoreNPWPRejectsMalformedNumber(t *testing.T) {
	f := parser.NPWPFields{NPWPNumber: "not-a-valid-number", Name: "PT SUMBER MAKMUR"}
	res := ScoreNPWP(f, "some filler text that is reasonably long for OCR purposes here")
	for _, r := range res.Reasons {
		if r == "NPWP number valid (+40)" {
			t.Errorf("malformed NPWP number should not score as valid")
		}
	}
}
