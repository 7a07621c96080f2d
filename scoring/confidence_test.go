package scoring

import "testing"

func TestOCRConfidenceShortTextFloorsAt20(t *testing.T) {
	got := OCRConfidence("too short")
	if got != 20 {
		t.Errorf("OCRConfidence(short) = %d, want 20", got)
	}
}

func TestOCRConfidenceClampsAt100(t *testing.T) {
	text := ""
	for i := 0; i < 20; i++ {
		text += "clean readable line of text\n"
	}
	got := OCRConfidence(text)
	if got > 100 {
		t.Errorf("OCRConfidence() = %d, must clamp to 100", got)
	}
}

func TestOCRConfidenceRewardsStructuredText(t *testing.T) {
	noisy := "a1!@#$%^&*()a1!@#$%^&*()a1!@#$%^&*()a1!@#$%^&*()a1!@#$%^&*()"
	clean := "NIK 3201011501900001\nNama BUDI SANTOSO\nAlamat JL MERDEKA NO 1\n"
	if OCRConfidence(clean) <= OCRConfidence(noisy) {
		t.Errorf("expected structured text to score higher confidence than symbol noise")
	}
}
