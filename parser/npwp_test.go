package parser

import "testing"

func TestParseNPWPExtractsFields(t *testing.T) {
	text := "NPWP: 01.234.567.8-901.000\nNama: PT SUMBER MAKMUR"

	f := ParseNPWP(text)

	if f.NPWPNumber != "01.234.567.8-901.000" {
		t.Errorf("NPWPNumber = %q", f.NPWPNumber)
	}
	if f.Name != "PT SUMBER MAKMUR" {
		t.Errorf("Name = %q", f.Name)
	}
}

func TestParseNPWPIsTotalOnEmptyInput(t *testing.T) {
	f := ParseNPWP("")
	if f != (NPWPFields{}) {
		t.Errorf("expected all-empty record for empty input, got %+v", f)
	}
}

func TestParseNPWPRejectsMalformedNumber(t *testing.T) {
	f := ParseNPWP("NPWP: 1234567890")
	if f.NPWPNumber != "" {
		t.Errorf("expected no match for malformed NPWP number, got %q", f.NPWPNumber)
	}
}
