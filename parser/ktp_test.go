package parser

import "testing"

func TestParseKTPExtractsFields(t *testing.T) {
	text := "NIK : 3201011501900001\nNama: BUDI SANTOSO\nTempat/Tgl Lahir: JAKARTA, 15-01-1990\nAlamat: JL MERDEKA NO 1\nLaki-laki\nIslam\nBelum Kawin"

	f := ParseKTP(text)

	if f.NIK != "3201011501900001" {
		t.Errorf("NIK = %q, want 16-digit NIK", f.NIK)
	}
	if f.Name != "BUDI SANTOSO" {
		t.Errorf("Name = %q", f.Name)
	}
	if f.BirthPlace != "JAKARTA" {
		t.Errorf("BirthPlace = %q", f.BirthPlace)
	}
	if f.BirthDate != "15-01-1990" {
		t.Errorf("BirthDate = %q", f.BirthDate)
	}
	if f.Address != "JL MERDEKA NO 1" {
		t.Errorf("Address = %q", f.Address)
	}
	if f.Gender != "Laki-laki" {
		t.Errorf("Gender = %q", f.Gender)
	}
	if f.Religion != "Islam" {
		t.Errorf("Religion = %q", f.Religion)
	}
	if f.MaritalStatus != "Belum Kawin" {
		t.Errorf("MaritalStatus = %q", f.MaritalStatus)
	}
}

func TestParseKTPIsTotalOnEmptyInput(t *testing.T) {
	f := ParseKTP("")
	if f != (KTPFields{}) {
		t.Errorf("expected all-empty record for empty input, got %+v", f)
	}
}

func TestParseKTPIsTotalOnGarbageInput(t *testing.T) {
	f := ParseKTP("###unreadable scan noise 98a7sd6f###")
	if f.NIK != "" || f.Name != "" {
		t.Errorf("expected no spurious matches, got %+v", f)
	}
}

func TestParseKTPRejectsNonSixteenDigitNIK(t *testing.T) {
	f := ParseKTP("NIK: 12345")
	if f.NIK != "" {
		t.Errorf("expected NIK to be absent for a non-16-digit run, got %q", f.NIK)
	}
}
