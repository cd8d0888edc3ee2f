package services

import "testing"

func TestNormalizeExtractedText(t *testing.T) {
	input := "First line  \r\n\r\n\r\n\r\nSecond line\r\n   indented   \n\n\nThird"
	expected := "First line\n\nSecond line\nindented\n\nThird"

	if got := normalizeExtractedText(input); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestStripDOCXML(t *testing.T) {
	xml := `<w:document><w:p><w:r><w:t>Hello &amp; welcome</w:t></w:r></w:p><w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p></w:document>`
	got := normalizeExtractedText(stripDOCXML([]byte(xml)))
	expected := "Hello & welcome\nSecond paragraph"

	if got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestExtractTextRejectsUnsupportedType(t *testing.T) {
	s := NewFileExtractService()
	if _, err := s.ExtractText("notes.xlsx"); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}
