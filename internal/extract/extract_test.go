package extract

import (
	"errors"
	"testing"
)

func TestTextPlainPassthrough(t *testing.T) {
	got, err := Text([]byte("  Senior Backend Engineer\n5 years of Go.  "))
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "Senior Backend Engineer\n5 years of Go." {
		t.Errorf("got %q", got)
	}
}

func TestTextEmptyInput(t *testing.T) {
	if _, err := Text(nil); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Text(nil) = %v, want ErrEmptyDocument", err)
	}
	if _, err := Text([]byte("   \n\t ")); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Text(whitespace) = %v, want ErrEmptyDocument", err)
	}
}

func TestTextInvalidBinary(t *testing.T) {
	if _, err := Text([]byte{0xff, 0xfe, 0x00, 0x81}); err == nil {
		t.Error("binary garbage accepted as text")
	}
}

func TestTextCorruptPDF(t *testing.T) {
	// Starts with the PDF magic but has no valid structure.
	if _, err := Text([]byte("%PDF-1.7 not actually a pdf")); err == nil {
		t.Error("corrupt pdf accepted")
	}
}
