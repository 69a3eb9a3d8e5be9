// Package extract turns stored document bytes into raw text. Extraction
// failures are deterministic (a corrupt file stays corrupt), so callers
// treat them as fatal rather than retryable.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrEmptyDocument is returned when extraction yields no usable text.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// Text extracts plain text from a document. PDF files are parsed page by
// page; anything else is treated as UTF-8 text as-is.
func Text(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyDocument
	}

	if bytes.HasPrefix(data, []byte("%PDF")) {
		return pdfText(data)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("document is neither a PDF nor valid UTF-8 text")
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func pdfText(data []byte) (_ string, err error) {
	// The pdf library panics on some malformed files; surface that as a
	// regular extraction error instead of killing the worker.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("extracting page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.TrimSpace(text))
	}

	if sb.Len() == 0 {
		return "", ErrEmptyDocument
	}
	return sb.String(), nil
}
