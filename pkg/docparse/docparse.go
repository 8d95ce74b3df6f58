// Package docparse extracts plain text from uploaded study documents.
package docparse

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported is returned for extensions with no extractor.
var ErrUnsupported = errors.New("unsupported document type")

// ErrEmpty is returned when a document yields no text.
var ErrEmpty = errors.New("no text extracted")

// Extract dispatches on the filename extension.
func Extract(filename string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		text = plainText(data)
	case ".pdf":
		text, err = ExtractPDF(data)
	case ".docx", ".doc":
		text, err = ExtractDocx(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(filename))
	}
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

func plainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}
