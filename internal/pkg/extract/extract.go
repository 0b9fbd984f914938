// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrNoText is returned when a document holds no extractable text, which
	// includes scanned images since OCR is not performed here.
	ErrNoText = errors.New("no extractable text")
	// ErrUnsupportedContent is returned for content types with no extractor.
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// Extract returns the text of data. An empty or generic contentType is
// replaced by one sniffed from the bytes.
func Extract(data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrNoText
	}
	mediaType := normalize(contentType)
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = normalize(http.DetectContentType(data))
	}

	var (
		text string
		err  error
	)
	switch {
	case mediaType == "application/pdf":
		text, err = pdfText(data)
	case strings.HasPrefix(mediaType, "text/"):
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text is not valid utf-8", ErrUnsupportedContent)
		}
		text = string(data)
	case strings.HasPrefix(mediaType, "image/"):
		return "", fmt.Errorf("%w: %s needs OCR", ErrNoText, mediaType)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func normalize(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

// pdfText extracts the plain text of every page. The pdf reader panics on
// some malformed files; that is reported as an error.
func pdfText(b []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read pdf text failed: %v", r)
		}
	}()
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	return string(out), nil
}
