package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Text(t *testing.T) {
	text, err := Extract([]byte("  Policy text for farmers.\n"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "Policy text for farmers.", text)

	text, err = Extract([]byte("sniffed plain text body"), "")
	require.NoError(t, err)
	assert.Equal(t, "sniffed plain text body", text)
}

func TestExtract_Errors(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name        string
		data        []byte
		contentType string
		want        error
	}{
		{"empty", nil, "text/plain", ErrNoText},
		{"blank text", []byte(" \n\t"), "text/plain", ErrNoText},
		{"image needs ocr", png, "image/png", ErrNoText},
		{"sniffed image", png, "application/octet-stream", ErrNoText},
		{"unsupported", []byte("PK\x03\x04"), "application/zip", ErrUnsupportedContent},
		{"invalid utf8", []byte{0xff, 0xfe, 0xfd}, "text/plain", ErrUnsupportedContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.data, tt.contentType)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtract_BrokenPDF(t *testing.T) {
	_, err := Extract([]byte("%PDF-1.4 not really a pdf"), "application/pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdf")
}
