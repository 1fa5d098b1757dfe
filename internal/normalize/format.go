package normalize

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format identifies a supported document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/octet-stream"
}

// DetectFormat identifies the document type from its extension and leading
// bytes. Both must agree; a renamed file is rejected.
func DetectFormat(filename string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		if bytes.HasPrefix(data, pdfMagic) {
			return FormatPDF, nil
		}
	case ".docx":
		if bytes.HasPrefix(data, zipMagic) {
			return FormatDOCX, nil
		}
	}
	return "", ErrUnsupportedFormat
}
