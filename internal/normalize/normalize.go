// Package normalize converts uploaded exam papers into per-page plain text
// and persists the images embedded in them.
//
// PDF text layers are read directly. Pages without a text layer are
// rasterised and transcribed by an OCR collaborator, which reports a
// per-page confidence. DOCX files are read from their WordprocessingML body,
// with explicit page breaks delimiting pages.
package normalize

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Page is the normalized text of one source page.
type Page struct {
	Number     int     `json:"number"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Scanned    bool    `json:"scanned,omitempty"`
}

// Image references an embedded image persisted to the content store.
type Image struct {
	Page        int    `json:"page"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
}

// Document is the output of normalization.
type Document struct {
	Format    Format  `json:"format"`
	PageCount int     `json:"page_count"`
	Pages     []Page  `json:"pages"`
	Images    []Image `json:"images"`
}

// OCRConfidence returns the mean confidence of transcribed pages,
// or nil when every page had a text layer.
func (d *Document) OCRConfidence() *float64 {
	var (
		sum float64
		n   int
	)
	for _, p := range d.Pages {
		if p.Scanned {
			sum += p.Confidence
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

// Source is an uploaded file to normalize. Extracted images are stored
// under Prefix.
type Source struct {
	Filename string
	Data     []byte
	Prefix   string
}

// Transcription is the OCR result for one page image.
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// OCR transcribes rendered page images.
type OCR interface {
	Transcribe(ctx context.Context, page int, png []byte) (Transcription, error)
}

// PageRenderer rasterises selected pages of a PDF to PNG.
type PageRenderer interface {
	Render(ctx context.Context, data []byte, pages []int) (map[int][]byte, error)
}

// ImageStore persists extracted images.
type ImageStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
}

// Options tunes the scanned-page path.
type Options struct {
	// MinOCRConfidence drops transcribed pages below this confidence.
	MinOCRConfidence float64
	Workers          int

	// Retries bounds the transcription calls made per page. Each call is
	// limited to Timeout, and retries wait Backoff doubled per attempt.
	Retries int
	Timeout time.Duration
	Backoff time.Duration
}

// Normalizer converts documents to pages and images.
type Normalizer struct {
	store    ImageStore
	ocr      OCR
	renderer PageRenderer
	opts     Options
	logger   *slog.Logger
}

// New creates a Normalizer. A nil ocr disables transcription of scanned
// pages; they are skipped.
func New(store ImageStore, ocr OCR, renderer PageRenderer, opts Options, logger *slog.Logger) *Normalizer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	return &Normalizer{
		store:    store,
		ocr:      ocr,
		renderer: renderer,
		opts:     opts,
		logger:   logger.With("system", "normalize"),
	}
}

// Normalize converts src into a Document. It fails with ErrUnsupportedFormat
// for anything other than PDF or DOCX, and with ErrExtractionError when no
// page yields text. A scanned page that cannot be transcribed within the
// retry budget fails with ErrTranscriptionUnavailable.
func (n *Normalizer) Normalize(ctx context.Context, src Source) (*Document, error) {
	format, err := DetectFormat(src.Filename, src.Data)
	if err != nil {
		return nil, err
	}

	var doc *Document
	switch format {
	case FormatPDF:
		doc, err = n.normalizePDF(ctx, src)
	case FormatDOCX:
		doc, err = n.normalizeDOCX(ctx, src)
	}
	if err != nil {
		return nil, err
	}

	if len(doc.Pages) == 0 {
		return nil, ErrExtractionError
	}

	n.logger.Info(
		"document normalized",
		"filename", src.Filename,
		"format", format,
		"pages", doc.PageCount,
		"text_pages", len(doc.Pages),
		"images", len(doc.Images),
	)
	return doc, nil
}

func (n *Normalizer) storeImage(ctx context.Context, prefix string, page, index int, ext string, data io.Reader) (Image, error) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	key := fmt.Sprintf("%simages/p%03d-%02d.%s", prefix, page, index, ext)
	contentType := imageContentType(ext)

	if err := n.store.Upload(ctx, key, data, contentType); err != nil {
		return Image{}, fmt.Errorf("store image %s: %w", key, err)
	}

	return Image{Page: page, Key: key, ContentType: contentType}, nil
}

func imageContentType(ext string) string {
	switch ext {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "tif", "tiff":
		return "image/tiff"
	case "bmp":
		return "image/bmp"
	case "emf":
		return "image/emf"
	case "wmf":
		return "image/wmf"
	}
	return "application/octet-stream"
}

// cleanText collapses runs of blank lines and trims trailing whitespace.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t ")
		if strings.TrimSpace(line) == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
