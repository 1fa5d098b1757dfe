package normalize

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"
)

func (n *Normalizer) normalizePDF(ctx context.Context, src Source) (*Document, error) {
	count, err := api.PageCount(bytes.NewReader(src.Data), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionError, err)
	}

	text, err := readTextLayer(src.Data)
	if err != nil {
		n.logger.Warn("pdf text layer unreadable", "filename", src.Filename, "error", err)
		text = map[int]string{}
	}

	doc := &Document{Format: FormatPDF, PageCount: count}

	var scanned []int
	for i := 1; i <= count; i++ {
		t := cleanText(text[i])
		if t == "" {
			scanned = append(scanned, i)
			continue
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Text: t, Confidence: 1})
	}

	if len(scanned) > 0 {
		pages, err := n.transcribe(ctx, src.Data, scanned)
		if err != nil {
			return nil, err
		}
		doc.Pages = append(doc.Pages, pages...)
		slices.SortFunc(doc.Pages, func(a, b Page) int { return cmp.Compare(a.Number, b.Number) })
	}

	doc.Images = n.extractPDFImages(ctx, src)
	return doc, nil
}

// readTextLayer returns the plain text of every page keyed by 1-based page
// number. The reader panics on some malformed streams, which is reported as
// an error.
func readTextLayer(data []byte) (pages map[int]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf text: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	pages = make(map[int]string, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i] = text
	}
	return pages, nil
}

// transcribe renders the selected pages and runs OCR on them with bounded
// parallelism. Pages under the minimum confidence are dropped; render and
// transcription failures abort with ErrTranscriptionUnavailable.
func (n *Normalizer) transcribe(ctx context.Context, data []byte, pages []int) ([]Page, error) {
	if n.ocr == nil || n.renderer == nil {
		n.logger.Warn("scanned pages skipped, no OCR configured", "pages", pages)
		return nil, nil
	}

	images, err := n.renderer.Render(ctx, data, pages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: render: %w", ErrTranscriptionUnavailable, err)
	}

	var (
		mu     sync.Mutex
		result []Page
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.opts.Workers)

	for _, num := range pages {
		png, ok := images[num]
		if !ok {
			return nil, fmt.Errorf("%w: page %d was not rendered", ErrTranscriptionUnavailable, num)
		}

		g.Go(func() error {
			t, err := n.transcribePage(gctx, num, png)
			if err != nil {
				return err
			}

			text := cleanText(t.Text)
			if text == "" || t.Confidence < n.opts.MinOCRConfidence {
				n.logger.Info("scanned page skipped", "page", num, "confidence", t.Confidence)
				return nil
			}

			mu.Lock()
			result = append(result, Page{
				Number:     num,
				Text:       text,
				Confidence: clamp(t.Confidence),
				Scanned:    true,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// transcribePage calls the OCR collaborator under the per-call timeout,
// retrying with exponential backoff until the budget is spent.
func (n *Normalizer) transcribePage(ctx context.Context, num int, png []byte) (Transcription, error) {
	var lastErr error

	for attempt := 1; attempt <= n.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Transcription{}, err
		}

		t, err := n.callOCR(ctx, num, png)
		if err == nil {
			return t, nil
		}
		if ctx.Err() != nil {
			return Transcription{}, ctx.Err()
		}

		lastErr = err
		n.logger.Warn("page transcription attempt failed",
			"page", num,
			"attempt", attempt,
			"retries", n.opts.Retries,
			"error", err,
		)

		if attempt < n.opts.Retries && n.opts.Backoff > 0 {
			timer := time.NewTimer(n.opts.Backoff << (attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return Transcription{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return Transcription{}, fmt.Errorf("%w: page %d: %w", ErrTranscriptionUnavailable, num, lastErr)
}

func (n *Normalizer) callOCR(ctx context.Context, num int, png []byte) (Transcription, error) {
	if n.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.opts.Timeout)
		defer cancel()
	}
	return n.ocr.Transcribe(ctx, num, png)
}

type rawImage struct {
	page  int
	obj   int
	ext   string
	bytes []byte
}

// extractPDFImages persists embedded images. Failures are logged and
// leave the image list partial; images never block normalization.
func (n *Normalizer) extractPDFImages(ctx context.Context, src Source) []Image {
	if n.store == nil {
		return nil
	}

	pages, err := api.ExtractImagesRaw(bytes.NewReader(src.Data), nil, nil)
	if err != nil {
		n.logger.Warn("extract pdf images failed", "filename", src.Filename, "error", err)
		return nil
	}

	var raws []rawImage
	for _, byObj := range pages {
		for obj, img := range byObj {
			var buf bytes.Buffer
			if _, err := buf.ReadFrom(img); err != nil {
				n.logger.Warn("read pdf image failed", "page", img.PageNr, "error", err)
				continue
			}
			raws = append(raws, rawImage{
				page:  img.PageNr,
				obj:   obj,
				ext:   strings.ToLower(img.FileType),
				bytes: buf.Bytes(),
			})
		}
	}

	slices.SortFunc(raws, func(a, b rawImage) int {
		return cmp.Or(cmp.Compare(a.page, b.page), cmp.Compare(a.obj, b.obj))
	})

	var images []Image
	index := map[int]int{}
	for _, raw := range raws {
		index[raw.page]++
		img, err := n.storeImage(ctx, src.Prefix, raw.page, index[raw.page], raw.ext, bytes.NewReader(raw.bytes))
		if err != nil {
			n.logger.Warn("persist pdf image failed", "page", raw.page, "error", err)
			continue
		}
		images = append(images, img)
	}
	return images
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
