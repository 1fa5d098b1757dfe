package normalize_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JaimeStill/qbank/internal/normalize"
)

// buildPDF writes a minimal PDF with one page per entry. A non-empty entry
// becomes the page's text layer; an empty entry yields a page with no text.
func buildPDF(pages []string) []byte {
	var objs []string
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")

	var kids bytes.Buffer
	for i := range pages {
		fmt.Fprintf(&kids, "%d 0 R ", 4+2*i)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), len(pages)))
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, text := range pages {
		objs = append(objs, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			5+2*i,
		))
		content := "q Q"
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

type fakeRenderer struct {
	err   error
	skip  int
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, _ []byte, pages []int) (map[int][]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int][]byte, len(pages))
	for _, p := range pages {
		if p == f.skip {
			continue
		}
		out[p] = []byte(fmt.Sprintf("png-%d", p))
	}
	return out, nil
}

// scriptedOCR replays errs in order before returning result.
type scriptedOCR struct {
	mu     sync.Mutex
	errs   []error
	result normalize.Transcription
	calls  int
}

func (s *scriptedOCR) Transcribe(_ context.Context, _ int, _ []byte) (normalize.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return normalize.Transcription{}, err
	}
	return s.result, nil
}

func retryOptions() normalize.Options {
	return normalize.Options{
		MinOCRConfidence: 0.4,
		Workers:          2,
		Retries:          3,
		Timeout:          time.Second,
		Backoff:          time.Millisecond,
	}
}

func TestNormalizePDF(t *testing.T) {
	t.Run("text layer pages skip OCR", func(t *testing.T) {
		ocr := &scriptedOCR{}
		renderer := &fakeRenderer{}
		n := normalize.New(nil, ocr, renderer, retryOptions(), discard())

		doc, err := n.Normalize(context.Background(), normalize.Source{
			Filename: "see.pdf",
			Data:     buildPDF([]string{"Q1. Define a process."}),
		})
		if err != nil {
			t.Fatalf("Normalize error: %v", err)
		}

		if doc.Format != normalize.FormatPDF || doc.PageCount != 1 {
			t.Errorf("format = %q pages = %d", doc.Format, doc.PageCount)
		}
		if len(doc.Pages) != 1 {
			t.Fatalf("pages = %d, want 1", len(doc.Pages))
		}
		if doc.Pages[0].Scanned || doc.Pages[0].Confidence != 1 {
			t.Errorf("page = %+v, want text layer page", doc.Pages[0])
		}
		if renderer.calls != 0 || ocr.calls != 0 {
			t.Errorf("renderer calls = %d ocr calls = %d, want 0", renderer.calls, ocr.calls)
		}
	})

	t.Run("transient OCR timeout is retried", func(t *testing.T) {
		ocr := &scriptedOCR{
			errs:   []error{context.DeadlineExceeded},
			result: normalize.Transcription{Text: "Q1. Explain deadlock.", Confidence: 0.9},
		}
		n := normalize.New(nil, ocr, &fakeRenderer{}, retryOptions(), discard())

		doc, err := n.Normalize(context.Background(), normalize.Source{
			Filename: "scan.pdf",
			Data:     buildPDF([]string{""}),
		})
		if err != nil {
			t.Fatalf("Normalize error: %v", err)
		}

		if ocr.calls != 2 {
			t.Errorf("ocr calls = %d, want 2", ocr.calls)
		}
		if len(doc.Pages) != 1 {
			t.Fatalf("pages = %d, want 1", len(doc.Pages))
		}
		p := doc.Pages[0]
		if !p.Scanned || p.Text != "Q1. Explain deadlock." || p.Confidence != 0.9 {
			t.Errorf("page = %+v", p)
		}
		if c := doc.OCRConfidence(); c == nil || *c != 0.9 {
			t.Errorf("OCRConfidence = %v, want 0.9", c)
		}
	})

	t.Run("low confidence page is skipped", func(t *testing.T) {
		ocr := &scriptedOCR{result: normalize.Transcription{Text: "Q2. smudged", Confidence: 0.39}}
		n := normalize.New(nil, ocr, &fakeRenderer{}, retryOptions(), discard())

		doc, err := n.Normalize(context.Background(), normalize.Source{
			Filename: "mixed.pdf",
			Data:     buildPDF([]string{"Q1. Define a process.", ""}),
		})
		if err != nil {
			t.Fatalf("Normalize error: %v", err)
		}

		if doc.PageCount != 2 || len(doc.Pages) != 1 || doc.Pages[0].Number != 1 {
			t.Errorf("doc = %+v, want only page 1 kept", doc)
		}
	})

	t.Run("confidence at threshold is kept", func(t *testing.T) {
		ocr := &scriptedOCR{result: normalize.Transcription{Text: "Q1. Faint text.", Confidence: 0.4}}
		n := normalize.New(nil, ocr, &fakeRenderer{}, retryOptions(), discard())

		doc, err := n.Normalize(context.Background(), normalize.Source{
			Filename: "scan.pdf",
			Data:     buildPDF([]string{""}),
		})
		if err != nil {
			t.Fatalf("Normalize error: %v", err)
		}
		if len(doc.Pages) != 1 {
			t.Errorf("pages = %d, want 1", len(doc.Pages))
		}
	})

	t.Run("every page skipped is an extraction error", func(t *testing.T) {
		ocr := &scriptedOCR{result: normalize.Transcription{Text: "noise", Confidence: 0.1}}
		n := normalize.New(nil, ocr, &fakeRenderer{}, retryOptions(), discard())

		_, err := n.Normalize(context.Background(), normalize.Source{
			Filename: "scan.pdf",
			Data:     buildPDF([]string{""}),
		})
		if !errors.Is(err, normalize.ErrExtractionError) {
			t.Errorf("err = %v, want ErrExtractionError", err)
		}
	})

	t.Run("exhausted retries are transient", func(t *testing.T) {
		ocr := &scriptedOCR{errs: []error{
			context.DeadlineExceeded,
			context.DeadlineExceeded,
			errors.New("upstream 503"),
		}}
		n := normalize.New(nil, ocr, &fakeRenderer{}, retryOptions(), discard())

		_, err := n.Normalize(context.Background(), normalize.Source{
			Filename: "scan.pdf",
			Data:     buildPDF([]string{""}),
		})
		if !errors.Is(err, normalize.ErrTranscriptionUnavailable) {
			t.Fatalf("err = %v, want ErrTranscriptionUnavailable", err)
		}
		if errors.Is(err, normalize.ErrExtractionError) {
			t.Error("transient failure must not be an extraction error")
		}
		if ocr.calls != 3 {
			t.Errorf("ocr calls = %d, want 3", ocr.calls)
		}
	})

	t.Run("render failure is transient", func(t *testing.T) {
		n := normalize.New(nil, &scriptedOCR{}, &fakeRenderer{err: errors.New("magick: killed")}, retryOptions(), discard())

		_, err := n.Normalize(context.Background(), normalize.Source{
			Filename: "scan.pdf",
			Data:     buildPDF([]string{""}),
		})
		if !errors.Is(err, normalize.ErrTranscriptionUnavailable) {
			t.Errorf("err = %v, want ErrTranscriptionUnavailable", err)
		}
	})

	t.Run("missing rendered page is transient", func(t *testing.T) {
		n := normalize.New(nil, &scriptedOCR{}, &fakeRenderer{skip: 1}, retryOptions(), discard())

		_, err := n.Normalize(context.Background(), normalize.Source{
			Filename: "scan.pdf",
			Data:     buildPDF([]string{""}),
		})
		if !errors.Is(err, normalize.ErrTranscriptionUnavailable) {
			t.Errorf("err = %v, want ErrTranscriptionUnavailable", err)
		}
	})

	t.Run("cancelled context is returned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ocr := &scriptedOCR{result: normalize.Transcription{Text: "Q1.", Confidence: 1}}
		n := normalize.New(nil, ocr, &fakeRenderer{}, retryOptions(), discard())

		_, err := n.Normalize(ctx, normalize.Source{
			Filename: "scan.pdf",
			Data:     buildPDF([]string{""}),
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("unreadable pdf is an extraction error", func(t *testing.T) {
		n := normalize.New(nil, nil, nil, retryOptions(), discard())

		_, err := n.Normalize(context.Background(), normalize.Source{
			Filename: "broken.pdf",
			Data:     []byte("%PDF-1.4\nnot a document"),
		})
		if !errors.Is(err, normalize.ErrExtractionError) {
			t.Errorf("err = %v, want ErrExtractionError", err)
		}
	})
}
