package normalize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/JaimeStill/document-context/pkg/config"
	"github.com/JaimeStill/document-context/pkg/document"
	"github.com/JaimeStill/document-context/pkg/image"
	"golang.org/x/sync/errgroup"
)

// ImageMagickRenderer rasterises PDF pages through document-context.
type ImageMagickRenderer struct{}

// Render writes the PDF to a temporary directory and renders the requested
// 1-based pages to PNG.
func (ImageMagickRenderer) Render(ctx context.Context, data []byte, pages []int) (map[int][]byte, error) {
	tempDir, err := os.MkdirTemp("", "qbank-render-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	pdfPath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(pdfPath, data, 0600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	pdfDoc, err := document.OpenPDF(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer pdfDoc.Close()

	renderer, err := image.NewImageMagickRenderer(config.DefaultImageConfig())
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	allPages, err := pdfDoc.ExtractAllPages()
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}

	var (
		mu     sync.Mutex
		result = make(map[int][]byte, len(pages))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(min(runtime.NumCPU(), len(pages)), 1))

	for _, num := range pages {
		if num < 1 || num > len(allPages) {
			continue
		}
		page := allPages[num-1]

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			data, err := page.ToImage(renderer, nil)
			if err != nil {
				return fmt.Errorf("render page %d: %w", num, err)
			}

			mu.Lock()
			result[num] = data
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
