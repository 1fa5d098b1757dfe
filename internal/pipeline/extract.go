package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/JaimeStill/qbank/internal/normalize"
	"github.com/JaimeStill/qbank/internal/papers"
	"github.com/JaimeStill/qbank/internal/segment"
)

type normalizedDetail struct {
	Format        normalize.Format  `json:"format"`
	PageCount     int               `json:"page_count"`
	OCRConfidence *float64          `json:"ocr_confidence,omitempty"`
	Images        []normalize.Image `json:"images"`
	Pages         []normalize.Page  `json:"pages"`
}

type segmentedDetail struct {
	Questions int `json:"questions"`
}

// extract brings the paper to the segmented state and returns the number of
// questions it holds. Stages already recorded by an earlier attempt are reused.
func (o *Orchestrator) extract(ctx context.Context, p *papers.Paper, events []papers.Event) (int, error) {
	if e := papers.Latest(events, papers.StageSegmented); e != nil {
		var d segmentedDetail
		if err := json.Unmarshal(e.Detail, &d); err == nil && d.Questions > 0 {
			o.logger.Info("reusing segmentation", "paper_id", p.ID, "questions", d.Questions)
			return d.Questions, nil
		}
	}

	pages, err := o.pages(ctx, p, events)
	if err != nil {
		return 0, err
	}

	candidates, err := segment.Segment(pages)
	if err != nil {
		return 0, err
	}

	n, err := o.rt.Questions.CreateSegmented(ctx, p.ID, *p.CourseCode, candidates)
	if err != nil {
		return 0, fmt.Errorf("persist questions: %w", err)
	}

	if err := o.rt.Papers.Record(ctx, p.ID, p.Attempt, papers.StageSegmented, segmentedDetail{Questions: n}); err != nil {
		return 0, err
	}
	if err := o.rt.Papers.Advance(ctx, p.ID, p.Attempt, progressSegmented); err != nil {
		return 0, err
	}

	o.logger.Info("paper segmented", "paper_id", p.ID, "questions", n)
	return n, nil
}

func (o *Orchestrator) pages(ctx context.Context, p *papers.Paper, events []papers.Event) ([]normalize.Page, error) {
	if e := papers.Latest(events, papers.StageNormalized); e != nil {
		var d normalizedDetail
		if err := json.Unmarshal(e.Detail, &d); err == nil && len(d.Pages) > 0 {
			return d.Pages, nil
		}
	}

	rc, _, err := o.rt.Papers.Open(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	doc, err := o.rt.Normalizer.Normalize(ctx, normalize.Source{
		Filename: p.Filename,
		Data:     data,
		Prefix:   p.BlobPrefix(),
	})
	if err != nil {
		return nil, err
	}

	ocr := doc.OCRConfidence()
	if err := o.rt.Papers.SetSourceInfo(ctx, p.ID, p.Attempt, doc.PageCount, ocr); err != nil {
		return nil, err
	}

	detail := normalizedDetail{
		Format:        doc.Format,
		PageCount:     doc.PageCount,
		OCRConfidence: ocr,
		Images:        doc.Images,
		Pages:         doc.Pages,
	}
	if err := o.rt.Papers.Record(ctx, p.ID, p.Attempt, papers.StageNormalized, detail); err != nil {
		return nil, err
	}
	if err := o.rt.Papers.Advance(ctx, p.ID, p.Attempt, progressNormalized); err != nil {
		return nil, err
	}

	return doc.Pages, nil
}
