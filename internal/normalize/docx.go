package normalize

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	docxBody = "word/document.xml"
	docxRels = "word/_rels/document.xml.rels"
)

type docxRelationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type docxImageRef struct {
	page int
	rel  string
}

func (n *Normalizer) normalizeDOCX(ctx context.Context, src Source) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open docx: %w", ErrExtractionError, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	body, ok := files[docxBody]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrExtractionError, docxBody)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrExtractionError, docxBody, err)
	}
	defer rc.Close()

	texts, refs, err := parseDocxBody(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionError, err)
	}

	doc := &Document{Format: FormatDOCX, PageCount: len(texts)}
	for i, t := range texts {
		if t = cleanText(t); t != "" {
			doc.Pages = append(doc.Pages, Page{Number: i + 1, Text: t, Confidence: 1})
		}
	}

	doc.Images = n.extractDocxImages(ctx, src, files, refs)
	return doc, nil
}

// parseDocxBody walks WordprocessingML and returns the text of each page.
// Pages are delimited by explicit page breaks and rendered page-break hints.
func parseDocxBody(r io.Reader) ([]string, []docxImageRef, error) {
	var (
		pages  []string
		cur    strings.Builder
		refs   []docxImageRef
		inText bool
	)

	breakPage := func() {
		pages = append(pages, cur.String())
		cur.Reset()
	}

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				cur.WriteByte('\t')
			case "br":
				if attr(t, "type") == "page" {
					breakPage()
				} else {
					cur.WriteByte('\n')
				}
			case "lastRenderedPageBreak":
				if strings.TrimSpace(cur.String()) != "" {
					breakPage()
				}
			case "blip":
				if id := attr(t, "embed"); id != "" {
					refs = append(refs, docxImageRef{page: len(pages) + 1, rel: id})
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				cur.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}

	pages = append(pages, cur.String())
	return pages, refs, nil
}

func (n *Normalizer) extractDocxImages(ctx context.Context, src Source, files map[string]*zip.File, refs []docxImageRef) []Image {
	if n.store == nil || len(refs) == 0 {
		return nil
	}

	targets, err := readDocxRels(files)
	if err != nil {
		n.logger.Warn("read docx relationships failed", "filename", src.Filename, "error", err)
		return nil
	}

	var images []Image
	index := map[int]int{}
	for _, ref := range refs {
		target, ok := targets[ref.rel]
		if !ok {
			continue
		}

		f, ok := files[path.Join("word", target)]
		if !ok {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			n.logger.Warn("open docx image failed", "name", f.Name, "error", err)
			continue
		}

		index[ref.page]++
		img, err := n.storeImage(ctx, src.Prefix, ref.page, index[ref.page], path.Ext(f.Name), rc)
		rc.Close()
		if err != nil {
			n.logger.Warn("persist docx image failed", "name", f.Name, "error", err)
			continue
		}
		images = append(images, img)
	}
	return images
}

func readDocxRels(files map[string]*zip.File) (map[string]string, error) {
	f, ok := files[docxRels]
	if !ok {
		return nil, fmt.Errorf("missing %s", docxRels)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var rels docxRelationships
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		return nil, fmt.Errorf("decode %s: %w", docxRels, err)
	}

	targets := make(map[string]string, len(rels.Items))
	for _, rel := range rels.Items {
		targets[rel.ID] = rel.Target
	}
	return targets, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
