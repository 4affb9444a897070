// Package pdftext reads the embedded text layer of digital PDFs. It serves as an
// offline OCR provider: no network, no cost, and the page count is always known.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr"
)

const providerName = "pdftext"

// textLayerConfidence is reported for pages with an extractable text layer.
const textLayerConfidence = 0.95

type Provider struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{logger: logger}
}

func (p *Provider) Name() string { return providerName }

// RecognizeImage is unsupported: images carry no text layer.
func (p *Provider) RecognizeImage(_ context.Context, _ ocr.ImageRequest) (ocr.ImageResult, error) {
	return ocr.ImageResult{}, &common.ProviderError{Provider: providerName, Op: "image", Cause: fmt.Errorf("images have no text layer")}
}

// RecognizePages returns the text layer of the requested pages. Indices past the
// end produce a PageBoundaryError when no requested page exists, and a short
// result otherwise.
func (p *Provider) RecognizePages(ctx context.Context, req ocr.PagesRequest) (res ocr.PagesResult, err error) {
	defer func() {
		// the parser panics on some malformed streams
		if r := recover(); r != nil {
			err = &common.ProviderError{Provider: providerName, Op: "pages", Cause: fmt.Errorf("parse panic: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(req.Content), int64(len(req.Content)))
	if err != nil {
		return ocr.PagesResult{}, &common.ProviderError{Provider: providerName, Op: "open", Cause: err}
	}
	total := reader.NumPage()
	res.TotalPages = total

	for _, idx := range req.Pages {
		if err := ctx.Err(); err != nil {
			return ocr.PagesResult{}, err
		}
		if idx < 1 || idx > total {
			if len(res.Pages) == 0 {
				return ocr.PagesResult{}, &common.PageBoundaryError{Page: idx}
			}
			break
		}
		page := reader.Page(idx)
		if page.V.IsNull() {
			res.Pages = append(res.Pages, ocr.PageText{Index: idx})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Warn("pdftext.page.plain_text_error", "doc_id", req.DocumentID, "page", idx, "error", err)
		}
		tokens := rowText(page)
		conf := float32(0)
		if strings.TrimSpace(text) != "" || tokens != "" {
			conf = textLayerConfidence
		}
		res.Pages = append(res.Pages, ocr.PageText{
			Index:      idx,
			Text:       text,
			TokenText:  tokens,
			Confidence: conf,
		})
	}
	return res, nil
}

func rowText(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}
	var words []string
	for _, row := range rows {
		var sb strings.Builder
		for _, t := range row.Content {
			sb.WriteString(t.S)
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			words = append(words, s)
		}
	}
	return strings.Join(words, " ")
}
