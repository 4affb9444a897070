// Package fields turns OCR text into typed fields. Schema-constrained language
// model output comes first; the prose parser is the fallback.
package fields

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
	"github.com/joseph-ayodele/packet-underwriter/internal/textnorm"
)

// regexConfidenceFactor discounts OCR confidence for fields read by the prose parser.
const regexConfidenceFactor = 0.5

type Input struct {
	Result entity.ExtractionResult
	// Image is attached for low-confidence single-image documents.
	Image *llm.Image
}

type Output struct {
	Fields []entity.ExtractedField
	Tokens int
	Notes  []string
}

type Extractor struct {
	provider    llm.Provider // nil selects the prose parser
	concurrency int
	logger      *slog.Logger
}

func NewExtractor(provider llm.Provider, concurrency int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Extractor{provider: provider, concurrency: concurrency, logger: logger}
}

// Extract reads one document. A rate-limit error from the model is returned so
// the stage can retry; any other model failure falls back to the prose parser.
func (e *Extractor) Extract(ctx context.Context, in Input) (Output, error) {
	res := in.Result
	var out Output
	if res.Skipped || (in.Image == nil && (!res.Success || strings.TrimSpace(res.FullText) == "")) {
		out.Notes = append(out.Notes, fmt.Sprintf("%s: no text to read", docLabel(res)))
		return out, nil
	}
	sp, ok := catalogs[res.Category]
	if !ok {
		return out, common.NewAppError(common.CodeConfig, fmt.Sprintf("no field mapping for category %q", res.Category), common.ErrInvalidInput)
	}

	start := time.Now()
	if e.provider != nil {
		doc, tokens, notes, err := e.generate(ctx, sp, in)
		out.Tokens = tokens
		switch {
		case err == nil:
			out.Notes = append(out.Notes, notes...)
			out.Fields = toFields(sp, doc, constants.SourceLLM, res, llmConfidence(doc, res))
			e.logger.Info("fields.extract.ok",
				"doc_id", res.DocumentID,
				"source", constants.SourceLLM,
				"fields", len(out.Fields),
				"tokens", tokens,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return out, nil
		case common.IsRateLimited(err):
			return out, err
		default:
			e.logger.Warn("fields.extract.llm_fallback", "doc_id", res.DocumentID, "error", err)
			out.Notes = append(out.Notes, fmt.Sprintf("%s: model extraction failed, read by pattern: %v", docLabel(res), err))
		}
	}

	doc := ParseProse(res.Category, res.FullText)
	out.Fields = toFields(sp, doc, constants.SourceRegex, res, res.Confidence*regexConfidenceFactor)
	e.logger.Info("fields.extract.ok",
		"doc_id", res.DocumentID,
		"source", constants.SourceRegex,
		"fields", len(out.Fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// ExtractAll reads documents concurrently and merges outputs in input order.
func (e *Extractor) ExtractAll(ctx context.Context, inputs []Input) (Output, error) {
	outs := make([]Output, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			o, err := e.Extract(gctx, in)
			outs[i] = o
			return err
		})
	}
	err := g.Wait()

	var merged Output
	for _, o := range outs {
		merged.Fields = append(merged.Fields, o.Fields...)
		merged.Tokens += o.Tokens
		merged.Notes = append(merged.Notes, o.Notes...)
	}
	return merged, err
}

func (e *Extractor) generate(ctx context.Context, sp catalog, in Input) (llm.DocumentFields, int, []string, error) {
	res := in.Result
	p := sp.prompt(res.Category, res.DocumentName, res.FullText)
	req := llm.Request{
		System:     llm.BuildFieldsSystemPrompt(p),
		User:       llm.BuildFieldsUserPrompt(p, in.Image != nil),
		Schema:     llm.BuildFieldsJSONSchema(sp.subtypes),
		SchemaName: string(res.Category) + "_fields",
	}
	if in.Image != nil {
		req.Images = []llm.Image{*in.Image}
	}

	sanitize := func(raw []byte) ([]byte, []string, error) {
		cleaned, dropped, err := llm.NormalizeAndSanitizeJSON(raw, e.logger)
		if err != nil {
			return nil, nil, err
		}
		cleaned, more, err := llm.SanitizeOptionalFields(cleaned, sp.subtypes)
		return cleaned, append(dropped, more...), err
	}

	var doc llm.DocumentFields
	resp, dropped, err := llm.GenerateTyped(ctx, e.provider, req, &doc, sanitize, e.logger)
	var notes []string
	if len(dropped) > 0 {
		notes = append(notes, fmt.Sprintf("%s: model output repaired (%s)", docLabel(res), strings.Join(dropped, ", ")))
	}
	return doc, resp.Usage.Total(), notes, err
}

func llmConfidence(doc llm.DocumentFields, res entity.ExtractionResult) float32 {
	if doc.ModelConfidence > 0 {
		return doc.ModelConfidence
	}
	return res.Confidence
}

func toFields(sp catalog, doc llm.DocumentFields, source constants.FieldSource, res entity.ExtractionResult, conf float32) []entity.ExtractedField {
	base := entity.ExtractedField{
		SourceDocumentID: res.DocumentID,
		Source:           source,
		Confidence:       conf,
	}
	var out []entity.ExtractedField
	text := func(name, v string) {
		if name == "" || strings.TrimSpace(v) == "" {
			return
		}
		f := base
		f.Name, f.Kind, f.Value = name, constants.KindText, strings.TrimSpace(v)
		out = append(out, f)
	}

	if sp.subtype != "" && doc.Subtype != "" {
		f := base
		f.Name, f.Kind, f.Value = sp.subtype, constants.KindEnum, doc.Subtype
		out = append(out, f)
	}
	text(sp.party, doc.PartyName)
	text(sp.counter, doc.CounterpartyName)
	text(sp.address, doc.Address)

	if sp.amount != "" && doc.Amount != "" {
		if d, err := textnorm.ParseAmount(doc.Amount); err == nil {
			f := base
			f.Name, f.Kind, f.Value, f.Amount = sp.amount, constants.KindMoney, d.String(), &d
			out = append(out, f)
		}
	}
	if sp.date != "" && doc.Date != "" {
		if t, err := textnorm.ParseDate(doc.Date); err == nil {
			f := base
			f.Name, f.Kind, f.Value, f.Date = sp.date, constants.KindDate, t.Format(time.DateOnly), &t
			out = append(out, f)
		}
	}
	if sp.transactions {
		for _, tx := range doc.Transactions {
			d, err := textnorm.ParseAmount(tx.Amount)
			if err != nil {
				continue
			}
			d = d.Abs()
			if tx.Direction == "out" {
				d = d.Neg()
			}
			f := base
			f.Name, f.Kind, f.Value, f.Amount = Transaction, constants.KindMoney, d.String(), &d
			f.Counterparty = strings.TrimSpace(tx.Counterparty)
			if f.Counterparty == "" {
				f.Counterparty = strings.TrimSpace(tx.Description)
			}
			if t, err := textnorm.ParseDate(tx.Date); err == nil {
				f.Date = &t
			}
			out = append(out, f)
		}
	}
	for _, h := range doc.HighlightedItems {
		if strings.TrimSpace(h) == "" {
			continue
		}
		f := base
		f.Name, f.Kind, f.Value, f.Highlighted = Highlight, constants.KindText, strings.TrimSpace(h), true
		out = append(out, f)
	}
	return out
}

func docLabel(res entity.ExtractionResult) string {
	if res.DocumentName != "" {
		return res.DocumentName
	}
	return res.DocumentID
}
