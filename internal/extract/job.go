package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr"
)

// Fetcher loads attachment bytes by content key.
type Fetcher interface {
	FetchAttachment(ctx context.Context, contentKey string) ([]byte, error)
}

type Config struct {
	BatchSize          int
	MaxPages           int
	Stride             int
	CostPerPage        float64
	CostPerImage       float64
	MaxAttachmentBytes int64
	// LocalPageCount reads the PDF page tree before probing the provider.
	LocalPageCount bool
	DocConcurrency int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.Stride <= 0 {
		c.Stride = 10
	}
	if c.MaxAttachmentBytes <= 0 {
		c.MaxAttachmentBytes = constants.MaxAttachmentMBDefault << 20
	}
	if c.DocConcurrency <= 0 {
		c.DocConcurrency = 4
	}
	return c
}

// Job runs OCR for one document: fetch, page discovery, then ordered batches.
// Failures of a single file or batch never escape Run; they end up in the result.
type Job struct {
	cfg      Config
	provider ocr.Provider
	fetcher  Fetcher
	probe    *ocr.PageProbe
	batches  *ocr.BatchExtractor
	logger   *slog.Logger
}

func NewJob(cfg Config, provider ocr.Provider, fetcher Fetcher, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Job{
		cfg:      cfg,
		provider: provider,
		fetcher:  fetcher,
		// the probe window is one full batch so its pages double as batch 1
		probe:   ocr.NewPageProbe(ocr.ProbeConfig{MaxPages: cfg.MaxPages, Stride: cfg.Stride, Window: cfg.BatchSize}, logger),
		batches: ocr.NewBatchExtractor(ocr.BatchConfig{BatchSize: cfg.BatchSize, MaxPages: cfg.MaxPages}, logger),
		logger:  logger,
	}
}

func (j *Job) Run(ctx context.Context, doc entity.SourceDocument) entity.ExtractionResult {
	start := time.Now()
	res := entity.ExtractionResult{
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		Category:     doc.Category,
		MimeKind:     doc.MimeKind,
	}
	defer func() {
		res.Duration = time.Since(start)
	}()

	content, err := j.fetch(ctx, doc)
	if err != nil {
		res.Skipped = true
		res.SkipReason = err.Error()
		j.logger.Warn("extract.document.skipped", "doc_id", doc.ID, "name", doc.Name, "error", err)
		return res
	}

	switch doc.MimeKind {
	case constants.IMAGE:
		j.runImage(ctx, doc, content, &res)
	default:
		j.runPaged(ctx, doc, content, &res)
	}
	res.TokenEstimate = EstimateTokens(res.FullText)

	j.logger.Info("extract.document.done",
		"doc_id", doc.ID,
		"category", doc.Category,
		"mime_kind", doc.MimeKind,
		"pages_processed", res.PagesProcessed,
		"requested_pages", res.RequestedPages,
		"calls", res.ProviderCalls,
		"success", res.Success,
		"rate_limited", res.RateLimited,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func (j *Job) fetch(ctx context.Context, doc entity.SourceDocument) ([]byte, error) {
	if j.fetcher == nil {
		return nil, &common.AttachmentFetchError{ContentKey: doc.ContentKey, Reason: "no fetcher configured"}
	}
	content, err := j.fetcher.FetchAttachment(ctx, doc.ContentKey)
	if err != nil {
		var fe *common.AttachmentFetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &common.AttachmentFetchError{ContentKey: doc.ContentKey, Reason: "fetch failed", Cause: err}
	}
	if len(content) == 0 {
		return nil, &common.AttachmentFetchError{ContentKey: doc.ContentKey, Reason: "empty attachment"}
	}
	if int64(len(content)) > j.cfg.MaxAttachmentBytes {
		return nil, &common.AttachmentFetchError{
			ContentKey: doc.ContentKey,
			Reason:     fmt.Sprintf("attachment is %d bytes, limit %d", len(content), j.cfg.MaxAttachmentBytes),
		}
	}
	return content, nil
}

func (j *Job) runImage(ctx context.Context, doc entity.SourceDocument, content []byte, res *entity.ExtractionResult) {
	res.RequestedPages = 1
	res.ProviderCalls = 1
	res.CostEstimate = j.cfg.CostPerImage

	out, err := j.provider.RecognizeImage(ctx, ocr.ImageRequest{
		DocumentID:  doc.ID,
		Content:     content,
		ContentType: doc.ContentType,
	})
	if err != nil {
		j.noteError(res, err)
		return
	}
	res.FullText = joinText(ocr.Normalize(out.Text), ocr.Normalize(out.TokenText))
	res.Confidence = ocr.ImageConfidence(out)
	res.PagesProcessed = 1
	res.Success = true
	if res.Confidence < constants.ImageConfidenceThreshold {
		res.Warnings = append(res.Warnings, fmt.Sprintf("low OCR confidence %.2f", res.Confidence))
	}
}

func (j *Job) runPaged(ctx context.Context, doc entity.SourceDocument, content []byte, res *entity.ExtractionResult) {
	call := ocr.Pages(j.provider, ocr.Document{ID: doc.ID, Content: content, ContentType: doc.ContentType})

	total := doc.TotalPages
	var primed *entity.ExtractionBatch
	billed := 0

	if total <= 0 && j.cfg.LocalPageCount && ocr.IsPDF(content) {
		n, err := ocr.CountPages(content)
		if err != nil {
			j.logger.Debug("extract.page_count.local_failed", "doc_id", doc.ID, "error", err)
		} else {
			total = n
		}
	}

	if total <= 0 {
		pr := j.probe.Probe(ctx, doc.ID, call)
		res.ProviderCalls += pr.Calls
		billed += pr.PagesBilled
		total = pr.TotalPages
		primed = pr.First
		if pr.Capped {
			res.Warnings = append(res.Warnings, fmt.Sprintf("page count capped at %d", j.cfg.MaxPages))
		}
		if pr.ProviderErr != nil {
			j.noteError(res, pr.ProviderErr)
			if total == 0 {
				res.CostEstimate = float64(billed) * j.cfg.CostPerPage
				return
			}
		}
	}

	out := j.batches.Extract(ctx, doc.ID, call, total, primed)
	res.ProviderCalls += out.Calls
	billed += out.PagesBilled

	res.Batches = out.Batches
	res.RequestedPages = out.RequestedPages
	res.PagesProcessed = out.PagesProcessed
	res.FullText = out.Text
	res.Confidence = out.Confidence
	res.Success = out.Success
	res.CostEstimate = float64(billed) * j.cfg.CostPerPage
	if out.Err != nil {
		j.noteError(res, out.Err)
	}
	if total == 0 {
		res.Warnings = append(res.Warnings, "document has no pages")
	}
}

func (j *Job) noteError(res *entity.ExtractionResult, err error) {
	if common.IsRateLimited(err) {
		res.RateLimited = true
		if wait, ok := common.RetryAfterOf(err); ok && wait > res.RetryAfter {
			res.RetryAfter = wait
		}
	}
	res.Warnings = append(res.Warnings, err.Error())
}

// EstimateTokens approximates language-model tokens for a text, four runes per token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

func joinText(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += p
	}
	return out
}
