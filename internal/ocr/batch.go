package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

// BatchConfig bounds one document's extraction.
type BatchConfig struct {
	BatchSize int // provider per-call page limit, default 5
	MaxPages  int // default 50
}

// BatchOutcome is the accumulated result of sequential batch calls.
type BatchOutcome struct {
	Batches        []entity.ExtractionBatch
	Text           string  // block text then token text, batch by batch
	Confidence     float32 // mean per-page confidence over done batches
	RequestedPages int
	PagesProcessed int
	Calls          int
	PagesBilled    int
	Success        bool  // at least one batch done
	ReachedEnd     bool  // stopped on the end-of-document signal
	Err            error // non-EOF failure that stopped extraction, if any
}

// BatchExtractor walks a paged document in contiguous, strictly ordered batches.
type BatchExtractor struct {
	cfg    BatchConfig
	logger *slog.Logger
}

func NewBatchExtractor(cfg BatchConfig, logger *slog.Logger) *BatchExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	return &BatchExtractor{cfg: cfg, logger: logger}
}

// BatchSize returns the effective per-call page limit.
func (b *BatchExtractor) BatchSize() int { return b.cfg.BatchSize }

// Extract fetches pages [1, min(totalPages, MaxPages)] in order.
//
// A done batch starting at page 1 may be passed as primed; its pages are not
// fetched again. The end-of-document signal stops extraction quietly. Any other
// failure stops extraction too, but every batch already done is kept.
func (b *BatchExtractor) Extract(ctx context.Context, docID string, call PageFunc, totalPages int, primed *entity.ExtractionBatch) BatchOutcome {
	start := time.Now()
	requested := min(totalPages, b.cfg.MaxPages)
	out := BatchOutcome{RequestedPages: max(requested, 0)}
	if requested <= 0 {
		return out
	}

	next := 1
	if primed != nil && primed.Status == constants.BatchDone && primed.PageRange.First == 1 {
		p := *primed
		if p.PageRange.Last > requested {
			p = *clipBatch(&p, requested)
		}
		out.Batches = append(out.Batches, p)
		next = p.PageRange.Last + 1
		if p.PagesReturned < p.PageRange.Len() {
			next = requested + 1
			out.ReachedEnd = true
		}
	}

	for first := next; first <= requested; first += b.cfg.BatchSize {
		last := min(first+b.cfg.BatchSize-1, requested)
		r := entity.PageRange{First: first, Last: last}

		if err := ctx.Err(); err != nil {
			out.Err = err
			break
		}

		out.Calls++
		out.PagesBilled += r.Len()
		res, err := call(ctx, r.Pages())
		if err != nil {
			if common.IsPageBoundary(err) {
				b.logger.Debug("ocr.batch.eof", "doc_id", docID, "first", first, "last", last)
				out.ReachedEnd = true
				break
			}
			b.logger.Warn("ocr.batch.failed",
				"doc_id", docID, "first", first, "last", last, "error", err)
			out.Batches = append(out.Batches, entity.ExtractionBatch{
				DocumentID: docID,
				PageRange:  r,
				Status:     constants.BatchFailed,
				Err:        err.Error(),
			})
			out.Err = err
			break
		}

		batch := batchFromResult(docID, r, res.Pages)
		out.Batches = append(out.Batches, batch)
		b.logger.Debug("ocr.batch.ok",
			"doc_id", docID, "first", first, "last", last, "pages", batch.PagesReturned)

		if batch.PagesReturned < r.Len() {
			// fewer pages than asked for, without an error, is the end
			out.ReachedEnd = true
			break
		}
	}

	var parts []string
	var confSum float32
	var confN, done int
	for _, batch := range out.Batches {
		if batch.Status != constants.BatchDone {
			continue
		}
		done++
		out.PagesProcessed += batch.PagesReturned
		parts = append(parts, batch.Text, batch.TokenText)
		for _, c := range batch.PerPageConfidence {
			confSum += c
			confN++
		}
	}
	out.PagesProcessed = min(out.PagesProcessed, requested)
	out.Success = done > 0
	out.Text = joinNonEmpty(parts, "\n\n")
	if confN > 0 {
		out.Confidence = confSum / float32(confN)
	}

	b.logger.Info("ocr.extract.done",
		"doc_id", docID,
		"requested_pages", out.RequestedPages,
		"pages_processed", out.PagesProcessed,
		"calls", out.Calls,
		"success", out.Success,
		"reached_end", out.ReachedEnd,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// Summary renders a one-line description of the batches for annotations.
func (o BatchOutcome) Summary() string {
	return fmt.Sprintf("%d/%d pages in %d batches", o.PagesProcessed, o.RequestedPages, len(o.Batches))
}

func joinNonEmpty(parts []string, sep string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
