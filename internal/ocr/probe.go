package ocr

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

// ProbeConfig bounds page discovery.
type ProbeConfig struct {
	MaxPages int // hard cap on the returned count, default 50
	Stride   int // forward step while searching for the end, default 10
	Window   int // pages requested by the first call, default 1
}

// ProbeResult is the discovered page count and how it was obtained.
type ProbeResult struct {
	TotalPages  int
	Reported    bool  // provider stated the count on a probe call
	Capped      bool  // the document has at least MaxPages pages
	Calls       int   // provider calls made while probing
	PagesBilled int   // page indices requested across those calls
	ProviderErr error // non-EOF failure that stopped probing, if any

	// First holds the probe window's pages so the extractor can reuse them.
	First *entity.ExtractionBatch
}

// PageProbe discovers the true page count of a paged document whose provider
// may not report it.
type PageProbe struct {
	cfg    ProbeConfig
	logger *slog.Logger
}

func NewPageProbe(cfg ProbeConfig, logger *slog.Logger) *PageProbe {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.Stride <= 0 {
		cfg.Stride = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = 1
	}
	if cfg.Window > cfg.MaxPages {
		cfg.Window = cfg.MaxPages
	}
	return &PageProbe{cfg: cfg, logger: logger}
}

// Probe returns the page count of the document behind call.
//
// The first call requests the probe window. A reported total is accepted as-is
// (capped). Otherwise single pages are probed at stride intervals until the
// end-of-document signal, and the last stride is bisected to the exact boundary.
// Any other failure stops probing and the last known-good count is returned.
func (p *PageProbe) Probe(ctx context.Context, docID string, call PageFunc) ProbeResult {
	start := time.Now()
	var res ProbeResult
	maxPages := p.cfg.MaxPages

	try := func(pages []int) (PagesResult, error) {
		res.Calls++
		res.PagesBilled += len(pages)
		return call(ctx, pages)
	}

	accept := func(total int) ProbeResult {
		if total > maxPages {
			total = maxPages
			res.Capped = true
		}
		res.TotalPages = total
		if res.First != nil && res.First.PageRange.Last > total {
			res.First = clipBatch(res.First, total)
		}
		p.logger.Debug("ocr.probe.done",
			"doc_id", docID,
			"total_pages", res.TotalPages,
			"reported", res.Reported,
			"capped", res.Capped,
			"calls", res.Calls,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return res
	}

	stop := func(known int, err error) ProbeResult {
		res.ProviderErr = err
		p.logger.Warn("ocr.probe.provider_error",
			"doc_id", docID, "known_pages", known, "calls", res.Calls, "error", err)
		return accept(known)
	}

	// 1) probe window
	window := p.cfg.Window
	out, err := try(pageRange(1, window))
	if err != nil && common.IsPageBoundary(err) && window > 1 {
		window = 1
		out, err = try([]int{1})
	}
	switch {
	case err == nil:
	case common.IsPageBoundary(err):
		return accept(0)
	default:
		return stop(0, err)
	}

	res.First = batchFromPages(docID, out.Pages, window)
	if out.TotalPages > 0 {
		res.Reported = true
		return accept(out.TotalPages)
	}
	if n := len(out.Pages); n > 0 && n < window {
		// a short window without an error already marks the end
		return accept(res.First.PageRange.Last)
	}

	// 2) stride forward
	lastGood, firstBad := window, 0
	for firstBad == 0 {
		if lastGood >= maxPages {
			res.Capped = true
			return accept(maxPages)
		}
		next := lastGood + p.cfg.Stride
		if next > maxPages {
			next = maxPages
		}
		out, err := try([]int{next})
		switch {
		case err == nil:
			if out.TotalPages > 0 {
				res.Reported = true
				return accept(out.TotalPages)
			}
			lastGood = next
		case common.IsPageBoundary(err):
			firstBad = next
		default:
			return stop(lastGood, err)
		}
	}

	// 3) bisect (lastGood exists, firstBad does not)
	lo, hi := lastGood, firstBad
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		_, err := try([]int{mid})
		switch {
		case err == nil:
			lo = mid
		case common.IsPageBoundary(err):
			hi = mid
		default:
			return stop(lo, err)
		}
	}
	return accept(lo)
}

func batchFromPages(docID string, pages []PageText, requested int) *entity.ExtractionBatch {
	last := requested
	if len(pages) > 0 && len(pages) < requested {
		last = len(pages)
	}
	b := batchFromResult(docID, entity.PageRange{First: 1, Last: last}, pages)
	return &b
}

// clipBatch drops pages beyond total from a probe window batch.
func clipBatch(b *entity.ExtractionBatch, total int) *entity.ExtractionBatch {
	if total <= 0 {
		return nil
	}
	c := *b
	c.PageRange.Last = total
	if len(c.PerPageConfidence) > total {
		c.PerPageConfidence = c.PerPageConfidence[:total]
	}
	if c.PagesReturned > total {
		c.PagesReturned = total
	}
	return &c
}

func batchFromResult(docID string, r entity.PageRange, pages []PageText) entity.ExtractionBatch {
	b := entity.ExtractionBatch{
		DocumentID: docID,
		PageRange:  r,
		Status:     constants.BatchDone,
	}
	var text, tokens []string
	for _, pg := range pages {
		if pg.Index != 0 && (pg.Index < r.First || pg.Index > r.Last) {
			continue
		}
		text = append(text, Normalize(pg.Text))
		tokens = append(tokens, Normalize(pg.TokenText))
		b.PerPageConfidence = append(b.PerPageConfidence, pageConfidence(pg))
	}
	b.PagesReturned = len(b.PerPageConfidence)
	b.Text = joinNonEmpty(text, "\n\f\n")
	b.TokenText = joinNonEmpty(tokens, " ")
	return b
}
