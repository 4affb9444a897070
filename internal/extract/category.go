package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

// Documents turns a case's attachment descriptors into source documents.
// Attachments with an unknown category or file kind are reported, not dropped silently.
func Documents(c entity.Case) ([]entity.SourceDocument, []entity.SkippedAttachment) {
	var docs []entity.SourceDocument
	var skipped []entity.SkippedAttachment
	for i, att := range c.Attachments {
		cat, ok := constants.Canonicalize(att.Category)
		if !ok {
			skipped = append(skipped, entity.SkippedAttachment{Name: att.Name, Reason: fmt.Sprintf("unknown category %q", att.Category)})
			continue
		}
		kind := constants.MapContentType(att.ContentType, att.Name)
		if kind == "" {
			skipped = append(skipped, entity.SkippedAttachment{Name: att.Name, Reason: fmt.Sprintf("unsupported content type %q", att.ContentType)})
			continue
		}
		role := entity.RoleMain
		if strings.EqualFold(strings.TrimSpace(att.Role), string(entity.RoleAuxiliary)) {
			role = entity.RoleAuxiliary
		}
		docs = append(docs, entity.SourceDocument{
			ID:          fmt.Sprintf("%s-%02d", c.ID, i+1),
			Name:        att.Name,
			Category:    cat,
			MimeKind:    kind,
			ContentKey:  att.ContentKey,
			ContentType: att.ContentType,
			Role:        role,
		})
	}
	return docs, skipped
}

// ByCategory groups documents in pipeline category order.
func ByCategory(docs []entity.SourceDocument) map[constants.DocumentCategory][]entity.SourceDocument {
	out := make(map[constants.DocumentCategory][]entity.SourceDocument)
	for _, d := range docs {
		out[d.Category] = append(out[d.Category], d)
	}
	return out
}

// CategoryRunner runs jobs for a same-category document set with bounded concurrency.
type CategoryRunner struct {
	job         *Job
	concurrency int
	logger      *slog.Logger
}

func NewCategoryRunner(job *Job, concurrency int, logger *slog.Logger) *CategoryRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = job.cfg.DocConcurrency
	}
	return &CategoryRunner{job: job, concurrency: concurrency, logger: logger}
}

// Run returns one result per document, in input order.
func (r *CategoryRunner) Run(ctx context.Context, docs []entity.SourceDocument) []entity.ExtractionResult {
	results := make([]entity.ExtractionResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = r.job.Run(gctx, doc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Summary aggregates cost and volume over results.
type Summary struct {
	Documents      int
	Succeeded      int
	Skipped        int
	PagesProcessed int
	ProviderCalls  int
	CostEstimate   float64
	TokenEstimate  int
	RateLimited    bool
}

func Summarize(results []entity.ExtractionResult) Summary {
	var s Summary
	for _, r := range results {
		s.Documents++
		if r.Success {
			s.Succeeded++
		}
		if r.Skipped {
			s.Skipped++
		}
		s.PagesProcessed += r.PagesProcessed
		s.ProviderCalls += r.ProviderCalls
		s.CostEstimate += r.CostEstimate
		s.TokenEstimate += r.TokenEstimate
		s.RateLimited = s.RateLimited || r.RateLimited
	}
	return s
}
