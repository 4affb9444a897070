package evaluation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/enrich"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/extract"
	"github.com/joseph-ayodele/packet-underwriter/internal/fields"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
	"github.com/joseph-ayodele/packet-underwriter/internal/pipeline"
	"github.com/joseph-ayodele/packet-underwriter/internal/scoring"
	"github.com/joseph-ayodele/packet-underwriter/internal/textnorm"
)

const (
	StageReconcile        = "reconcile"
	StageAdverseMedia     = "enrich:adverse_media"
	StagePaymentStability = "enrich:payment_stability"
	StageScore            = "score"
)

// Reference names read by the score stage.
const (
	RefPurchasePrice = "purchase_price"
	RefFaceAmount    = fields.InvoiceAmount
)

func extractStageID(cat constants.DocumentCategory) string {
	return "extract:" + string(cat)
}

// buildStages lays out the case DAG: one extraction stage per category
// present, reconciliation over all of them, two enrichments, then scoring.
func (e *Evaluator) buildStages(c *entity.Case, docs []entity.SourceDocument) []pipeline.Stage {
	byCat := extract.ByCategory(docs)
	var stages []pipeline.Stage
	var extractIDs []string
	for _, cat := range constants.Categories() {
		catDocs, ok := byCat[cat]
		if !ok {
			continue
		}
		id := extractStageID(cat)
		extractIDs = append(extractIDs, id)
		stages = append(stages, pipeline.Stage{ID: id, Execute: e.extractStage(cat, catDocs)})
	}

	stages = append(stages, pipeline.Stage{
		ID:        StageReconcile,
		DependsOn: extractIDs,
		Required:  true,
		Execute:   e.reconcileStage(c.References, extractIDs),
	})

	stages = append(stages, pipeline.Stage{
		ID:      StageAdverseMedia,
		Execute: e.adverseMediaStage(screeningSubjects(c)),
	})

	bankID := extractStageID(constants.BankStatement)
	var stabilityDeps []string
	if _, ok := byCat[constants.BankStatement]; ok {
		stabilityDeps = []string{bankID}
	}
	stages = append(stages, pipeline.Stage{
		ID:        StagePaymentStability,
		DependsOn: stabilityDeps,
		Execute:   e.paymentStabilityStage(bankID),
	})

	stages = append(stages, pipeline.Stage{
		ID:        StageScore,
		DependsOn: []string{StageReconcile, StageAdverseMedia, StagePaymentStability},
		Required:  true,
		Execute:   e.scoreStage(c.References),
	})
	return stages
}

// extractStage runs OCR then field extraction for one category. Bank
// statements fan out main and auxiliary documents separately. Results are kept
// across retries: a retry reruns only the rate-limited documents, and once the
// retry budget is spent the stage ends degraded with what it has.
func (e *Evaluator) extractStage(cat constants.DocumentCategory, docs []entity.SourceDocument) pipeline.StageFunc {
	kept := make(map[string]entity.ExtractionResult, len(docs))
	cost := make(map[string]float64, len(docs))
	calls := make(map[string]int, len(docs))

	return func(ctx context.Context, _ pipeline.Inputs) (pipeline.Outcome, error) {
		pending := make([]entity.SourceDocument, 0, len(docs))
		for _, d := range docs {
			if r, ok := kept[d.ID]; !ok || r.RateLimited {
				pending = append(pending, d)
			}
		}
		for _, r := range e.runOCR(ctx, cat, pending) {
			cost[r.DocumentID] += r.CostEstimate
			calls[r.DocumentID] += r.ProviderCalls
			// a rerun that got less far keeps the earlier pages
			if prev, ok := kept[r.DocumentID]; ok && r.RateLimited && prev.PagesProcessed > r.PagesProcessed {
				continue
			}
			kept[r.DocumentID] = r
		}

		results := make([]entity.ExtractionResult, len(docs))
		for i, d := range docs {
			r := kept[d.ID]
			r.CostEstimate = cost[d.ID]
			r.ProviderCalls = calls[d.ID]
			results[i] = r
		}
		if err := rateLimitOf(results); err != nil && !pipeline.FinalAttempt(ctx) {
			return pipeline.Outcome{}, err
		}

		inputs := make([]fields.Input, 0, len(results))
		for i, r := range results {
			in := fields.Input{Result: r}
			if e.deps.LLM != nil && r.MimeKind == constants.IMAGE && !r.Skipped {
				if content, err := e.deps.Store.FetchAttachment(ctx, docs[i].ContentKey); err == nil {
					if img, ok := llm.ShouldAttachImage(r.MimeKind, docs[i].ContentType, content, r.Confidence); ok {
						in.Image = &img
					}
				}
			}
			inputs = append(inputs, in)
		}
		out, err := e.fields.ExtractAll(ctx, inputs)
		if err != nil {
			return pipeline.Outcome{}, err
		}

		ce := entity.CategoryExtraction{
			Category:  cat,
			Results:   results,
			Fields:    out.Fields,
			LLMTokens: out.Tokens,
			Notes:     out.Notes,
		}
		for _, r := range results {
			if r.RateLimited || r.Skipped || !r.Success {
				ce.Partial = true
				ce.Notes = append(ce.Notes, fmt.Sprintf("%s: %s", r.DocumentName, failureReason(r)))
			}
			for _, w := range r.Warnings {
				ce.Notes = append(ce.Notes, fmt.Sprintf("%s: %s", r.DocumentName, w))
			}
		}
		return pipeline.Outcome{Value: ce, Partial: ce.Partial, Notes: ce.Notes}, nil
	}
}

func (e *Evaluator) runOCR(ctx context.Context, cat constants.DocumentCategory, docs []entity.SourceDocument) []entity.ExtractionResult {
	runner := extract.NewCategoryRunner(e.job, 0, e.logger)
	if cat != constants.BankStatement {
		return runner.Run(ctx, docs)
	}
	var main, aux []entity.SourceDocument
	for _, d := range docs {
		if d.Role == entity.RoleAuxiliary {
			aux = append(aux, d)
		} else {
			main = append(main, d)
		}
	}
	var mainRes, auxRes []entity.ExtractionResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { mainRes = runner.Run(gctx, main); return nil })
	g.Go(func() error { auxRes = runner.Run(gctx, aux); return nil })
	_ = g.Wait()

	// results must line up with docs for image lookups
	byID := make(map[string]entity.ExtractionResult, len(docs))
	for _, r := range append(mainRes, auxRes...) {
		byID[r.DocumentID] = r
	}
	out := make([]entity.ExtractionResult, len(docs))
	for i, d := range docs {
		out[i] = byID[d.ID]
	}
	return out
}

// rateLimitOf turns a rate-limited document into a stage error so the shared
// retry policy reruns the category. The longest suggested wait wins.
func rateLimitOf(results []entity.ExtractionResult) error {
	var wait time.Duration
	limited := false
	for _, r := range results {
		if !r.RateLimited {
			continue
		}
		limited = true
		if r.RetryAfter > wait {
			wait = r.RetryAfter
		}
	}
	if !limited {
		return nil
	}
	return &common.RateLimitError{Provider: "ocr", RetryAfter: wait}
}

func failureReason(r entity.ExtractionResult) string {
	if r.RateLimited {
		return fmt.Sprintf("%v after %d of %d pages; retry budget spent", common.ErrRateLimited, r.PagesProcessed, r.RequestedPages)
	}
	if r.SkipReason != "" {
		return "skipped: " + r.SkipReason
	}
	return "no page extracted"
}

func (e *Evaluator) reconcileStage(refs []entity.ReferenceField, extractIDs []string) pipeline.StageFunc {
	return func(_ context.Context, in pipeline.Inputs) (pipeline.Outcome, error) {
		var all []entity.ExtractedField
		var missing, partial []string
		for _, id := range extractIDs {
			ce, ok := pipeline.Input[entity.CategoryExtraction](in, id)
			if !ok {
				missing = append(missing, id)
				continue
			}
			if ce.Partial {
				partial = append(partial, id)
			}
			all = append(all, ce.Fields...)
		}
		rec := e.reconciler.ReconcileAll(refs, all)
		if len(missing) > 0 {
			rec.Partial = true
			rec.Notes = append(rec.Notes, "reconciled without "+strings.Join(missing, ", "))
		}
		if len(partial) > 0 {
			rec.Partial = true
			rec.Notes = append(rec.Notes, "reconciled from partial "+strings.Join(partial, ", "))
		}
		return pipeline.Outcome{Value: &rec, Notes: rec.Notes}, nil
	}
}

// screeningSubjects is the case counterparty plus any reference counterparty name.
func screeningSubjects(c *entity.Case) []string {
	subjects := []string{c.Counterparty}
	for _, r := range c.References {
		if r.Name == fields.CounterpartyName && r.Present() {
			subjects = append(subjects, r.Expected())
		}
	}
	return subjects
}

func (e *Evaluator) adverseMediaStage(subjects []string) pipeline.StageFunc {
	return func(ctx context.Context, _ pipeline.Inputs) (pipeline.Outcome, error) {
		if e.deps.Screener == nil {
			return pipeline.Outcome{}, pipeline.ErrSkip
		}
		am, err := e.deps.Screener.Screen(ctx, subjects)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		return pipeline.Outcome{Value: &am, Partial: am.Incomplete, Notes: am.Notes}, nil
	}
}

func (e *Evaluator) paymentStabilityStage(bankID string) pipeline.StageFunc {
	return func(_ context.Context, in pipeline.Inputs) (pipeline.Outcome, error) {
		ce, ok := pipeline.Input[entity.CategoryExtraction](in, bankID)
		if !ok {
			return pipeline.Outcome{}, pipeline.ErrSkip
		}
		ph := enrich.BuildPaymentHistory(ce.Fields)
		if ce.Partial {
			ph.Partial = true
			ph.Notes = append(ph.Notes, "built from partial bank statements")
		}
		return pipeline.Outcome{Value: &ph, Notes: ph.Notes}, nil
	}
}

func (e *Evaluator) scoreStage(refs []entity.ReferenceField) pipeline.StageFunc {
	return func(_ context.Context, in pipeline.Inputs) (pipeline.Outcome, error) {
		var si scoring.Input
		if rec, ok := pipeline.Input[*entity.Reconciliation](in, StageReconcile); ok {
			si.Reconciliation = rec
		}
		if am, ok := pipeline.Input[*entity.AdverseMedia](in, StageAdverseMedia); ok {
			si.AdverseMedia = am
		}
		if ph, ok := pipeline.Input[*entity.PaymentHistory](in, StagePaymentStability); ok {
			si.Inflows = ph
		}
		for _, r := range refs {
			if !r.Present() {
				continue
			}
			d, err := textnorm.ParseAmount(r.Expected())
			if err != nil {
				continue
			}
			switch r.Name {
			case RefPurchasePrice:
				si.PaidAmount = &d
			case RefFaceAmount:
				si.FaceAmount = &d
			}
		}
		score := e.scorer.Score(si)
		var notes []string
		for _, m := range score.MissingInputs {
			notes = append(notes, fmt.Sprintf("%v: %s", common.ErrScoringInputMissing, m))
		}
		for _, p := range score.PartialInputs {
			notes = append(notes, "scored from partial data: "+p)
		}
		return pipeline.Outcome{Value: &score, Notes: notes}, nil
	}
}
