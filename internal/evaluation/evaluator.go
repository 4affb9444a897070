// Package evaluation builds and runs the stage graph for one underwriting case.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/enrich"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/extract"
	"github.com/joseph-ayodele/packet-underwriter/internal/fields"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr"
	"github.com/joseph-ayodele/packet-underwriter/internal/pipeline"
	"github.com/joseph-ayodele/packet-underwriter/internal/reconcile"
	"github.com/joseph-ayodele/packet-underwriter/internal/repository"
	"github.com/joseph-ayodele/packet-underwriter/internal/scoring"
)

// Deps are the external collaborators. LLM and Screener are optional.
type Deps struct {
	Store    repository.CaseStore
	OCR      ocr.Provider
	LLM      llm.Provider
	Screener *enrich.AdverseScreener
}

type Config struct {
	Extract          extract.Config
	Pipeline         pipeline.Config
	Retry            *pipeline.RetryPolicy
	Tolerance        decimal.Decimal
	Bands            scoring.Bands
	FieldConcurrency int
	// LLMCostPer1KTokens prices model usage into the report's cost estimate.
	LLMCostPer1KTokens float64
}

type Evaluator struct {
	cfg        Config
	deps       Deps
	job        *extract.Job
	fields     *fields.Extractor
	reconciler *reconcile.Reconciler
	scorer     *scoring.Engine
	runner     *pipeline.Runner
	logger     *slog.Logger
}

func NewEvaluator(cfg Config, deps Deps, logger *slog.Logger) (*Evaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil {
		return nil, common.ConfigError("evaluator needs a case store")
	}
	if deps.OCR == nil {
		return nil, common.ConfigError("evaluator needs an OCR provider")
	}
	if len(cfg.Bands.SubScores) == 0 {
		cfg.Bands = scoring.DefaultBands()
	}
	if err := cfg.Bands.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{
		cfg:        cfg,
		deps:       deps,
		job:        extract.NewJob(cfg.Extract, deps.OCR, deps.Store, logger),
		fields:     fields.NewExtractor(deps.LLM, cfg.FieldConcurrency, logger),
		reconciler: reconcile.New(reconcile.Config{Tolerance: cfg.Tolerance}, logger),
		scorer:     scoring.NewEngine(cfg.Bands),
		runner:     pipeline.NewRunner(cfg.Pipeline, cfg.Retry, logger, pipeline.Logging(logger)),
		logger:     logger,
	}, nil
}

// Evaluate runs the whole case. An unknown case yields a not_found report and
// a nil error. The returned error is reserved for configuration and record
// store failures.
func (e *Evaluator) Evaluate(ctx context.Context, caseID string) (entity.Report, error) {
	runID := uuid.New().String()
	ctx = common.WithCaseID(common.WithRequestID(ctx, runID), caseID)
	report := entity.Report{CaseID: caseID, RunID: runID, StartedAt: time.Now().UTC()}

	e.logger.Info("evaluation.start", "case_id", caseID, "run_id", runID)
	c, err := e.deps.Store.GetCase(ctx, caseID)
	if errors.Is(err, common.ErrRecordNotFound) {
		e.logger.Warn("evaluation.case_not_found", "case_id", caseID, "run_id", runID)
		report.Status = constants.RunNotFound
		report.FinishedAt = time.Now().UTC()
		return report, nil
	}
	if err != nil {
		report.Status = constants.RunFailed
		report.FinishedAt = time.Now().UTC()
		return report, fmt.Errorf("load case %s: %w", caseID, err)
	}

	docs, skipped := extract.Documents(*c)
	report.Skipped = skipped
	for _, s := range skipped {
		report.Annotations = append(report.Annotations, fmt.Sprintf("attachment %s skipped: %s", s.Name, s.Reason))
	}

	stages := e.buildStages(c, docs)
	res, err := e.runner.Run(ctx, stages)
	if err != nil {
		report.Status = constants.RunFailed
		report.FinishedAt = time.Now().UTC()
		return report, err
	}

	e.assemble(&report, res)
	report.FinishedAt = time.Now().UTC()
	e.logger.Info("evaluation.done",
		"case_id", caseID,
		"run_id", runID,
		"status", report.Status,
		"cost", report.CostEstimate,
		"elapsed_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report, nil
}

func (e *Evaluator) assemble(report *entity.Report, res pipeline.Result) {
	report.Status = res.Status
	report.Stages = res.Stages

	tokens := 0
	for _, cat := range constants.Categories() {
		ce, ok := pipeline.Input[entity.CategoryExtraction](res.Outputs, extractStageID(cat))
		if !ok {
			continue
		}
		report.Extractions = append(report.Extractions, ce)
		tokens += ce.LLMTokens
		for _, r := range ce.Results {
			report.CostEstimate += r.CostEstimate
		}
	}
	if rec, ok := pipeline.Input[*entity.Reconciliation](res.Outputs, StageReconcile); ok {
		report.Reconciliation = rec
		report.Annotations = append(report.Annotations, rec.Notes...)
	}
	if am, ok := pipeline.Input[*entity.AdverseMedia](res.Outputs, StageAdverseMedia); ok {
		report.AdverseMedia = am
		tokens += am.LLMTokens
	}
	if ph, ok := pipeline.Input[*entity.PaymentHistory](res.Outputs, StagePaymentStability); ok {
		report.PaymentHistory = ph
	}
	if sc, ok := pipeline.Input[*entity.CaseScore](res.Outputs, StageScore); ok {
		report.Score = sc
		for _, name := range sc.MissingInputs {
			report.Annotations = append(report.Annotations, fmt.Sprintf("%v: %s", common.ErrScoringInputMissing, name))
		}
		for _, name := range sc.PartialInputs {
			report.Annotations = append(report.Annotations, "scored from partial data: "+name)
		}
	}
	report.CostEstimate += float64(tokens) / 1000 * e.cfg.LLMCostPer1KTokens

	for _, s := range res.Stages {
		switch s.Status {
		case constants.StageDegraded, constants.StageFailed, constants.StageCancelled:
			msg := fmt.Sprintf("stage %s %s", s.ID, s.Status)
			if s.Err != "" {
				msg += ": " + s.Err
			}
			report.Annotations = append(report.Annotations, msg)
		}
	}
}
