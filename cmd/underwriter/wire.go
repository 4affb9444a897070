package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/enrich"
	"github.com/joseph-ayodele/packet-underwriter/internal/evaluation"
	"github.com/joseph-ayodele/packet-underwriter/internal/extract"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm/openai"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm/vertex"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr/pdftext"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr/vision"
	"github.com/joseph-ayodele/packet-underwriter/internal/pipeline"
	"github.com/joseph-ayodele/packet-underwriter/internal/scoring"
	"github.com/joseph-ayodele/packet-underwriter/internal/search/web"
	"github.com/joseph-ayodele/packet-underwriter/internal/server"
)

// app is everything a command needs to evaluate cases.
type app struct {
	cfg       *common.Config
	logger    *slog.Logger
	store     *server.Store
	evaluator *evaluation.Evaluator
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadConfig() (*common.Config, *slog.Logger, error) {
	cfg := common.LoadConfig(v)
	logger := newLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return nil, nil, err
	}
	return cfg, logger, nil
}

// connect opens only the record store.
func connect(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*server.Store, error) {
	store, err := server.ConnectStore(ctx, cfg.Database, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open record store", "driver", cfg.Database.Driver, "error", err)
		return nil, err
	}
	return store, nil
}

// newApp wires the record store and every provider into an Evaluator.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	store, err := connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	ocrProvider, err := newOCR(cfg.OCR, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	model, err := newLLM(ctx, a, cfg.LLM, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	screener, err := newScreener(cfg.Search, model, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	tolerance, err := decimal.NewFromString(cfg.Pipeline.AmountTolerance)
	if err != nil {
		a.Close()
		return nil, common.ConfigError(fmt.Sprintf("pipeline.amount_tolerance %q is not a decimal", cfg.Pipeline.AmountTolerance))
	}
	bands, err := scoring.LoadBands(cfg.Scoring.BandsFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	retry := pipeline.DefaultRetryPolicy(logger)
	retry.MaxRetries = cfg.Pipeline.MaxRetries
	if cfg.Pipeline.DefaultRetryWait > 0 {
		retry.DefaultWait = cfg.Pipeline.DefaultRetryWait
	}

	a.evaluator, err = evaluation.NewEvaluator(evaluation.Config{
		Extract: extract.Config{
			BatchSize:          cfg.OCR.BatchSize,
			MaxPages:           cfg.OCR.MaxPages,
			Stride:             cfg.OCR.Stride,
			CostPerPage:        cfg.OCR.CostPerPage,
			CostPerImage:       cfg.OCR.CostPerImage,
			MaxAttachmentBytes: int64(cfg.Storage.MaxAttachmentMB) << 20,
			LocalPageCount:     true,
			DocConcurrency:     cfg.Pipeline.DocConcurrency,
		},
		Pipeline:           pipeline.Config{MaxConcurrency: cfg.Pipeline.MaxConcurrency},
		Retry:              retry,
		Tolerance:          tolerance,
		Bands:              bands,
		FieldConcurrency:   cfg.Pipeline.DocConcurrency,
		LLMCostPer1KTokens: cfg.LLM.CostPer1KTokens,
	}, evaluation.Deps{
		Store:    store,
		OCR:      ocrProvider,
		LLM:      model,
		Screener: screener,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newOCR(cfg common.OCRConfig, logger *slog.Logger) (ocr.Provider, error) {
	switch cfg.Provider {
	case "pdftext":
		return pdftext.New(logger), nil
	default:
		return vision.NewClient(vision.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}, nil, logger)
	}
}

// newLLM returns a nil provider for "none"; field extraction then uses the prose parser.
func newLLM(ctx context.Context, a *app, cfg common.LLMConfig, logger *slog.Logger) (llm.Provider, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "vertex":
		c, err := vertex.NewClient(ctx, vertex.Config{
			Project:     cfg.Project,
			Region:      cfg.Region,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				logger.Error("failed to close vertex client", "error", err)
			}
		})
		return c, nil
	default:
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, nil, logger), nil
	}
}

// newScreener returns nil when no search endpoint is configured, which skips
// the adverse-media stage.
func newScreener(cfg common.SearchConfig, model llm.Provider, logger *slog.Logger) (*enrich.AdverseScreener, error) {
	if cfg.BaseURL == "" {
		logger.Warn("search.base_url not set; adverse-media screening disabled")
		return nil, nil
	}
	sp, err := web.NewClient(web.Config{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Timeout: cfg.Timeout}, nil, logger)
	if err != nil {
		return nil, err
	}
	return enrich.NewAdverseScreener(sp, model, enrich.AdverseConfig{ResultsPerQuery: cfg.MaxResults}, logger), nil
}
