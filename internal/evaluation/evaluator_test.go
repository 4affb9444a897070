package evaluation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/enrich"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/extract"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr"
	"github.com/joseph-ayodele/packet-underwriter/internal/pipeline"
	"github.com/joseph-ayodele/packet-underwriter/internal/repository"
	"github.com/joseph-ayodele/packet-underwriter/internal/scoring"
	"github.com/joseph-ayodele/packet-underwriter/internal/search"
)

const invoiceText = `請求書
株式会社サンプル商事 御中
請求日：令和6年3月31日
発行者：テスト株式会社
ご請求金額 ¥4,027,740-`

const statementText = `普通預金 入出金明細
口座名義 カ)テスト
2024/04/10 振込 カ)サンプルシヨウジ 2,500,000 3,100,000
2024/04/25 振込 カ)サンプルシヨウジ 1,527,740 4,627,740
2024/04/30 口座振替 電気料金 12,000 4,615,740`

const identityText = "運転免許証\n氏名 山田 太郎\n生年月日 昭和60年5月1日\n住所 東京都千代田区1-1"

// textOCR treats every attachment as a one-page document whose text is its bytes.
type textOCR struct {
	mu          sync.Mutex
	limitOnce   map[string]bool
	limitAlways map[string]bool
	calls       int
	byContent   map[string]int
}

func (p *textOCR) Name() string { return "text" }

func (p *textOCR) RecognizeImage(_ context.Context, req ocr.ImageRequest) (ocr.ImageResult, error) {
	return ocr.ImageResult{Text: string(req.Content), Confidence: 0.9}, nil
}

func (p *textOCR) RecognizePages(_ context.Context, req ocr.PagesRequest) (ocr.PagesResult, error) {
	p.mu.Lock()
	p.calls++
	if p.byContent == nil {
		p.byContent = map[string]int{}
	}
	p.byContent[string(req.Content)]++
	if p.limitAlways[string(req.Content)] {
		p.mu.Unlock()
		return ocr.PagesResult{}, &common.RateLimitError{Provider: "text", RetryAfter: 5 * time.Second}
	}
	if p.limitOnce[string(req.Content)] {
		delete(p.limitOnce, string(req.Content))
		p.mu.Unlock()
		return ocr.PagesResult{}, &common.RateLimitError{Provider: "text", RetryAfter: 5 * time.Second}
	}
	p.mu.Unlock()

	if len(req.Pages) == 0 || req.Pages[0] > 1 {
		return ocr.PagesResult{}, &common.PageBoundaryError{Page: req.Pages[0]}
	}
	return ocr.PagesResult{
		Pages:      []ocr.PageText{{Index: 1, Text: string(req.Content), Confidence: 0.95}},
		TotalPages: 1,
	}, nil
}

func strPtr(s string) *string { return &s }

func seedCase(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := repository.OpenSQLite(ctx, ":memory:", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.PutBlob(ctx, "blob:inv", []byte(invoiceText)))
	require.NoError(t, s.PutBlob(ctx, "blob:st", []byte(statementText)))
	require.NoError(t, s.PutBlob(ctx, "blob:id", []byte(identityText)))
	require.NoError(t, s.PutCase(ctx, entity.Case{
		ID:           "CASE-1",
		Counterparty: "株式会社サンプル商事",
		References: []entity.ReferenceField{
			{Name: "invoice_amount", Kind: constants.KindMoney, ExpectedValue: strPtr("4027740")},
			{Name: "counterparty_name", Kind: constants.KindText, ExpectedValue: strPtr("株式会社サンプル商事")},
			{Name: "payment_amount", Kind: constants.KindMoney, ExpectedValue: strPtr("4,027,740")},
			{Name: "identity_name", Kind: constants.KindText, ExpectedValue: strPtr("山田太郎")},
			{Name: "purchase_price", Kind: constants.KindMoney, ExpectedValue: strPtr("3200000")},
			{Name: "deposit_amount", Kind: constants.KindMoney},
		},
		Attachments: []entity.Attachment{
			{Name: "invoice.pdf", ContentType: "application/pdf", ContentKey: "blob:inv", Category: "invoice"},
			{Name: "statement.pdf", ContentType: "application/pdf", ContentKey: "blob:st", Category: "bank_statement", Role: "main"},
			{Name: "license.pdf", ContentType: "application/pdf", ContentKey: "blob:id", Category: "identity"},
			{Name: "notes.docx", ContentType: "application/msword", ContentKey: "blob:none", Category: "invoice"},
		},
	}))
	return s
}

func newTestEvaluator(t *testing.T, store repository.CaseStore, provider ocr.Provider, waits *[]time.Duration) *Evaluator {
	t.Helper()
	return newEvaluatorWithDeps(t, Deps{Store: store, OCR: provider}, waits)
}

func newEvaluatorWithDeps(t *testing.T, deps Deps, waits *[]time.Duration) *Evaluator {
	t.Helper()
	var mu sync.Mutex
	retry := &pipeline.RetryPolicy{
		MaxRetries:  pipeline.DefaultMaxRetries,
		DefaultWait: pipeline.DefaultRetryWait,
		Sleep: func(_ context.Context, d time.Duration) error {
			mu.Lock()
			defer mu.Unlock()
			if waits != nil {
				*waits = append(*waits, d)
			}
			return nil
		},
	}
	ev, err := NewEvaluator(Config{
		Extract: extract.Config{CostPerPage: 0.01},
		Retry:   retry,
	}, deps, nil)
	require.NoError(t, err)
	return ev
}

func stageStatus(r entity.Report, id string) constants.StageStatus {
	for _, s := range r.Stages {
		if s.ID == id {
			return s.Status
		}
	}
	return constants.StageNotStarted
}

func TestEvaluate_UnknownCase(t *testing.T) {
	store := seedCase(t)
	ev := newTestEvaluator(t, store, &textOCR{}, nil)

	report, err := ev.Evaluate(context.Background(), "CASE-404")
	require.NoError(t, err)
	assert.Equal(t, constants.RunNotFound, report.Status)
	assert.Zero(t, report.CostEstimate)
	assert.Empty(t, report.Stages)
	assert.NotEmpty(t, report.RunID)
}

func TestEvaluate_FullCase(t *testing.T) {
	store := seedCase(t)
	provider := &textOCR{}
	ev := newTestEvaluator(t, store, provider, nil)

	report, err := ev.Evaluate(context.Background(), "CASE-1")
	require.NoError(t, err)

	assert.Equal(t, constants.RunCompleted, report.Status)
	assert.Equal(t, "CASE-1", report.CaseID)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "notes.docx", report.Skipped[0].Name)

	assert.Equal(t, constants.StageCompleted, stageStatus(report, "extract:invoice"))
	assert.Equal(t, constants.StageCompleted, stageStatus(report, "extract:bank_statement"))
	assert.Equal(t, constants.StageCompleted, stageStatus(report, "extract:identity"))
	assert.Equal(t, constants.StageCompleted, stageStatus(report, StageReconcile))
	assert.Equal(t, constants.StageSkipped, stageStatus(report, StageAdverseMedia))
	assert.Equal(t, constants.StageCompleted, stageStatus(report, StagePaymentStability))
	assert.Equal(t, constants.StageCompleted, stageStatus(report, StageScore))

	require.Len(t, report.Extractions, 3)
	assert.Equal(t, constants.Invoice, report.Extractions[0].Category)
	assert.Greater(t, report.CostEstimate, 0.0)

	require.NotNil(t, report.Reconciliation)
	rec := report.Reconciliation
	inv, ok := rec.Entry("invoice_amount")
	require.True(t, ok)
	assert.Equal(t, constants.Match, inv.Status)
	assert.Equal(t, constants.StrategyExact, inv.MatchStrategy)

	pay, ok := rec.Entry("payment_amount")
	require.True(t, ok)
	assert.Equal(t, constants.Match, pay.Status)
	assert.Equal(t, constants.StrategySplitSum, pay.MatchStrategy)
	assert.Len(t, pay.Components, 2)

	name, ok := rec.Entry("identity_name")
	require.True(t, ok)
	assert.Equal(t, constants.Match, name.Status)
	assert.Equal(t, constants.StrategyNormalized, name.MatchStrategy)

	assert.Contains(t, rec.Unreferenced, "deposit_amount")

	require.NotNil(t, report.PaymentHistory)
	require.Len(t, report.PaymentHistory.Counterparties, 1)

	require.NotNil(t, report.Score)
	assert.False(t, report.Score.Complete)
	assert.Contains(t, report.Score.MissingInputs, scoring.AdverseMedia)
	assert.NotEqual(t, constants.Approve, report.Score.Recommendation)
	assert.Contains(t, report.Annotations, "scoring input missing: adverse_media")
}

func TestEvaluate_RateLimitedCategoryIsRetried(t *testing.T) {
	store := seedCase(t)
	provider := &textOCR{limitOnce: map[string]bool{invoiceText: true}}
	var waits []time.Duration
	ev := newTestEvaluator(t, store, provider, &waits)

	report, err := ev.Evaluate(context.Background(), "CASE-1")
	require.NoError(t, err)
	assert.Equal(t, constants.RunCompleted, report.Status)
	assert.Equal(t, []time.Duration{5 * time.Second}, waits)

	for _, s := range report.Stages {
		if s.ID == "extract:invoice" {
			assert.Equal(t, 2, s.Attempts)
			assert.Equal(t, constants.StageCompleted, s.Status)
		}
	}
	inv, ok := report.Reconciliation.Entry("invoice_amount")
	require.True(t, ok)
	assert.Equal(t, constants.Match, inv.Status)
}

func TestEvaluate_RateLimitedDocumentKeepsSiblings(t *testing.T) {
	store := seedCase(t)
	ctx := context.Background()
	require.NoError(t, store.PutBlob(ctx, "blob:limited", []byte("throttled scan")))
	require.NoError(t, store.PutCase(ctx, entity.Case{
		ID:           "CASE-RL",
		Counterparty: "株式会社サンプル商事",
		References: []entity.ReferenceField{
			{Name: "invoice_amount", Kind: constants.KindMoney, ExpectedValue: strPtr("4027740")},
		},
		Attachments: []entity.Attachment{
			{Name: "good.pdf", ContentType: "application/pdf", ContentKey: "blob:inv", Category: "invoice"},
			{Name: "limited.pdf", ContentType: "application/pdf", ContentKey: "blob:limited", Category: "invoice"},
		},
	}))
	provider := &textOCR{limitAlways: map[string]bool{"throttled scan": true}}
	var waits []time.Duration
	ev := newTestEvaluator(t, store, provider, &waits)

	report, err := ev.Evaluate(ctx, "CASE-RL")
	require.NoError(t, err)

	assert.Equal(t, constants.RunDegraded, report.Status)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, waits)
	var stage entity.StageReport
	for _, s := range report.Stages {
		if s.ID == "extract:invoice" {
			stage = s
		}
	}
	assert.Equal(t, constants.StageDegraded, stage.Status)
	assert.Equal(t, pipeline.DefaultMaxRetries+1, stage.Attempts)

	// the good document is read once and survives the spent retry budget
	baseline := &textOCR{}
	_, err = newTestEvaluator(t, store, baseline, nil).Evaluate(ctx, "CASE-1")
	require.NoError(t, err)
	assert.Equal(t, baseline.byContent[invoiceText], provider.byContent[invoiceText])
	assert.GreaterOrEqual(t, provider.byContent["throttled scan"], pipeline.DefaultMaxRetries+1)

	require.Len(t, report.Extractions, 1)
	ce := report.Extractions[0]
	assert.True(t, ce.Partial)
	require.Len(t, ce.Results, 2)
	assert.True(t, ce.Results[0].Success)
	assert.True(t, ce.Results[1].RateLimited)
	assert.Greater(t, report.CostEstimate, 0.0)

	budgetNote := false
	for _, n := range ce.Notes {
		if strings.Contains(n, "limited.pdf") && strings.Contains(n, "retry budget spent") {
			budgetNote = true
		}
	}
	assert.True(t, budgetNote, ce.Notes)

	inv, ok := report.Reconciliation.Entry("invoice_amount")
	require.True(t, ok)
	assert.Equal(t, constants.Match, inv.Status)
	assert.True(t, report.Reconciliation.Partial)
	require.NotNil(t, report.Score)
	assert.False(t, report.Score.Complete)
	assert.NotEqual(t, constants.Approve, report.Score.Recommendation)
}

// quietSearch finds the counterparty but nothing adverse about it.
type quietSearch struct{}

func (quietSearch) Name() string { return "quiet" }

func (quietSearch) Search(context.Context, string, int) ([]search.Result, error) {
	return []search.Result{{Title: "サンプル商事 新製品発表", URL: "https://news.example/2", Snippet: "新製品"}}, nil
}

func TestEvaluate_DegradedExtractionIsNeverScoredComplete(t *testing.T) {
	store := seedCase(t)
	ctx := context.Background()
	c, err := store.GetCase(ctx, "CASE-1")
	require.NoError(t, err)
	c.ID = "CASE-PARTIAL"
	c.Attachments = append(c.Attachments, entity.Attachment{
		Name: "march.pdf", ContentType: "application/pdf", ContentKey: "blob:missing", Category: "bank_statement", Role: "aux",
	})
	require.NoError(t, store.PutCase(ctx, *c))

	screener := enrich.NewAdverseScreener(quietSearch{}, nil, enrich.AdverseConfig{}, nil)
	ev := newEvaluatorWithDeps(t, Deps{Store: store, OCR: &textOCR{}, Screener: screener}, nil)

	report, err := ev.Evaluate(ctx, "CASE-PARTIAL")
	require.NoError(t, err)

	assert.Equal(t, constants.RunDegraded, report.Status)
	assert.Equal(t, constants.StageDegraded, stageStatus(report, "extract:bank_statement"))
	assert.Equal(t, constants.StageCompleted, stageStatus(report, StageAdverseMedia))

	require.NotNil(t, report.Reconciliation)
	assert.True(t, report.Reconciliation.Partial)
	require.NotNil(t, report.PaymentHistory)
	assert.True(t, report.PaymentHistory.Partial)

	require.NotNil(t, report.Score)
	assert.NotContains(t, report.Score.MissingInputs, scoring.AdverseMedia)
	assert.Contains(t, report.Score.PartialInputs, scoring.DocumentConsistency)
	assert.False(t, report.Score.Complete)
	assert.NotEqual(t, constants.Approve, report.Score.Recommendation)
	assert.Contains(t, report.Annotations, "scored from partial data: document_consistency")
}

type brokenStore struct{ repository.CaseStore }

func (brokenStore) GetCase(context.Context, string) (*entity.Case, error) {
	return nil, errors.New("connection refused")
}

func TestEvaluate_StoreFailureIsReturned(t *testing.T) {
	ev := newTestEvaluator(t, brokenStore{}, &textOCR{}, nil)
	report, err := ev.Evaluate(context.Background(), "CASE-1")
	require.Error(t, err)
	assert.Equal(t, constants.RunFailed, report.Status)
}

func TestNewEvaluator_RequiresCollaborators(t *testing.T) {
	_, err := NewEvaluator(Config{}, Deps{OCR: &textOCR{}}, nil)
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = NewEvaluator(Config{}, Deps{Store: brokenStore{}}, nil)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
