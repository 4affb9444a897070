package enrich

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/fields"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
	"github.com/joseph-ayodele/packet-underwriter/internal/search"
)

type mockSearch struct {
	mu       sync.Mutex
	searchFn func(ctx context.Context, query string, limit int) ([]search.Result, error)
	queries  []string
}

func (m *mockSearch) Name() string { return "mock" }

func (m *mockSearch) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	return m.searchFn(ctx, query, limit)
}

type mockLLM struct {
	generateFn func(ctx context.Context, req llm.Request) (llm.Response, error)
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	return m.generateFn(ctx, req)
}

func reply(text string) *mockLLM {
	return &mockLLM{generateFn: func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{Text: text, Usage: llm.Usage{PromptTokens: 40, CompletionTokens: 10}}, nil
	}}
}

func newsResults(context.Context, string, int) ([]search.Result, error) {
	return []search.Result{
		{Title: "サンプル商事 社長を詐欺容疑で逮捕", URL: "https://news.example/1", Snippet: "株式会社サンプル商事の代表"},
		{Title: "サンプル商事 新製品発表", URL: "https://news.example/2", Snippet: "新製品"},
		{Title: "duplicate", URL: "https://news.example/1/"},
	}, nil
}

func TestScreen_TypedVerdicts(t *testing.T) {
	sp := &mockSearch{searchFn: newsResults}
	model := reply(`{"verdicts":[{"index":0,"relevant":true,"reason":"arrest of CEO"},{"index":1,"relevant":false}]}`)
	s := NewAdverseScreener(sp, model, AdverseConfig{}, nil)

	am, err := s.Screen(context.Background(), []string{"株式会社サンプル商事", "ｻﾝﾌﾟﾙ商事"})
	require.NoError(t, err)
	require.Len(t, sp.queries, 1, "names that fold equal are screened once")
	assert.True(t, strings.HasPrefix(sp.queries[0], "株式会社サンプル商事 詐欺 OR"))
	assert.Equal(t, 2, am.Screened)
	require.Len(t, am.Hits, 1)
	assert.Equal(t, "https://news.example/1", am.Hits[0].URL)
	assert.Equal(t, "arrest of CEO", am.Hits[0].Reason)
	assert.Equal(t, 50, am.LLMTokens)
}

func TestScreen_SanitizedVerdicts(t *testing.T) {
	sp := &mockSearch{searchFn: newsResults}
	model := reply(`{"verdicts":[{"index":"1","relevant":"yes","score":0.9}]}`)
	am, err := NewAdverseScreener(sp, model, AdverseConfig{}, nil).Screen(context.Background(), []string{"サンプル商事"})
	require.NoError(t, err)
	require.Len(t, am.Hits, 1)
	assert.Equal(t, "https://news.example/2", am.Hits[0].URL)
}

func TestScreen_ProseReplyFallback(t *testing.T) {
	sp := &mockSearch{searchFn: newsResults}
	model := reply("Here is my assessment:\n[0] relevant: yes - fraud arrest\n[1] relevant: no - product news")
	am, err := NewAdverseScreener(sp, model, AdverseConfig{}, nil).Screen(context.Background(), []string{"サンプル商事"})
	require.NoError(t, err)
	require.Len(t, am.Hits, 1)
	assert.Equal(t, "fraud arrest", am.Hits[0].Reason)
	require.Len(t, am.Notes, 1)
	assert.Contains(t, am.Notes[0], "prose")
}

func TestScreen_ModelFailureUsesKeywords(t *testing.T) {
	sp := &mockSearch{searchFn: newsResults}
	model := &mockLLM{generateFn: func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, &common.ProviderError{Provider: "mock", StatusCode: 500}
	}}
	am, err := NewAdverseScreener(sp, model, AdverseConfig{}, nil).Screen(context.Background(), []string{"サンプル商事"})
	require.NoError(t, err)
	require.Len(t, am.Hits, 1)
	assert.Equal(t, "keyword: 詐欺", am.Hits[0].Reason)
	assert.Contains(t, am.Notes[0], "judged by keywords")
}

func TestScreen_NoModelUsesKeywords(t *testing.T) {
	sp := &mockSearch{searchFn: newsResults}
	am, err := NewAdverseScreener(sp, nil, AdverseConfig{}, nil).Screen(context.Background(), []string{"サンプル商事"})
	require.NoError(t, err)
	assert.Len(t, am.Hits, 1)
	assert.Empty(t, am.Notes)
}

func TestScreen_RateLimitPropagates(t *testing.T) {
	sp := &mockSearch{searchFn: func(context.Context, string, int) ([]search.Result, error) {
		return nil, &common.RateLimitError{Provider: "mock", RetryAfter: time.Second}
	}}
	_, err := NewAdverseScreener(sp, nil, AdverseConfig{}, nil).Screen(context.Background(), []string{"A社", "B社"})
	require.Error(t, err)
	assert.True(t, common.IsRateLimited(err))
}

func TestScreen_SearchFailureLeavesScreenIncomplete(t *testing.T) {
	sp := &mockSearch{searchFn: func(context.Context, string, int) ([]search.Result, error) {
		return nil, &common.ProviderError{Provider: "mock", StatusCode: 502}
	}}
	am, err := NewAdverseScreener(sp, nil, AdverseConfig{}, nil).Screen(context.Background(), []string{"サンプル商事"})
	require.NoError(t, err)
	assert.Empty(t, am.Hits)
	assert.Len(t, am.Notes, 1)
	assert.True(t, am.Incomplete)
}

func TestScreen_OneFailedSubjectLeavesScreenIncomplete(t *testing.T) {
	sp := &mockSearch{searchFn: func(ctx context.Context, query string, limit int) ([]search.Result, error) {
		if strings.HasPrefix(query, "B社") {
			return nil, &common.ProviderError{Provider: "mock", StatusCode: 502}
		}
		return newsResults(ctx, query, limit)
	}}
	am, err := NewAdverseScreener(sp, nil, AdverseConfig{}, nil).Screen(context.Background(), []string{"サンプル商事", "B社"})
	require.NoError(t, err)
	assert.Len(t, am.Hits, 1)
	assert.True(t, am.Incomplete)
}

func TestScreen_CleanScreenIsComplete(t *testing.T) {
	sp := &mockSearch{searchFn: newsResults}
	am, err := NewAdverseScreener(sp, nil, AdverseConfig{}, nil).Screen(context.Background(), []string{"サンプル商事"})
	require.NoError(t, err)
	assert.False(t, am.Incomplete)
}

func TestScreen_NoSubjects(t *testing.T) {
	am, err := NewAdverseScreener(&mockSearch{}, nil, AdverseConfig{}, nil).Screen(context.Background(), []string{" ", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"no counterparty name to screen"}, am.Notes)
}

func TestParseRelevanceProse(t *testing.T) {
	got := ParseRelevanceProse("0: relevant = true, same company\n2) relevant: NO\n0 relevant: no\nnoise")
	require.Len(t, got, 2)
	assert.Equal(t, llm.RelevanceVerdict{Index: 0, Relevant: true, Reason: "same company"}, got[0])
	assert.Equal(t, llm.RelevanceVerdict{Index: 2, Relevant: false, Reason: ""}, got[1])
}

func TestParseRelevanceProse_VerdictsWithoutReason(t *testing.T) {
	got := ParseRelevanceProse("1 relevant: yes\n2 relevant: yes\n3 relevant: no")
	require.Len(t, got, 3)
	assert.Equal(t, llm.RelevanceVerdict{Index: 1, Relevant: true}, got[0])
	assert.Equal(t, llm.RelevanceVerdict{Index: 2, Relevant: true}, got[1])
	assert.Equal(t, llm.RelevanceVerdict{Index: 3, Relevant: false}, got[2])
}

func tx(amount, date, payer string) entity.ExtractedField {
	d := decimal.RequireFromString(amount)
	f := entity.ExtractedField{Name: fields.Transaction, Kind: constants.KindMoney, Value: amount, Amount: &d, Counterparty: payer}
	if date != "" {
		t, _ := time.Parse(time.DateOnly, date)
		f.Date = &t
	}
	return f
}

func TestBuildPaymentHistory(t *testing.T) {
	h := BuildPaymentHistory([]entity.ExtractedField{
		tx("500000", "2026-01-25", "ｻﾝﾌﾟﾙｼｮｳｼﾞ"),
		tx("250000", "2026-02-10", "サンプルショウジ"),
		tx("250000", "2026-02-25", "サンプルショウジ"),
		tx("-80000", "2026-02-26", "家賃"),
		tx("120000", "2026-01-05", "Acme"),
		tx("1000", "", "Acme"),
		tx("1000", "2026-01-09", ""),
		{Name: fields.InvoiceAmount, Value: "1"},
	})

	require.Len(t, h.Counterparties, 2)
	assert.Equal(t, "Acme", h.Counterparties[0].Counterparty)
	assert.Equal(t, "ｻﾝﾌﾟﾙｼｮｳｼﾞ", h.Counterparties[1].Counterparty, "first spelling seen is kept")
	assert.Equal(t, []entity.PeriodInflow{{Period: "2026-01", Amount: 500000}, {Period: "2026-02", Amount: 500000}}, h.Counterparties[1].Periods)
	assert.Equal(t, []string{"1 inflows without a date ignored", "1 inflows without a payer ignored"}, h.Notes)
}
