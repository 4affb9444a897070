package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

func ref(name string, kind constants.FieldKind, v string) entity.ReferenceField {
	return entity.ReferenceField{Name: name, Kind: kind, ExpectedValue: &v}
}

func money(name, v, src string, date string) entity.ExtractedField {
	d := decimal.RequireFromString(v)
	f := entity.ExtractedField{Name: name, Kind: constants.KindMoney, Value: v, Amount: &d, SourceDocumentID: src}
	if date != "" {
		t, _ := time.Parse(time.DateOnly, date)
		f.Date = &t
	}
	return f
}

func text(name, v string) entity.ExtractedField {
	return entity.ExtractedField{Name: name, Kind: constants.KindText, Value: v, SourceDocumentID: "doc-01"}
}

func newReconciler() *Reconciler {
	return New(Config{Tolerance: DefaultTolerance()}, nil)
}

func TestReconcile_SplitSumDeposit(t *testing.T) {
	r := newReconciler()
	fields := []entity.ExtractedField{
		money("transaction", "-120000", "bank-01", "2026-04-02"),
		money("transaction", "2500000", "bank-01", "2026-04-10"),
		money("transaction", "1527740", "bank-02", "2026-04-25"),
		money("transaction", "88000", "bank-01", "2026-04-28"),
	}
	rec := r.ReconcileAll([]entity.ReferenceField{ref("payment_amount", constants.KindMoney, "4027740")}, fields)

	require.Len(t, rec.Entries, 1)
	e := rec.Entries[0]
	assert.Equal(t, constants.Match, e.Status)
	assert.Equal(t, constants.StrategySplitSum, e.MatchStrategy)
	assert.Equal(t, []string{"2500000", "1527740"}, e.Components)
	assert.Equal(t, []string{"bank-01", "bank-02"}, e.SourceIDs)
	assert.Equal(t, "4027740", e.Found)
	assert.InDelta(t, 0.85, e.Confidence, 1e-9)
	assert.False(t, e.Ambiguous)
}

func TestReconcile_MoneyExactAndTolerance(t *testing.T) {
	r := newReconciler()

	e, err := r.Reconcile(ref("invoice_amount", constants.KindMoney, "1,100,000"), []entity.ExtractedField{money("invoice_amount", "1100000", "inv-01", "")})
	require.NoError(t, err)
	assert.Equal(t, constants.StrategyExact, e.MatchStrategy)
	assert.InDelta(t, 1.0, e.Confidence, 1e-9)

	e, err = r.Reconcile(ref("invoice_amount", constants.KindMoney, "1100000"), []entity.ExtractedField{money("invoice_amount", "1100001", "inv-01", "")})
	require.NoError(t, err)
	assert.Equal(t, constants.Match, e.Status)
	assert.Equal(t, constants.StrategyNormalized, e.MatchStrategy)

	e, err = r.Reconcile(ref("invoice_amount", constants.KindMoney, "1100000"), []entity.ExtractedField{
		money("invoice_amount", "900000", "inv-01", ""),
		money("invoice_amount", "1000000", "inv-01", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, constants.Mismatch, e.Status)
	assert.Equal(t, "1000000", e.Found)
	assert.Zero(t, e.Confidence)
}

func TestReconcile_SplitSumTieBreak(t *testing.T) {
	r := newReconciler()
	fields := []entity.ExtractedField{
		money("transaction", "600", "b", "2026-05-20"),
		money("transaction", "400", "b", "2026-05-21"),
		money("transaction", "700", "b", "2026-05-03"),
		money("transaction", "300", "b", ""),
	}
	e, err := r.Reconcile(ref("payment_amount", constants.KindMoney, "1000"), fields)
	require.NoError(t, err)
	assert.Equal(t, constants.StrategySplitSum, e.MatchStrategy)
	assert.True(t, e.Ambiguous)
	// 700+300 has the earliest dated component
	assert.Equal(t, []string{"700", "300"}, e.Components)

	rec := r.ReconcileAll([]entity.ReferenceField{ref("payment_amount", constants.KindMoney, "1000")}, fields)
	require.Len(t, rec.Notes, 1)
	assert.Contains(t, rec.Notes[0], "ambiguous")
}

func TestReconcile_NameNormalization(t *testing.T) {
	r := newReconciler()
	tests := []struct {
		expected, found string
		strategy        constants.MatchStrategy
	}{
		{"株式会社サンプル商事", "株式会社サンプル商事", constants.StrategyExact},
		{"株式会社サンプル商事", "ｻﾝﾌﾟﾙ商事 株式会社", constants.StrategyNormalized},
		{"Acme Trading Co., Ltd.", "ACME TRADING", constants.StrategyNormalized},
		{"サンプル商事", "東京都 サンプル商事 本店", constants.StrategyContainment},
	}
	for _, tt := range tests {
		e, err := r.Reconcile(ref("counterparty_name", constants.KindText, tt.expected), []entity.ExtractedField{text("counterparty_name", tt.found)})
		require.NoError(t, err)
		assert.Equal(t, constants.Match, e.Status, "%q vs %q", tt.expected, tt.found)
		assert.Equal(t, tt.strategy, e.MatchStrategy, "%q vs %q", tt.expected, tt.found)
	}

	e, err := r.Reconcile(ref("counterparty_name", constants.KindText, "サンプル商事"), []entity.ExtractedField{text("counterparty_name", "別会社")})
	require.NoError(t, err)
	assert.Equal(t, constants.Mismatch, e.Status)
	assert.Equal(t, "別会社", e.Found)
}

func TestReconcile_Dates(t *testing.T) {
	r := newReconciler()
	e, err := r.Reconcile(ref("invoice_date", constants.KindDate, "2026-03-31"), []entity.ExtractedField{text("invoice_date", "令和8年3月31日")})
	require.NoError(t, err)
	assert.Equal(t, constants.StrategyNormalized, e.MatchStrategy)

	e, err = r.Reconcile(ref("invoice_date", constants.KindDate, "2026-03-31"), []entity.ExtractedField{text("invoice_date", "2026-04-01")})
	require.NoError(t, err)
	assert.Equal(t, constants.Mismatch, e.Status)
}

func TestReconcile_Enum(t *testing.T) {
	r := newReconciler()
	e, err := r.Reconcile(ref("invoice_subtype", constants.KindEnum, "Standard"), []entity.ExtractedField{{Name: "invoice_subtype", Kind: constants.KindEnum, Value: "standard"}})
	require.NoError(t, err)
	assert.Equal(t, constants.StrategyExact, e.MatchStrategy)

	e, err = r.Reconcile(ref("invoice_subtype", constants.KindEnum, "standard"), []entity.ExtractedField{{Name: "invoice_subtype", Kind: constants.KindEnum, Value: "credit_note"}})
	require.NoError(t, err)
	assert.Equal(t, constants.Mismatch, e.Status)
}

func TestReconcile_NotFound(t *testing.T) {
	r := newReconciler()
	e, err := r.Reconcile(ref("invoice_amount", constants.KindMoney, "500"), nil)
	require.NoError(t, err)
	assert.Equal(t, constants.NotFound, e.Status)
	assert.Empty(t, e.Found)
	assert.Zero(t, e.Confidence)
}

func TestReconcile_AbsentIsNotZero(t *testing.T) {
	r := newReconciler()
	zero := ref("deposit_amount", constants.KindMoney, "0")
	absent := entity.ReferenceField{Name: "purchase_price", Kind: constants.KindMoney}

	_, err := r.Reconcile(absent, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrReferenceMissing))

	rec := r.ReconcileAll([]entity.ReferenceField{zero, absent}, []entity.ExtractedField{money("deposit_amount", "0", "bank-01", "")})
	require.Len(t, rec.Entries, 1)
	assert.Equal(t, "deposit_amount", rec.Entries[0].Field)
	assert.Equal(t, constants.Match, rec.Entries[0].Status)
	assert.Equal(t, []string{"purchase_price"}, rec.Unreferenced)
}

func TestReconcileAll_KeepsReferenceOrder(t *testing.T) {
	r := newReconciler()
	refs := []entity.ReferenceField{
		ref("invoice_date", constants.KindDate, "2026-01-31"),
		ref("invoice_amount", constants.KindMoney, "10000"),
		ref("counterparty_name", constants.KindText, "Acme"),
	}
	rec := r.ReconcileAll(refs, []entity.ExtractedField{money("invoice_amount", "10000", "inv-01", "")})
	require.Len(t, rec.Entries, 3)
	assert.Equal(t, "invoice_date", rec.Entries[0].Field)
	assert.Equal(t, constants.NotFound, rec.Entries[0].Status)
	assert.Equal(t, constants.Match, rec.Entries[1].Status)
	assert.Equal(t, constants.NotFound, rec.Entries[2].Status)
}
