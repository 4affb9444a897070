package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

func sampleReport() entity.Report {
	return entity.Report{
		CaseID: "CASE-1",
		RunID:  "run-1",
		Status: constants.RunDegraded,
		Stages: []entity.StageReport{
			{ID: "extract:invoice", Status: constants.StageCompleted, Attempts: 1},
			{ID: "enrich:adverse_media", Status: constants.StageDegraded, Attempts: 4, Retries: 3, Err: "rate limited"},
		},
		Reconciliation: &entity.Reconciliation{
			Entries: []entity.ReconciliationEntry{
				{Field: "payment_amount", Kind: constants.KindMoney, Expected: "1000", Found: "1000", Status: constants.Match,
					MatchStrategy: constants.StrategySplitSum, Confidence: 0.85, Components: []string{"700", "300"}},
			},
			Unreferenced: []string{"deposit_amount"},
		},
		Score: &entity.CaseScore{
			SubScores:      []entity.SubScore{{Name: "discount_ratio", Points: 25, MaxPoints: 25, Weight: 0.25, Band: "full", Basis: "78.00%"}},
			TotalScore:     25,
			MaxScore:       100,
			Recommendation: constants.Review,
		},
		CostEstimate: 0.12,
		Annotations:  []string{"stage enrich:adverse_media degraded: rate limited"},
		StartedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		FinishedAt:   time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC),
	}
}

func TestReportXLSX(t *testing.T) {
	s := NewService(nil)
	b, err := s.ReportXLSX(sampleReport())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetSummary, SheetScore, SheetReconciliation, SheetStages, SheetAnnotations}, f.GetSheetList())

	v, err := f.GetCellValue(SheetSummary, "B2")
	require.NoError(t, err)
	assert.Equal(t, "CASE-1", v)

	v, err = f.GetCellValue(SheetReconciliation, "F2")
	require.NoError(t, err)
	assert.Equal(t, "split-sum", v)
	v, err = f.GetCellValue(SheetReconciliation, "H2")
	require.NoError(t, err)
	assert.Equal(t, "700 + 300", v)
	v, err = f.GetCellValue(SheetReconciliation, "E3")
	require.NoError(t, err)
	assert.Equal(t, "unreferenced", v)

	rows, err := f.GetRows(SheetStages)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "degraded", rows[2][1])
}

func TestReportXLSX_WithoutScore(t *testing.T) {
	r := sampleReport()
	r.Score = nil
	r.Reconciliation = nil
	_, err := NewService(nil).ReportXLSX(r)
	require.NoError(t, err)
}

func TestReportJSON(t *testing.T) {
	b, err := NewService(nil).ReportJSON(sampleReport())
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "CASE-1", back["case_id"])
	assert.Equal(t, "degraded", back["status"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	out := truncate(strings.Repeat("あ", 10), 7)
	assert.Equal(t, "ああ…", out)
}
