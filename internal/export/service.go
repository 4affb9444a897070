// Package export renders evaluation reports as XLSX workbooks and JSON.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

// Sheet names, in workbook order.
const (
	SheetSummary        = "Summary"
	SheetScore          = "Score"
	SheetReconciliation = "Reconciliation"
	SheetStages         = "Stages"
	SheetAnnotations    = "Annotations"
)

// Service turns a Report into downloadable artifacts.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ReportJSON returns the indented JSON form of a report.
func (s *Service) ReportJSON(r entity.Report) ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return b, nil
}

// ReportXLSX returns an XLSX workbook (as bytes) with one sheet per report section.
func (s *Service) ReportXLSX(r entity.Report) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default sheet becomes the summary
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetScore, SheetReconciliation, SheetStages, SheetAnnotations} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	writeSummary(f, r)
	rows := writeScore(f, r.Score)
	rows += writeReconciliation(f, r.Reconciliation)
	rows += writeStages(f, r.Stages)
	rows += writeAnnotations(f, r)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"case_id", r.CaseID,
		"run_id", r.RunID,
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// sheetWriter writes rows left to right starting at column A.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func (w *sheetWriter) put(values ...any) {
	w.row++
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, w.row)
		_ = w.f.SetCellValue(w.sheet, cell, v)
	}
}

func (w *sheetWriter) header(values ...any) {
	w.put(values...)
	style, err := w.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(values), w.row)
	_ = w.f.SetCellStyle(w.sheet, "A1", last, style)
}

func writeSummary(f *excelize.File, r entity.Report) {
	w := &sheetWriter{f: f, sheet: SheetSummary}
	w.header("Field", "Value")
	w.put("Case", r.CaseID)
	w.put("Run", r.RunID)
	w.put("Status", string(r.Status))
	if r.Score != nil {
		w.put("Recommendation", string(r.Score.Recommendation))
		w.put("Total score", fmt.Sprintf("%.2f / %.2f", r.Score.TotalScore, r.Score.MaxScore))
		w.put("Score complete", r.Score.Complete)
	}
	w.put("Cost estimate", r.CostEstimate)
	w.put("Started", r.StartedAt.Format(time.RFC3339))
	w.put("Finished", r.FinishedAt.Format(time.RFC3339))
	for _, ce := range r.Extractions {
		pages := 0
		for _, res := range ce.Results {
			pages += res.PagesProcessed
		}
		w.put("Extracted "+string(ce.Category), fmt.Sprintf("%d documents, %d pages, %d fields", len(ce.Results), pages, len(ce.Fields)))
	}
	for _, sk := range r.Skipped {
		w.put("Skipped attachment", sk.Name+": "+sk.Reason)
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 24)
	_ = f.SetColWidth(SheetSummary, "B", "B", 60)
}

func writeScore(f *excelize.File, sc *entity.CaseScore) int {
	w := &sheetWriter{f: f, sheet: SheetScore}
	w.header("Sub-score", "Points", "Max", "Weight", "Band", "Basis")
	if sc == nil {
		return 0
	}
	for _, s := range sc.SubScores {
		w.put(s.Name, s.Points, s.MaxPoints, s.Weight, s.Band, s.Basis)
	}
	w.put("total", sc.TotalScore, sc.MaxScore, 1.0, string(sc.Recommendation), strings.Join(sc.MissingInputs, ", "))
	_ = f.SetColWidth(SheetScore, "A", "A", 22)
	_ = f.SetColWidth(SheetScore, "B", "E", 12)
	_ = f.SetColWidth(SheetScore, "F", "F", 40)
	return len(sc.SubScores) + 1
}

func writeReconciliation(f *excelize.File, rec *entity.Reconciliation) int {
	w := &sheetWriter{f: f, sheet: SheetReconciliation}
	w.header("Field", "Kind", "Expected", "Found", "Status", "Strategy", "Confidence", "Components", "Sources")
	if rec == nil {
		return 0
	}
	for _, e := range rec.Entries {
		w.put(
			e.Field,
			string(e.Kind),
			e.Expected,
			e.Found,
			string(e.Status),
			string(e.MatchStrategy),
			e.Confidence,
			strings.Join(e.Components, " + "),
			strings.Join(e.SourceIDs, ", "),
		)
	}
	for _, name := range rec.Unreferenced {
		w.put(name, "", "", "", "unreferenced")
	}
	_ = f.SetColWidth(SheetReconciliation, "A", "A", 22)
	_ = f.SetColWidth(SheetReconciliation, "C", "D", 28)
	_ = f.SetColWidth(SheetReconciliation, "H", "I", 32)
	return len(rec.Entries) + len(rec.Unreferenced)
}

func writeStages(f *excelize.File, stages []entity.StageReport) int {
	w := &sheetWriter{f: f, sheet: SheetStages}
	w.header("Stage", "Status", "Required", "Attempts", "Retries", "Duration (ms)", "Error")
	for _, s := range stages {
		w.put(s.ID, string(s.Status), s.Required, s.Attempts, s.Retries, s.Duration.Milliseconds(), truncate(s.Err, 200))
	}
	_ = f.SetColWidth(SheetStages, "A", "A", 28)
	_ = f.SetColWidth(SheetStages, "G", "G", 60)
	return len(stages)
}

func writeAnnotations(f *excelize.File, r entity.Report) int {
	w := &sheetWriter{f: f, sheet: SheetAnnotations}
	w.header("Annotation")
	for _, a := range r.Annotations {
		w.put(truncate(a, 500))
	}
	_ = f.SetColWidth(SheetAnnotations, "A", "A", 100)
	return len(r.Annotations)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	// back off to a rune boundary
	cut := n - 1
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
