// Package reconcile compares extracted fields with reference values from the record store.
package reconcile

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/textnorm"
)

// Confidence per strategy. Mismatch and not_found carry 0.
var strategyConfidence = map[constants.MatchStrategy]float64{
	constants.StrategyExact:       1.0,
	constants.StrategyNormalized:  0.95,
	constants.StrategySplitSum:    0.85,
	constants.StrategyContainment: 0.7,
}

// minContainmentRunes keeps one-character names from matching everything.
const minContainmentRunes = 2

// maxSplitCandidates bounds the pair search.
const maxSplitCandidates = 400

// DefaultAliases lets a reference be matched by extracted fields of another name.
var DefaultAliases = map[string][]string{
	"payment_amount":    {"transaction"},
	"deposit_amount":    {"transaction"},
	"purchase_price":    {"contract_amount"},
	"counterparty_name": {"counterparty_name"},
}

type Config struct {
	// Tolerance is the largest absolute difference still counted as equal money.
	Tolerance decimal.Decimal
	Aliases   map[string][]string
}

type Reconciler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tolerance.IsNegative() {
		cfg.Tolerance = decimal.Zero
	}
	if cfg.Aliases == nil {
		cfg.Aliases = DefaultAliases
	}
	return &Reconciler{cfg: cfg, logger: logger}
}

// DefaultTolerance is one currency unit.
func DefaultTolerance() decimal.Decimal { return decimal.NewFromInt(1) }

// Candidates selects the extracted fields that may answer a reference, in extraction order.
func (r *Reconciler) Candidates(ref entity.ReferenceField, fields []entity.ExtractedField) []entity.ExtractedField {
	names := map[string]bool{ref.Name: true}
	for _, a := range r.cfg.Aliases[ref.Name] {
		names[a] = true
	}
	var out []entity.ExtractedField
	for _, f := range fields {
		if names[f.Name] && strings.TrimSpace(f.Value) != "" {
			out = append(out, f)
		}
	}
	return out
}

// Reconcile judges one reference against its candidates. An absent reference
// value returns ErrReferenceMissing; a present value with no candidate is not_found.
func (r *Reconciler) Reconcile(ref entity.ReferenceField, found []entity.ExtractedField) (entity.ReconciliationEntry, error) {
	kind := ref.Kind
	if kind == "" && len(found) > 0 {
		kind = found[0].Kind
	}
	if kind == "" {
		kind = constants.KindText
	}
	entry := entity.ReconciliationEntry{
		Field:    ref.Name,
		Kind:     kind,
		Expected: ref.Expected(),
		Status:   constants.NotFound,
	}
	if !ref.Present() {
		return entry, common.NewAppError(common.CodeReferenceMissing, fmt.Sprintf("reference %q has no value", ref.Name), common.ErrReferenceMissing)
	}
	if len(found) == 0 {
		return entry, nil
	}

	switch kind {
	case constants.KindMoney:
		if exp, err := textnorm.ParseAmount(ref.Expected()); err == nil {
			r.reconcileMoney(&entry, exp, found)
			break
		}
		r.logger.Warn("reconcile.expected_not_money", "field", ref.Name, "expected", ref.Expected())
		r.reconcileText(&entry, found, false)
	case constants.KindDate:
		r.reconcileDate(&entry, found)
	case constants.KindEnum:
		r.reconcileEnum(&entry, found)
	default:
		r.reconcileText(&entry, found, isNameField(ref.Name))
	}
	entry.Confidence = strategyConfidence[entry.MatchStrategy]
	if entry.Status != constants.Match {
		entry.Confidence = 0
	}
	return entry, nil
}

// ReconcileAll reconciles every reference, in reference order.
func (r *Reconciler) ReconcileAll(refs []entity.ReferenceField, fields []entity.ExtractedField) entity.Reconciliation {
	var out entity.Reconciliation
	for _, ref := range refs {
		entry, err := r.Reconcile(ref, r.Candidates(ref, fields))
		if err != nil {
			out.Unreferenced = append(out.Unreferenced, ref.Name)
			out.Notes = append(out.Notes, err.Error())
			continue
		}
		if entry.Ambiguous {
			out.Notes = append(out.Notes, fmt.Sprintf("%s: %v; chose %s", ref.Name, common.ErrReconciliationAmbiguous, strings.Join(entry.Components, " + ")))
		}
		out.Entries = append(out.Entries, entry)
	}
	r.logger.Info("reconcile.done",
		"entries", len(out.Entries),
		"matched", countStatus(out.Entries, constants.Match),
		"not_found", countStatus(out.Entries, constants.NotFound),
		"unreferenced", len(out.Unreferenced),
	)
	return out
}

func (r *Reconciler) reconcileMoney(entry *entity.ReconciliationEntry, expected decimal.Decimal, found []entity.ExtractedField) {
	type cand struct {
		idx    int
		amount decimal.Decimal
		field  entity.ExtractedField
	}
	var cands []cand
	for i, f := range found {
		amt, ok := amountOf(f)
		if !ok {
			continue
		}
		cands = append(cands, cand{idx: i, amount: amt, field: f})
	}
	if len(cands) == 0 {
		// values present but none readable as money
		r.setMismatch(entry, found[0])
		return
	}

	// exact, then within tolerance
	for _, strat := range []constants.MatchStrategy{constants.StrategyExact, constants.StrategyNormalized} {
		for _, c := range cands {
			diff := c.amount.Sub(expected).Abs()
			hit := false
			switch strat {
			case constants.StrategyExact:
				hit = diff.IsZero() || strings.TrimSpace(c.field.Value) == strings.TrimSpace(entry.Expected)
			case constants.StrategyNormalized:
				hit = diff.LessThanOrEqual(r.cfg.Tolerance)
			}
			if hit {
				r.setMatch(entry, strat, c.field)
				return
			}
		}
	}

	// split-sum over inflow pairs
	var pool []cand
	for _, c := range cands {
		if c.amount.IsPositive() && len(pool) < maxSplitCandidates {
			pool = append(pool, c)
		}
	}
	type pair struct {
		a, b  cand
		first *time.Time
	}
	var pairs []pair
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			sum := pool[i].amount.Add(pool[j].amount)
			if sum.Sub(expected).Abs().LessThanOrEqual(r.cfg.Tolerance) {
				pairs = append(pairs, pair{a: pool[i], b: pool[j], first: earliest(pool[i].field.Date, pool[j].field.Date)})
			}
		}
	}
	if len(pairs) > 0 {
		// earliest dated pair first, undated last, then extraction order
		sort.SliceStable(pairs, func(i, j int) bool {
			pi, pj := pairs[i].first, pairs[j].first
			switch {
			case pi != nil && pj != nil && !pi.Equal(*pj):
				return pi.Before(*pj)
			case pi != nil && pj == nil:
				return true
			case pi == nil && pj != nil:
				return false
			}
			if pairs[i].a.idx != pairs[j].a.idx {
				return pairs[i].a.idx < pairs[j].a.idx
			}
			return pairs[i].b.idx < pairs[j].b.idx
		})
		best := pairs[0]
		entry.Status = constants.Match
		entry.MatchStrategy = constants.StrategySplitSum
		entry.Found = best.a.amount.Add(best.b.amount).String()
		entry.Components = []string{best.a.amount.String(), best.b.amount.String()}
		entry.SourceIDs = uniq(best.a.field.SourceDocumentID, best.b.field.SourceDocumentID)
		entry.Ambiguous = len(pairs) > 1
		return
	}

	// mismatch: report the closest amount
	closest := cands[0]
	for _, c := range cands[1:] {
		if c.amount.Sub(expected).Abs().LessThan(closest.amount.Sub(expected).Abs()) {
			closest = c
		}
	}
	r.setMismatch(entry, closest.field)
	entry.Found = closest.amount.String()
}

func (r *Reconciler) reconcileDate(entry *entity.ReconciliationEntry, found []entity.ExtractedField) {
	for _, f := range found {
		if strings.TrimSpace(f.Value) == strings.TrimSpace(entry.Expected) {
			r.setMatch(entry, constants.StrategyExact, f)
			return
		}
	}
	exp, err := textnorm.ParseDate(entry.Expected)
	if err == nil {
		for _, f := range found {
			got := f.Date
			if got == nil {
				if t, err := textnorm.ParseDate(f.Value); err == nil {
					got = &t
				}
			}
			if got != nil && got.Format(time.DateOnly) == exp.Format(time.DateOnly) {
				r.setMatch(entry, constants.StrategyNormalized, f)
				return
			}
		}
	}
	r.setMismatch(entry, found[0])
}

func (r *Reconciler) reconcileEnum(entry *entity.ReconciliationEntry, found []entity.ExtractedField) {
	exp := strings.TrimSpace(entry.Expected)
	for _, f := range found {
		if strings.EqualFold(strings.TrimSpace(f.Value), exp) {
			r.setMatch(entry, constants.StrategyExact, f)
			return
		}
	}
	r.setMismatch(entry, found[0])
}

func (r *Reconciler) reconcileText(entry *entity.ReconciliationEntry, found []entity.ExtractedField, name bool) {
	fold := textnorm.Fold
	if name {
		fold = textnorm.FoldName
	}
	exp := strings.TrimSpace(entry.Expected)
	for _, f := range found {
		if strings.TrimSpace(f.Value) == exp {
			r.setMatch(entry, constants.StrategyExact, f)
			return
		}
	}
	expF := fold(exp)
	for _, f := range found {
		if expF != "" && fold(f.Value) == expF {
			r.setMatch(entry, constants.StrategyNormalized, f)
			return
		}
	}
	if utf8.RuneCountInString(expF) >= minContainmentRunes {
		for _, f := range found {
			got := fold(f.Value)
			if utf8.RuneCountInString(got) < minContainmentRunes {
				continue
			}
			if strings.Contains(got, expF) || strings.Contains(expF, got) {
				r.setMatch(entry, constants.StrategyContainment, f)
				return
			}
		}
	}
	r.setMismatch(entry, bestByConfidence(found))
}

func (r *Reconciler) setMatch(entry *entity.ReconciliationEntry, strat constants.MatchStrategy, f entity.ExtractedField) {
	entry.Status = constants.Match
	entry.MatchStrategy = strat
	entry.Found = strings.TrimSpace(f.Value)
	entry.SourceIDs = uniq(f.SourceDocumentID)
}

func (r *Reconciler) setMismatch(entry *entity.ReconciliationEntry, f entity.ExtractedField) {
	entry.Status = constants.Mismatch
	entry.MatchStrategy = constants.StrategyNone
	entry.Found = strings.TrimSpace(f.Value)
	entry.SourceIDs = uniq(f.SourceDocumentID)
}

func amountOf(f entity.ExtractedField) (decimal.Decimal, bool) {
	if f.Amount != nil {
		return *f.Amount, true
	}
	d, err := textnorm.ParseAmount(f.Value)
	return d, err == nil
}

func bestByConfidence(found []entity.ExtractedField) entity.ExtractedField {
	best := found[0]
	for _, f := range found[1:] {
		if f.Confidence > best.Confidence {
			best = f
		}
	}
	return best
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}

// isNameField reports whether legal-entity suffixes should be ignored for a field.
func isNameField(name string) bool {
	return strings.HasSuffix(name, "_name") || name == "account_holder"
}

func uniq(ids ...string) []string {
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		dup := false
		for _, o := range out {
			if o == id {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, id)
		}
	}
	return out
}

func countStatus(entries []entity.ReconciliationEntry, s constants.ReconcileStatus) int {
	n := 0
	for _, e := range entries {
		if e.Status == s {
			n++
		}
	}
	return n
}
