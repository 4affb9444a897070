// Package scoring turns reconciliation and enrichment results into a banded,
// weighted CaseScore. Scoring is pure: equal inputs give equal scores.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

// Input carries everything a score reads. A nil field is a missing input.
type Input struct {
	Reconciliation *entity.Reconciliation
	PaidAmount     *decimal.Decimal
	FaceAmount     *decimal.Decimal
	Inflows        *entity.PaymentHistory
	AdverseMedia   *entity.AdverseMedia
}

type Engine struct {
	bands Bands
}

func NewEngine(bands Bands) *Engine {
	return &Engine{bands: bands}
}

// measure is a sub-score's raw value, or ok=false when its input is missing.
// partial marks a value computed from degraded upstream data. Bands see the
// exact value; only basis is rounded.
type measure struct {
	value   float64
	basis   string
	ok      bool
	partial bool
}

// Score computes the CaseScore. Missing inputs score zero and make it
// incomplete; partial inputs score normally but also make it incomplete, so a
// partial run never approves.
func (e *Engine) Score(in Input) entity.CaseScore {
	measures := map[string]measure{
		DiscountRatio:       discountRatio(in.PaidAmount, in.FaceAmount),
		PaymentStability:    paymentStability(in.Inflows, e.bands.PaymentStability),
		DocumentConsistency: documentConsistency(in.Reconciliation),
		AdverseMedia:        adverseMedia(in.AdverseMedia),
		IdentityVerified:    identityVerified(in.Reconciliation, e.bands.IdentityField),
	}

	maxScore := e.bands.MaxScore()
	out := entity.CaseScore{MaxScore: maxScore, Complete: true}
	for _, name := range subScoreOrder {
		cfg, _ := e.bands.Lookup(name)
		m := measures[name]
		sub := entity.SubScore{
			Name:      name,
			MaxPoints: cfg.MaxPoints,
			Band:      "none",
			Basis:     m.basis,
		}
		if maxScore > 0 {
			sub.Weight = round2(cfg.MaxPoints / maxScore)
		}
		switch {
		case !m.ok:
			sub.Missing = true
			sub.Band = "missing"
			out.Complete = false
			out.MissingInputs = append(out.MissingInputs, name)
		default:
			if band, ok := cfg.Match(m.value); ok {
				sub.Band = band.Label
				sub.Points = round2(cfg.MaxPoints * band.Fraction)
			}
			if m.partial {
				out.Complete = false
				out.PartialInputs = append(out.PartialInputs, name)
			}
		}
		out.TotalScore += sub.Points
		out.SubScores = append(out.SubScores, sub)
	}
	out.TotalScore = round2(out.TotalScore)

	switch {
	case out.TotalScore >= e.bands.ApproveAt && out.Complete:
		out.Recommendation = constants.Approve
	case out.TotalScore >= e.bands.ReviewAt:
		out.Recommendation = constants.Review
	default:
		out.Recommendation = constants.Decline
	}
	return out
}

func discountRatio(paid, face *decimal.Decimal) measure {
	if paid == nil || face == nil || !face.IsPositive() {
		return measure{}
	}
	pct := paid.Mul(decimal.NewFromInt(100)).Div(*face)
	v, _ := pct.Float64()
	return measure{value: v, basis: pct.StringFixed(2) + "%", ok: true}
}

// paymentStability is the materiality-weighted coefficient of variation of
// monthly inflows across eligible counterparties.
func paymentStability(h *entity.PaymentHistory, cfg StabilityConfig) measure {
	if h == nil {
		return measure{}
	}
	cps := append([]entity.CounterpartyInflows(nil), h.Counterparties...)
	sort.Slice(cps, func(i, j int) bool { return cps[i].Counterparty < cps[j].Counterparty })

	var weighted, weights float64
	eligible := 0
	for _, cp := range cps {
		if len(cp.Periods) < cfg.MinPeriods {
			continue
		}
		periods := append([]entity.PeriodInflow(nil), cp.Periods...)
		sort.Slice(periods, func(i, j int) bool { return periods[i].Period < periods[j].Period })
		total := 0.0
		for _, p := range periods {
			total += p.Amount
		}
		if total < cfg.MinAmount || total <= 0 {
			continue
		}
		weighted += total * coefficientOfVariation(periods)
		weights += total
		eligible++
	}
	if eligible == 0 {
		return measure{}
	}
	cv := weighted / weights
	return measure{value: cv, basis: fmt.Sprintf("cv %.4f over %d counterparties", cv, eligible), ok: true, partial: h.Partial}
}

func coefficientOfVariation(periods []entity.PeriodInflow) float64 {
	n := float64(len(periods))
	mean := 0.0
	for _, p := range periods {
		mean += p.Amount
	}
	mean /= n
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, p := range periods {
		d := p.Amount - mean
		variance += d * d
	}
	return math.Sqrt(variance/n) / mean
}

func documentConsistency(rec *entity.Reconciliation) measure {
	if rec == nil || len(rec.Entries) == 0 {
		return measure{}
	}
	matched := 0
	for _, e := range rec.Entries {
		if e.Status == constants.Match {
			matched++
		}
	}
	ratio := float64(matched) / float64(len(rec.Entries))
	return measure{value: ratio, basis: fmt.Sprintf("%d/%d matched", matched, len(rec.Entries)), ok: true, partial: rec.Partial}
}

func adverseMedia(am *entity.AdverseMedia) measure {
	if am == nil || am.Incomplete {
		return measure{}
	}
	return measure{value: float64(len(am.Hits)), basis: fmt.Sprintf("%d relevant of %d screened", len(am.Hits), am.Screened), ok: true}
}

func identityVerified(rec *entity.Reconciliation, field string) measure {
	if rec == nil {
		return measure{}
	}
	e, ok := rec.Entry(field)
	if !ok {
		return measure{}
	}
	if e.Status == constants.Match {
		return measure{value: 1, basis: string(e.MatchStrategy), ok: true}
	}
	return measure{value: 0, basis: string(e.Status), ok: true, partial: rec.Partial}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
