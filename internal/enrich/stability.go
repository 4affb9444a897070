package enrich

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/fields"
	"github.com/joseph-ayodele/packet-underwriter/internal/textnorm"
)

// BuildPaymentHistory groups bank-statement inflows by payer and month.
// Outflows, undated lines and lines without a payer are left out.
func BuildPaymentHistory(extracted []entity.ExtractedField) entity.PaymentHistory {
	type payer struct {
		name    string
		periods map[string]decimal.Decimal
	}
	payers := map[string]*payer{}
	var undated, anonymous int

	for _, f := range extracted {
		if f.Name != fields.Transaction || f.Amount == nil || !f.Amount.IsPositive() {
			continue
		}
		if f.Date == nil {
			undated++
			continue
		}
		name := strings.TrimSpace(f.Counterparty)
		key := textnorm.FoldName(name)
		if key == "" {
			anonymous++
			continue
		}
		p, ok := payers[key]
		if !ok {
			p = &payer{name: name, periods: map[string]decimal.Decimal{}}
			payers[key] = p
		}
		period := f.Date.Format("2006-01")
		p.periods[period] = p.periods[period].Add(*f.Amount)
	}

	var out entity.PaymentHistory
	for _, p := range payers {
		cp := entity.CounterpartyInflows{Counterparty: p.name}
		for period, amt := range p.periods {
			v, _ := amt.Float64()
			cp.Periods = append(cp.Periods, entity.PeriodInflow{Period: period, Amount: v})
		}
		sort.Slice(cp.Periods, func(i, j int) bool { return cp.Periods[i].Period < cp.Periods[j].Period })
		out.Counterparties = append(out.Counterparties, cp)
	}
	sort.Slice(out.Counterparties, func(i, j int) bool {
		return out.Counterparties[i].Counterparty < out.Counterparties[j].Counterparty
	})
	if undated > 0 {
		out.Notes = append(out.Notes, fmt.Sprintf("%d inflows without a date ignored", undated))
	}
	if anonymous > 0 {
		out.Notes = append(out.Notes, fmt.Sprintf("%d inflows without a payer ignored", anonymous))
	}
	return out
}
