package entity

import "github.com/joseph-ayodele/packet-underwriter/constants"

// SubScore is one banded component of a CaseScore.
type SubScore struct {
	Name      string  `json:"name"`
	Points    float64 `json:"points"`
	MaxPoints float64 `json:"max_points"`
	Weight    float64 `json:"weight"`
	Band      string  `json:"band"`
	Basis     string  `json:"basis,omitempty"`
	Missing   bool    `json:"missing,omitempty"`
}

// CaseScore is computed once, after every stage is terminal.
type CaseScore struct {
	SubScores      []SubScore               `json:"sub_scores"`
	TotalScore     float64                  `json:"total_score"`
	MaxScore       float64                  `json:"max_score"`
	Recommendation constants.Recommendation `json:"recommendation"`
	Complete       bool                     `json:"complete"`
	MissingInputs  []string                 `json:"missing_inputs,omitempty"`
	// PartialInputs names sub-scores computed from degraded upstream data.
	PartialInputs []string `json:"partial_inputs,omitempty"`
}

// AdverseMediaHit is a search result judged relevant to the counterparty.
type AdverseMediaHit struct {
	Query   string `json:"query"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// AdverseMedia is the output of the adverse-media enrichment stage.
type AdverseMedia struct {
	Queries   []string          `json:"queries"`
	Screened  int               `json:"screened"`
	Hits      []AdverseMediaHit `json:"hits"`
	LLMTokens int               `json:"llm_tokens,omitempty"`
	// Incomplete is set when a subject could not be searched; no hits then
	// does not mean a clean screen.
	Incomplete bool     `json:"incomplete,omitempty"`
	Notes      []string `json:"notes,omitempty"`
}

// PeriodInflow is one period's total inflow from a counterparty.
type PeriodInflow struct {
	Period string  `json:"period"` // YYYY-MM
	Amount float64 `json:"amount"`
}

// CounterpartyInflows is the inflow history of one payer.
type CounterpartyInflows struct {
	Counterparty string         `json:"counterparty"`
	Periods      []PeriodInflow `json:"periods"`
}

// PaymentHistory is the output of the payment-stability enrichment stage.
type PaymentHistory struct {
	Counterparties []CounterpartyInflows `json:"counterparties"`
	// Partial is set when the bank statements it was built from were partial.
	Partial bool     `json:"partial,omitempty"`
	Notes   []string `json:"notes,omitempty"`
}
