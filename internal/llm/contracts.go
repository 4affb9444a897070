package llm

import "context"

// Provider is a language-model backend. A schema on the request asks the
// provider for typed JSON output when it supports it.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

type Request struct {
	System     string
	User       string
	Images     []Image
	Schema     map[string]any
	SchemaName string
}

// Image is inline image content for vision-capable models.
type Image struct {
	MIMEType string
	Data     []byte
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

type Response struct {
	Text  string
	Usage Usage
	Model string
}

// DocumentFields is the normalized shape we want from the LLM for any document.
// The meaning of PartyName and CounterpartyName depends on the category.
type DocumentFields struct {
	Subtype          string        `json:"subtype"`
	PartyName        string        `json:"party_name,omitempty"`
	CounterpartyName string        `json:"counterparty_name,omitempty"`
	Address          string        `json:"address,omitempty"`
	Date             string        `json:"date,omitempty"`   // YYYY-MM-DD
	Amount           string        `json:"amount,omitempty"` // decimal
	Transactions     []Transaction `json:"transactions,omitempty"`
	HighlightedItems []string      `json:"highlighted_items,omitempty"`
	ModelConfidence  float32       `json:"confidence,omitempty"` // optional (0..1)
}

// Transaction is one bank-statement line.
type Transaction struct {
	Date         string `json:"date,omitempty"`
	Description  string `json:"description,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	Amount       string `json:"amount"`
	Direction    string `json:"direction"` // in | out
}

// RelevanceVerdicts judges search hits for adverse media, by hit index.
type RelevanceVerdicts struct {
	Verdicts []RelevanceVerdict `json:"verdicts"`
}

type RelevanceVerdict struct {
	Index    int    `json:"index"`
	Relevant bool   `json:"relevant"`
	Reason   string `json:"reason,omitempty"`
}
