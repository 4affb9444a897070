package llm

import (
	"fmt"
	"strings"
)

// MaxPromptRunes bounds the OCR text placed in a user prompt.
const MaxPromptRunes = 12000

// FieldsPrompt describes one document for field extraction.
type FieldsPrompt struct {
	Category     string
	Subtypes     []string
	PartyRole    string // what party_name means for this category
	CounterRole  string // what counterparty_name means
	WantsAmount  string // what amount means, "" when not applicable
	WantsDate    string // what date means, "" when not applicable
	Transactions bool
	DocumentName string
	OCRText      string
}

// BuildFieldsSystemPrompt composes the system message with the category's field
// semantics, subtype rubric and formatting rules.
func BuildFieldsSystemPrompt(p FieldsPrompt) string {
	var subtypeLine string
	if len(p.Subtypes) > 0 {
		subtypeLine = "You MUST include 'subtype' and it MUST be exactly one of: " + strings.Join(p.Subtypes, ", ") + ". " +
			"If uncertain, choose 'other'."
	} else {
		subtypeLine = "You MUST include 'subtype' as a short snake_case label."
	}

	parts := []string{
		"You read scanned Japanese and English business documents for a receivables underwriting desk.",
		"Return ONLY JSON that matches the provided JSON Schema.",
		"The document category is '" + p.Category + "'.",
		subtypeLine,
	}
	if p.PartyRole != "" {
		parts = append(parts, "'party_name' is "+p.PartyRole+".")
	}
	if p.CounterRole != "" {
		parts = append(parts, "'counterparty_name' is "+p.CounterRole+".")
	}
	if p.WantsAmount != "" {
		parts = append(parts, "'amount' is "+p.WantsAmount+"; write digits only, no separators or currency marks.")
	}
	if p.WantsDate != "" {
		parts = append(parts, "'date' is "+p.WantsDate+"; convert Japanese era dates (令和, 平成) to ISO-8601 (YYYY-MM-DD).")
	}
	if p.Transactions {
		parts = append(parts,
			"List every statement line under 'transactions' with date, description, counterparty, amount and direction.",
			"Direction is 'in' for deposits (入金, お預り) and 'out' for withdrawals (出金, お支払).",
		)
	}
	parts = append(parts,
		"Copy names exactly as printed, including legal suffixes such as 株式会社 or Co., Ltd.",
		"Put any text that is visually highlighted, starred (★) or bracketed (【】) into 'highlighted_items'.",
		"Never output null. If a field is not present, omit it.",
	)
	return strings.Join(parts, " ")
}

// BuildFieldsUserPrompt packages the document name and OCR text. When an image
// is attached the OCR text is still included because it carries the token layer.
func BuildFieldsUserPrompt(p FieldsPrompt, imageAttached bool) string {
	var b strings.Builder
	if name := strings.TrimSpace(p.DocumentName); name != "" {
		b.WriteString("Document: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	if imageAttached {
		b.WriteString("An image of the document is attached; OCR confidence was low, prefer what you can see.\n")
	}
	b.WriteString("\nOCR text:\n")
	b.WriteString(truncateRunes(strings.TrimSpace(p.OCRText), MaxPromptRunes))
	return b.String()
}

// BuildRelevanceSystemPrompt frames adverse-media screening.
func BuildRelevanceSystemPrompt() string {
	return strings.Join([]string{
		"You screen web search results for adverse media about a company or person.",
		"A result is relevant only if it plausibly concerns the same entity AND reports fraud, litigation, bankruptcy, regulatory action, arrest or unpaid debts.",
		"Name collisions with unrelated entities are not relevant.",
		"Return ONLY JSON that matches the provided JSON Schema with one verdict per result index.",
	}, " ")
}

// SearchHit is the slice of a search result the relevance prompt needs.
type SearchHit struct {
	Title   string
	URL     string
	Snippet string
}

func BuildRelevanceUserPrompt(subject string, hits []SearchHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n\nResults:\n", subject)
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] %s\n%s\n%s\n\n", i, strings.TrimSpace(h.Title), h.URL, truncateRunes(strings.TrimSpace(h.Snippet), 500))
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n…(truncated)"
}
