package constants

import (
	"strings"
)

// DocumentCategory classifies an attachment in a case packet.
type DocumentCategory string

const (
	Invoice       DocumentCategory = "invoice"
	BankStatement DocumentCategory = "bank_statement"
	Identity      DocumentCategory = "identity"
	Registry      DocumentCategory = "registry"
	Collateral    DocumentCategory = "collateral"
)

var allCategories = []DocumentCategory{
	Invoice,
	BankStatement,
	Identity,
	Registry,
	Collateral,
}

// Categories returns every category in pipeline order.
func Categories() []DocumentCategory {
	out := make([]DocumentCategory, len(allCategories))
	copy(out, allCategories)
	return out
}

// AsStringSlice returns the category names in pipeline order.
func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps a free-form label from the record store to a category.
func Canonicalize(input string) (DocumentCategory, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	synonyms := map[string]DocumentCategory{
		"bill":                 Invoice,
		"receivable":           Invoice,
		"請求書":                  Invoice,
		"bank":                 BankStatement,
		"statement":            BankStatement,
		"passbook":             BankStatement,
		"通帳":                   BankStatement,
		"id":                   Identity,
		"kyc":                  Identity,
		"license":              Identity,
		"本人確認書類":               Identity,
		"corporate_registry":   Registry,
		"certificate":          Registry,
		"登記簿謄本":                Registry,
		"contract":             Collateral,
		"purchase_agreement":   Collateral,
		"assignment_agreement": Collateral,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == string(cat) {
			return cat, true
		}
	}

	return "", false
}
