package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/packet-underwriter/constants"
)

// PageRange is an inclusive, 1-based page interval.
type PageRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// Len returns the number of pages in the range.
func (r PageRange) Len() int {
	if r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Pages lists the page indices of the range.
func (r PageRange) Pages() []int {
	out := make([]int, 0, r.Len())
	for p := r.First; p <= r.Last; p++ {
		out = append(out, p)
	}
	return out
}

// ExtractionBatch is one bounded OCR call over a page range.
type ExtractionBatch struct {
	DocumentID        string                `json:"document_id"`
	PageRange         PageRange             `json:"page_range"`
	Status            constants.BatchStatus `json:"status"`
	Text              string                `json:"text,omitempty"`
	TokenText         string                `json:"token_text,omitempty"`
	PerPageConfidence []float32             `json:"per_page_confidence,omitempty"`
	PagesReturned     int                   `json:"pages_returned"`
	Err               string                `json:"error,omitempty"`
}

// ExtractionResult summarizes OCR for one document.
// PagesProcessed never exceeds RequestedPages; Success is true once any batch is done.
type ExtractionResult struct {
	DocumentID     string                     `json:"document_id"`
	DocumentName   string                     `json:"document_name"`
	Category       constants.DocumentCategory `json:"category"`
	MimeKind       constants.MimeKind         `json:"mime_kind"`
	FullText       string                     `json:"-"`
	RequestedPages int                        `json:"requested_pages"`
	PagesProcessed int                        `json:"pages_processed"`
	Confidence     float32                    `json:"confidence"`
	CostEstimate   float64                    `json:"cost_estimate"`
	TokenEstimate  int                        `json:"token_estimate"`
	ProviderCalls  int                        `json:"provider_calls"`
	Success        bool                       `json:"success"`
	Batches        []ExtractionBatch          `json:"batches,omitempty"`
	Skipped        bool                       `json:"skipped,omitempty"`
	SkipReason     string                     `json:"skip_reason,omitempty"`
	Warnings       []string                   `json:"warnings,omitempty"`
	RateLimited    bool                       `json:"rate_limited,omitempty"`
	RetryAfter     time.Duration              `json:"-"`
	Duration       time.Duration              `json:"duration"`
}

// ExtractedField is one typed fact pulled from a document.
type ExtractedField struct {
	Name             string                `json:"name"`
	Kind             constants.FieldKind   `json:"kind"`
	Value            string                `json:"value"`
	Amount           *decimal.Decimal      `json:"amount,omitempty"`
	Date             *time.Time            `json:"date,omitempty"`
	Counterparty     string                `json:"counterparty,omitempty"`
	SourceDocumentID string                `json:"source_document_id"`
	Source           constants.FieldSource `json:"source"`
	Confidence       float32               `json:"confidence,omitempty"`
	Highlighted      bool                  `json:"highlighted,omitempty"`
}

// CategoryExtraction is the output of one extraction stage.
type CategoryExtraction struct {
	Category  constants.DocumentCategory `json:"category"`
	Results   []ExtractionResult         `json:"results"`
	Fields    []ExtractedField           `json:"fields"`
	LLMTokens int                        `json:"llm_tokens,omitempty"`
	// Partial is set when any document was skipped, rate limited or yielded no page.
	Partial bool     `json:"partial,omitempty"`
	Notes   []string `json:"notes,omitempty"`
}
