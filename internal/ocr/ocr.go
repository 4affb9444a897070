package ocr

import (
	"context"
)

// ImageRequest asks for a single-image recognition.
type ImageRequest struct {
	DocumentID  string
	Content     []byte
	ContentType string
}

// ImageResult holds both text modes of a recognized image.
type ImageResult struct {
	Text       string  // whole-block mode
	TokenText  string  // individual-token mode
	Confidence float32 // 0 when the provider does not report one
}

// PagesRequest asks for a bounded set of pages of a paged document.
type PagesRequest struct {
	DocumentID  string
	Content     []byte
	ContentType string
	Pages       []int // 1-based, at most the provider's batch limit
}

// PageText is the recognized content of one page.
type PageText struct {
	Index      int
	Text       string
	TokenText  string
	Confidence float32
}

// PagesResult is a batch response. TotalPages is 0 when the provider does not know.
type PagesResult struct {
	Pages      []PageText
	TotalPages int
}

// Provider is a vision-OCR backend. RecognizePages fails with a
// common.PageBoundaryError for indices past the end of the document.
type Provider interface {
	Name() string
	RecognizeImage(ctx context.Context, req ImageRequest) (ImageResult, error)
	RecognizePages(ctx context.Context, req PagesRequest) (PagesResult, error)
}

// PageFunc is a provider call bound to one document.
type PageFunc func(ctx context.Context, pages []int) (PagesResult, error)

// Document is a paged source with its bytes already fetched.
type Document struct {
	ID          string
	Content     []byte
	ContentType string
}

// Pages binds a provider to a document.
func Pages(p Provider, doc Document) PageFunc {
	return func(ctx context.Context, pages []int) (PagesResult, error) {
		return p.RecognizePages(ctx, PagesRequest{
			DocumentID:  doc.ID,
			Content:     doc.Content,
			ContentType: doc.ContentType,
			Pages:       pages,
		})
	}
}

func pageRange(first, last int) []int {
	out := make([]int, 0, last-first+1)
	for p := first; p <= last; p++ {
		out = append(out, p)
	}
	return out
}
