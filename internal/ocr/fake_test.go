package ocr

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

// fakeDoc simulates a provider for a document of n pages.
type fakeDoc struct {
	n        int
	report   bool        // state TotalPages on every response
	failAt   map[int]int // page -> call number (1-based) that fails with a provider error
	calls    [][]int
	failures int
}

func (f *fakeDoc) call(_ context.Context, pages []int) (PagesResult, error) {
	f.calls = append(f.calls, append([]int(nil), pages...))
	for _, p := range pages {
		if _, ok := f.failAt[p]; ok {
			f.failures++
			return PagesResult{}, &common.ProviderError{Provider: "fake", Op: "pages", Cause: fmt.Errorf("upstream 503")}
		}
	}
	var out PagesResult
	if f.report {
		out.TotalPages = f.n
	}
	for _, p := range pages {
		if p > f.n {
			if len(out.Pages) == 0 {
				return PagesResult{}, &common.PageBoundaryError{Page: p}
			}
			break
		}
		out.Pages = append(out.Pages, PageText{
			Index:      p,
			Text:       fmt.Sprintf("page %d 合計 ¥1,000", p),
			TokenText:  fmt.Sprintf("p%d", p),
			Confidence: 0.9,
		})
	}
	return out, nil
}
