package ocr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_AcceptsReportedTotal(t *testing.T) {
	doc := &fakeDoc{n: 12, report: true}
	p := NewPageProbe(ProbeConfig{Window: 5}, nil)

	res := p.Probe(context.Background(), "d1", doc.call)
	assert.Equal(t, 12, res.TotalPages)
	assert.True(t, res.Reported)
	assert.Equal(t, 1, res.Calls)
	require.NotNil(t, res.First)
	assert.Equal(t, 1, res.First.PageRange.First)
	assert.Equal(t, 5, res.First.PageRange.Last)
	assert.Equal(t, 5, res.First.PagesReturned)
}

func TestProbe_CapsReportedTotal(t *testing.T) {
	doc := &fakeDoc{n: 80, report: true}
	res := NewPageProbe(ProbeConfig{MaxPages: 50}, nil).Probe(context.Background(), "d", doc.call)
	assert.Equal(t, 50, res.TotalPages)
	assert.True(t, res.Capped)
}

func TestProbe_StrideAndBisect(t *testing.T) {
	for _, n := range []int{1, 2, 9, 10, 11, 17, 23, 40, 49} {
		doc := &fakeDoc{n: n}
		res := NewPageProbe(ProbeConfig{MaxPages: 50, Stride: 10}, nil).Probe(context.Background(), "d", doc.call)
		assert.Equal(t, n, res.TotalPages, "n=%d", n)
		assert.False(t, res.Capped, "n=%d", n)
		assert.NoError(t, res.ProviderErr)
	}
}

func TestProbe_ShortWindowMarksEnd(t *testing.T) {
	doc := &fakeDoc{n: 3}
	res := NewPageProbe(ProbeConfig{Window: 5}, nil).Probe(context.Background(), "d", doc.call)
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 1, res.Calls)
	require.NotNil(t, res.First)
	assert.Equal(t, 3, res.First.PageRange.Last)
}

func TestProbe_EmptyDocument(t *testing.T) {
	doc := &fakeDoc{n: 0}
	res := NewPageProbe(ProbeConfig{Window: 5}, nil).Probe(context.Background(), "d", doc.call)
	assert.Equal(t, 0, res.TotalPages)
	assert.NoError(t, res.ProviderErr)
	// window, then single-page fallback
	assert.Equal(t, 2, res.Calls)
}

func TestProbe_CapsLongDocumentWithoutReport(t *testing.T) {
	doc := &fakeDoc{n: 120}
	res := NewPageProbe(ProbeConfig{MaxPages: 50, Stride: 10}, nil).Probe(context.Background(), "d", doc.call)
	assert.Equal(t, 50, res.TotalPages)
	assert.True(t, res.Capped)
}

func TestProbe_ProviderErrorKeepsLastKnownGood(t *testing.T) {
	doc := &fakeDoc{n: 40, failAt: map[int]int{21: 1}}
	res := NewPageProbe(ProbeConfig{MaxPages: 50, Stride: 10}, nil).Probe(context.Background(), "d", doc.call)
	require.Error(t, res.ProviderErr)
	assert.Equal(t, 11, res.TotalPages)
}

func TestProbe_FirstCallProviderError(t *testing.T) {
	doc := &fakeDoc{n: 5, failAt: map[int]int{1: 1}}
	res := NewPageProbe(ProbeConfig{}, nil).Probe(context.Background(), "d", doc.call)
	require.Error(t, res.ProviderErr)
	assert.Equal(t, 0, res.TotalPages)
	assert.Nil(t, res.First)
}
