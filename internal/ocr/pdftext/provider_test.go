package pdftext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr"
)

func TestProvider_Name(t *testing.T) {
	assert.Equal(t, "pdftext", New(nil).Name())
}

func TestProvider_RecognizeImageUnsupported(t *testing.T) {
	_, err := New(nil).RecognizeImage(context.Background(), ocr.ImageRequest{Content: []byte("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrProvider)
}

func TestProvider_GarbageIsProviderError(t *testing.T) {
	_, err := New(nil).RecognizePages(context.Background(), ocr.PagesRequest{
		Content: []byte("definitely not a pdf"),
		Pages:   []int{1},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrProvider)
	assert.False(t, common.IsPageBoundary(err))
}
