package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in     string
		want   DocumentCategory
		wantOK bool
	}{
		{"invoice", Invoice, true},
		{" Bank Statement ", BankStatement, true},
		{"bank-statement", BankStatement, true},
		{"通帳", BankStatement, true},
		{"KYC", Identity, true},
		{"登記簿謄本", Registry, true},
		{"purchase agreement", Collateral, true},
		{"misc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Canonicalize(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapContentType(t *testing.T) {
	assert.Equal(t, PAGED, MapContentType("application/pdf; charset=binary", "x"))
	assert.Equal(t, IMAGE, MapContentType("", "scan.JPG"))
	assert.Equal(t, PAGED, MapContentType("application/octet-stream", "pages.tiff"))
	assert.Equal(t, MimeKind(""), MapContentType("application/msword", "notes.docx"))
}

func TestCategoriesIsACopy(t *testing.T) {
	cats := Categories()
	cats[0] = "tampered"
	assert.Equal(t, Invoice, Categories()[0])
	assert.Equal(t, []string{"invoice", "bank_statement", "identity", "registry", "collateral"}, AsStringSlice())
}
