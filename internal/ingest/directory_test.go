package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestScanCaseDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "invoice/inv-001.pdf", "%PDF")
	writeFile(t, root, "請求書/inv-002.png", "png")
	writeFile(t, root, "bank_statement/april.pdf", "%PDF")
	writeFile(t, root, "bank_statement/aux/sub-account.pdf", "%PDF")
	writeFile(t, root, "bank_statement/.DS_Store", "x")
	writeFile(t, root, "misc/notes.pdf", "%PDF")
	writeFile(t, root, "identity/license.docx", "doc")
	writeFile(t, root, "loose.pdf", "%PDF")
	writeFile(t, root, ReferencesFile, "- name: invoice_amount\n  kind: money\n  value: \"4027740\"\n- name: purchase_price\n  kind: money\n")

	fc, results, stats, err := ScanCaseDir(root, ScanOptions{CaseID: "CASE-9", Counterparty: "株式会社テスト", SkipHidden: true})
	require.NoError(t, err)

	assert.Equal(t, "CASE-9", fc.ID)
	require.Len(t, fc.References, 2)
	require.NotNil(t, fc.References[0].Value)
	assert.Equal(t, "4027740", *fc.References[0].Value)
	assert.Nil(t, fc.References[1].Value, "a reference without a value stays absent")

	require.Len(t, fc.Attachments, 4)
	byFile := map[string]string{}
	for _, a := range fc.Attachments {
		byFile[a.File] = a.Category + "/" + a.Role
	}
	assert.Equal(t, "invoice/main", byFile[filepath.Join("invoice", "inv-001.pdf")])
	assert.Equal(t, "invoice/main", byFile[filepath.Join("請求書", "inv-002.png")])
	assert.Equal(t, "bank_statement/main", byFile[filepath.Join("bank_statement", "april.pdf")])
	assert.Equal(t, "bank_statement/auxiliary", byFile[filepath.Join("bank_statement", "aux", "sub-account.pdf")])

	assert.Equal(t, uint32(4), stats.Succeeded)
	assert.Equal(t, uint32(3), stats.Failed)
	var errs []string
	for _, r := range results {
		if r.Err != "" {
			errs = append(errs, r.Err)
		}
	}
	assert.ElementsMatch(t, []string{`unknown category "misc" (want one of invoice, bank_statement, identity, registry, collateral)`, "unsupported file type", "file is not inside a category folder"}, errs)
}

func TestScanCaseDir_RequiresCaseID(t *testing.T) {
	_, _, _, err := ScanCaseDir(t.TempDir(), ScanOptions{})
	assert.Error(t, err)
}
