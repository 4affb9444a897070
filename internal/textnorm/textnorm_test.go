package textnorm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "abc123", Fold("ＡＢＣ　１２３"))
	assert.Equal(t, "テスト", Fold("ﾃｽﾄ"))
}

func TestFoldName(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"株式会社テスト", "ｶ)ﾃｽﾄ"},
		{"テスト株式会社", "(株)テスト"},
		{"㈱テスト", "テスト"},
		{"ACME Co., Ltd.", "acme"},
		{"Acme, Inc.", "ACME"},
		{"山田 太郎", "山田太郎"},
	}
	for _, tt := range tests {
		assert.Equal(t, FoldName(tt.a), FoldName(tt.b), "%q vs %q", tt.a, tt.b)
	}
	assert.NotEqual(t, FoldName("Principal Holdings"), FoldName("Prpal Holdings"))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"4,027,740", "4027740"},
		{"¥4,027,740-", "4027740"},
		{"￥４，０２７，７４０", "4027740"},
		{"1,527,740円", "1527740"},
		{"△1,000", "-1000"},
		{"(2,000)", "-2000"},
		{"$1,234.50", "1234.5"},
		{"0", "0"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
	_, err := ParseAmount("")
	assert.Error(t, err)
	_, err = ParseAmount("about ten")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-03-31", "2024/3/31", "2024年3月31日", "令和6年3月31日", "R6.3.31", "発行日 2024.03.31"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	got, err := ParseDate("平成元年1月8日")
	require.NoError(t, err)
	assert.Equal(t, 1989, got.Year())

	_, err = ParseDate("2024/02/30")
	assert.Error(t, err)
	_, err = ParseDate("items 12.3.4")
	assert.Error(t, err)
}

func TestFindDates(t *testing.T) {
	got := FindDates("請求日 令和6年4月1日\n支払期限 2024/04/30")
	assert.Equal(t, []string{"2024-04-01", "2024-04-30"}, got)
}
