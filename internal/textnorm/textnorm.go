// Package textnorm unifies the spellings OCR and record stores produce for the
// same value: full-width forms, Japanese legal suffixes, yen amounts, era dates.
package textnorm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Fold applies NFKC, folds width variants and lowercases. Whitespace is removed.
func Fold(s string) string {
	s = norm.NFKC.String(s)
	s = width.Fold.String(s)
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// FoldName folds a party name and drops legal-entity markers and punctuation,
// so "株式会社テスト" and "ｶ)ﾃｽﾄ" compare equal.
func FoldName(s string) string {
	s = strings.ToLower(width.Fold.String(norm.NFKC.String(s)))
	s = reLatinSuffix.ReplaceAllString(s, "")
	s = StripLegalSuffix(Fold(s))
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s)
}

var reLatinSuffix = regexp.MustCompile(`[\s,]*\b(co\.?,?\s*ltd\.?|corporation|corp\.?|inc\.?|llc|k\.k\.|ltd\.?|limited|gmbh)\s*$`)

// legalMarkers are matched against folded (lowercase, NFKC) text.
var legalMarkers = []string{
	"株式会社", "有限会社", "合同会社", "合資会社", "合名会社",
	"一般社団法人", "一般財団法人", "特定非営利活動法人",
	"(株)", "(有)", "(同)", "(カ", "カ)", "(ユ", "ユ)", "(ド", "ド)",
	"カブシキガイシャ", "ユウゲンガイシャ", "ゴウドウガイシャ",
}

// StripLegalSuffix removes Japanese legal-entity markers wherever they appear in folded text.
func StripLegalSuffix(folded string) string {
	// NFKC turns ㈱ into (株)
	for _, m := range legalMarkers {
		folded = strings.ReplaceAll(folded, m, "")
	}
	return strings.Trim(folded, ",.、。 ")
}

var amountNoise = strings.NewReplacer(",", "", "¥", "", "$", "", "円", "", "jpy", "", "usd", "", "税込", "", "税抜", "", "(", "", ")", "")

// ParseAmount reads a money string as printed on Japanese and English business
// documents: separators, currency marks, △/▲ or parentheses for negatives and
// the trailing hyphen invoices use after totals.
func ParseAmount(s string) (decimal.Decimal, error) {
	orig := s
	s = strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "△") || strings.HasPrefix(s, "▲") || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "−") {
		neg = true
		s = strings.TrimLeft(s, "△▲-−")
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
	}
	s = strings.TrimRight(s, "-―ー.")
	s = amountNoise.Replace(s)
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("no digits in amount %q", orig)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", orig, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

var (
	reISO    = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reYMD    = regexp.MustCompile(`(\d{4})\s*[/.\-年]\s*(\d{1,2})\s*[/.\-月]\s*(\d{1,2})\s*日?`)
	reEraYMD = regexp.MustCompile(`(?:(令和|平成|昭和)\s*|\b([rhs]))(\d{1,2}|元)\s*[年.]\s*(\d{1,2})\s*[月.]\s*(\d{1,2})\s*日?`)
)

var eraBase = map[string]int{
	"令和": 2018, "r": 2018,
	"平成": 1988, "h": 1988,
	"昭和": 1925, "s": 1925,
}

// ParseDate reads ISO, Y/M/D, 年月日 and Japanese era dates. The first date in s wins.
func ParseDate(s string) (time.Time, error) {
	f := strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
	if m := reISO.FindStringSubmatch(f); m != nil {
		return ymd(m[1], m[2], m[3], s)
	}
	if m := reEraYMD.FindStringSubmatch(f); m != nil {
		era := m[1] + m[2]
		n := 1
		if m[3] != "元" {
			n, _ = strconv.Atoi(m[3])
		}
		return ymd(strconv.Itoa(eraBase[era]+n), m[4], m[5], s)
	}
	if m := reYMD.FindStringSubmatch(f); m != nil {
		return ymd(m[1], m[2], m[3], s)
	}
	return time.Time{}, fmt.Errorf("no date in %q", s)
}

// FindDates returns every date found in text, in order, as ISO strings.
func FindDates(text string) []string {
	f := strings.ToLower(norm.NFKC.String(text))
	type hit struct {
		pos int
		iso string
	}
	var hits []hit
	for _, loc := range reEraYMD.FindAllStringIndex(f, -1) {
		if t, err := ParseDate(f[loc[0]:loc[1]]); err == nil {
			hits = append(hits, hit{loc[0], t.Format(time.DateOnly)})
		}
	}
	for _, loc := range reYMD.FindAllStringIndex(f, -1) {
		if t, err := ParseDate(f[loc[0]:loc[1]]); err == nil {
			hits = append(hits, hit{loc[0], t.Format(time.DateOnly)})
		}
	}
	// stable insertion sort by position; lists are short
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.iso)
	}
	return out
}

func ymd(y, m, d, orig string) (time.Time, error) {
	yi, _ := strconv.Atoi(y)
	mi, _ := strconv.Atoi(m)
	di, _ := strconv.Atoi(d)
	if mi < 1 || mi > 12 || di < 1 || di > 31 {
		return time.Time{}, fmt.Errorf("invalid date %q", orig)
	}
	t := time.Date(yi, time.Month(mi), di, 0, 0, 0, 0, time.UTC)
	if t.Day() != di {
		return time.Time{}, fmt.Errorf("invalid date %q", orig)
	}
	return t, nil
}
