package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate   = regexp.MustCompile(`\b20\d{2}[-/.年]\d{1,2}[-/.月]\d{1,2}|令和\s*\d{1,2}年`)
	reCurr   = regexp.MustCompile(`\b(usd|eur|jpy)\b|[$¥￥]|円`)
	reAmount = regexp.MustCompile(`\d{1,3}(,\d{3})+|\b\d+\.\d{2}\b`)
)

func hasDatePattern(s string) bool     { return reDate.MatchString(s) }
func hasCurrencyPattern(s string) bool { return reCurr.MatchString(s) }
func hasAmountPattern(s string) bool   { return reAmount.MatchString(s) }

// heuristicConfidence scores decoded text when the provider reports no confidence.
// Financial artifacts (dates, currency marks, grouped amounts) each raise the score.
func heuristicConfidence(txt string) float32 {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	txtL := strings.ToLower(txt)
	score := float32(0.2)
	if hasDatePattern(txtL) {
		score += 0.2
	}
	if hasCurrencyPattern(txtL) {
		score += 0.15
	}
	if hasAmountPattern(txtL) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// pageConfidence blends provider and heuristic confidence, weighting the provider higher.
func pageConfidence(p PageText) float32 {
	heur := heuristicConfidence(p.Text + " " + p.TokenText)
	var conf float32
	if p.Confidence > 0 {
		conf = 0.7*p.Confidence + 0.3*heur
	} else {
		conf = heur
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// ImageConfidence scores a single-image result the same way pages are scored.
func ImageConfidence(r ImageResult) float32 {
	return pageConfidence(PageText{Text: r.Text, TokenText: r.TokenText, Confidence: r.Confidence})
}
