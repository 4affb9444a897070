package fields

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
	"github.com/joseph-ayodele/packet-underwriter/internal/textnorm"
)

// The prose parser is the fallback when no language model is configured or the
// model fails: it reads labelled lines, amounts near total markers, dates,
// statement lines and highlighted spans straight from OCR text.

type slot int

const (
	slotParty slot = iota
	slotCounter
	slotAddress
	slotAmount
	slotDate
)

// labels per category; Japanese labels may be followed by a colon or just space.
var proseLabels = map[constants.DocumentCategory]map[slot][]string{
	constants.Invoice: {
		slotCounter: {"発行者", "請求元", "issuer", "from"},
		slotAmount:  {"ご請求金額", "請求金額", "合計金額", "総合計", "合計", "total", "amount due"},
		slotDate:    {"請求日", "発行日", "請求書発行日", "invoice date", "date"},
		slotParty:   {"請求先", "bill to"},
	},
	constants.BankStatement: {
		slotParty: {"口座名義", "名義人", "名義", "お名前", "account holder", "account name"},
	},
	constants.Identity: {
		slotParty:   {"氏名", "名前", "name"},
		slotAddress: {"住所", "address"},
		slotDate:    {"生年月日", "date of birth"},
	},
	constants.Registry: {
		slotParty:   {"商号", "company name"},
		slotCounter: {"代表取締役", "代表者", "representative"},
		slotAddress: {"本店", "本店所在地", "所在地", "head office"},
		slotDate:    {"会社成立の年月日", "設立年月日", "設立日", "incorporated"},
	},
	constants.Collateral: {
		slotParty:   {"譲受人", "買主", "assignee", "purchaser"},
		slotCounter: {"譲渡人", "売主", "assignor", "seller"},
		slotAmount:  {"譲渡金額", "売買代金", "契約金額", "債権額", "amount"},
		slotDate:    {"契約日", "締結日", "contract date"},
	},
}

var subtypeKeywords = map[constants.DocumentCategory][][2]string{
	constants.Invoice: {
		{"適格請求書", "qualified_invoice"},
		{"見積", "estimate"},
		{"納品書", "delivery_note"},
		{"請求書", "standard"},
		{"invoice", "standard"},
	},
	constants.BankStatement: {
		{"通帳", "passbook"},
		{"入出金明細", "transaction_history"},
		{"取引明細", "transaction_history"},
		{"statement", "online_statement"},
	},
	constants.Identity: {
		{"運転免許証", "drivers_license"},
		{"個人番号", "my_number_card"},
		{"マイナンバー", "my_number_card"},
		{"旅券", "passport"},
		{"passport", "passport"},
		{"在留カード", "residence_card"},
		{"保険証", "health_insurance_card"},
	},
	constants.Registry: {
		{"印鑑証明", "seal_certificate"},
		{"履歴事項", "certificate_of_registered_matters"},
		{"登記事項", "certificate_of_registered_matters"},
	},
	constants.Collateral: {
		{"債権譲渡", "assignment_agreement"},
		{"売買契約", "purchase_agreement"},
		{"承諾", "consent_form"},
	},
}

var (
	reAddressee = regexp.MustCompile(`(?m)^\s*(.+?)\s*(?:御中|様)\s*$`)
	reMoney     = regexp.MustCompile(`[△▲\-]?[¥$]?\s*(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?`)
	reTotalNear = regexp.MustCompile(`(?i)(?:ご請求金額|請求金額|合計|total)[^\d\n]{0,12}([¥$]?\s*\d{1,3}(?:,\d{3})+|[¥$]?\s*\d{4,})`)
	reTxLine    = regexp.MustCompile(`(?mi)^\s*(\d{4}[/.\-]\d{1,2}[/.\-]\d{1,2}|(?:令和|平成|r|h)\s*\d{1,2}[年.]\d{1,2}[月.]\d{1,2}日?)\s+(.+?)\s+[¥]?([\d,]+)円?(?:\s+[¥]?[\d,]+円?)?\s*$`)
	reBracket   = regexp.MustCompile(`【([^】]+)】`)
	reStarred   = regexp.MustCompile(`(?m)[★※]\s*([^\n]+)`)
	reTxNoise   = regexp.MustCompile(`(?i)^(?:振込入金|振込|フリコミ|入金|出金|引落|口座振替|atm)\s*`)
)

var outKeywords = []string{"出金", "引落", "支払", "振替", "手数料", "withdrawal", "debit", "payment"}

// ParseProse reads fields from OCR text without a language model.
func ParseProse(cat constants.DocumentCategory, text string) llm.DocumentFields {
	text = norm.NFKC.String(text)
	var out llm.DocumentFields

	labels := proseLabels[cat]
	for sl, names := range labels {
		v := labelValue(text, names)
		if v == "" {
			continue
		}
		switch sl {
		case slotParty:
			out.PartyName = v
		case slotCounter:
			out.CounterpartyName = v
		case slotAddress:
			out.Address = v
		case slotAmount:
			if m := reMoney.FindString(v); m != "" {
				if d, err := textnorm.ParseAmount(m); err == nil {
					out.Amount = d.String()
				}
			}
		case slotDate:
			if d, err := textnorm.ParseDate(v); err == nil {
				out.Date = d.Format("2006-01-02")
			}
		}
	}

	if cat == constants.Invoice && out.PartyName == "" {
		if m := reAddressee.FindStringSubmatch(text); m != nil {
			out.PartyName = strings.TrimSpace(m[1])
		}
	}
	if catalogs[cat].amount != "" && out.Amount == "" {
		if m := reTotalNear.FindStringSubmatch(text); m != nil {
			if d, err := textnorm.ParseAmount(m[1]); err == nil {
				out.Amount = d.String()
			}
		}
	}
	// only document dates are safe to guess; birth and incorporation dates need their label
	if (cat == constants.Invoice || cat == constants.Collateral) && out.Date == "" {
		if dates := textnorm.FindDates(text); len(dates) > 0 {
			out.Date = dates[0]
		}
	}
	if catalogs[cat].transactions {
		out.Transactions = parseTransactions(text)
	}
	out.Subtype = proseSubtype(cat, text)
	out.HighlightedItems = highlighted(text)
	return out
}

// labelValue finds the first "label: value" or "label value" line; longer labels win.
func labelValue(text string, labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		for _, l := range sorted {
			if !strings.HasPrefix(lower, l) {
				continue
			}
			rest := strings.TrimSpace(trimmed[len(l):])
			hasColon := strings.HasPrefix(rest, ":")
			rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			// ASCII labels need a colon so "date" does not match "dated ..."
			if isASCII(l) && !hasColon {
				continue
			}
			if rest != "" {
				return rest
			}
		}
	}
	return ""
}

func parseTransactions(text string) []llm.Transaction {
	var out []llm.Transaction
	for _, m := range reTxLine.FindAllStringSubmatch(text, -1) {
		d, err := textnorm.ParseDate(m[1])
		if err != nil {
			continue
		}
		amt, err := textnorm.ParseAmount(m[3])
		if err != nil || amt.IsZero() {
			continue
		}
		desc := strings.TrimSpace(m[2])
		dir := "in"
		lower := strings.ToLower(desc)
		for _, k := range outKeywords {
			if strings.Contains(lower, k) {
				dir = "out"
				break
			}
		}
		out = append(out, llm.Transaction{
			Date:         d.Format("2006-01-02"),
			Description:  desc,
			Counterparty: strings.TrimSpace(reTxNoise.ReplaceAllString(desc, "")),
			Amount:       amt.Abs().String(),
			Direction:    dir,
		})
	}
	return out
}

func proseSubtype(cat constants.DocumentCategory, text string) string {
	lower := strings.ToLower(text)
	for _, kw := range subtypeKeywords[cat] {
		if strings.Contains(lower, kw[0]) {
			return kw[1]
		}
	}
	return "other"
}

func highlighted(text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, m := range reBracket.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range reStarred.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
