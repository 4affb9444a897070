package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strconv"
	"strings"
)

var (
	reDecimal  = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)
	reISODate  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reLooseYMD = regexp.MustCompile(`^(\d{4})\s*[-/.年]\s*(\d{1,2})\s*[-/.月]\s*(\d{1,2})\s*日?$`)
	moneyNoise = strings.NewReplacer(",", "", "，", "", "¥", "", "￥", "", "円", "", "$", "", " ", "", "　", "")
)

var allowedFieldKeys = map[string]struct{}{
	"subtype": {}, "party_name": {}, "counterparty_name": {}, "address": {},
	"date": {}, "amount": {}, "transactions": {}, "highlighted_items": {},
	"confidence": {},
}

var allowedTxKeys = map[string]struct{}{
	"date": {}, "description": {}, "counterparty": {}, "amount": {}, "direction": {},
}

// NormalizeAndSanitizeJSON
// - Renames known synonyms (total -> amount, holder_name -> party_name)
// - Drops null/empty optionals
// - Coerces numeric and yen-formatted money to plain decimal strings
// - Rewrites Y/M/D dates to ISO form
// - Removes unknown keys (strict additionalProperties = false friendliness)
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite existing value if already present
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms to the schema
	renamed("total", "amount")
	renamed("total_amount", "amount")
	renamed("invoice_amount", "amount")
	renamed("contract_amount", "amount")
	renamed("name", "party_name")
	renamed("holder_name", "party_name")
	renamed("account_holder", "party_name")
	renamed("issuer_name", "counterparty_name")
	renamed("issuer", "counterparty_name")
	renamed("document_type", "subtype")
	renamed("highlights", "highlighted_items")

	// 2) money and dates
	if v, ok := m["amount"]; ok {
		if s, ok := coerceMoney(v); ok {
			m["amount"] = s
		} else {
			delete(m, "amount")
			dropped = append(dropped, "amount(invalid)")
		}
	}
	if v, ok := m["date"]; ok {
		if s, ok := coerceDate(v); ok {
			m["date"] = s
		} else {
			delete(m, "date")
			dropped = append(dropped, "date(invalid)")
		}
	}

	// 3) transactions
	if v, ok := m["transactions"]; ok {
		list, isList := v.([]any)
		if !isList {
			delete(m, "transactions")
			dropped = append(dropped, "transactions(type)")
		} else {
			kept := make([]any, 0, len(list))
			for i, item := range list {
				tx, isObj := item.(map[string]any)
				if !isObj {
					dropped = append(dropped, fmt.Sprintf("transactions[%d](type)", i))
					continue
				}
				if sanitizeTransaction(tx) {
					kept = append(kept, tx)
				} else {
					dropped = append(dropped, fmt.Sprintf("transactions[%d](amount)", i))
				}
			}
			m["transactions"] = kept
		}
	}

	// 4) remove unknown keys
	for k := range maps.Clone(m) {
		if _, ok := allowedFieldKeys[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	// 5) trim obvious strings
	for _, k := range []string{"subtype", "party_name", "counterparty_name", "address"} {
		switch v := m[k].(type) {
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = s
			}
		case nil:
			if _, present := m[k]; present {
				delete(m, k)
				dropped = append(dropped, k+"(null)")
			}
		}
	}
	if v, ok := m["subtype"].(string); ok {
		m["subtype"] = strings.ToLower(strings.ReplaceAll(v, " ", "_"))
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.fields.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}

func sanitizeTransaction(tx map[string]any) bool {
	for k := range maps.Clone(tx) {
		if _, ok := allowedTxKeys[k]; !ok {
			delete(tx, k)
		}
	}
	s, ok := coerceMoney(tx["amount"])
	if !ok {
		return false
	}
	if strings.HasPrefix(s, "-") {
		s = s[1:]
		if _, has := tx["direction"]; !has {
			tx["direction"] = "out"
		}
	}
	tx["amount"] = s
	tx["direction"] = normalizeDirection(tx["direction"])
	if v, ok := tx["date"]; ok {
		if d, ok := coerceDate(v); ok {
			tx["date"] = d
		} else {
			delete(tx, "date")
		}
	}
	for _, k := range []string{"description", "counterparty"} {
		if v, ok := tx[k].(string); ok {
			tx[k] = strings.TrimSpace(v)
		} else {
			delete(tx, k)
		}
	}
	return true
}

func normalizeDirection(v any) string {
	s, _ := v.(string)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "out", "debit", "withdrawal", "payment", "出金", "お支払":
		return "out"
	default:
		return "in"
	}
}

func coerceMoney(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		return strings.TrimSuffix(strconv.FormatFloat(t, 'f', 2, 64), ".00"), true
	case string:
		s := strings.TrimSpace(t)
		neg := false
		for _, p := range []string{"△", "▲", "-", "−"} {
			if strings.HasPrefix(s, p) {
				neg = true
				s = strings.TrimPrefix(s, p)
				break
			}
		}
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			neg = true
			s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
		}
		s = moneyNoise.Replace(s)
		if s == "" || strings.EqualFold(s, "null") {
			return "", false
		}
		if !reDecimal.MatchString(s) {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return "", false
			}
			s = strconv.FormatFloat(f, 'f', 2, 64)
		}
		if neg {
			s = "-" + s
		}
		return s, true
	default:
		return "", false
	}
}

func coerceDate(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if reISODate.MatchString(s) {
		return s, true
	}
	if mm := reLooseYMD.FindStringSubmatch(s); mm != nil {
		mo, _ := strconv.Atoi(mm[2])
		d, _ := strconv.Atoi(mm[3])
		if mo < 1 || mo > 12 || d < 1 || d > 31 {
			return "", false
		}
		return fmt.Sprintf("%s-%02d-%02d", mm[1], mo, d), true
	}
	return "", false
}

// NormalizeRelevanceJSON coerces loosely typed verdicts ("yes", "1") to the schema.
func NormalizeRelevanceJSON(raw []byte, _ *slog.Logger) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}
	var changed []string
	list, _ := m["verdicts"].([]any)
	kept := make([]any, 0, len(list))
	for i, item := range list {
		v, ok := item.(map[string]any)
		if !ok {
			changed = append(changed, fmt.Sprintf("verdicts[%d](type)", i))
			continue
		}
		switch idx := v["index"].(type) {
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(idx))
			if err != nil {
				changed = append(changed, fmt.Sprintf("verdicts[%d](index)", i))
				continue
			}
			v["index"] = n
		case float64:
		default:
			changed = append(changed, fmt.Sprintf("verdicts[%d](index)", i))
			continue
		}
		if s, ok := v["relevant"].(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "yes", "true", "1", "relevant":
				v["relevant"] = true
			default:
				v["relevant"] = false
			}
			changed = append(changed, fmt.Sprintf("verdicts[%d].relevant", i))
		}
		if _, ok := v["relevant"].(bool); !ok {
			v["relevant"] = false
		}
		for k := range maps.Clone(v) {
			if k != "index" && k != "relevant" && k != "reason" {
				delete(v, k)
			}
		}
		if r, ok := v["reason"]; ok {
			if _, isStr := r.(string); !isStr {
				delete(v, "reason")
			}
		}
		kept = append(kept, v)
	}
	out, err := json.Marshal(map[string]any{"verdicts": kept})
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, changed, nil
}
