package llm

import (
	"encoding/json"
	"slices"
	"strings"
)

// SanitizeOptionalFields removes or normalizes optional fields that don't meet our stricter schema,
// so the overall document can still validate. Only optionals are touched; an
// unknown subtype becomes "other" when the enum has one.
func SanitizeOptionalFields(doc []byte, subtypes []string) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var dropped []string

	if v, ok := m["amount"].(string); ok && !reDecimal.MatchString(strings.TrimSpace(v)) {
		delete(m, "amount")
		dropped = append(dropped, "amount")
	}
	if v, ok := m["date"].(string); ok && !reISODate.MatchString(strings.TrimSpace(v)) {
		delete(m, "date")
		dropped = append(dropped, "date")
	}

	// confidence: clamp to [0,1], drop when not a number
	if v, ok := m["confidence"]; ok {
		f, isNum := v.(float64)
		switch {
		case !isNum:
			delete(m, "confidence")
			dropped = append(dropped, "confidence")
		case f < 0:
			m["confidence"] = 0.0
		case f > 1:
			m["confidence"] = 1.0
		}
	}

	if v, ok := m["highlighted_items"].([]any); ok {
		kept := v[:0]
		for _, it := range v {
			if s, isStr := it.(string); isStr && strings.TrimSpace(s) != "" {
				kept = append(kept, s)
			}
		}
		m["highlighted_items"] = kept
	}

	if v, ok := m["transactions"].([]any); ok {
		kept := make([]any, 0, len(v))
		for _, it := range v {
			tx, isObj := it.(map[string]any)
			if !isObj {
				continue
			}
			amt, _ := tx["amount"].(string)
			dir, _ := tx["direction"].(string)
			if !reDecimal.MatchString(amt) || (dir != "in" && dir != "out") {
				dropped = append(dropped, "transactions[]")
				continue
			}
			if d, isStr := tx["date"].(string); isStr && !reISODate.MatchString(d) {
				delete(tx, "date")
			}
			kept = append(kept, tx)
		}
		m["transactions"] = kept
	}

	if len(subtypes) > 0 {
		st, _ := m["subtype"].(string)
		if !slices.Contains(subtypes, st) {
			if slices.Contains(subtypes, "other") {
				m["subtype"] = "other"
			} else {
				m["subtype"] = subtypes[0]
			}
			dropped = append(dropped, "subtype("+st+")")
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}
