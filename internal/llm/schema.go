package llm

// BuildFieldsJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We pass this to the provider as a structured output constraint and also use it locally to validate.
func BuildFieldsJSONSchema(subtypes []string) map[string]any {
	subtype := map[string]any{"type": "string", "minLength": 1}
	if len(subtypes) > 0 {
		subtype = map[string]any{"type": "string", "enum": subtypes}
	}
	props := map[string]any{
		"subtype":           subtype,
		"party_name":        map[string]any{"type": "string"},
		"counterparty_name": map[string]any{"type": "string"},
		"address":           map[string]any{"type": "string"},
		"date":              dateProp(),
		"amount":            decimalProp(),
		"transactions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"date":         dateProp(),
					"description":  map[string]any{"type": "string"},
					"counterparty": map[string]any{"type": "string"},
					"amount":       decimalProp(),
					"direction":    map[string]any{"type": "string", "enum": []string{"in", "out"}},
				},
				"required": []string{"amount", "direction"},
			},
		},
		"highlighted_items": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"confidence":        map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"subtype"},
	}
}

// RelevanceSchema constrains adverse-media verdicts.
func RelevanceSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"verdicts": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"index":    map[string]any{"type": "integer", "minimum": 0},
						"relevant": map[string]any{"type": "boolean"},
						"reason":   map[string]any{"type": "string"},
					},
					"required": []string{"index", "relevant"},
				},
			},
		},
		"required": []string{"verdicts"},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,2})?$`,
	}
}

func dateProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^\d{4}-\d{2}-\d{2}$`,
	}
}
