package classify

// BuildClassificationJSONSchema returns a JSON-Schema (draft 2020-12 subset)
// as a generic map. We pass it to the model as a structured output constraint
// and validate the response against the same map locally.
func BuildClassificationJSONSchema(allowedTypes []string) map[string]any {
	props := map[string]any{
		"document_type": map[string]any{
			"type": "string",
			"enum": allowedTypes,
		},
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"summary":    map[string]any{"type": "string", "maxLength": 600},
		"language":   map[string]any{"type": "string", "pattern": `^[a-z]{2}$`},
		"keywords": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string", "minLength": 1},
			"maxItems": 10,
		},
	}
	required := []string{"document_type", "confidence"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}
