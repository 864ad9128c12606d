package classify

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/docpipe/constants"
)

var reLanguage = regexp.MustCompile(`^[a-z]{2}$`)

// ExtractFirstJSONObject returns the first balanced JSON object in raw.
// Models wrap their output in prose or markdown fences often enough that
// trimming is not sufficient; this walks the text brace by brace, aware of
// strings and escapes.
func ExtractFirstJSONObject(raw []byte) ([]byte, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range raw {
		if start == -1 {
			if ch == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}

	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	return nil, fmt.Errorf("unbalanced JSON object in response")
}

// SanitizeClassification repairs what can be repaired deterministically:
// known type synonyms, stringly-typed confidence, malformed optionals, and
// unknown keys. A type label that maps to nothing in the taxonomy is left
// alone so validation fails honestly.
func SanitizeClassification(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string

	// document_type: trim and fold synonyms onto the taxonomy.
	if v, ok := m["document_type"].(string); ok {
		s := strings.TrimSpace(v)
		if dt, matched := constants.CanonicalizeDocumentType(s); matched {
			if string(dt) != s {
				dropped = append(dropped, "document_type(canonicalized)")
			}
			m["document_type"] = string(dt)
		} else {
			m["document_type"] = s
		}
	}

	// confidence: models sometimes quote the number.
	if v, ok := m["confidence"]; ok {
		switch t := v.(type) {
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				m["confidence"] = f
				dropped = append(dropped, "confidence(coerced)")
			} else {
				delete(m, "confidence")
				dropped = append(dropped, "confidence(unparsable)")
			}
		case nil:
			delete(m, "confidence")
			dropped = append(dropped, "confidence(null)")
		}
	}

	if v, ok := m["summary"]; ok {
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				delete(m, "summary")
				dropped = append(dropped, "summary(empty)")
			} else {
				if runes := []rune(s); len(runes) > 600 {
					s = string(runes[:600])
					dropped = append(dropped, "summary(truncated)")
				}
				m["summary"] = s
			}
		default:
			delete(m, "summary")
			dropped = append(dropped, "summary(type)")
		}
	}

	if v, ok := m["language"]; ok {
		s, isString := v.(string)
		s = strings.ToLower(strings.TrimSpace(s))
		if !isString || !reLanguage.MatchString(s) {
			delete(m, "language")
			dropped = append(dropped, "language(invalid)")
		} else {
			m["language"] = s
		}
	}

	if v, ok := m["keywords"]; ok {
		list, isList := v.([]any)
		if !isList {
			delete(m, "keywords")
			dropped = append(dropped, "keywords(type)")
		} else {
			cleaned := make([]string, 0, len(list))
			for _, item := range list {
				if s, isString := item.(string); isString {
					if s = strings.TrimSpace(s); s != "" {
						cleaned = append(cleaned, s)
					}
				}
			}
			if len(cleaned) > 10 {
				cleaned = cleaned[:10]
				dropped = append(dropped, "keywords(capped)")
			}
			if len(cleaned) == 0 {
				delete(m, "keywords")
				dropped = append(dropped, "keywords(empty)")
			} else {
				m["keywords"] = cleaned
			}
		}
	}

	// remove unknown keys (strict additionalProperties = false friendliness)
	allowed := map[string]struct{}{
		"document_type": {}, "confidence": {}, "summary": {}, "language": {}, "keywords": {},
	}
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}
