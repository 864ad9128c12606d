package classify

import (
	"testing"

	"github.com/joseph-ayodele/docpipe/constants"
)

func TestClassificationSchemaAcceptsWellFormedResponse(t *testing.T) {
	schema := BuildClassificationJSONSchema(constants.DocumentTypeStrings())

	good := `{
		"document_type": "UTILITY_BILL",
		"confidence": 0.92,
		"summary": "Monthly electricity bill with usage breakdown.",
		"language": "en",
		"keywords": ["electricity", "kwh", "due date"]
	}`
	if err := ValidateJSONAgainstSchema(schema, []byte(good)); err != nil {
		t.Fatalf("well-formed response rejected: %v", err)
	}
}

func TestClassificationSchemaRejectsBadResponses(t *testing.T) {
	schema := BuildClassificationJSONSchema(constants.DocumentTypeStrings())

	tests := []struct {
		name string
		in   string
	}{
		{"missing document_type", `{"confidence":0.9}`},
		{"missing confidence", `{"document_type":"INVOICE"}`},
		{"type outside enum", `{"document_type":"POEM","confidence":0.9}`},
		{"confidence out of range", `{"document_type":"INVOICE","confidence":1.5}`},
		{"extra properties", `{"document_type":"INVOICE","confidence":0.9,"reasoning":"..."}`},
		{"keyword overflow", `{"document_type":"INVOICE","confidence":0.9,"keywords":["a","b","c","d","e","f","g","h","i","j","k"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateJSONAgainstSchema(schema, []byte(tt.in)); err == nil {
				t.Fatalf("schema accepted %s", tt.in)
			}
		})
	}
}
