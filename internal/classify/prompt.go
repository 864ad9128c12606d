package classify

import (
	"strings"
)

// BuildSystemPrompt composes the system message: taxonomy enum, selection
// rubric, and strict-but-practical formatting rules.
func BuildSystemPrompt(allowedTypes []string) string {
	parts := []string{
		"You are a document classifier. Return ONLY JSON that matches the provided JSON Schema.",
		"You MUST include a 'document_type' and it MUST be exactly one of the allowed enum. " +
			"If uncertain, choose 'OTHER'. Allowed document types (enum): " + strings.Join(allowedTypes, ", ") + ".",
		"Type selection rubric: " + buildTypeRubric(allowedTypes),
		"Set 'confidence' between 0 and 1 to reflect how sure you are of the type.",
		"For 'summary', write one or two plain sentences describing what the document is. Avoid personal names, account numbers, or addresses.",
		"Set 'language' to the two-letter ISO 639-1 code of the document's main language.",
		"List up to ten short 'keywords' taken from the document.",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the document text with the extracted hints and any
// retrieval precedent. Text is truncated; the opening of a document carries
// almost all of the type signal.
func BuildUserPrompt(req Request) string {
	var b strings.Builder
	if filename := strings.TrimSpace(req.FilenameHint); filename != "" {
		b.WriteString("Filename: ")
		b.WriteString(filename)
		b.WriteString("\n")
	}

	if len(req.KeyValues) > 0 {
		b.WriteString("\nExtracted form fields:\n")
		for _, kv := range req.KeyValues {
			b.WriteString(kv.Key)
			b.WriteString(": ")
			b.WriteString(kv.Value)
			b.WriteString("\n")
		}
	}

	if len(req.Passages) > 0 {
		b.WriteString("\nSimilar documents previously classified:\n")
		for _, p := range req.Passages {
			b.WriteString("- ")
			b.WriteString(p.Title)
			b.WriteString(" → ")
			b.WriteString(p.DocumentType)
			if excerpt := strings.TrimSpace(p.Excerpt); excerpt != "" {
				b.WriteString(" (")
				b.WriteString(excerpt)
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}

	text := strings.TrimSpace(req.Text)
	b.WriteString("\nDocument text (first ~6k chars):\n")
	if runes := []rune(text); len(runes) > 6000 {
		b.WriteString(string(runes[:6000]))
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}

// buildTypeRubric emits short, high-precision rules only for types present in
// the enum, with tie-breakers for the buckets that get confused.
func buildTypeRubric(allowed []string) string {
	defs := map[string]string{
		"BANK_STATEMENT": "Periodic account summaries with balances and a transaction list from a bank or card issuer.",
		"INVOICE":        "A request for payment with line items, amounts due, and payment terms. Not proof of payment.",
		"RECEIPT":        "Proof of a completed payment (point of sale, order confirmation with amounts paid).",
		"TAX_FORM":       "Government tax documents (W-2, W-9, 1099, returns, assessments).",
		"CONTRACT":       "Agreements with parties, terms, obligations, and signatures (leases, service agreements).",
		"ID_DOCUMENT":    "Identity credentials (passports, driver licenses, national ID cards).",
		"PAYSLIP":        "Employer wage statements with gross/net pay and deductions for a pay period.",
		"UTILITY_BILL":   "Charges for utilities or telecom service (electricity, water, gas, internet).",
		"MEDICAL_RECORD": "Clinical documents (lab results, discharge summaries, prescriptions, treatment notes).",
		"OTHER":          "Use only when nothing else applies unambiguously.",
	}

	var parts []string
	for _, t := range allowed {
		if d, ok := defs[t]; ok {
			parts = append(parts, t+": "+d)
		}
	}
	if hasAll(allowed, "INVOICE", "RECEIPT") {
		parts = append(parts, "Tie-breaker: amounts still owed → 'INVOICE'; amounts already paid → 'RECEIPT'.")
	}
	if hasAll(allowed, "UTILITY_BILL", "INVOICE") {
		parts = append(parts, "Tie-breaker: bills for utility or telecom service → 'UTILITY_BILL', not 'INVOICE'.")
	}

	if len(parts) == 0 {
		return "Use the document's wording to pick the closest type; if uncertain, choose 'OTHER'."
	}
	return strings.Join(parts, " | ")
}

func hasAll(list []string, a, b string) bool {
	foundA, foundB := false, false
	for _, x := range list {
		if x == a {
			foundA = true
		} else if x == b {
			foundB = true
		}
	}
	return foundA && foundB
}
