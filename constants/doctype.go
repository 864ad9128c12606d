package constants

import (
	"strings"
)

// DocumentType is the fixed classification taxonomy. The classifier's output
// must resolve to one of these values or the response fails validation.
type DocumentType string

const (
	BankStatement DocumentType = "BANK_STATEMENT"
	Invoice       DocumentType = "INVOICE"
	Receipt       DocumentType = "RECEIPT"
	TaxForm       DocumentType = "TAX_FORM"
	Contract      DocumentType = "CONTRACT"
	IDDocument    DocumentType = "ID_DOCUMENT"
	Payslip       DocumentType = "PAYSLIP"
	UtilityBill   DocumentType = "UTILITY_BILL"
	MedicalRecord DocumentType = "MEDICAL_RECORD"
	OtherDocument DocumentType = "OTHER"
)

var allDocumentTypes = []DocumentType{
	BankStatement,
	Invoice,
	Receipt,
	TaxForm,
	Contract,
	IDDocument,
	Payslip,
	UtilityBill,
	MedicalRecord,
	OtherDocument,
}

func DocumentTypeStrings() []string {
	result := make([]string, len(allDocumentTypes))
	for i, dt := range allDocumentTypes {
		result[i] = string(dt)
	}
	return result
}

// CanonicalizeDocumentType maps a model-produced label onto the taxonomy.
// Returns (OTHER, false) when the label is unknown.
func CanonicalizeDocumentType(input string) (DocumentType, bool) {
	if input == "" {
		return OtherDocument, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	synonyms := map[string]DocumentType{
		"statement":         BankStatement,
		"account_statement": BankStatement,
		"bill":              Invoice,
		"purchase_order":    Invoice,
		"w2":                TaxForm,
		"w9":                TaxForm,
		"1099":              TaxForm,
		"tax_return":        TaxForm,
		"agreement":         Contract,
		"lease":             Contract,
		"passport":          IDDocument,
		"drivers_license":   IDDocument,
		"id_card":           IDDocument,
		"pay_stub":          Payslip,
		"wage_statement":    Payslip,
		"utility":           UtilityBill,
	}
	if dt, ok := synonyms[normalized]; ok {
		return dt, true
	}

	for _, dt := range allDocumentTypes {
		if normalized == strings.ToLower(string(dt)) {
			return dt, true
		}
	}
	return OtherDocument, false
}
