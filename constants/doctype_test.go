package constants

import "testing"

func TestCanonicalizeDocumentType(t *testing.T) {
	tests := []struct {
		in      string
		want    DocumentType
		matched bool
	}{
		{"INVOICE", Invoice, true},
		{"utility_bill", UtilityBill, true},
		{"Bank Statement", BankStatement, true},
		{"bank-statement", BankStatement, true},
		{"  receipt  ", Receipt, true},
		{"other", OtherDocument, true},

		// synonyms
		{"statement", BankStatement, true},
		{"bill", Invoice, true},
		{"W2", TaxForm, true},
		{"tax return", TaxForm, true},
		{"lease", Contract, true},
		{"drivers license", IDDocument, true},
		{"pay stub", Payslip, true},
		{"utility", UtilityBill, true},

		// unknown labels fail the match instead of being silently bucketed
		{"POEM", OtherDocument, false},
		{"", OtherDocument, false},
	}

	for _, tt := range tests {
		got, matched := CanonicalizeDocumentType(tt.in)
		if got != tt.want || matched != tt.matched {
			t.Errorf("CanonicalizeDocumentType(%q) = (%s, %v), want (%s, %v)",
				tt.in, got, matched, tt.want, tt.matched)
		}
	}
}

func TestDocumentTypeStringsCoversTaxonomy(t *testing.T) {
	got := DocumentTypeStrings()
	if len(got) != 10 {
		t.Fatalf("taxonomy has %d entries, want 10", len(got))
	}
	if got[len(got)-1] != string(OtherDocument) {
		t.Errorf("OTHER is not the final fallback entry: %v", got)
	}
}
