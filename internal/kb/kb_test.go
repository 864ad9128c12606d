package kb

import (
	"strings"
	"testing"
)

func TestNewPassageUsesDocumentIDAsPrimaryKey(t *testing.T) {
	p := NewPassage("doc-1", "invoice-march.pdf", "INVOICE", "  Invoice for services rendered.  ")

	if p.ID != "doc-1" || p.DocumentID != "doc-1" {
		t.Fatalf("ID = %q, DocumentID = %q, want both doc-1", p.ID, p.DocumentID)
	}
	if p.Excerpt != "Invoice for services rendered." {
		t.Errorf("Excerpt = %q, want trimmed text", p.Excerpt)
	}
	if p.DocumentType != "INVOICE" {
		t.Errorf("DocumentType = %q", p.DocumentType)
	}
}

func TestNewPassageTruncatesExcerpt(t *testing.T) {
	long := strings.Repeat("é", 600)
	p := NewPassage("doc-2", "long.pdf", "OTHER", long)

	if got := len([]rune(p.Excerpt)); got != excerptRuneLimit {
		t.Fatalf("excerpt rune length = %d, want %d", got, excerptRuneLimit)
	}
	if !strings.HasPrefix(long, p.Excerpt) {
		t.Errorf("excerpt is not a prefix of the original text")
	}
}
