// Package kb maintains the knowledge base of previously classified
// documents and serves similar-document passages to the classifier.
package kb

import (
	"strings"
)

// excerptRuneLimit caps the stored excerpt so index entries stay small.
const excerptRuneLimit = 480

// Passage is one indexed entry per classified document. The excerpt plus
// the resolved type is what later classifications see as context.
type Passage struct {
	ID           string `json:"id"`
	DocumentID   string `json:"document_id"`
	Title        string `json:"title"`
	DocumentType string `json:"document_type"`
	Excerpt      string `json:"excerpt"`
}

// NewPassage builds the index entry for a classified document. The document
// ID doubles as the primary key so re-running classification overwrites the
// previous entry instead of accumulating duplicates.
func NewPassage(documentID, title, documentType, text string) Passage {
	return Passage{
		ID:           documentID,
		DocumentID:   documentID,
		Title:        title,
		DocumentType: documentType,
		Excerpt:      truncateRunes(strings.TrimSpace(text), excerptRuneLimit),
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
