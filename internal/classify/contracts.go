package classify

import "context"

// KeyValueHint is one extracted form field forwarded to the classifier.
type KeyValueHint struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ContextPassage is a previously classified document surfaced by the
// retrieval index, included in the prompt as precedent.
type ContextPassage struct {
	Title        string `json:"title"`
	DocumentType string `json:"document_type"`
	Excerpt      string `json:"excerpt"`
}

// Classification is the normalized shape we want from the LLM.
type Classification struct {
	DocumentType string   `json:"document_type"`
	Confidence   float64  `json:"confidence"`
	Summary      string   `json:"summary,omitempty"`
	Language     string   `json:"language,omitempty"` // ISO 639-1
	Keywords     []string `json:"keywords,omitempty"`
}

// Request carries everything the classifier may use. Text is the formatted
// document text; hints and passages are optional enrichment.
type Request struct {
	Text         string
	FilenameHint string
	KeyValues    []KeyValueHint
	Passages     []ContextPassage
}

// DocumentClassifier is the interface the pipeline depends on. The raw JSON
// the model produced (post-repair) comes back alongside the parsed result so
// it can be archived as the classified artifact.
type DocumentClassifier interface {
	Classify(ctx context.Context, req Request) (Classification, []byte, error)
}
