package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/internal/classify"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/extract"
	"github.com/joseph-ayodele/docpipe/internal/kb"
	"github.com/joseph-ayodele/docpipe/internal/queue"
	"github.com/joseph-ayodele/docpipe/internal/storage"
)

// passageLimit caps how many retrieved precedents go into the prompt.
const passageLimit = 3

// ClassificationArtifact is what lands at classified/{documentId}.json:
// the parsed result for consumers plus the model's validated JSON for audit.
type ClassificationArtifact struct {
	DocumentID     string                  `json:"documentId"`
	Classification classify.Classification `json:"classification"`
	ModelResponse  json.RawMessage         `json:"modelResponse,omitempty"`
	ClassifiedAt   time.Time               `json:"classifiedAt"`
}

// HandleClassify consumes one classification trigger: it loads the formatted
// document, optionally augments the prompt from the knowledge base, invokes
// the classifier, and settles the job. Input problems (missing fields,
// missing artifact) fail the message without touching the row; failures of
// the classification work itself mark the row FAILED.
func (p *Pipeline) HandleClassify(ctx context.Context, m queue.Message) error {
	msg, err := ParseClassifyMessage(m.Body)
	if err != nil {
		return err
	}
	documentID, err := uuid.Parse(msg.DocumentID)
	if err != nil {
		return common.ValidationErrorf("invalid documentId %q", msg.DocumentID)
	}
	ctx = common.WithDocumentID(ctx, msg.DocumentID)

	rows, err := p.jobs.GetByDocumentID(ctx, documentID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return common.ValidationErrorf("no job rows for document %s", documentID)
	}
	job := rows[0] // newest submission is the live attempt

	switch constants.JobStatus(job.Status) {
	case constants.JobStatusSucceeded, constants.JobStatusPartialSuccess:
		p.logger.Info("classify delivery for settled job, skipping", "job_id", job.ID, "status", job.Status)
		return nil
	case constants.JobStatusFailed:
		return common.ValidationErrorf("job %s already failed: %s", job.ID, errorMessageOf(job))
	}

	exists, err := p.store.Exists(ctx, msg.Bucket, msg.Key)
	if err != nil {
		return err
	}
	if !exists {
		// No status write: the row keeps resting and redelivery retries.
		return fmt.Errorf("%w: formatted document s3://%s/%s", common.ErrNotFound, msg.Bucket, msg.Key)
	}

	var doc extract.Document
	if err := storage.GetJSON(ctx, p.store, msg.Bucket, msg.Key, &doc); err != nil {
		return err
	}

	classification, raw, err := p.classifier.Classify(ctx, classify.Request{
		Text:         doc.Text,
		FilenameHint: path.Base(job.ObjectKey),
		KeyValues:    keyValueHints(doc.KeyValues),
		Passages:     p.retrievePassages(ctx, &doc),
	})
	if err != nil {
		p.failJob(ctx, job.ID, err)
		return err
	}

	artifact := ClassificationArtifact{
		DocumentID:     msg.DocumentID,
		Classification: classification,
		ModelResponse:  json.RawMessage(raw),
		ClassifiedAt:   time.Now().UTC(),
	}
	if err := storage.PutJSON(ctx, p.store, p.opts.ArtifactBucket, common.ClassifiedKey(documentID), artifact); err != nil {
		p.failJob(ctx, job.ID, err)
		return err
	}

	if _, err := p.jobs.UpdateStatus(ctx, job.ID, constants.JobStatusSucceeded, ""); err != nil {
		return err
	}

	p.indexPassage(ctx, msg.DocumentID, job.ObjectKey, classification, doc.Text)
	p.logger.Info("document classified", "job_id", job.ID, "document_id", msg.DocumentID,
		"document_type", classification.DocumentType, "confidence", classification.Confidence)
	return nil
}

// retrievePassages runs the knowledge-base fallback chain: healthy index →
// provisioned index → search. Every step degrades to classifying without
// retrieval; none is fatal.
func (p *Pipeline) retrievePassages(ctx context.Context, doc *extract.Document) []classify.ContextPassage {
	if p.knowledge == nil {
		return nil
	}
	if err := p.knowledge.Health(ctx); err != nil {
		p.logger.Warn("knowledge base unavailable, classifying without retrieval", "error", err)
		return nil
	}
	if err := p.knowledge.EnsureIndex(ctx); err != nil {
		p.logger.Warn("knowledge base index unavailable, classifying without retrieval", "error", err)
		return nil
	}

	found, err := p.knowledge.Search(ctx, retrievalQuery(doc), passageLimit)
	if err != nil {
		p.logger.Warn("knowledge base search failed, classifying without retrieval", "error", err)
		return nil
	}

	passages := make([]classify.ContextPassage, 0, len(found))
	for _, passage := range found {
		passages = append(passages, classify.ContextPassage{
			Title:        passage.Title,
			DocumentType: passage.DocumentType,
			Excerpt:      passage.Excerpt,
		})
	}
	return passages
}

// indexPassage records the classified document in the knowledge base so later
// classifications see it as precedent. Best-effort only.
func (p *Pipeline) indexPassage(ctx context.Context, documentID, objectKey string, c classify.Classification, text string) {
	if p.knowledge == nil {
		return
	}
	passage := kb.NewPassage(documentID, path.Base(objectKey), c.DocumentType, text)
	if err := p.knowledge.Add(ctx, []kb.Passage{passage}); err != nil {
		p.logger.Warn("knowledge base indexing failed", "document_id", documentID, "error", err)
	}
}

// retrievalQuery condenses the document's leading lines into a search query.
func retrievalQuery(doc *extract.Document) string {
	lines := doc.Lines
	if len(lines) > 8 {
		lines = lines[:8]
	}
	query := strings.Join(lines, " ")
	if runes := []rune(query); len(runes) > 300 {
		query = string(runes[:300])
	}
	return query
}

func keyValueHints(kvs []extract.KeyValue) []classify.KeyValueHint {
	hints := make([]classify.KeyValueHint, 0, len(kvs))
	for _, kv := range kvs {
		hints = append(hints, classify.KeyValueHint{Key: kv.Key, Value: kv.Value})
	}
	return hints
}
