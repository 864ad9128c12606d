package pipeline

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/gen/ent"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/extract"
	"github.com/joseph-ayodele/docpipe/internal/queue"
	"github.com/joseph-ayodele/docpipe/internal/storage"
)

// HandleCompletion consumes one engine completion notification. The engine
// job handle persisted at start time is the correlation key back to the job
// row; an event with no matching row is unrecoverable for that event and goes
// to the dead-letter queue rather than failing the pipeline.
func (p *Pipeline) HandleCompletion(ctx context.Context, m queue.Message) error {
	note, err := ParseCompletionNotification(m.Body)
	if err != nil {
		return err
	}

	rows, err := p.jobs.FindByTextractJobID(ctx, note.JobID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		p.logger.Warn("completion for unknown engine job",
			"textract_job_id", note.JobID, "engine_status", note.Status)
		return common.ValidationErrorf("no job row for engine job %s", note.JobID)
	}

	var firstErr error
	for _, job := range rows {
		ctx := common.WithDocumentID(ctx, job.DocumentID.String())
		if err := p.settleFromEngine(ctx, job, note.JobID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// settleFromEngine advances one row from an engine completion. The engine's
// Get API is the source of truth for the final status, not the notification.
func (p *Pipeline) settleFromEngine(ctx context.Context, job *ent.DocumentJob, engineJobID string) error {
	switch constants.JobStatus(job.Status) {
	case constants.JobStatusSucceeded, constants.JobStatusPartialSuccess:
		p.logger.Info("completion for settled job, skipping", "job_id", job.ID, "status", job.Status)
		return nil
	case constants.JobStatusFailed:
		return common.ValidationErrorf("job %s already failed: %s", job.ID, errorMessageOf(job))
	}

	result, err := p.engine.FetchResult(ctx, engineJobID, job.TextractFeatures)
	if err != nil {
		p.failJob(ctx, job.ID, err)
		return err
	}
	return p.completeExtraction(ctx, job, result)
}

// completeExtraction persists a settled engine result: raw blocks and the
// formatted document under the document's deterministic artifact keys, then
// the status transition, then the classification trigger. Redeliveries
// overwrite the same artifacts instead of duplicating state.
func (p *Pipeline) completeExtraction(ctx context.Context, job *ent.DocumentJob, result *extract.EngineResult) error {
	switch result.Status {
	case constants.JobStatusSucceeded, constants.JobStatusPartialSuccess:
	case constants.JobStatusInProgress:
		// Notification raced the result API; let redelivery try again.
		return fmt.Errorf("engine job for %s reports in progress", job.ID)
	default:
		err := fmt.Errorf("extraction failed: %s", result.StatusMessage)
		p.failJob(ctx, job.ID, err)
		return err
	}

	if err := storage.PutJSON(ctx, p.store, p.opts.ArtifactBucket, common.ExtractedKey(job.DocumentID), result); err != nil {
		p.failJob(ctx, job.ID, err)
		return err
	}
	formatted := extract.FormatDocument(result)
	if err := storage.PutJSON(ctx, p.store, p.opts.ArtifactBucket, common.FormattedKey(job.DocumentID), formatted); err != nil {
		p.failJob(ctx, job.ID, err)
		return err
	}

	if result.Status == constants.JobStatusPartialSuccess {
		// Terminal: partial extractions are kept but never classified.
		if _, err := p.jobs.UpdateStatus(ctx, job.ID, constants.JobStatusPartialSuccess, ""); err != nil {
			return err
		}
		p.logger.Warn("extraction partially succeeded", "job_id", job.ID,
			"pages", result.Pages, "warnings", result.Warnings)
		return nil
	}

	if _, err := p.jobs.UpdateStatus(ctx, job.ID, constants.JobStatusExtracted, ""); err != nil {
		return err
	}
	if err := p.enqueueClassify(ctx, job.DocumentID); err != nil {
		// The row rests in EXTRACTED; the batch sweep re-enqueues it.
		return fmt.Errorf("enqueue classification: %w", err)
	}

	p.logger.Info("extraction complete", "job_id", job.ID, "document_id", job.DocumentID,
		"pages", result.Pages, "blocks", len(result.Blocks))
	return nil
}
