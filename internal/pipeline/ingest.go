package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/gen/ent"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/extract"
	"github.com/joseph-ayodele/docpipe/internal/queue"
	"github.com/joseph-ayodele/docpipe/internal/repository"
)

// HandleIngest consumes one ingest message: it creates (or resumes) the job
// row and starts extraction. Redelivered messages converge on the same row
// because the job ID is derived from document identity and source timestamp.
func (p *Pipeline) HandleIngest(ctx context.Context, m queue.Message) error {
	msg, err := ParseIngestMessage(m.Body)
	if err != nil {
		return err
	}
	if !constants.ExtensionAllowed(msg.Key) {
		return common.ValidationErrorf("unsupported file extension for %q", msg.Key)
	}

	documentID, err := p.resolveDocumentID(msg)
	if err != nil {
		return err
	}
	sourceTS := resolveTimestamp(msg)
	jobID := common.JobIDFor(documentID, sourceTS)
	ctx = common.WithDocumentID(ctx, documentID.String())

	features := msg.Features
	if len(features) == 0 {
		features = p.opts.DefaultFeatures
	}

	// Stat before creating the row: a message for a missing object retries
	// and dead-letters without leaving a job record behind.
	fileSize := int64(0)
	if msg.Metadata != nil {
		fileSize = msg.Metadata.FileSize
	}
	if fileSize <= 0 {
		info, err := p.store.Head(ctx, msg.Bucket, msg.Key)
		if err != nil {
			return fmt.Errorf("stat source document: %w", err)
		}
		fileSize = info.Size
	}

	job, err := p.jobs.Create(ctx, repository.CreateJobParams{
		ID:              jobID,
		DocumentID:      documentID,
		Bucket:          msg.Bucket,
		ObjectKey:       msg.Key,
		Features:        features,
		SourceTimestamp: sourceTS,
		FileSize:        fileSize,
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return p.resumeDelivered(ctx, jobID)
		}
		return err
	}

	p.logger.Info("ingest accepted", "job_id", job.ID, "document_id", documentID,
		"bucket", job.Bucket, "object_key", job.ObjectKey, "file_size", fileSize)
	return p.startExtraction(ctx, job)
}

// resumeDelivered handles a redelivered ingest message whose row already
// exists. Only rows still in SUBMITTED (or demonstrably stalled IN_PROGRESS
// ones) are re-driven; settled rows make the delivery a quiet duplicate,
// except FAILED rows, which keep the message failing so it dead-letters.
func (p *Pipeline) resumeDelivered(ctx context.Context, jobID uuid.UUID) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	switch constants.JobStatus(job.Status) {
	case constants.JobStatusSubmitted:
		p.logger.Info("resuming submitted job", "job_id", job.ID)
		return p.startExtraction(ctx, job)
	case constants.JobStatusInProgress:
		if job.TextractJobID == nil {
			// The synchronous attempt died mid-flight; run it again.
			p.logger.Warn("re-running interrupted inline extraction", "job_id", job.ID)
			return p.extractInline(ctx, job)
		}
		if p.opts.TopicARN == "" {
			// Poll mode: no notification will arrive, so poll again.
			return p.pollCompletion(ctx, job, *job.TextractJobID)
		}
		p.logger.Info("duplicate ingest delivery, extraction already running", "job_id", job.ID)
		return nil
	case constants.JobStatusFailed:
		return common.ValidationErrorf("job %s already failed: %s", job.ID, errorMessageOf(job))
	default:
		p.logger.Info("duplicate ingest delivery, job already advanced", "job_id", job.ID, "status", job.Status)
		return nil
	}
}

// startExtraction routes by file size: small documents are extracted inline,
// large ones through the engine's async job API.
func (p *Pipeline) startExtraction(ctx context.Context, job *ent.DocumentJob) error {
	if job.FileSize < p.opts.SyncSizeThreshold {
		return p.extractInline(ctx, job)
	}
	return p.extractAsync(ctx, job)
}

// extractInline runs the synchronous path. The row never acquires an engine
// job ID on this path.
func (p *Pipeline) extractInline(ctx context.Context, job *ent.DocumentJob) error {
	if _, err := p.jobs.UpdateStatus(ctx, job.ID, constants.JobStatusInProgress, ""); err != nil {
		return err
	}

	result, err := p.engine.ExtractSync(ctx, extract.SyncRequest{
		Bucket:   job.Bucket,
		Key:      job.ObjectKey,
		Features: job.TextractFeatures,
	})
	if err != nil {
		p.failJob(ctx, job.ID, err)
		return err
	}
	return p.completeExtraction(ctx, job, result)
}

// extractAsync starts an engine job with the completion-notification channel
// attached, persists the engine's job handle for the completion bridge, and
// leaves the row IN_PROGRESS. The handle must land on the row before this
// handler returns or the completion event has nothing to correlate against.
func (p *Pipeline) extractAsync(ctx context.Context, job *ent.DocumentJob) error {
	engineJobID, err := p.engine.StartAsync(ctx, extract.AsyncRequest{
		Bucket:       job.Bucket,
		Key:          job.ObjectKey,
		Features:     job.TextractFeatures,
		TopicARN:     p.opts.TopicARN,
		RoleARN:      p.opts.RoleARN,
		RequestToken: job.ID.String(),
	})
	if err != nil {
		p.failJob(ctx, job.ID, err)
		return err
	}

	if err := p.jobs.SetTextractJobID(ctx, job.ID, engineJobID); err != nil {
		p.failJob(ctx, job.ID, err)
		return err
	}
	if _, err := p.jobs.UpdateStatus(ctx, job.ID, constants.JobStatusInProgress, ""); err != nil {
		return err
	}

	if p.opts.TopicARN == "" {
		return p.pollCompletion(ctx, job, engineJobID)
	}

	p.logger.Info("extraction started", "job_id", job.ID,
		"textract_job_id", engineJobID, "file_size", job.FileSize)
	return nil
}

// pollCompletion bridges completion for deployments without a notification
// topic. An exhausted poll budget leaves the row IN_PROGRESS and fails the
// message so redelivery resumes polling.
func (p *Pipeline) pollCompletion(ctx context.Context, job *ent.DocumentJob, engineJobID string) error {
	poller := common.NewPoller(p.opts.PollAttempts, p.opts.PollInterval)
	result, err := extract.WaitForCompletion(ctx, p.engine, poller, engineJobID, job.TextractFeatures)
	if err != nil {
		if errors.Is(err, extract.ErrExtractionRunning) {
			p.logger.Warn("extraction still running after poll budget", "job_id", job.ID, "textract_job_id", engineJobID)
			return err
		}
		p.failJob(ctx, job.ID, err)
		return err
	}
	return p.completeExtraction(ctx, job, result)
}

func (p *Pipeline) resolveDocumentID(msg *IngestMessage) (uuid.UUID, error) {
	if msg.DocumentID != "" {
		id, err := uuid.Parse(msg.DocumentID)
		if err != nil {
			return uuid.Nil, common.ValidationErrorf("invalid documentId %q", msg.DocumentID)
		}
		return id, nil
	}
	return common.DocumentIDFor(msg.Bucket, msg.Key), nil
}

// resolveTimestamp picks the job's source timestamp: the message's own
// timestamp, else the storage event time, else receipt time.
func resolveTimestamp(msg *IngestMessage) time.Time {
	if msg.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
			return ts.UTC()
		}
	}
	if msg.Metadata != nil && msg.Metadata.EventTime != "" {
		if ts, err := time.Parse(time.RFC3339, msg.Metadata.EventTime); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

func errorMessageOf(job *ent.DocumentJob) string {
	if job.ErrorMessage == nil {
		return ""
	}
	return *job.ErrorMessage
}
