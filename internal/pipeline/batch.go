package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docpipe/constants"
)

const defaultBatchSize = 25

// ProcessBatch re-enqueues classification for rows resting in EXTRACTED.
// With staleAfter > 0 only rows untouched for at least that long are swept,
// so triggers already in flight are left alone. Returns the job IDs swept.
func (p *Pipeline) ProcessBatch(ctx context.Context, batchSize int, staleAfter time.Duration) ([]uuid.UUID, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	rows, err := p.jobs.GetByStatus(ctx, constants.JobStatusExtracted, batchSize)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-staleAfter)
	processed := make([]uuid.UUID, 0, len(rows))
	for _, job := range rows {
		if staleAfter > 0 && job.UpdatedAt.After(cutoff) {
			continue
		}
		if err := p.enqueueClassify(ctx, job.DocumentID); err != nil {
			p.logger.Error("failed to re-enqueue classification", "job_id", job.ID, "error", err)
			continue
		}
		processed = append(processed, job.ID)
	}

	if len(processed) > 0 {
		p.logger.Info("re-enqueued classification for resting jobs", "count", len(processed))
	}
	return processed, nil
}

// RetryFailedDocuments resets FAILED rows to SUBMITTED and replays their
// ingest messages. The replay carries the row's own source timestamp, so it
// derives the same job ID and resumes the same row. Returns the IDs retried.
func (p *Pipeline) RetryFailedDocuments(ctx context.Context, batchSize int) ([]uuid.UUID, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	rows, err := p.jobs.GetByStatus(ctx, constants.JobStatusFailed, batchSize)
	if err != nil {
		return nil, err
	}

	retried := make([]uuid.UUID, 0, len(rows))
	for _, job := range rows {
		if _, err := p.jobs.ResetForRetry(ctx, job.ID); err != nil {
			p.logger.Error("failed to reset job for retry", "job_id", job.ID, "error", err)
			continue
		}

		msg := IngestMessage{
			DocumentID: job.DocumentID.String(),
			Bucket:     job.Bucket,
			Key:        job.ObjectKey,
			Timestamp:  job.SourceTimestamp.UTC().Format(time.RFC3339),
			Features:   job.TextractFeatures,
			Metadata:   &IngestMetadata{FileSize: job.FileSize},
		}
		body, err := json.Marshal(msg)
		if err != nil {
			p.logger.Error("failed to encode retry message", "job_id", job.ID, "error", err)
			continue
		}
		if err := p.ingestQueue.Send(ctx, string(body)); err != nil {
			p.logger.Error("failed to enqueue retry", "job_id", job.ID, "error", err)
			continue
		}
		retried = append(retried, job.ID)
	}

	if len(retried) > 0 {
		p.logger.Info("reset failed jobs for retry", "count", len(retried))
	}
	return retried, nil
}
