package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/gen/ent"
	entjob "github.com/joseph-ayodele/docpipe/gen/ent/documentjob"
	"github.com/joseph-ayodele/docpipe/internal/common"
)

// CreateJobParams carries everything a new job row needs. ID and DocumentID
// are derived by the caller so replays produce the same row.
type CreateJobParams struct {
	ID              uuid.UUID
	DocumentID      uuid.UUID
	Bucket          string
	ObjectKey       string
	Features        []string
	SourceTimestamp time.Time
	FileSize        int64
}

type DocumentJobRepository interface {
	Create(ctx context.Context, params CreateJobParams) (*ent.DocumentJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ent.DocumentJob, error)
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*ent.DocumentJob, error)
	FindByTextractJobID(ctx context.Context, textractJobID string) ([]*ent.DocumentJob, error)
	GetByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*ent.DocumentJob, error)
	List(ctx context.Context, limit int) ([]*ent.DocumentJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, errorMessage string) (*ent.DocumentJob, error)
	SetTextractJobID(ctx context.Context, id uuid.UUID, textractJobID string) error
	ResetForRetry(ctx context.Context, id uuid.UUID) (*ent.DocumentJob, error)
}

type documentJobRepo struct {
	ent    *ent.Client
	logger *slog.Logger
}

func NewDocumentJobRepository(entc *ent.Client, logger *slog.Logger) DocumentJobRepository {
	return &documentJobRepo{
		ent:    entc,
		logger: logger,
	}
}

// Create inserts the job row. A duplicate ID means a replayed submission and
// maps to ErrAlreadyExists so the caller can resume instead of failing.
func (r *documentJobRepo) Create(ctx context.Context, params CreateJobParams) (*ent.DocumentJob, error) {
	builder := r.ent.DocumentJob.Create().
		SetID(params.ID).
		SetDocumentID(params.DocumentID).
		SetBucket(params.Bucket).
		SetObjectKey(params.ObjectKey).
		SetStatus(string(constants.JobStatusSubmitted)).
		SetSourceTimestamp(params.SourceTimestamp).
		SetFileSize(params.FileSize)
	if len(params.Features) > 0 {
		builder.SetTextractFeatures(params.Features)
	}

	job, err := builder.Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, fmt.Errorf("%w: job %s", common.ErrAlreadyExists, params.ID)
		}
		r.logger.Error("document_job create failed", "job_id", params.ID, "document_id", params.DocumentID, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.logger.Info("document_job created", "job_id", job.ID, "document_id", job.DocumentID, "bucket", job.Bucket, "object_key", job.ObjectKey)
	return job, nil
}

func (r *documentJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*ent.DocumentJob, error) {
	job, err := r.ent.DocumentJob.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, fmt.Errorf("%w: job %s", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return job, nil
}

// GetByDocumentID returns every job for the document, newest submission first.
func (r *documentJobRepo) GetByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*ent.DocumentJob, error) {
	jobs, err := r.ent.DocumentJob.Query().
		Where(entjob.DocumentID(documentID)).
		Order(entjob.BySourceTimestamp(entsql.OrderDesc())).
		All(ctx)
	if err != nil {
		r.logger.Error("document_job query by document failed", "document_id", documentID, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return jobs, nil
}

// FindByTextractJobID resolves the row(s) holding an extraction engine job ID.
// The lookup is index-backed only; an unknown ID yields an empty slice.
func (r *documentJobRepo) FindByTextractJobID(ctx context.Context, textractJobID string) ([]*ent.DocumentJob, error) {
	jobs, err := r.ent.DocumentJob.Query().
		Where(entjob.TextractJobID(textractJobID)).
		All(ctx)
	if err != nil {
		r.logger.Error("document_job query by textract job failed", "textract_job_id", textractJobID, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return jobs, nil
}

func (r *documentJobRepo) GetByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*ent.DocumentJob, error) {
	q := r.ent.DocumentJob.Query().
		Where(entjob.Status(string(status))).
		Order(entjob.ByUpdatedAt())
	if limit > 0 {
		q = q.Limit(limit)
	}
	jobs, err := q.All(ctx)
	if err != nil {
		r.logger.Error("document_job query by status failed", "status", status, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return jobs, nil
}

// List returns jobs across all statuses, newest submission first. Reports
// use it; the pipeline itself always queries narrower.
func (r *documentJobRepo) List(ctx context.Context, limit int) ([]*ent.DocumentJob, error) {
	q := r.ent.DocumentJob.Query().
		Order(entjob.BySourceTimestamp(entsql.OrderDesc()))
	if limit > 0 {
		q = q.Limit(limit)
	}
	jobs, err := q.All(ctx)
	if err != nil {
		r.logger.Error("document_job list failed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return jobs, nil
}

// UpdateStatus moves a job to the given status. Rows already in a terminal
// state are never touched; the attempt is logged and (nil, nil) is returned.
// A missing row is also (nil, nil) so redeliveries racing a cleanup just log
// and settle. completed_at is stamped exactly when the new status is terminal.
func (r *documentJobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, errorMessage string) (*ent.DocumentJob, error) {
	builder := r.ent.DocumentJob.UpdateOneID(id).
		Where(entjob.StatusNotIn(constants.TerminalStatuses()...)).
		SetStatus(string(status))
	if status.IsTerminal() {
		builder.SetCompletedAt(time.Now().UTC())
	}
	if errorMessage != "" {
		builder.SetErrorMessage(errorMessage)
	}

	job, err := builder.Save(ctx)
	if err == nil {
		r.logger.Info("document_job status updated", "job_id", job.ID, "status", status)
		return job, nil
	}
	if !ent.IsNotFound(err) {
		r.logger.Error("document_job status update failed", "job_id", id, "status", status, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}

	// The guarded update matched nothing: either the row is gone or it is
	// already terminal. Look once more to log the right thing.
	current, getErr := r.ent.DocumentJob.Get(ctx, id)
	if getErr != nil {
		r.logger.Warn("document_job status update skipped, row not found", "job_id", id, "status", status)
		return nil, nil
	}
	r.logger.Warn("document_job status update refused, job is terminal",
		"job_id", id, "current_status", current.Status, "attempted_status", status)
	return nil, nil
}

// SetTextractJobID records the extraction engine's job ID on the row so the
// completion notification can find its way back.
func (r *documentJobRepo) SetTextractJobID(ctx context.Context, id uuid.UUID, textractJobID string) error {
	_, err := r.ent.DocumentJob.UpdateOneID(id).
		SetTextractJobID(textractJobID).
		Save(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return fmt.Errorf("%w: job %s", common.ErrNotFound, id)
		}
		r.logger.Error("document_job textract job id update failed", "job_id", id, "error", err)
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.logger.Info("document_job textract job id recorded", "job_id", id, "textract_job_id", textractJobID)
	return nil
}

// ResetForRetry is the operator path out of FAILED. It rewinds the row to
// SUBMITTED and clears everything the failed run left behind. Jobs in any
// other state are refused.
func (r *documentJobRepo) ResetForRetry(ctx context.Context, id uuid.UUID) (*ent.DocumentJob, error) {
	job, err := r.ent.DocumentJob.UpdateOneID(id).
		Where(entjob.Status(string(constants.JobStatusFailed))).
		SetStatus(string(constants.JobStatusSubmitted)).
		ClearErrorMessage().
		ClearCompletedAt().
		ClearTextractJobID().
		Save(ctx)
	if err == nil {
		r.logger.Info("document_job reset for retry", "job_id", job.ID)
		return job, nil
	}
	if !ent.IsNotFound(err) {
		r.logger.Error("document_job reset failed", "job_id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}

	current, getErr := r.ent.DocumentJob.Get(ctx, id)
	if getErr != nil {
		return nil, fmt.Errorf("%w: job %s", common.ErrNotFound, id)
	}
	return nil, common.ValidationErrorf("job %s is %s, only FAILED jobs can be reset", id, current.Status)
}
