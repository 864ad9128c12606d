package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/gen/ent"
	"github.com/joseph-ayodele/docpipe/gen/ent/enttest"
	"github.com/joseph-ayodele/docpipe/internal/common"
)

func newTestClient(t *testing.T) *ent.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)

	drv := entsql.OpenDB(dialect.SQLite, db)
	client := enttest.NewClient(t, enttest.WithOptions(ent.Driver(drv)))
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func newTestRepo(t *testing.T) DocumentJobRepository {
	t.Helper()
	return NewDocumentJobRepository(newTestClient(t), slog.New(slog.DiscardHandler))
}

func testParams() CreateJobParams {
	docID := common.DocumentIDFor("inbound-docs", "drop/statement.pdf")
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return CreateJobParams{
		ID:              common.JobIDFor(docID, ts),
		DocumentID:      docID,
		Bucket:          "inbound-docs",
		ObjectKey:       "drop/statement.pdf",
		SourceTimestamp: ts,
		FileSize:        2048,
	}
}

func TestCreateDuplicateReturnsAlreadyExists(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	params := testParams()

	job, err := repo.Create(ctx, params)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if job.Status != string(constants.JobStatusSubmitted) {
		t.Fatalf("new job status = %q, want SUBMITTED", job.Status)
	}
	if job.CompletedAt != nil {
		t.Fatalf("new job has completed_at set")
	}

	_, err = repo.Create(ctx, params)
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("duplicate create err = %v, want ErrAlreadyExists", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(context.Background(), uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateStatusStampsCompletedAtOnlyWhenTerminal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	params := testParams()
	if _, err := repo.Create(ctx, params); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := repo.UpdateStatus(ctx, params.ID, constants.JobStatusInProgress, "")
	if err != nil {
		t.Fatalf("update to IN_PROGRESS: %v", err)
	}
	if job == nil {
		t.Fatal("update to IN_PROGRESS returned nil job")
	}
	if job.CompletedAt != nil {
		t.Fatalf("IN_PROGRESS stamped completed_at %v", job.CompletedAt)
	}

	job, err = repo.UpdateStatus(ctx, params.ID, constants.JobStatusFailed, "engine exploded")
	if err != nil {
		t.Fatalf("update to FAILED: %v", err)
	}
	if job.CompletedAt == nil {
		t.Fatal("FAILED did not stamp completed_at")
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != "engine exploded" {
		t.Fatalf("error_message = %v, want recorded failure", job.ErrorMessage)
	}
}

func TestUpdateStatusRefusesTerminalRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	params := testParams()
	if _, err := repo.Create(ctx, params); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, params.ID, constants.JobStatusSucceeded, ""); err != nil {
		t.Fatalf("update to SUCCEEDED: %v", err)
	}

	// A late redelivery must not move the job anywhere, FAILED included.
	job, err := repo.UpdateStatus(ctx, params.ID, constants.JobStatusFailed, "late failure")
	if err != nil {
		t.Fatalf("terminal update err = %v, want nil", err)
	}
	if job != nil {
		t.Fatalf("terminal update returned a row, want nil no-op")
	}

	current, err := repo.GetByID(ctx, params.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Status != string(constants.JobStatusSucceeded) {
		t.Fatalf("status = %q after refused update, want SUCCEEDED", current.Status)
	}
	if current.ErrorMessage != nil {
		t.Fatalf("refused update wrote error_message %q", *current.ErrorMessage)
	}
}

func TestUpdateStatusMissingRowIsNoOp(t *testing.T) {
	repo := newTestRepo(t)

	job, err := repo.UpdateStatus(context.Background(), uuid.New(), constants.JobStatusExtracted, "")
	if err != nil {
		t.Fatalf("err = %v, want nil for missing row", err)
	}
	if job != nil {
		t.Fatalf("missing row update returned %v, want nil", job)
	}
}

func TestFindByTextractJobID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	params := testParams()
	if _, err := repo.Create(ctx, params); err != nil {
		t.Fatalf("create: %v", err)
	}

	const engineJobID = "tx-job-0001"
	if err := repo.SetTextractJobID(ctx, params.ID, engineJobID); err != nil {
		t.Fatalf("set textract job id: %v", err)
	}

	jobs, err := repo.FindByTextractJobID(ctx, engineJobID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != params.ID {
		t.Fatalf("find returned %d rows, want the created job", len(jobs))
	}

	jobs, err = repo.FindByTextractJobID(ctx, "tx-job-unknown")
	if err != nil {
		t.Fatalf("find unknown: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("unknown engine job matched %d rows, want 0", len(jobs))
	}
}

func TestSetTextractJobIDMissingRow(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.SetTextractJobID(context.Background(), uuid.New(), "tx-job-0002")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetByDocumentIDNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	docID := common.DocumentIDFor("inbound-docs", "drop/invoice.pdf")
	older := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)
	for _, ts := range []time.Time{older, newer} {
		_, err := repo.Create(ctx, CreateJobParams{
			ID:              common.JobIDFor(docID, ts),
			DocumentID:      docID,
			Bucket:          "inbound-docs",
			ObjectKey:       "drop/invoice.pdf",
			SourceTimestamp: ts,
		})
		if err != nil {
			t.Fatalf("create %v: %v", ts, err)
		}
	}

	jobs, err := repo.GetByDocumentID(ctx, docID)
	if err != nil {
		t.Fatalf("get by document: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if !jobs[0].SourceTimestamp.After(jobs[1].SourceTimestamp) {
		t.Fatalf("jobs not newest-first: %v then %v", jobs[0].SourceTimestamp, jobs[1].SourceTimestamp)
	}
}

func TestGetByStatusHonorsLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("drop/doc-%d.pdf", i)
		docID := common.DocumentIDFor("inbound-docs", key)
		ts := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
		_, err := repo.Create(ctx, CreateJobParams{
			ID:              common.JobIDFor(docID, ts),
			DocumentID:      docID,
			Bucket:          "inbound-docs",
			ObjectKey:       key,
			SourceTimestamp: ts,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	jobs, err := repo.GetByStatus(ctx, constants.JobStatusSubmitted, 3)
	if err != nil {
		t.Fatalf("get by status: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want limit of 3", len(jobs))
	}

	jobs, err = repo.GetByStatus(ctx, constants.JobStatusFailed, 0)
	if err != nil {
		t.Fatalf("get by status FAILED: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("got %d FAILED jobs, want 0", len(jobs))
	}
}

func TestResetForRetry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	params := testParams()
	if _, err := repo.Create(ctx, params); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SetTextractJobID(ctx, params.ID, "tx-job-0003"); err != nil {
		t.Fatalf("set textract job id: %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, params.ID, constants.JobStatusFailed, "boom"); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	job, err := repo.ResetForRetry(ctx, params.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if job.Status != string(constants.JobStatusSubmitted) {
		t.Fatalf("status after reset = %q, want SUBMITTED", job.Status)
	}
	if job.ErrorMessage != nil || job.CompletedAt != nil || job.TextractJobID != nil {
		t.Fatalf("reset left failure fields behind: msg=%v completed=%v tx=%v",
			job.ErrorMessage, job.CompletedAt, job.TextractJobID)
	}
}

func TestResetForRetryRefusesNonFailedJobs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	params := testParams()
	if _, err := repo.Create(ctx, params); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := repo.ResetForRetry(ctx, params.ID)
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("reset of SUBMITTED job err = %v, want ErrValidation", err)
	}

	_, err = repo.ResetForRetry(ctx, uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("reset of missing job err = %v, want ErrNotFound", err)
	}
}
