// Package export produces XLSX reports over the job table, joined with the
// classification artifacts when a row has one.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/gen/ent"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/pipeline"
	"github.com/joseph-ayodele/docpipe/internal/repository"
	"github.com/joseph-ayodele/docpipe/internal/storage"
)

// Service joins job rows with their classified artifacts to build reports.
// Document type and confidence live only in the artifact, so each SUCCEEDED
// row costs one artifact read.
type Service struct {
	jobs           repository.DocumentJobRepository
	store          storage.ObjectStore
	artifactBucket string
	logger         *slog.Logger
}

func NewService(jobs repository.DocumentJobRepository, store storage.ObjectStore, artifactBucket string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, store: store, artifactBucket: artifactBucket, logger: logger}
}

// ExportJobsXLSX returns an XLSX workbook for job rows. With status set the
// report covers that status only; without it, every row up to limit.
func (s *Service) ExportJobsXLSX(ctx context.Context, status *constants.JobStatus, limit int) ([]byte, error) {
	start := time.Now()

	var (
		rows []*ent.DocumentJob
		err  error
	)
	if status != nil {
		rows, err = s.jobs.GetByStatus(ctx, *status, limit)
	} else {
		rows, err = s.jobs.List(ctx, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Jobs"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Document ID",
		"File",
		"Status",
		"Document Type",
		"Confidence",
		"Submitted At",
		"Completed At",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, job := range rows {
		docType, confidence := s.classificationFor(ctx, job)

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, job.DocumentID.String())
		write(2, job.ObjectKey)
		write(3, job.Status)
		write(4, docType)
		write(5, confidence)
		write(6, job.SourceTimestamp.UTC().Format(time.RFC3339))
		if job.CompletedAt != nil {
			write(7, job.CompletedAt.UTC().Format(time.RFC3339))
		} else {
			write(7, "")
		}
		if job.ErrorMessage != nil {
			write(8, truncate(*job.ErrorMessage, 140))
		} else {
			write(8, "")
		}

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // document id
	_ = f.SetColWidth(sheet, "B", "B", 48) // object key
	_ = f.SetColWidth(sheet, "C", "C", 16) // status
	_ = f.SetColWidth(sheet, "D", "D", 24) // type
	_ = f.SetColWidth(sheet, "E", "E", 12) // confidence
	_ = f.SetColWidth(sheet, "F", "G", 22) // timestamps
	_ = f.SetColWidth(sheet, "H", "H", 48) // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// classificationFor reads the row's classified artifact. Rows that never
// reached classification, and artifact read failures, yield blank cells.
func (s *Service) classificationFor(ctx context.Context, job *ent.DocumentJob) (string, string) {
	if job.Status != string(constants.JobStatusSucceeded) {
		return "", ""
	}

	var artifact pipeline.ClassificationArtifact
	key := common.ClassifiedKey(job.DocumentID)
	if err := storage.GetJSON(ctx, s.store, s.artifactBucket, key, &artifact); err != nil {
		s.logger.Warn("classified artifact unreadable", "document_id", job.DocumentID, "error", err)
		return "", ""
	}
	return artifact.Classification.DocumentType, fmt.Sprintf("%.2f", artifact.Classification.Confidence)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
