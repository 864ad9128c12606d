// jobs-export writes an XLSX report of document jobs, joining each
// successful row with its stored classification artifact.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/internal/awsconf"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/export"
	"github.com/joseph-ayodele/docpipe/internal/repository"
	"github.com/joseph-ayodele/docpipe/internal/storage"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		statusStr = flag.String("status", "", "only export jobs in this status (default: all)")
		limit     = flag.Int("limit", 0, "max rows to export (0 = no limit)")
		out       = flag.String("out", "jobs.xlsx", "output XLSX file path")
	)
	flag.Parse()

	var status *constants.JobStatus
	if *statusStr != "" {
		parsed, ok := constants.ParseJobStatus(*statusStr)
		if !ok {
			printError("Error: unknown status %q, valid values: %s\n",
				*statusStr, strings.Join(constants.JobStatusStrings(), ", "))
			os.Exit(1)
		}
		status = &parsed
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		printError("Error: DB_URL is required\n")
		os.Exit(1)
	}
	if cfg.Storage.Bucket == "" {
		printError("Error: DOCUMENT_BUCKET is required\n")
		os.Exit(1)
	}

	ctx := context.Background()

	entc, pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(entc, pool, logger)

	awsCfg, err := awsconf.Load(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	store := storage.NewS3Store(storage.NewS3Client(awsCfg, cfg.AWS.Endpoint), logger)

	jobs := repository.NewDocumentJobRepository(entc, logger)
	svc := export.NewService(jobs, store, cfg.Storage.Bucket, logger)

	data, err := svc.ExportJobsXLSX(ctx, status, *limit)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, data, 0644); err != nil {
		logger.Error("failed to write output file", "path", *out, "error", err)
		os.Exit(1)
	}

	logger.Info("export written", "path", *out, "bytes", len(data))
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}
