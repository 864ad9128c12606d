// docpipe-batch runs the operator batch operations once and exits:
//
//	docpipe-batch process-batch  re-enqueue EXTRACTED jobs whose classify trigger was lost
//	docpipe-batch retry-failed   reset FAILED jobs to SUBMITTED and replay their ingest messages
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/docpipe/internal/awsconf"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/pipeline"
	"github.com/joseph-ayodele/docpipe/internal/queue"
	"github.com/joseph-ayodele/docpipe/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func usage() {
	printError("usage: docpipe-batch <process-batch|retry-failed> [flags]\n")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	batchSize := fs.Int("batch-size", 25, "max jobs to touch in one run")
	staleAfter := fs.Duration("stale-after", 0, "process-batch only: skip jobs updated more recently than this (0 sweeps everything)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		usage()
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	// The batch operations touch the database and two queues; the LLM and
	// extraction settings the full Validate checks are not needed here.
	if cfg.Database.DSN == "" {
		printError("Error: DB_URL is required\n")
		os.Exit(1)
	}
	if cfg.Queues.IngestURL == "" || cfg.Queues.ClassifyURL == "" {
		printError("Error: INGEST_QUEUE_URL and CLASSIFY_QUEUE_URL are required\n")
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

	sqsClient := queue.NewSQSClient(awsCfg, cfg.AWS.Endpoint)
	ingestQ := queue.NewSQSQueue(sqsClient, cfg.Queues.IngestURL, cfg.Queues.VisibilityTimeout, logger)
	classifyQ := queue.NewSQSQueue(sqsClient, cfg.Queues.ClassifyURL, cfg.Queues.VisibilityTimeout, logger)

	jobs := repository.NewDocumentJobRepository(entc, logger)

	// Only the job repository and the two queues are exercised by the batch
	// operations, so the stage gateways stay nil.
	pl := pipeline.NewPipeline(logger, jobs, nil, nil, nil, nil, ingestQ, classifyQ, pipeline.Options{
		ArtifactBucket: cfg.Storage.Bucket,
	})

	start := time.Now()
	switch command {
	case "process-batch":
		ids, err := pl.ProcessBatch(ctx, *batchSize, *staleAfter)
		if err != nil {
			logger.Error("process-batch failed", "error", err)
			os.Exit(1)
		}
		logger.Info("process-batch complete", "reenqueued", len(ids), "elapsed_ms", time.Since(start).Milliseconds())
		fmt.Printf("re-enqueued %d job(s) for classification\n", len(ids))
	case "retry-failed":
		ids, err := pl.RetryFailedDocuments(ctx, *batchSize)
		if err != nil {
			logger.Error("retry-failed failed", "error", err)
			os.Exit(1)
		}
		logger.Info("retry-failed complete", "retried", len(ids), "elapsed_ms", time.Since(start).Milliseconds())
		fmt.Printf("replayed %d failed job(s)\n", len(ids))
	default:
		usage()
	}
}
