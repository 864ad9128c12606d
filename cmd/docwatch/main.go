// docwatch uploads local documents into the pipeline's source bucket and
// enqueues an ingest message for each one. With -once it submits the
// directory and exits; otherwise it keeps watching for new files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/docpipe/internal/awsconf"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/ingest"
	"github.com/joseph-ayodele/docpipe/internal/queue"
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
		dir      = flag.String("dir", "", "directory to submit documents from (required)")
		prefix   = flag.String("prefix", "drop", "object key prefix for uploaded documents")
		once     = flag.Bool("once", false, "submit the directory contents and exit instead of watching")
		scan     = flag.Bool("scan", true, "watch mode: also submit files already present under -dir")
		debounce = flag.Duration("debounce", 500*time.Millisecond, "watch mode: settle time before submitting a changed file")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: -dir is required\n")
		os.Exit(1)
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if cfg.Storage.Bucket == "" {
		printError("Error: DOCUMENT_BUCKET is required\n")
		os.Exit(1)
	}
	if cfg.Queues.IngestURL == "" {
		printError("Error: INGEST_QUEUE_URL is required\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconf.Load(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	store := storage.NewS3Store(storage.NewS3Client(awsCfg, cfg.AWS.Endpoint), logger)
	sqsClient := queue.NewSQSClient(awsCfg, cfg.AWS.Endpoint)
	ingestQ := queue.NewSQSQueue(sqsClient, cfg.Queues.IngestURL, cfg.Queues.VisibilityTimeout, logger)

	submitter := ingest.NewSubmitter(logger, store, ingestQ, cfg.Storage.Bucket, *prefix)

	if *once {
		results, stats, err := submitter.SubmitDirectory(ctx, *dir, true)
		if err != nil {
			logger.Error("failed to submit directory", "dir", *dir, "error", err)
			os.Exit(1)
		}
		logger.Info("directory submitted",
			"dir", *dir,
			"scanned", stats.Scanned,
			"matched", stats.Matched,
			"succeeded", stats.Succeeded,
			"deduplicated", stats.Deduplicated,
			"failed", stats.Failed)
		fmt.Printf("submitted %d document(s) from %s (%d deduplicated, %d failed)\n",
			len(results), *dir, stats.Deduplicated, stats.Failed)
		return
	}

	logger.Info("watching for documents", "dir", *dir, "bucket", cfg.Storage.Bucket, "prefix", *prefix)
	err = submitter.Watch(ctx, ingest.WatchConfig{
		Roots:       []string{*dir},
		InitialScan: *scan,
		Debounce:    *debounce,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("watcher stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("docwatch stopped")
}
