// queues-init provisions the pipeline's infrastructure: the three queues
// (each with a dead-letter queue and redrive policy), the document bucket,
// and the knowledge-base index. Safe to re-run; everything is idempotent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/docpipe/internal/awsconf"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/kb"
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
		ingestName     = flag.String("ingest-queue", "docpipe-ingest", "ingest queue name")
		completionName = flag.String("completion-queue", "docpipe-completion", "completion queue name")
		classifyName   = flag.String("classify-queue", "docpipe-classify", "classify queue name")
	)
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()

	ctx := context.Background()
	awsCfg, err := awsconf.Load(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	sqsClient := queue.NewSQSClient(awsCfg, cfg.AWS.Endpoint)
	params := func(name string) queue.ProvisionParams {
		return queue.ProvisionParams{
			QueueName:         name,
			MaxReceiveCount:   cfg.Queues.MaxReceiveCount,
			VisibilityTimeout: cfg.Queues.VisibilityTimeout,
		}
	}

	queueEnv := map[string]string{}
	for envVar, name := range map[string]*string{
		"INGEST_QUEUE_URL":     ingestName,
		"COMPLETION_QUEUE_URL": completionName,
		"CLASSIFY_QUEUE_URL":   classifyName,
	} {
		url, dlqURL, err := queue.EnsureQueueWithDLQ(ctx, sqsClient, params(*name), logger)
		if err != nil {
			logger.Error("failed to provision queue", "queue", *name, "error", err)
			os.Exit(1)
		}
		logger.Info("queue ready", "queue", *name, "url", url, "dlq_url", dlqURL)
		queueEnv[envVar] = url
	}

	if cfg.Storage.Bucket != "" {
		if err := ensureBucket(ctx, storage.NewS3Client(awsCfg, cfg.AWS.Endpoint), cfg.Storage.Bucket, cfg.AWS.Region); err != nil {
			logger.Error("failed to ensure document bucket", "bucket", cfg.Storage.Bucket, "error", err)
			os.Exit(1)
		}
		logger.Info("document bucket ready", "bucket", cfg.Storage.Bucket)
	} else {
		logger.Warn("DOCUMENT_BUCKET not set, skipping bucket provisioning")
	}

	if cfg.KB.Host != "" {
		idx := kb.NewMeiliIndex(cfg.KB, logger)
		if err := idx.EnsureIndex(ctx); err != nil {
			logger.Warn("knowledge base index not provisioned", "error", err)
		} else {
			logger.Info("knowledge base index ready", "index", cfg.KB.IndexUID)
		}
	}

	// Print the environment the other binaries expect, ready to paste.
	for _, envVar := range []string{"INGEST_QUEUE_URL", "COMPLETION_QUEUE_URL", "CLASSIFY_QUEUE_URL"} {
		fmt.Printf("export %s=%s\n", envVar, queueEnv[envVar])
	}
}

func ensureBucket(ctx context.Context, client *s3.Client, bucket, region string) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint.
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}
	_, err = client.CreateBucket(ctx, input)
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		var exists *s3types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}
