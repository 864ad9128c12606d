// docpiped runs the full document pipeline: three queue consumers, the
// periodic batch sweep, and every gateway the stages call out to.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docpipe/internal/awsconf"
	"github.com/joseph-ayodele/docpipe/internal/classify/openai"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/extract"
	"github.com/joseph-ayodele/docpipe/internal/kb"
	"github.com/joseph-ayodele/docpipe/internal/pipeline"
	"github.com/joseph-ayodele/docpipe/internal/queue"
	"github.com/joseph-ayodele/docpipe/internal/repository"
	"github.com/joseph-ayodele/docpipe/internal/storage"
)

func main() {
	var (
		sweepInterval = flag.Duration("sweep-interval", 5*time.Minute, "how often to re-enqueue resting EXTRACTED jobs (0 disables)")
		sweepStale    = flag.Duration("sweep-stale-after", 15*time.Minute, "only sweep jobs untouched for at least this long")
		sweepBatch    = flag.Int("sweep-batch", 25, "max jobs per sweep")
	)
	flag.Parse()

	// .env is a convenience for local runs; deployments set the environment.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entc, pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(entc, pool, logger)

	if err := repository.HealthCheck(ctx, pool, 3*time.Second, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconf.Load(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	store := storage.NewS3Store(storage.NewS3Client(awsCfg, cfg.AWS.Endpoint), logger)
	engine := extract.NewTextractEngine(extract.NewTextractClient(awsCfg, cfg.AWS.Endpoint), logger)

	sqsClient := queue.NewSQSClient(awsCfg, cfg.AWS.Endpoint)
	ingestQ := queue.NewSQSQueue(sqsClient, cfg.Queues.IngestURL, cfg.Queues.VisibilityTimeout, logger)
	completionQ := queue.NewSQSQueue(sqsClient, cfg.Queues.CompletionURL, cfg.Queues.VisibilityTimeout, logger)
	classifyQ := queue.NewSQSQueue(sqsClient, cfg.Queues.ClassifyURL, cfg.Queues.VisibilityTimeout, logger)

	classifier := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	var knowledge pipeline.KnowledgeBase
	if cfg.KB.Host != "" {
		idx := kb.NewMeiliIndex(cfg.KB, logger)
		if err := idx.EnsureIndex(ctx); err != nil {
			logger.Warn("knowledge base index unavailable at startup", "error", err)
		}
		knowledge = idx
	} else {
		logger.Info("knowledge base not configured, classification runs without retrieval")
	}

	jobs := repository.NewDocumentJobRepository(entc, logger)

	pl := pipeline.NewPipeline(logger, jobs, store, engine, classifier, knowledge, ingestQ, classifyQ, pipeline.Options{
		ArtifactBucket:    cfg.Storage.Bucket,
		SyncSizeThreshold: cfg.Extract.SyncSizeThreshold,
		DefaultFeatures:   cfg.Extract.DefaultFeatures,
		TopicARN:          cfg.Extract.SNSTopicARN,
		RoleARN:           cfg.Extract.RoleARN,
		PollAttempts:      cfg.Extract.PollAttempts,
		PollInterval:      cfg.Extract.PollInterval,
	})

	consumerOpts := []queue.ConsumerOption{
		queue.WithMaxMessages(cfg.Queues.MaxMessages),
		queue.WithWaitTime(cfg.Queues.WaitTime),
	}
	consumers := []*queue.Consumer{
		queue.NewConsumer("ingest", ingestQ, pl.HandleIngest, logger, consumerOpts...),
		queue.NewConsumer("completion", completionQ, pl.HandleCompletion, logger, consumerOpts...),
		queue.NewConsumer("classify", classifyQ, pl.HandleClassify, logger, consumerOpts...),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		g.Go(func() error { return c.Run(gctx) })
	}

	if *sweepInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(*sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					ids, err := pl.ProcessBatch(gctx, *sweepBatch, *sweepStale)
					if err != nil {
						logger.Error("batch sweep failed", "error", err)
						continue
					}
					if len(ids) > 0 {
						logger.Info("batch sweep re-enqueued jobs", "count", len(ids))
					}
				}
			}
		})
	}

	logger.Info("docpiped started",
		"ingest_queue", ingestQ.URL(),
		"completion_queue", completionQ.URL(),
		"classify_queue", classifyQ.URL(),
		"artifact_bucket", cfg.Storage.Bucket,
		"sync_size_threshold", cfg.Extract.SyncSizeThreshold,
		"sns_topic_configured", cfg.Extract.SNSTopicARN != "")

	if err := g.Wait(); err != nil {
		logger.Error("pipeline stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("docpiped stopped")
}
