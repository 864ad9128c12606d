// Package pipeline is the document job state machine: it consumes the three
// queue channels, drives status transitions on the job row, and calls out to
// the extraction and classification gateways.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/internal/classify"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/extract"
	"github.com/joseph-ayodele/docpipe/internal/kb"
	"github.com/joseph-ayodele/docpipe/internal/queue"
	"github.com/joseph-ayodele/docpipe/internal/repository"
	"github.com/joseph-ayodele/docpipe/internal/storage"
)

// KnowledgeBase is the slice of the retrieval index the pipeline uses. Every
// call is best-effort: classification proceeds without it on any failure.
type KnowledgeBase interface {
	Health(ctx context.Context) error
	EnsureIndex(ctx context.Context) error
	Search(ctx context.Context, query string, limit int64) ([]kb.Passage, error)
	Add(ctx context.Context, passages []kb.Passage) error
}

// Options carries the value knobs; collaborators are injected separately.
type Options struct {
	ArtifactBucket    string
	SyncSizeThreshold int64
	DefaultFeatures   []string
	TopicARN          string
	RoleARN           string
	PollAttempts      int
	PollInterval      time.Duration
}

// Pipeline owns no mutable state of its own; the job row is the only shared
// record, and every write to it goes through the repository's conditional
// updates.
type Pipeline struct {
	logger        *slog.Logger
	jobs          repository.DocumentJobRepository
	store         storage.ObjectStore
	engine        extract.Engine
	classifier    classify.DocumentClassifier
	knowledge     KnowledgeBase
	ingestQueue   queue.Queue
	classifyQueue queue.Queue
	opts          Options
}

func NewPipeline(
	logger *slog.Logger,
	jobs repository.DocumentJobRepository,
	store storage.ObjectStore,
	engine extract.Engine,
	classifier classify.DocumentClassifier,
	knowledge KnowledgeBase,
	ingestQueue queue.Queue,
	classifyQueue queue.Queue,
	opts Options,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SyncSizeThreshold == 0 {
		opts.SyncSizeThreshold = 5 * 1024 * 1024
	}
	if opts.PollAttempts == 0 {
		opts.PollAttempts = 30
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Pipeline{
		logger:        logger,
		jobs:          jobs,
		store:         store,
		engine:        engine,
		classifier:    classifier,
		knowledge:     knowledge,
		ingestQueue:   ingestQueue,
		classifyQueue: classifyQueue,
		opts:          opts,
	}
}

// failJob records a terminal failure on the row. An error writing the status
// is logged but never masks the original failure, which the caller still
// returns so the message-level retry signal survives.
func (p *Pipeline) failJob(ctx context.Context, jobID uuid.UUID, cause error) {
	if _, err := p.jobs.UpdateStatus(ctx, jobID, constants.JobStatusFailed, cause.Error()); err != nil {
		p.logger.Error("failed to record job failure",
			"job_id", jobID,
			"message_id", common.MessageIDFromContext(ctx),
			"cause", cause,
			"error", err)
	}
}

// enqueueClassify publishes the classification trigger for a document whose
// formatted artifact is in place.
func (p *Pipeline) enqueueClassify(ctx context.Context, documentID uuid.UUID) error {
	msg := ClassifyMessage{
		DocumentID: documentID.String(),
		Bucket:     p.opts.ArtifactBucket,
		Key:        common.FormattedKey(documentID),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.classifyQueue.Send(ctx, string(body))
}
