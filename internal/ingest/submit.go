package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/pipeline"
	"github.com/joseph-ayodele/docpipe/internal/queue"
	"github.com/joseph-ayodele/docpipe/internal/storage"
)

// Submitter uploads local documents into the source bucket and enqueues the
// ingest message that starts their pipeline run.
type Submitter struct {
	logger *slog.Logger
	store  storage.ObjectStore
	queue  queue.Queue
	bucket string
	prefix string
}

func NewSubmitter(logger *slog.Logger, store storage.ObjectStore, q queue.Queue, bucket, prefix string) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		logger: logger,
		store:  store,
		queue:  q,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Submission is the per-file outcome.
type Submission struct {
	SourcePath   string
	Bucket       string
	Key          string
	DocumentID   uuid.UUID
	FileSize     int64
	Deduplicated bool
}

// DirStats summarizes a directory submission.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// SubmitFile uploads one document and enqueues its ingest message. The key
// is content-addressed, so resubmitting identical bytes converges on the
// same document instead of forking a new one.
func (s *Submitter) SubmitFile(ctx context.Context, p string) (Submission, error) {
	var out Submission

	abs, err := filepath.Abs(p)
	if err != nil {
		return out, fmt.Errorf("resolve path: %w", err)
	}
	if !constants.ExtensionAllowed(abs) {
		return out, common.ValidationErrorf("unsupported file extension for %q", abs)
	}

	f, err := os.Open(abs)
	if err != nil {
		return out, fmt.Errorf("open %s: %w", abs, err)
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return out, fmt.Errorf("stat %s: %w", abs, err)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return out, fmt.Errorf("hash %s: %w", abs, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return out, fmt.Errorf("rewind %s: %w", abs, err)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	key := path.Join(s.prefix, sum[:16], filepath.Base(abs))

	exists, err := s.store.Exists(ctx, s.bucket, key)
	if err != nil {
		return out, err
	}
	if !exists {
		ext := constants.NormalizeExt(filepath.Ext(abs))
		if err := s.store.Put(ctx, s.bucket, key, f, contentTypeFor(ext)); err != nil {
			return out, err
		}
	}

	msg := pipeline.IngestMessage{
		Bucket: s.bucket,
		Key:    key,
		// Modification time, not upload time: resubmissions of an untouched
		// file derive the same job and converge on one row.
		Timestamp: info.ModTime().UTC().Format(time.RFC3339),
		Metadata: &pipeline.IngestMetadata{
			EventTime: time.Now().UTC().Format(time.RFC3339),
			EventName: "ObjectCreated:Put",
			FileSize:  info.Size(),
		},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return out, fmt.Errorf("encode ingest message: %w", err)
	}
	if err := s.queue.Send(ctx, string(body)); err != nil {
		return out, err
	}

	out = Submission{
		SourcePath:   abs,
		Bucket:       s.bucket,
		Key:          key,
		DocumentID:   common.DocumentIDFor(s.bucket, key),
		FileSize:     info.Size(),
		Deduplicated: exists,
	}
	s.logger.Info("document submitted", "path", abs, "key", key,
		"document_id", out.DocumentID, "deduplicated", out.Deduplicated)
	return out, nil
}

// SubmitDirectory walks root and submits every supported document under it.
// Per-file failures are counted and logged; they never stop the walk.
func (s *Submitter) SubmitDirectory(ctx context.Context, root string, skipHidden bool) ([]Submission, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.ValidationErrorf("root path is required")
	}

	var results []Submission
	var stats DirStats

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			stats.Failed++
			s.logger.Warn("walk error", "path", p, "error", walkErr)
			return nil
		}
		if skipHidden && isHidden(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !constants.ExtensionAllowed(p) {
			return nil
		}
		stats.Matched++

		sub, err := s.SubmitFile(ctx, p)
		if err != nil {
			stats.Failed++
			s.logger.Warn("submission failed", "path", p, "error", err)
			return nil
		}
		results = append(results, sub)
		stats.Succeeded++
		if sub.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk %s: %w", root, err)
	}
	return results, stats, nil
}

// Watch runs the drop-folder loop until ctx ends: every path the watcher
// emits is submitted, failures are logged and the loop keeps going.
func (s *Submitter) Watch(ctx context.Context, cfg WatchConfig) error {
	paths, errs, err := StartWatcher(ctx, s.logger, cfg)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-paths:
			if !ok {
				return nil
			}
			if _, err := s.SubmitFile(ctx, p); err != nil {
				s.logger.Error("failed to submit document", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if ok && err != nil {
				s.logger.Error("watch error", "error", err)
			}
		}
	}
}

func isHidden(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".")
}

func contentTypeFor(ext string) string {
	switch ext {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
