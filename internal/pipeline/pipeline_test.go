package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
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
	"github.com/joseph-ayodele/docpipe/internal/classify"
	"github.com/joseph-ayodele/docpipe/internal/common"
	"github.com/joseph-ayodele/docpipe/internal/extract"
	"github.com/joseph-ayodele/docpipe/internal/kb"
	"github.com/joseph-ayodele/docpipe/internal/queue"
	"github.com/joseph-ayodele/docpipe/internal/repository"
	"github.com/joseph-ayodele/docpipe/internal/storage"
)

// fakeObject lets tests seed a size without allocating that many bytes.
type fakeObject struct {
	data []byte
	size int64
}

type fakeStore struct {
	objects map[string]fakeObject
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]fakeObject)}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

func (s *fakeStore) seed(bucket, key string, data []byte) {
	s.objects[objKey(bucket, key)] = fakeObject{data: data, size: int64(len(data))}
}

func (s *fakeStore) seedSized(bucket, key string, size int64) {
	s.objects[objKey(bucket, key)] = fakeObject{size: size}
}

func (s *fakeStore) Head(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	obj, ok := s.objects[objKey(bucket, key)]
	if !ok {
		return storage.ObjectInfo{}, fmt.Errorf("%w: object s3://%s/%s", common.ErrNotFound, bucket, key)
	}
	return storage.ObjectInfo{Size: obj.size}, nil
}

func (s *fakeStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, ok := s.objects[objKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%w: object s3://%s/%s", common.ErrNotFound, bucket, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *fakeStore) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[objKey(bucket, key)] = fakeObject{data: data, size: int64(len(data))}
	return nil
}

func (s *fakeStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, ok := s.objects[objKey(bucket, key)]
	return ok, nil
}

func (s *fakeStore) getJSON(t *testing.T, bucket, key string, v any) {
	t.Helper()
	obj, ok := s.objects[objKey(bucket, key)]
	if !ok {
		t.Fatalf("no object at %s/%s", bucket, key)
	}
	if err := json.Unmarshal(obj.data, v); err != nil {
		t.Fatalf("unmarshal %s/%s: %v", bucket, key, err)
	}
}

type fakeQueue struct {
	sent    []string
	sendErr error
}

func (q *fakeQueue) Send(ctx context.Context, body string) error {
	if q.sendErr != nil {
		return q.sendErr
	}
	q.sent = append(q.sent, body)
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context, maxMessages int32, wait time.Duration) ([]queue.Message, error) {
	return nil, nil
}

func (q *fakeQueue) Delete(ctx context.Context, receiptHandle string) error { return nil }

func (q *fakeQueue) URL() string { return "fake://queue" }

type fakeEngine struct {
	startCalls  int
	syncCalls   int
	fetchCalls  int
	lastAsync   extract.AsyncRequest
	lastSync    extract.SyncRequest
	startAsync  func(req extract.AsyncRequest) (string, error)
	extractSync func(req extract.SyncRequest) (*extract.EngineResult, error)
	fetchResult func(jobID string, features []string) (*extract.EngineResult, error)
}

func defaultResult() *extract.EngineResult {
	return &extract.EngineResult{
		Status: constants.JobStatusSucceeded,
		Pages:  1,
		Blocks: []extract.Block{
			{ID: "l1", Type: "LINE", Text: "ACME Utilities Statement", Page: 1},
			{ID: "l2", Type: "LINE", Text: "Amount Due: $42.00", Page: 1},
		},
	}
}

func (e *fakeEngine) StartAsync(ctx context.Context, req extract.AsyncRequest) (string, error) {
	e.startCalls++
	e.lastAsync = req
	if e.startAsync != nil {
		return e.startAsync(req)
	}
	return "tx-default", nil
}

func (e *fakeEngine) FetchResult(ctx context.Context, jobID string, features []string) (*extract.EngineResult, error) {
	e.fetchCalls++
	if e.fetchResult != nil {
		return e.fetchResult(jobID, features)
	}
	return defaultResult(), nil
}

func (e *fakeEngine) ExtractSync(ctx context.Context, req extract.SyncRequest) (*extract.EngineResult, error) {
	e.syncCalls++
	e.lastSync = req
	if e.extractSync != nil {
		return e.extractSync(req)
	}
	return defaultResult(), nil
}

type fakeClassifier struct {
	calls    int
	lastReq  classify.Request
	classify func(req classify.Request) (classify.Classification, []byte, error)
}

func (c *fakeClassifier) Classify(ctx context.Context, req classify.Request) (classify.Classification, []byte, error) {
	c.calls++
	c.lastReq = req
	if c.classify != nil {
		return c.classify(req)
	}
	result := classify.Classification{DocumentType: "INVOICE", Confidence: 0.9}
	return result, []byte(`{"document_type":"INVOICE","confidence":0.9}`), nil
}

type fakeKB struct {
	healthErr error
	ensureErr error
	searchErr error
	addErr    error
	passages  []kb.Passage
	added     [][]kb.Passage
	lastQuery string
	lastLimit int64
}

func (f *fakeKB) Health(ctx context.Context) error      { return f.healthErr }
func (f *fakeKB) EnsureIndex(ctx context.Context) error { return f.ensureErr }

func (f *fakeKB) Search(ctx context.Context, query string, limit int64) ([]kb.Passage, error) {
	f.lastQuery = query
	f.lastLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.passages, nil
}

func (f *fakeKB) Add(ctx context.Context, passages []kb.Passage) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, passages)
	return nil
}

func newTestEntClient(t *testing.T) *ent.Client {
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

// testPipeline wires a real repository over in-memory SQLite to fake
// collaborators so the state machine runs against actual guarded updates.
type testPipeline struct {
	*Pipeline
	jobs       repository.DocumentJobRepository
	store      *fakeStore
	engine     *fakeEngine
	classifier *fakeClassifier
	kb         *fakeKB
	ingestQ    *fakeQueue
	classifyQ  *fakeQueue
}

func newTestPipeline(t *testing.T, opts Options) *testPipeline {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	jobs := repository.NewDocumentJobRepository(newTestEntClient(t), logger)
	store := newFakeStore()
	engine := &fakeEngine{}
	classifier := &fakeClassifier{}
	knowledge := &fakeKB{}
	ingestQ := &fakeQueue{}
	classifyQ := &fakeQueue{}

	if opts.ArtifactBucket == "" {
		opts.ArtifactBucket = "artifacts"
	}
	if opts.SyncSizeThreshold == 0 {
		opts.SyncSizeThreshold = 1024
	}
	if opts.PollAttempts == 0 {
		opts.PollAttempts = 3
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}

	p := NewPipeline(logger, jobs, store, engine, classifier, knowledge, ingestQ, classifyQ, opts)
	return &testPipeline{
		Pipeline:   p,
		jobs:       jobs,
		store:      store,
		engine:     engine,
		classifier: classifier,
		kb:         knowledge,
		ingestQ:    ingestQ,
		classifyQ:  classifyQ,
	}
}

func (tp *testPipeline) mustGetJob(t *testing.T, id uuid.UUID) *ent.DocumentJob {
	t.Helper()
	job, err := tp.jobs.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get job %s: %v", id, err)
	}
	return job
}

func marshalBody(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return string(data)
}

// checkTerminalInvariant asserts completed_at is set exactly on terminal rows.
func checkTerminalInvariant(t *testing.T, job *ent.DocumentJob) {
	t.Helper()
	terminal := constants.JobStatus(job.Status).IsTerminal()
	if terminal && job.CompletedAt == nil {
		t.Errorf("terminal job %s (%s) has no completed_at", job.ID, job.Status)
	}
	if !terminal && job.CompletedAt != nil {
		t.Errorf("non-terminal job %s (%s) has completed_at set", job.ID, job.Status)
	}
}
