package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/joseph-ayodele/docpipe/internal/common"
)

// taskWaitInterval is how often index-creation tasks are polled.
const taskWaitInterval = 100 * time.Millisecond

// MeiliIndex stores passages in a Meilisearch index.
type MeiliIndex struct {
	sm       meilisearch.ServiceManager
	indexUID string
	logger   *slog.Logger
}

func NewMeiliIndex(cfg common.KBConfig, logger *slog.Logger) *MeiliIndex {
	sm := meilisearch.New(cfg.Host, meilisearch.WithAPIKey(cfg.APIKey))
	return &MeiliIndex{
		sm:       sm,
		indexUID: cfg.IndexUID,
		logger:   logger,
	}
}

// Health reports whether the Meilisearch instance is reachable.
func (m *MeiliIndex) Health(ctx context.Context) error {
	if _, err := m.sm.HealthWithContext(ctx); err != nil {
		return fmt.Errorf("%w: meilisearch health check: %v", common.ErrStorage, err)
	}
	return nil
}

// EnsureIndex creates the passage index if it does not exist yet.
// Creation is a Meilisearch task, so the call waits for it to settle.
func (m *MeiliIndex) EnsureIndex(ctx context.Context) error {
	if _, err := m.sm.GetIndexWithContext(ctx, m.indexUID); err == nil {
		return nil
	}

	task, err := m.sm.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{
		Uid:        m.indexUID,
		PrimaryKey: "id",
	})
	if err != nil {
		return fmt.Errorf("%w: create index %q: %v", common.ErrStorage, m.indexUID, err)
	}

	done, err := m.sm.WaitForTaskWithContext(ctx, task.TaskUID, taskWaitInterval)
	if err != nil {
		return fmt.Errorf("%w: wait for index %q: %v", common.ErrStorage, m.indexUID, err)
	}
	if done.Status != meilisearch.TaskStatusSucceeded {
		// A concurrent EnsureIndex may have won the race.
		if _, err := m.sm.GetIndexWithContext(ctx, m.indexUID); err == nil {
			return nil
		}
		return fmt.Errorf("%w: create index %q: task %s", common.ErrStorage, m.indexUID, done.Status)
	}

	m.logger.Info("kb.index.created", "index", m.indexUID)
	return nil
}

// Search returns up to limit passages matching the query, best match first.
func (m *MeiliIndex) Search(ctx context.Context, query string, limit int64) ([]Passage, error) {
	if query == "" {
		return nil, nil
	}

	resp, err := m.sm.Index(m.indexUID).SearchWithContext(ctx, query, &meilisearch.SearchRequest{
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: meilisearch search: %v", common.ErrStorage, err)
	}

	passages := make([]Passage, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		// Hit fields are raw JSON, so roundtrip into the typed passage.
		buf, err := json.Marshal(hit)
		if err != nil {
			continue
		}
		var p Passage
		if err := json.Unmarshal(buf, &p); err != nil {
			m.logger.Warn("kb.search.hit_skipped", "index", m.indexUID, "error", err)
			continue
		}
		passages = append(passages, p)
	}

	m.logger.Debug("kb.search", "index", m.indexUID, "hits", len(passages))
	return passages, nil
}

// Add upserts passages keyed by their ID.
func (m *MeiliIndex) Add(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}

	pk := "id"
	_, err := m.sm.Index(m.indexUID).AddDocumentsWithContext(ctx, passages, &meilisearch.DocumentOptions{PrimaryKey: &pk})
	if err != nil {
		return fmt.Errorf("%w: meilisearch add documents: %v", common.ErrStorage, err)
	}

	m.logger.Debug("kb.index.add", "index", m.indexUID, "passages", len(passages))
	return nil
}
