package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/joseph-ayodele/docpipe/internal/common"
)

// ObjectInfo is the metadata the pipeline needs without downloading: size
// drives sync-versus-async extraction routing.
type ObjectInfo struct {
	Size         int64
	LastModified time.Time
}

// ObjectStore is the object storage surface. Bucket is explicit on every call
// because source documents live wherever the submitter put them while
// artifacts live in the pipeline's own bucket.
type ObjectStore interface {
	Head(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// PutJSON marshals v and stores it under key.
func PutJSON(ctx context.Context, store ObjectStore, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return store.Put(ctx, bucket, key, bytes.NewReader(data), "application/json")
}

// GetJSON fetches key and unmarshals it into v.
func GetJSON(ctx context.Context, store ObjectStore, bucket, key string, v any) error {
	body, err := store.Get(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", common.ErrStorage, key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}
