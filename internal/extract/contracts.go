package extract

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/docpipe/constants"
)

// Error wraps an engine failure with the operation that produced it. Callers
// unwrap to reach the engine SDK's own error types.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string { return fmt.Sprintf("textract %s: %v", e.Op, e.Cause) }
func (e *Error) Unwrap() error { return e.Cause }

func wrapErr(op string, cause error) error {
	return &Error{Op: op, Cause: cause}
}

// Block is the engine-neutral form of one extraction block, flattened to what
// the formatter and the raw artifact need.
type Block struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	Text            string   `json:"text,omitempty"`
	Confidence      float32  `json:"confidence,omitempty"`
	Page            int32    `json:"page,omitempty"`
	EntityTypes     []string `json:"entityTypes,omitempty"`
	ChildIDs        []string `json:"childIds,omitempty"`
	ValueIDs        []string `json:"valueIds,omitempty"`
	RowIndex        int32    `json:"rowIndex,omitempty"`
	ColumnIndex     int32    `json:"columnIndex,omitempty"`
	SelectionStatus string   `json:"selectionStatus,omitempty"`
}

// EngineResult is the raw extraction output: what lands in the extracted
// artifact before any formatting.
type EngineResult struct {
	Status        constants.JobStatus `json:"status"`
	StatusMessage string              `json:"statusMessage,omitempty"`
	Pages         int32               `json:"pages"`
	Blocks        []Block             `json:"blocks"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// AsyncRequest starts an engine job for a stored document. The notification
// channel is where the engine publishes its completion event; RequestToken
// makes retried starts collapse onto one engine job.
type AsyncRequest struct {
	Bucket       string
	Key          string
	Features     []string
	TopicARN     string
	RoleARN      string
	RequestToken string
}

// SyncRequest extracts a small document inline.
type SyncRequest struct {
	Bucket   string
	Key      string
	Features []string
}

// Engine is the extraction gateway. StartAsync hands back the engine's own
// job ID; FetchResult redeems it once the engine reports the job settled.
type Engine interface {
	StartAsync(ctx context.Context, req AsyncRequest) (string, error)
	FetchResult(ctx context.Context, jobID string, features []string) (*EngineResult, error)
	ExtractSync(ctx context.Context, req SyncRequest) (*EngineResult, error)
}
