package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/joseph-ayodele/docpipe/internal/common"
)

// IngestMetadata mirrors the event metadata a storage notification carries.
type IngestMetadata struct {
	EventTime string `json:"eventTime,omitempty"`
	EventName string `json:"eventName,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`
}

// IngestMessage asks the pipeline to process one stored document. Bucket and
// Key are the only required fields; everything else has a derivation rule.
type IngestMessage struct {
	DocumentID string          `json:"documentId,omitempty"`
	Bucket     string          `json:"bucket"`
	Key        string          `json:"key"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Features   []string        `json:"features,omitempty"`
	Metadata   *IngestMetadata `json:"metadata,omitempty"`
}

// ClassifyMessage points the classification stage at a formatted artifact.
// All three fields are required.
type ClassifyMessage struct {
	DocumentID string `json:"documentId"`
	Bucket     string `json:"bucket"`
	Key        string `json:"key"`
}

// CompletionNotification is the engine's job-settled event.
type CompletionNotification struct {
	JobID  string `json:"JobId"`
	Status string `json:"Status"`
	API    string `json:"API,omitempty"`
}

// snsEnvelope is the fan-out wrapper the notification arrives in when the
// engine publishes through a topic. Message holds the real payload as a
// JSON string.
type snsEnvelope struct {
	Type    string `json:"Type,omitempty"`
	Message string `json:"Message,omitempty"`
}

// ParseIngestMessage decodes and validates an ingest message body.
func ParseIngestMessage(body string) (*IngestMessage, error) {
	var msg IngestMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, common.ValidationErrorf("malformed ingest message: %v", err)
	}

	v := common.NewValidator().
		Field("bucket", msg.Bucket, common.Required).
		Field("key", msg.Key, common.Required).
		Field("timestamp", msg.Timestamp, common.RFC3339Time)
	if msg.DocumentID != "" {
		v.Field("documentId", msg.DocumentID, common.UUID)
	}
	if msg.Metadata != nil {
		v.Field("metadata.eventTime", msg.Metadata.EventTime, common.RFC3339Time)
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParseClassifyMessage decodes and validates a classify message body.
func ParseClassifyMessage(body string) (*ClassifyMessage, error) {
	var msg ClassifyMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, common.ValidationErrorf("malformed classify message: %v", err)
	}

	v := common.NewValidator().
		Field("documentId", msg.DocumentID, common.Required, common.UUID).
		Field("bucket", msg.Bucket, common.Required).
		Field("key", msg.Key, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParseCompletionNotification decodes a completion event, unwrapping the
// topic envelope when present. Bare payloads are accepted too so the queue
// works with raw-message delivery enabled.
func ParseCompletionNotification(body string) (*CompletionNotification, error) {
	payload := body
	var envelope snsEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && strings.TrimSpace(envelope.Message) != "" {
		payload = envelope.Message
	}

	var note CompletionNotification
	if err := json.Unmarshal([]byte(payload), &note); err != nil {
		return nil, common.ValidationErrorf("malformed completion notification: %v", err)
	}
	if note.JobID == "" || note.Status == "" {
		return nil, common.ValidationErrorf("completion notification missing JobId or Status")
	}
	return &note, nil
}
