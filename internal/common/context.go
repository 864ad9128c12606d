package common

import "context"

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyMessageID  contextKey = "message_id"
	ContextKeyDocumentID contextKey = "document_id"
)

// WithMessageID adds the queue message ID to the context
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, ContextKeyMessageID, messageID)
}

// MessageIDFromContext extracts the queue message ID from context
func MessageIDFromContext(ctx context.Context) string {
	if messageID, ok := ctx.Value(ContextKeyMessageID).(string); ok {
		return messageID
	}
	return ""
}

// WithDocumentID adds a document ID to the context
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, ContextKeyDocumentID, documentID)
}

// DocumentIDFromContext extracts the document ID from context
func DocumentIDFromContext(ctx context.Context) string {
	if documentID, ok := ctx.Value(ContextKeyDocumentID).(string); ok {
		return documentID
	}
	return ""
}
