package queue

import (
	"context"
	"time"
)

// Message is one delivery. ReceiptHandle settles exactly this delivery;
// ReceiveCount reflects how many times the broker has handed the message out,
// which is what the dead-letter budget counts.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	ReceiveCount  int
}

// Queue is the broker surface the pipeline needs: publish, long-poll, settle.
// Deliveries are at-least-once; anything not deleted before the visibility
// timeout comes back.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int32, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
	URL() string
}
