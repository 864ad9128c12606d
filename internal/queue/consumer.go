package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/docpipe/internal/common"
)

// Handler processes a single delivery. A nil return settles (deletes) the
// message; any error leaves it for the broker to redeliver and, past the
// receive budget, dead-letter.
type Handler func(ctx context.Context, msg Message) error

type Consumer struct {
	queue   Queue
	handler Handler
	logger  *slog.Logger
	name    string

	maxMessages   int32
	waitTime      time.Duration
	handleTimeout time.Duration
	errorBackoff  time.Duration
}

type ConsumerOption func(*Consumer)

func WithMaxMessages(n int32) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.maxMessages = n
		}
	}
}

func WithWaitTime(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.waitTime = d
		}
	}
}

func WithHandleTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.handleTimeout = d
		}
	}
}

func NewConsumer(name string, q Queue, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		queue:         q,
		handler:       handler,
		logger:        logger,
		name:          name,
		maxMessages:   10,
		waitTime:      20 * time.Second,
		handleTimeout: 3 * time.Minute,
		errorBackoff:  5 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run long-polls until ctx is canceled. Each batch is handled with one
// goroutine per message and settled per message: a failing message never
// blocks or un-settles its batchmates.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", "consumer", c.name, "queue_url", c.queue.URL())
	defer c.logger.Info("consumer stopped", "consumer", c.name)

	for {
		if ctx.Err() != nil {
			return nil
		}

		messages, err := c.queue.Receive(ctx, c.maxMessages, c.waitTime)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("receive failed, backing off", "consumer", c.name, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.errorBackoff):
			}
			continue
		}
		if len(messages) == 0 {
			continue
		}

		var wg sync.WaitGroup
		for _, msg := range messages {
			wg.Add(1)
			go func(m Message) {
				defer wg.Done()
				c.handleOne(ctx, m)
			}(msg)
		}
		wg.Wait()
	}
}

func (c *Consumer) handleOne(ctx context.Context, msg Message) {
	hctx, cancel := context.WithTimeout(common.WithMessageID(ctx, msg.ID), c.handleTimeout)
	defer cancel()

	err := c.handler(hctx, msg)
	if err == nil {
		if delErr := c.queue.Delete(ctx, msg.ReceiptHandle); delErr != nil {
			// The broker will hand the message out again; the handler is
			// expected to be idempotent, so this only costs a redundant run.
			c.logger.Error("settle failed after successful handle",
				"consumer", c.name, "message_id", msg.ID, "error", delErr)
		}
		return
	}

	if common.IsRetryable(err) {
		c.logger.Error("handle failed, leaving message for redelivery",
			"consumer", c.name, "message_id", msg.ID, "receive_count", msg.ReceiveCount, "error", err)
	} else {
		c.logger.Warn("handle rejected message, leaving it to dead-letter",
			"consumer", c.name, "message_id", msg.ID, "receive_count", msg.ReceiveCount, "error", err)
	}
}
