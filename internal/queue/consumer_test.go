package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/docpipe/internal/common"
)

type fakeQueue struct {
	mu       sync.Mutex
	batches  [][]Message
	deleted  []string
	receives int

	receiveErr error
	onDrained  func()
}

func (f *fakeQueue) URL() string { return "fake://queue" }

func (f *fakeQueue) Send(ctx context.Context, body string) error { return nil }

func (f *fakeQueue) Receive(ctx context.Context, maxMessages int32, wait time.Duration) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receives++
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	if len(f.batches) == 0 {
		if f.onDrained != nil {
			f.onDrained()
		}
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeQueue) Delete(ctx context.Context, receiptHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, receiptHandle)
	return nil
}

func (f *fakeQueue) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.deleted...)
	sort.Strings(out)
	return out
}

func TestConsumerSettlesOnlySuccessfulMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := &fakeQueue{
		batches: [][]Message{{
			{ID: "m1", Body: "ok", ReceiptHandle: "r1"},
			{ID: "m2", Body: "transient", ReceiptHandle: "r2"},
			{ID: "m3", Body: "malformed", ReceiptHandle: "r3"},
		}},
		onDrained: cancel,
	}

	handler := func(ctx context.Context, msg Message) error {
		switch msg.Body {
		case "transient":
			return fmt.Errorf("%w: engine unavailable", common.ErrQueue)
		case "malformed":
			return common.ValidationErrorf("bad payload")
		default:
			return nil
		}
	}

	c := NewConsumer("test", q, handler, slog.New(slog.DiscardHandler))
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := q.deletedHandles()
	if len(got) != 1 || got[0] != "r1" {
		t.Fatalf("deleted = %v, want only the successful message r1", got)
	}
}

func TestConsumerProcessesWholeBatchDespiteFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	handled := map[string]bool{}

	q := &fakeQueue{
		batches: [][]Message{{
			{ID: "m1", ReceiptHandle: "r1"},
			{ID: "m2", ReceiptHandle: "r2"},
			{ID: "m3", ReceiptHandle: "r3"},
			{ID: "m4", ReceiptHandle: "r4"},
		}},
		onDrained: cancel,
	}

	handler := func(ctx context.Context, msg Message) error {
		mu.Lock()
		handled[msg.ID] = true
		mu.Unlock()
		if msg.ID == "m1" {
			return errors.New("first message fails")
		}
		return nil
	}

	c := NewConsumer("test", q, handler, slog.New(slog.DiscardHandler))
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(handled) != 4 {
		t.Fatalf("handled %d messages, want every message in the batch", len(handled))
	}
	if got := q.deletedHandles(); len(got) != 3 {
		t.Fatalf("deleted = %v, want the three successful messages", got)
	}
}

func TestConsumerStopsDuringErrorBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	q := &fakeQueue{receiveErr: errors.New("broker down")}
	c := NewConsumer("test", q, func(ctx context.Context, msg Message) error { return nil },
		slog.New(slog.DiscardHandler))

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on cancel during backoff")
	}

	if q.receives == 0 {
		t.Fatal("consumer never polled the queue")
	}
}
