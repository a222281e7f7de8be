package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrConsumerAttached is returned by Start when another consumer is
// already draining the queue.
var ErrConsumerAttached = errors.New("event consumer already attached")

// Consumer receives each event serialized as JSON.
type Consumer func(ctx context.Context, msg string) error

// Bridge drains a Queue into a single Consumer.
type Bridge struct {
	queue    *Queue
	logger   *slog.Logger
	attached atomic.Bool

	PollTimeout time.Duration
	Idle        time.Duration
	Backoff     time.Duration
}

// NewBridge creates a Bridge over q.
func NewBridge(q *Queue, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		queue:       q,
		logger:      logger.With("component", "events"),
		PollTimeout: time.Second,
		Idle:        100 * time.Millisecond,
		Backoff:     time.Second,
	}
}

// Start polls the queue and hands each event to consumer until ctx is
// cancelled. Consumer errors are logged and followed by a back-off; they do
// not stop the loop.
func (b *Bridge) Start(ctx context.Context, consumer Consumer) error {
	if !b.attached.CompareAndSwap(false, true) {
		return ErrConsumerAttached
	}
	defer b.attached.Store(false)

	b.logger.Info("starting event polling")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.Idle
		if err := b.deliver(ctx, consumer); err != nil {
			b.logger.Debug("event loop error", "error", err)
			wait = b.Backoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, consumer Consumer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("consumer panic")
			b.logger.Error("event consumer panicked", "panic", r)
		}
	}()

	ev, ok := b.queue.Next(ctx, b.PollTimeout)
	if !ok {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return consumer(ctx, string(data))
}
