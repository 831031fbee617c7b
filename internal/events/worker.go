package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// ErrBufferFull is returned when the worker's inbox cannot accept another
// batch. Callers treat it as a delivery failure for that batch only; the
// invocation that produced the events has already committed.
var ErrBufferFull = errors.New("event buffer full")

// Worker decouples invocation latency from broker latency: Publish enqueues,
// Run drains to the wrapped publisher. On shutdown the worker drains whatever
// is still buffered before returning.
type Worker struct {
	sink   Publisher
	inbox  chan []Event
	logger *slog.Logger
}

type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(sink Publisher, buffer int, opts ...WorkerOption) *Worker {
	w := &Worker{
		sink:   sink,
		inbox:  make(chan []Event, buffer),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Publish enqueues a batch without blocking the invocation path.
func (w *Worker) Publish(_ context.Context, batch []Event) error {
	if len(batch) == 0 {
		return nil
	}
	select {
	case w.inbox <- batch:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run drains the inbox until ctx is cancelled, then flushes what remains.
// Sink failures are logged and skipped; the stream is best-effort delivery of
// already-committed facts.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case batch := <-w.inbox:
			w.deliver(ctx, batch)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, batch []Event) {
	if err := w.sink.Publish(ctx, batch); err != nil {
		w.logger.Warn("event delivery failed",
			slog.Int("events", len(batch)),
			slog.String("error", err.Error()))
	}
}

func (w *Worker) drain() {
	for {
		select {
		case batch := <-w.inbox:
			w.deliver(context.Background(), batch)
		default:
			return
		}
	}
}
