package audit

import (
	"context"
	"log/slog"

	dErrors "veriflow/pkg/domain-errors"
)

// ChannelPublisher implements Publisher by handing events to a Worker over
// a channel, so flow transitions never wait on sink latency. Emit does not
// block: when the inbox is full the event is dropped with an error, which
// Log downgrades to a log line.
type ChannelPublisher struct {
	inbox chan<- Event
}

func NewChannelPublisher(inbox chan<- Event) *ChannelPublisher {
	return &ChannelPublisher{inbox: inbox}
}

func (p *ChannelPublisher) Emit(_ context.Context, event Event) error {
	select {
	case p.inbox <- event:
		return nil
	default:
		return dErrors.New(dErrors.CodeInternal, "audit inbox full, event dropped")
	}
}

// Worker drains audit events from the inbox into the real sink.
type Worker struct {
	publisher Publisher
	inbox     <-chan Event
	logger    *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger injects a structured logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(publisher Publisher, inbox <-chan Event, opts ...WorkerOption) *Worker {
	w := &Worker{
		publisher: publisher,
		inbox:     inbox,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run forwards events until the context is canceled, then drains whatever
// is already buffered and returns nil. Sink failures are logged and the
// event dropped: audit is best-effort.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case event := <-w.inbox:
			w.forward(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.forward(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) forward(ctx context.Context, event Event) {
	if err := w.publisher.Emit(ctx, event); err != nil {
		w.logger.Error("audit sink emit failed",
			"kind", string(event.Kind),
			"session_id", event.SessionID,
			"error", err,
		)
	}
}
