package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/steward/internal/event"
)

const defaultTimeout = 5 * time.Second

// Handler journals every lifecycle event to the configured sinks. It runs
// inside Publish, so each write is bounded by the handler timeout; a failing
// sink is logged and reported without stopping delivery to the others.
type Handler struct {
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
}

func NewHandler(timeout time.Duration, sinks ...Sink) *Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{
		sinks:   sinks,
		timeout: timeout,
		logger:  slog.Default().With("component", "history"),
	}
}

func (h *Handler) Name() string { return "history" }

func (h *Handler) Handles(event.Event) bool { return true }

func (h *Handler) Handle(e event.Event) error {
	entry := Flatten(e, time.Now())
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	var firstErr error
	for _, s := range h.sinks {
		if err := s.Send(ctx, entry); err != nil {
			h.logger.Warn("history sink write failed",
				"event", entry.Event, "service", entry.Service, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close releases every sink that holds a connection.
func (h *Handler) Close() error {
	var firstErr error
	for _, s := range h.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
