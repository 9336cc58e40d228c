package event

import (
	"log/slog"
	"sync"

	"github.com/loykin/steward/internal/metrics"
)

// Handler consumes events from the bus. Handle runs on the publisher's
// goroutine; implementations that need to call back into the engine must
// dispatch that work themselves (see LifecycleHandler).
type Handler interface {
	Name() string
	Handles(e Event) bool
	Handle(e Event) error
}

// Bus fans events out to handlers synchronously, in subscription order.
// A handler error or panic is logged and counted; it never stops the
// remaining handlers from seeing the event.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

func NewBus() *Bus {
	return &Bus{logger: slog.Default()}
}

// Subscribe appends h to the registry. Handlers see events in the order
// they subscribed.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers e to every subscribed handler whose Handles reports true.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.RUnlock()

	metrics.IncEventPublished(string(e.Type()))
	for _, h := range hs {
		if !h.Handles(e) {
			continue
		}
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncHandlerError(h.Name())
			b.logger.Error("event handler panicked",
				"handler", h.Name(), "event", string(e.Type()), "service", e.ServiceName(), "panic", r)
		}
	}()
	if err := h.Handle(e); err != nil {
		metrics.IncHandlerError(h.Name())
		b.logger.Error("event handler failed",
			"handler", h.Name(), "event", string(e.Type()), "service", e.ServiceName(), "error", err)
	}
}
