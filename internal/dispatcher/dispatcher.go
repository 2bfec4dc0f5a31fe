package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/webgame-three/fpsync/pkg/streaming"
)

// ErrUnknownKind is returned by Dispatch when no handler is registered for a message kind.
var ErrUnknownKind = errors.New("unknown message kind")

// Event is one decoded inbound message.
type Event struct {
	Envelope streaming.Envelope
	Received time.Time
}

// Kind returns the envelope type the event is routed by.
func (e Event) Kind() string {
	return e.Envelope.Type
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers by message kind.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   Logger

	processed metric.Int64Counter
	failed    metric.Int64Counter
	unknown   metric.Int64Counter
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}

	m := otel.Meter("github.com/webgame-three/fpsync/internal/dispatcher")

	var err error

	d.processed, err = m.Int64Counter(
		"dispatcher.messages.processed",
		metric.WithDescription("Total inbound messages handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.messages.failed",
		metric.WithDescription("Total inbound messages rejected by their handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.unknown, err = m.Int64Counter(
		"dispatcher.messages.unknown",
		metric.WithDescription("Total inbound messages with an unregistered kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unknown counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given kind, replacing any previous one.
func (d *Dispatcher) Register(kind string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(kind, handler)
	}

	d.mu.Lock()
	d.handlers[kind] = handler
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) error {
	kind := e.Kind()

	d.mu.RLock()
	h, ok := d.handlers[kind]
	d.mu.RUnlock()

	kindAttr := metric.WithAttributes(attribute.String("kind", kind))
	if !ok {
		d.unknown.Add(context.Background(), 1, kindAttr)
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if err := h(e); err != nil {
		d.failed.Add(context.Background(), 1, kindAttr)
		return err
	}
	d.processed.Add(context.Background(), 1, kindAttr)
	return nil
}

// HasHandler returns true if a handler is registered for the kind.
func (d *Dispatcher) HasHandler(kind string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[kind]
	return ok
}

func (d *Dispatcher) withLogging(kind string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling message", "kind", kind, "bytes", len(e.Envelope.Data))

		err := h(e)

		if err != nil {
			d.logger.Error("message failed", "kind", kind, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("message complete", "kind", kind, "duration", time.Since(start))
		}

		return err
	}
}
