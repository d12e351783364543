package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/deed-approval/internal/domain/event"
)

// Dispatcher delivers form events to subscribed handlers in the background.
// Events of one form are delivered in the order they were dispatched; events
// of different forms are delivered concurrently.
type Dispatcher interface {
	// Subscribe registers a named handler for an event type
	Subscribe(eventType event.Type, name string, handler Handler)

	// DispatchAsync queues the event and returns immediately.
	// Handlers outlive the caller's context: cancellation is detached
	// and each handler is bounded by the handler timeout instead.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns registered handlers for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close rejects new events and waits for queued ones to be delivered
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// eventDispatcher is the concrete implementation of Dispatcher
type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger

	// queueMu guards tails and closed, and orders wg.Add before Close's Wait
	queueMu sync.Mutex
	tails   map[string]chan struct{}
	closed  bool

	wg             sync.WaitGroup
	handlerTimeout time.Duration
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithHandlerTimeout bounds each handler run
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) {
		if timeout > 0 {
			d.handlerTimeout = timeout
		}
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers:       make(map[event.Type][]HandlerInfo),
		tails:          make(map[string]chan struct{}),
		handlerTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Subscribe registers a handler under a name used in logs
func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})

	d.info("Handler registered", "event_type", eventType, "handler_name", name)
}

// DispatchAsync queues evt behind any earlier event of the same form
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.mu.RLock()
	handlers := d.handlers[evt.Type]
	d.mu.RUnlock()

	done := make(chan struct{})
	d.queueMu.Lock()
	if d.closed {
		d.queueMu.Unlock()
		d.error("Cannot dispatch event, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"form_id", evt.FormID,
		)
		return
	}
	if len(handlers) == 0 {
		d.queueMu.Unlock()
		return
	}
	prev := d.tails[evt.FormID]
	d.tails[evt.FormID] = done
	d.wg.Add(1)
	d.queueMu.Unlock()

	d.info("Dispatching event",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"form_id", evt.FormID,
		"handler_count", len(handlers),
	)

	detached := context.WithoutCancel(ctx)

	go func() {
		defer d.wg.Done()
		defer d.release(evt.FormID, done)

		if prev != nil {
			<-prev
		}
		for _, h := range handlers {
			d.run(detached, evt, h)
		}
	}()
}

// release marks the form's event delivered and forgets the form when nothing is queued behind it
func (d *eventDispatcher) release(formID string, done chan struct{}) {
	close(done)

	d.queueMu.Lock()
	if d.tails[formID] == done {
		delete(d.tails, formID)
	}
	d.queueMu.Unlock()
}

func (d *eventDispatcher) run(ctx context.Context, evt *event.Event, h HandlerInfo) {
	hctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	if err := d.safeExecute(hctx, evt, h); err != nil {
		d.error("Handler error",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"form_id", evt.FormID,
			"handler_name", h.Name,
			"error", err,
		)
	}
}

// ListHandlers returns registered handlers for an event type
func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[eventType]
	result := make([]HandlerInfo, len(handlers))
	for i, h := range handlers {
		// the function itself stays private
		result[i] = HandlerInfo{Name: h.Name, EventType: h.EventType, Description: h.Description}
	}
	return result
}

// Close shuts down the dispatcher and waits for queued events
func (d *eventDispatcher) Close() error {
	d.queueMu.Lock()
	if d.closed {
		d.queueMu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.queueMu.Unlock()

	d.info("Closing dispatcher, waiting for queued events")
	d.wg.Wait()
	d.info("Dispatcher closed")

	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return info.Handler(ctx, evt)
}

func (d *eventDispatcher) info(msg string, kv ...any) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) error(msg string, kv ...any) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
