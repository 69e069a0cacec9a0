// Package events is an asynchronous bus for workflow run lifecycle events.
package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Event types published by the workflow engine.
const (
	TypeRunStateChanged = "run_state_changed"
	TypeStepRecorded    = "step_recorded"
)

var (
	// ErrBusClosed indicates the bus has been closed.
	ErrBusClosed = errors.New("event bus is closed")
	// ErrChannelFull indicates the event channel cannot accept more events.
	ErrChannelFull = errors.New("event channel is full")
	// ErrNoHandler indicates no handlers are registered for the event type.
	ErrNoHandler = errors.New("no handlers registered for event type")
)

// Event describes something that happened to a workflow run.
type Event struct {
	Type  string                 // TypeRunStateChanged or TypeStepRecorded
	RunID uint64                 // workflow run ID
	Data  map[string]interface{} // state, step index, result status, ...
}

// Handler handles published events.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus manages event subscriptions and asynchronous delivery.
type Bus struct {
	handlers     map[string][]Handler
	mu           sync.RWMutex
	eventCh      chan Event
	errHandler   func(event Event, err error)
	errHandlerMu sync.RWMutex
	wg           sync.WaitGroup
	closed       bool
	closeMu      sync.RWMutex
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the event channel buffer size.
func WithBufferSize(size int) Option {
	return func(b *Bus) {
		b.eventCh = make(chan Event, size)
	}
}

// WithErrorHandler sets a custom handler-error callback.
func WithErrorHandler(handler func(event Event, err error)) Option {
	return func(b *Bus) {
		b.errHandlerMu.Lock()
		defer b.errHandlerMu.Unlock()
		b.errHandler = handler
	}
}

// NewBus creates a Bus with async processing. The default buffer size is
// 100; handler errors go to the default error handler unless overridden.
func NewBus(options ...Option) *Bus {
	b := &Bus{
		handlers:   make(map[string][]Handler),
		eventCh:    make(chan Event, 100),
		errHandler: defaultErrorHandler,
	}

	for _, option := range options {
		option(b)
	}

	b.wg.Add(1)
	go b.processEvents()

	return b
}

// Subscribe subscribes a handler to an event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeFunc subscribes a function as a handler to an event type.
func (b *Bus) SubscribeFunc(eventType string, handlerFunc func(ctx context.Context, event Event) error) {
	b.Subscribe(eventType, HandlerFunc(handlerFunc))
}

// HasSubscribers checks whether any handler is registered for an event type.
func (b *Bus) HasSubscribers(eventType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers, exists := b.handlers[eventType]
	return exists && len(handlers) > 0
}

// Publish queues an event for asynchronous delivery. Returns an error if the
// context is cancelled, the bus is closed, no handler is subscribed, or the
// channel is full.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b.closeMu.RLock()
	if b.closed {
		b.closeMu.RUnlock()
		return ErrBusClosed
	}
	b.closeMu.RUnlock()

	b.mu.RLock()
	_, hasHandlers := b.handlers[event.Type]
	b.mu.RUnlock()

	if !hasHandlers {
		return ErrNoHandler
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.eventCh <- event:
		return nil
	default:
		return ErrChannelFull
	}
}

// PublishSync delivers an event synchronously and returns all handler
// errors. Delivery is bounded by a 5-second timeout unless the context is
// stricter.
func (b *Bus) PublishSync(ctx context.Context, event Event) []error {
	b.closeMu.RLock()
	if b.closed {
		b.closeMu.RUnlock()
		return []error{ErrBusClosed}
	}
	b.closeMu.RUnlock()

	b.mu.RLock()
	handlers, ok := b.handlers[event.Type]
	b.mu.RUnlock()

	if !ok || len(handlers) == 0 {
		return []error{ErrNoHandler}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return b.executeHandlers(timeoutCtx, handlers, event)
}

// Stop stops the processing goroutine and waits for completion. Unprocessed
// events are discarded.
func (b *Bus) Stop() {
	b.closeMu.Lock()
	if !b.closed {
		b.closed = true
		for len(b.eventCh) > 0 {
			<-b.eventCh
		}
		close(b.eventCh)
	}
	b.closeMu.Unlock()

	b.wg.Wait()
}

func (b *Bus) processEvents() {
	defer b.wg.Done()

	for event := range b.eventCh {
		b.mu.RLock()
		handlers, ok := b.handlers[event.Type]
		b.mu.RUnlock()

		if !ok || len(handlers) == 0 {
			continue
		}

		errs := b.executeHandlers(context.Background(), handlers, event)

		b.errHandlerMu.RLock()
		handler := b.errHandler
		b.errHandlerMu.RUnlock()

		for _, err := range errs {
			handler(event, err)
		}
	}
}

// executeHandlers runs all handlers concurrently and collects their errors.
func (b *Bus) executeHandlers(ctx context.Context, handlers []Handler, event Event) []error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			if err := h.Handle(ctx, event); err != nil {
				errCh <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	return errs
}

func defaultErrorHandler(event Event, err error) {
	fmt.Printf("Error handling event %s (run %d): %v\nStack: %s\n",
		event.Type, event.RunID, err, debug.Stack())
}
