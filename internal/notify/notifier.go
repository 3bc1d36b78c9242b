// Package notify dispatches customer/admin notifications decoupled from the
// request path. Dispatch is fire-and-forget: a full queue or a failing sink
// is logged and dropped, never surfaced to the caller, and never rolls back
// the operation that triggered it.
package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Notification event names.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventLowStock           = "inventory.low_stock"
)

// Notifier accepts an event for asynchronous delivery.
type Notifier interface {
	Notify(event string, payload any)
}

// Sink delivers a single notification. Implementations may fail; failures
// are logged and discarded by the dispatcher.
type Sink interface {
	Deliver(event string, payload any) error
}

type message struct {
	event   string
	payload any
}

// Dispatcher is a bounded-queue Notifier draining into a Sink from a single
// worker goroutine. When the queue is full the notification is dropped with
// a warning rather than blocking the caller.
type Dispatcher struct {
	queue  chan message
	sink   Sink
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher starts a dispatcher with the given queue capacity.
func NewDispatcher(sink Sink, capacity int, logger *zap.Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = 64
	}

	d := &Dispatcher{
		queue:  make(chan message, capacity),
		sink:   sink,
		logger: logger,
		done:   make(chan struct{}),
	}

	go d.run()

	return d
}

// Notify enqueues an event without blocking.
func (d *Dispatcher) Notify(event string, payload any) {
	select {
	case d.queue <- message{event: event, payload: payload}:
	default:
		d.logger.Warn("Notification queue full, dropping event",
			zap.String("event", event),
		)
	}
}

// Close stops the worker after draining what is already queued.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
		<-d.done
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for msg := range d.queue {
		if err := d.sink.Deliver(msg.event, msg.payload); err != nil {
			d.logger.Error("Notification delivery failed",
				zap.String("event", msg.event),
				zap.Error(err),
			)
		}
	}
}

// LogSink is the default delivery backend: it records the event in the
// application log. Real delivery (email templates in the shop's tone) hangs
// off the same interface.
type LogSink struct {
	Logger *zap.Logger
}

// Deliver implements Sink
func (s *LogSink) Deliver(event string, payload any) error {
	s.Logger.Info("Notification",
		zap.String("event", event),
		zap.Any("payload", payload),
	)
	return nil
}
