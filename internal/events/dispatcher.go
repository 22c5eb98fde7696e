package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gyaneshwarpardhi/tokenstream/internal/metrics"
)

// Dispatcher delivers committed events to its sinks off the caller's path.
// Delivery is best effort: a full queue drops the event.
type Dispatcher struct {
	sinks []Sink
	pool  *workerPool[Event]
}

// NewDispatcher starts workers goroutines draining a queue of depth events.
func NewDispatcher(ctx context.Context, workers, depth int, sinks ...Sink) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 1
	}
	d := &Dispatcher{sinks: sinks}
	d.pool = newWorkerPool(ctx, workers, depth, d.deliver, func(ev Event, err error) {
		slog.Warn("event delivery failed", "event_id", ev.ID, "type", ev.Type, "stream_id", ev.StreamID, "err", err)
	})
	return d
}

// Notify enqueues ev. It never blocks.
func (d *Dispatcher) Notify(_ context.Context, ev Event) {
	if !d.pool.Submit(ev) {
		metrics.EventsDropped.Inc()
		if d.pool.Closed() {
			slog.Warn("dispatcher shut down, dropping event", "event_id", ev.ID, "type", ev.Type)
		} else {
			slog.Warn("event queue full, dropping event", "event_id", ev.ID, "type", ev.Type, "capacity", d.pool.QueueCap())
		}
	}
	metrics.QueueUtilization.Set(d.QueueUtilization())
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		metrics.EventsPublished.Inc()
	}
	return errors.Join(errs...)
}

// QueueUtilization returns queue used / capacity (0–1).
func (d *Dispatcher) QueueUtilization() float64 {
	if d.pool.QueueCap() == 0 {
		return 0
	}
	return float64(d.pool.QueueLen()) / float64(d.pool.QueueCap())
}

// Shutdown delivers what is queued and stops the workers. Events notified
// afterwards are dropped.
func (d *Dispatcher) Shutdown() {
	d.pool.Drain()
}
