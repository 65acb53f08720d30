package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultEventBuffer is the queue size used when WithEventBuffer is not given.
const DefaultEventBuffer = 1024

var ErrDispatcherClosed = errors.New("event dispatcher is closed")

type pendingEvent struct {
	ctx context.Context
	key string
	ev  Event
}

// dispatcher hands events to the publisher from a single background worker,
// so a slow broker never holds up the operation that produced the event.
// Events are dropped, and counted, when the queue is full.
type dispatcher struct {
	publisher EventPublisher
	log       *zap.Logger
	queue     chan pendingEvent
	done      chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

func newDispatcher(publisher EventPublisher, size int, logger *zap.Logger) *dispatcher {
	if size <= 0 {
		size = DefaultEventBuffer
	}
	d := &dispatcher{
		publisher: publisher,
		log:       logger,
		queue:     make(chan pendingEvent, size),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for job := range d.queue {
		d.publish(job)
	}
}

func (d *dispatcher) publish(job pendingEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event publisher panic", zap.Any("panic", r), zap.String("type", job.ev.Type))
		}
	}()
	if err := d.publisher.Publish(job.ctx, job.key, job.ev); err != nil {
		d.log.Warn("failed to publish event",
			zap.String("group_id", job.ev.GroupID),
			zap.String("type", job.ev.Type),
			zap.Error(err),
		)
	}
}

// submit never blocks. The request context's values are kept but its
// cancellation is not, since the request usually ends before the send.
func (d *dispatcher) submit(ctx context.Context, key string, ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ev, ErrDispatcherClosed)
		return
	}
	select {
	case d.queue <- pendingEvent{ctx: context.WithoutCancel(ctx), key: key, ev: ev}:
	default:
		d.drop(ev, errors.New("event queue full"))
	}
}

func (d *dispatcher) drop(ev Event, reason error) {
	d.dropped.Add(1)
	d.log.Warn("dropping event",
		zap.String("group_id", ev.GroupID),
		zap.String("type", ev.Type),
		zap.Error(reason),
	)
}

// close stops accepting events and waits for the queue to drain or ctx to
// end, whichever comes first. It is safe to call more than once.
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
