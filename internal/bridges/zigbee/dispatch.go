package zigbee

import (
	"context"
	"runtime/debug"
	"sync"
	"time"
)

// Dispatch defaults.
const (
	defaultQueueSize = 256

	// dequeueWait bounds how long the worker blocks on an empty queue
	// before re-checking for shutdown.
	dequeueWait = 250 * time.Millisecond
)

// Dispatcher owns the single worker goroutine for one coordinator.
// Messages are processed strictly in arrival order, one at a time; a
// panic inside a handler is recovered and logged against the message,
// never terminal. On stop the in-flight message is finished and the
// remaining queue drained before the worker exits.
type Dispatcher struct {
	queue   chan Message
	handler func(context.Context, Message)
	log     Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity.
// A capacity of 0 uses the default.
func NewDispatcher(queueSize int, handler func(context.Context, Message), log Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Dispatcher{
		queue:   make(chan Message, queueSize),
		handler: handler,
		log:     log,
		stopped: make(chan struct{}),
	}
}

// Start launches the worker goroutine. The worker runs until Stop is
// called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Stop signals the worker and waits for it to drain the queue and
// exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopped)
	})
	d.wg.Wait()
}

// Enqueue adds a message to the queue. Returns ErrQueueFull without
// blocking when the queue has no room, so a slow consumer can never
// stall the MQTT client's network loop.
func (d *Dispatcher) Enqueue(msg Message) error {
	select {
	case d.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueDepth returns the number of messages waiting.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	timer := time.NewTimer(dequeueWait)
	defer timer.Stop()

	for {
		// Shutdown is checked between messages, never mid-dispatch.
		select {
		case <-d.stopped:
			d.drain(ctx)
			return
		case <-ctx.Done():
			return
		default:
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(dequeueWait)

		select {
		case msg := <-d.queue:
			d.dispatch(ctx, msg)
		case <-timer.C:
		case <-d.stopped:
			d.drain(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain processes whatever is already queued at shutdown. New
// enqueues racing the drain may still be dropped.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case msg := <-d.queue:
			d.dispatch(ctx, msg)
		default:
			return
		}
	}
}

// dispatch runs the handler for one message, containing panics.
func (d *Dispatcher) dispatch(ctx context.Context, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic while handling message",
				"topic", msg.Topic, "seq", msg.Seq,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	d.handler(ctx, msg)
}
