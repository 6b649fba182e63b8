package eventqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("eventqueue")

// Handler processes the events of one or more types.
type Handler interface {
	// HandleEvent processes a simple event.
	HandleEvent(ctx context.Context, typ uint8, data uint32) error

	// HandleExtendedEvent processes an extended event. The payload is read
	// from r; whatever is left unread is discarded when the handler returns.
	// r must not be retained.
	HandleExtendedEvent(ctx context.Context, typ uint8, r *Reader) error
}

// HandlerFuncs adapts functions to the Handler interface. A nil function
// ignores its kind of event.
type HandlerFuncs struct {
	Event    func(ctx context.Context, typ uint8, data uint32) error
	Extended func(ctx context.Context, typ uint8, r *Reader) error
}

// HandleEvent implements Handler.
func (h HandlerFuncs) HandleEvent(ctx context.Context, typ uint8, data uint32) error {
	if h.Event == nil {
		return nil
	}
	return h.Event(ctx, typ, data)
}

// HandleExtendedEvent implements Handler.
func (h HandlerFuncs) HandleExtendedEvent(ctx context.Context, typ uint8, r *Reader) error {
	if h.Extended == nil {
		return nil
	}
	return h.Extended(ctx, typ, r)
}

// Dispatcher is the consumer side of a Queue: it waits for events and routes
// each one to the handler registered for its type.
//
// Handlers may be registered from any goroutine. DispatchOne and Run must be
// called from a single goroutine, which becomes the queue's consumer.
type Dispatcher struct {
	q       *Queue
	logger  *slog.Logger
	metrics MetricsRecorder

	mu       sync.RWMutex
	handlers [MaxType + 1]Handler
	fallback Handler
}

// NewDispatcher creates a dispatcher consuming q. It logs and records
// metrics through the queue's logger and recorder.
func NewDispatcher(q *Queue) *Dispatcher {
	return &Dispatcher{
		q:       q,
		logger:  q.logger.With(slog.String("component", "dispatcher")),
		metrics: q.metrics,
	}
}

// Register routes events of type typ to h.
func (d *Dispatcher) Register(typ uint8, h Handler) error {
	if typ > MaxType || h == nil {
		return fmt.Errorf("%w: register type %d", ErrInvalidArguments, typ)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers[typ] != nil {
		return fmt.Errorf("%w: %d", ErrTypeRegistered, typ)
	}
	d.handlers[typ] = h
	return nil
}

// RegisterNext registers h under the lowest unused type and returns it.
func (d *Dispatcher) RegisterNext(h Handler) (uint8, error) {
	if h == nil {
		return 0, fmt.Errorf("%w: nil handler", ErrInvalidArguments)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for typ := range d.handlers {
		if d.handlers[typ] == nil {
			d.handlers[typ] = h
			return uint8(typ), nil
		}
	}
	return 0, ErrNoFreeType
}

// Unregister removes the handler of typ.
func (d *Dispatcher) Unregister(typ uint8) {
	if typ > MaxType {
		return
	}
	d.mu.Lock()
	d.handlers[typ] = nil
	d.mu.Unlock()
}

// SetDefault sets the handler for types without a registered handler.
func (d *Dispatcher) SetDefault(h Handler) {
	d.mu.Lock()
	d.fallback = h
	d.mu.Unlock()
}

func (d *Dispatcher) handler(typ uint8) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if h := d.handlers[typ]; h != nil {
		return h
	}
	return d.fallback
}

// Run dispatches events until ctx is done. Handler errors are logged and
// do not stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if err := d.DispatchOne(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// DispatchOne waits for the next event and hands it to its handler.
// For an extended event the reader is started before the handler runs and
// ended after it returns, so unread payload never leaks into the next event.
func (d *Dispatcher) DispatchOne(ctx context.Context) error {
	ev, err := d.q.Wait(ctx)
	if err != nil {
		return err
	}
	return d.Dispatch(ctx, ev)
}

// Dispatch hands an event word already received from the queue to its
// handler. Use it with Queue.Poll in an external scheduling loop.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	typ := ev.Type()
	h := d.handler(typ)

	ctx, span := tracer.Start(ctx, "eventqueue.dispatch",
		trace.WithAttributes(
			attribute.Int("event.type", int(typ)),
			attribute.Bool("event.extended", ev.Extended()),
			attribute.Int("event.data", int(ev.Data())),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	start := time.Now()

	var err error
	if ev.Extended() {
		err = d.dispatchExtended(ctx, h, typ, ev.Length())
	} else if h != nil {
		err = call(func() error { return h.HandleEvent(ctx, typ, ev.Data()) })
	} else {
		d.logger.Warn("no handler for event", slog.Int("type", int(typ)))
	}

	d.metrics.RecordDispatch(ctx, typ, ev.Extended(), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("event handler failed",
			slog.Int("type", int(typ)),
			slog.Bool("extended", ev.Extended()),
			slog.String("error", err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	return err
}

func (d *Dispatcher) dispatchExtended(ctx context.Context, h Handler, typ uint8, length int) error {
	r := d.q.reader
	if err := r.Start(length); err != nil {
		return err
	}

	var err error
	if h != nil {
		err = call(func() error { return h.HandleExtendedEvent(ctx, typ, r) })
	} else {
		d.logger.Warn("no handler for extended event, discarding payload",
			slog.Int("type", int(typ)),
			slog.Int("length", length))
	}

	left := r.Available()
	endErr := r.End()
	if left != 0 || endErr != nil {
		if left < 0 {
			left = 0
		}
		d.metrics.RecordDrain(ctx, typ, left, endErr)
		trace.SpanFromContext(ctx).AddEvent("payload drained",
			trace.WithAttributes(attribute.Int("bytes", left)))
	}
	return errors.Join(err, endErr)
}

// call runs a handler, turning a panic into an error so the reader is
// always ended.
func call(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return fn()
}
