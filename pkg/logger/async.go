package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

type asyncEntry struct {
	handler slog.Handler
	ctx     context.Context
	record  slog.Record
}

type asyncQueue struct {
	entries chan asyncEntry
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// AsyncHandler hands records to a background goroutine through a bounded
// queue. Handle never blocks: when the queue is full the record is dropped
// and counted. Panics raised by the wrapped handler are recovered.
type AsyncHandler struct {
	inner slog.Handler
	q     *asyncQueue
}

// NewAsyncHandler starts the background writer for inner. Call Close to
// flush queued records and stop it.
func NewAsyncHandler(inner slog.Handler, buffer int) *AsyncHandler {
	if buffer <= 0 {
		buffer = 1024
	}
	q := &asyncQueue{
		entries: make(chan asyncEntry, buffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.run()
	return &AsyncHandler{inner: inner, q: q}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) (enabled bool) {
	defer func() {
		if recover() != nil {
			enabled = false
		}
	}()
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	select {
	case h.q.entries <- asyncEntry{handler: h.inner, ctx: ctx, record: r.Clone()}:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	inner, ok := safeDerive(func() slog.Handler { return h.inner.WithAttrs(attrs) })
	if !ok {
		return h
	}
	return &AsyncHandler{inner: inner, q: h.q}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	inner, ok := safeDerive(func() slog.Handler { return h.inner.WithGroup(name) })
	if !ok {
		return h
	}
	return &AsyncHandler{inner: inner, q: h.q}
}

// Dropped reports how many records were discarded because the queue was full.
func (h *AsyncHandler) Dropped() int64 {
	return h.q.dropped.Load()
}

// Close writes out whatever is still queued and stops the background
// goroutine. Records handled after Close are queued but never written.
func (h *AsyncHandler) Close() {
	h.q.once.Do(func() { close(h.q.stop) })
	<-h.q.done
}

func (q *asyncQueue) run() {
	defer close(q.done)
	for {
		select {
		case e := <-q.entries:
			write(e)
		case <-q.stop:
			for {
				select {
				case e := <-q.entries:
					write(e)
				default:
					return
				}
			}
		}
	}
}

func write(e asyncEntry) {
	defer func() { _ = recover() }()
	_ = e.handler.Handle(e.ctx, e.record)
}

func safeDerive(fn func() slog.Handler) (h slog.Handler, ok bool) {
	defer func() {
		if recover() != nil {
			h, ok = nil, false
		}
	}()
	return fn(), true
}
