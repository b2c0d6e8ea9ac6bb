package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer shared with the background writer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type blockingHandler struct {
	release chan struct{}
}

func (h *blockingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *blockingHandler) Handle(context.Context, slog.Record) error {
	<-h.release
	return nil
}
func (h *blockingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *blockingHandler) WithGroup(string) slog.Handler      { return h }

type panicHandler struct{}

func (panicHandler) Enabled(context.Context, slog.Level) bool  { panic("enabled") }
func (panicHandler) Handle(context.Context, slog.Record) error { panic("handle") }
func (panicHandler) WithAttrs([]slog.Attr) slog.Handler        { panic("attrs") }
func (panicHandler) WithGroup(string) slog.Handler             { panic("group") }

func TestAsyncHandlerWritesOnClose(t *testing.T) {
	var out syncBuffer
	h := NewAsyncHandler(NewHandler(&out, "debug", "text"), 16)
	l := slog.New(h).With("component", "test")

	l.Info("first")
	l.Debug("second", "n", 2)
	h.Close()

	got := out.String()
	for _, want := range []string{"msg=first", "msg=second", "component=test", "n=2"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestAsyncHandlerNeverBlocks(t *testing.T) {
	inner := &blockingHandler{release: make(chan struct{})}
	h := NewAsyncHandler(inner, 2)
	l := slog.New(h)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			l.Info("record", "i", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logging blocked on a stalled handler")
	}
	if h.Dropped() == 0 {
		t.Error("expected dropped records while the handler was stalled")
	}
	close(inner.release)
	h.Close()
}

func TestAsyncHandlerRecoversPanics(t *testing.T) {
	h := NewAsyncHandler(panicHandler{}, 4)
	l := slog.New(h).With("k", "v").WithGroup("g")

	// Enabled panics and is reported as disabled, so nothing is queued.
	l.Error("boom")
	if err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "direct", 0)); err != nil {
		t.Fatalf("Handle returned %v", err)
	}
	h.Close()
}

func TestFromContext(t *testing.T) {
	var out syncBuffer
	base := slog.New(NewHandler(&out, "info", "text"))
	ctx := WithBatchID(context.Background(), "batch-1")

	FromContext(ctx, base).Info("hello")
	if !strings.Contains(out.String(), "batch_id=batch-1") {
		t.Errorf("expected batch_id attribute, got %s", out.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
