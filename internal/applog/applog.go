// Package applog provides a log/slog logger backed by an in-memory ring
// buffer chained to a file handler, for a library and CLI rather than a
// desktop UI: cmd/exhashtool keeps the last N log entries to print on
// request (e.g. after a failed operation) instead of feeding a GUI log
// pane.
package applog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// RingHandler captures the last maxSize records in memory while chaining
// to an underlying handler (typically a file or stderr handler).
type RingHandler struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
	next    slog.Handler
}

// NewRingHandler wraps next, keeping at most maxSize entries in memory.
func NewRingHandler(maxSize int, next slog.Handler) *RingHandler {
	return &RingHandler{entries: make([]Entry, 0, maxSize), maxSize: maxSize, next: next}
}

func (h *RingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	if len(h.entries) >= h.maxSize {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, Entry{Time: r.Time, Level: r.Level, Message: r.Message})
	h.mu.Unlock()

	if h.next != nil {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next != nil {
		return h.next.Enabled(ctx, level)
	}
	return true
}

func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if h.next != nil {
		return &RingHandler{entries: h.entries, maxSize: h.maxSize, next: h.next.WithAttrs(attrs)}
	}
	return h
}

func (h *RingHandler) WithGroup(name string) slog.Handler {
	if h.next != nil {
		return &RingHandler{entries: h.entries, maxSize: h.maxSize, next: h.next.WithGroup(name)}
	}
	return h
}

// Recent returns a copy of the captured entries, oldest first.
func (h *RingHandler) Recent() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// New builds a *slog.Logger backed by a RingHandler of maxSize entries,
// chained to a text handler writing to w (os.Stderr for the CLI).
func New(w *os.File, maxSize int, level slog.Level) (*slog.Logger, *RingHandler) {
	fileHandler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	ring := NewRingHandler(maxSize, fileHandler)
	return slog.New(ring), ring
}

// DumpRecent writes the ring buffer's captured entries to w, most recent
// last, in a bracketed-tag style.
func DumpRecent(w *os.File, ring *RingHandler) {
	for _, e := range ring.Recent() {
		fmt.Fprintf(w, "[%s] %s %s\n", e.Level, e.Time.Format("15:04:05.000"), e.Message)
	}
}
