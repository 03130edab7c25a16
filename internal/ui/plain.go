package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Aman-CERP/unifind/internal/status"
)

// PlainRenderer outputs plain text progress for CI and pipes.
// A line is written when the phase changes or at most once per interval.
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	interval time.Duration
	phase    status.Phase
	last     time.Time
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, interval: 2 * time.Second}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if event.Phase == r.phase && now.Sub(r.last) < r.interval {
		return
	}
	r.phase = event.Phase
	r.last = now

	_, _ = fmt.Fprintf(r.out, "[%s] scanned %d, added %d", event.Phase, event.Scanned, event.Added)
	if event.CurrentPath != "" {
		_, _ = fmt.Fprintf(r.out, " - %s", event.CurrentPath)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stats.Err != nil {
		_, _ = fmt.Fprintf(r.out, "Crawl failed after %s: %v\n", formatDuration(stats.Duration), stats.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "Complete: %d scanned, %d added, %d excluded in %s",
		stats.Scanned, stats.Added, stats.Excluded, formatDuration(stats.Duration))
	if stats.Skipped > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d skipped)", stats.Skipped)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
