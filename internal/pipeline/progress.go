package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives progress of a multi-card run.
type ProgressCallback interface {
	OnStart(total int)
	OnProgress(current, total int)
	OnComplete()
	// OnError is called for cards that could not be loaded.
	OnError(current int, err error)
}

// NoOpProgressCallback ignores all progress.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)         {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()         {}
func (NoOpProgressCallback) OnError(int, error)  {}

// ConsoleProgressCallback draws a progress bar, typically on stderr.
type ConsoleProgressCallback struct {
	mu             sync.Mutex
	w              io.Writer
	prefix         string
	width          int
	updateInterval time.Duration
	started        time.Time
	lastDraw       time.Time
	errors         int
}

// NewConsoleProgressCallback creates a console progress bar writing to w
// (stderr when nil).
func NewConsoleProgressCallback(w io.Writer, prefix string) *ConsoleProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressCallback{
		w:              w,
		prefix:         prefix,
		width:          40,
		updateInterval: 100 * time.Millisecond,
	}
}

// WithWidth sets the bar width in cells.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	if width > 0 {
		c.width = width
	}
	return c
}

// WithUpdateInterval sets the minimum time between redraws.
func (c *ConsoleProgressCallback) WithUpdateInterval(d time.Duration) *ConsoleProgressCallback {
	c.updateInterval = d
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = time.Now()
	c.lastDraw = time.Time{}
	c.errors = 0
	_, _ = fmt.Fprintf(c.w, "%s0/%d cards\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if current < total && now.Sub(c.lastDraw) < c.updateInterval {
		return
	}
	c.lastDraw = now
	c.draw(current, total, now)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Since(c.started).Round(time.Millisecond)
	if c.errors > 0 {
		_, _ = fmt.Fprintf(c.w, "\n%sDone in %v, %d unreadable\n", c.prefix, elapsed, c.errors)
		return
	}
	_, _ = fmt.Fprintf(c.w, "\n%sDone in %v\n", c.prefix, elapsed)
}

func (c *ConsoleProgressCallback) OnError(current int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
	_, _ = fmt.Fprintf(c.w, "\n%scard %d: %v\n", c.prefix, current, err)
}

func (c *ConsoleProgressCallback) draw(current, total int, now time.Time) {
	if total <= 0 {
		return
	}
	filled := c.width * current / total
	if filled > c.width {
		filled = c.width
	}
	line := fmt.Sprintf("\r%s[%s%s] %d/%d", c.prefix,
		strings.Repeat("#", filled), strings.Repeat(".", c.width-filled), current, total)
	if elapsed := now.Sub(c.started); elapsed > 0 && current > 0 && current < total {
		eta := time.Duration(float64(elapsed) * float64(total-current) / float64(current))
		line += fmt.Sprintf(" ETA %v", eta.Round(time.Second))
	}
	_, _ = fmt.Fprint(c.w, line)
}

// LogProgressCallback reports progress through slog every interval cards.
type LogProgressCallback struct {
	mu       sync.Mutex
	logger   *slog.Logger
	level    slog.Level
	interval int
	last     int
	started  time.Time
}

// NewLogProgressCallback creates a slog progress reporter.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, interval: 10}
}

// WithInterval logs every n cards.
func (l *LogProgressCallback) WithInterval(n int) *LogProgressCallback {
	if n > 0 {
		l.interval = n
	}
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = time.Now()
	l.last = 0
	l.logger.Log(context.Background(), l.level, "Batch started", "total", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current-l.last < l.interval && current != total {
		return
	}
	l.last = current
	l.logger.Log(context.Background(), l.level, "Batch progress",
		"current", current,
		"total", total,
		"duration_ms", time.Since(l.started).Milliseconds())
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, "Batch completed",
		"duration_ms", time.Since(l.started).Milliseconds())
}

func (l *LogProgressCallback) OnError(current int, err error) {
	l.logger.Error("Card could not be loaded", "current", current, "error", err)
}

// MultiProgressCallback fans progress out to several callbacks.
type MultiProgressCallback []ProgressCallback

func (m MultiProgressCallback) OnStart(total int) {
	for _, cb := range m {
		cb.OnStart(total)
	}
}

func (m MultiProgressCallback) OnProgress(current, total int) {
	for _, cb := range m {
		cb.OnProgress(current, total)
	}
}

func (m MultiProgressCallback) OnComplete() {
	for _, cb := range m {
		cb.OnComplete()
	}
}

func (m MultiProgressCallback) OnError(current int, err error) {
	for _, cb := range m {
		cb.OnError(current, err)
	}
}
