// Package telemetry records the progress of cached build steps.
package telemetry

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultMaxLines is the number of buffered lines that triggers a flush when none is given.
	DefaultMaxLines = 64
	// DefaultInterval is how long output may wait before it is flushed when none is given.
	DefaultInterval = 50 * time.Millisecond
	// MaxLineBytes caps a single line; longer runs without a newline are split.
	MaxLineBytes = 4096
)

var errBatcherClosed = errors.New("line batcher is closed")

// LineBatcher splits step output into lines and hands them to a callback in batches.
// A batch is flushed once it holds maxLines lines or its oldest output has waited for
// the interval. A trailing line without a newline is only emitted by a timed flush,
// Flush or Close. It is safe for concurrent use.
type LineBatcher struct {
	maxLines int
	interval time.Duration
	emit     func([]string)

	mu      sync.Mutex
	lines   []string
	partial bytes.Buffer
	timer   *time.Timer
	closed  bool
}

// NewLineBatcher returns a LineBatcher calling emit with each batch of lines.
// Close must be called to emit the remaining output.
func NewLineBatcher(maxLines int, interval time.Duration, emit func([]string)) *LineBatcher {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &LineBatcher{maxLines: maxLines, interval: interval, emit: emit}
}

// Write buffers p, cutting it into lines at each newline.
func (b *LineBatcher) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errBatcherClosed
	}

	rest := p
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			b.appendLocked(rest)
			break
		}
		b.appendLocked(rest[:i])
		b.cutLocked()
		rest = rest[i+1:]
	}

	if len(b.lines) >= b.maxLines {
		b.flushLocked()
	}
	if (len(b.lines) > 0 || b.partial.Len() > 0) && b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.Flush)
	}
	return len(p), nil
}

// Flush emits every buffered line, including a trailing partial one.
func (b *LineBatcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.drainLocked()
}

// Close emits the remaining output and rejects further writes.
func (b *LineBatcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.drainLocked()
	b.closed = true
	return nil
}

// appendLocked adds p to the partial line, cutting it every MaxLineBytes.
func (b *LineBatcher) appendLocked(p []byte) {
	for {
		room := MaxLineBytes - b.partial.Len()
		if len(p) <= room {
			b.partial.Write(p)
			return
		}
		b.partial.Write(p[:room])
		b.cutLocked()
		p = p[room:]
	}
}

// cutLocked turns the partial buffer into a complete line.
func (b *LineBatcher) cutLocked() {
	line := bytes.TrimSuffix(b.partial.Bytes(), []byte{'\r'})
	b.lines = append(b.lines, string(line))
	b.partial.Reset()
}

func (b *LineBatcher) drainLocked() {
	if b.partial.Len() > 0 {
		b.cutLocked()
	}
	b.flushLocked()
}

func (b *LineBatcher) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.lines) == 0 {
		return
	}
	lines := b.lines
	b.lines = nil
	if b.emit != nil {
		b.emit(lines)
	}
}
