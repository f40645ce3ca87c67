package telemetry_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/adapters/telemetry"
)

type sink struct {
	mu      sync.Mutex
	lines   []string
	batches int
	flushed chan struct{}
}

func newSink() *sink {
	return &sink{flushed: make(chan struct{}, 1)}
}

func (s *sink) collect(lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, lines...)
	s.batches++
	select {
	case s.flushed <- struct{}{}:
	default:
	}
}

func (s *sink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *sink) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

func TestLineBatcher_FlushOnLineCount(t *testing.T) {
	s := newSink()
	b := telemetry.NewLineBatcher(2, time.Hour, s.collect)
	defer func() { _ = b.Close() }()

	_, err := b.Write([]byte("one\n"))
	require.NoError(t, err)
	assert.Empty(t, s.Lines())

	_, err = b.Write([]byte("two\nthr"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, s.Lines())
	assert.Equal(t, 1, s.Batches())
}

func TestLineBatcher_JoinsLinesAcrossWrites(t *testing.T) {
	s := newSink()
	b := telemetry.NewLineBatcher(10, time.Hour, s.collect)

	for _, chunk := range []string{"coll", "ecting six\r\n", "\n", "done"} {
		_, err := b.Write([]byte(chunk))
		require.NoError(t, err)
	}
	require.NoError(t, b.Close())

	assert.Equal(t, []string{"collecting six", "", "done"}, s.Lines())
	assert.Equal(t, 1, s.Batches())
}

func TestLineBatcher_FlushOnInterval(t *testing.T) {
	s := newSink()
	b := telemetry.NewLineBatcher(100, 20*time.Millisecond, s.collect)
	defer func() { _ = b.Close() }()

	_, err := b.Write([]byte("Password: "))
	require.NoError(t, err)

	select {
	case <-s.flushed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flush")
	}
	assert.Equal(t, []string{"Password: "}, s.Lines())
}

func TestLineBatcher_SplitsLongLines(t *testing.T) {
	s := newSink()
	b := telemetry.NewLineBatcher(100, time.Hour, s.collect)

	long := strings.Repeat("x", telemetry.MaxLineBytes+10)
	_, err := b.Write([]byte(long + "\n"))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], telemetry.MaxLineBytes)
	assert.Equal(t, strings.Repeat("x", 10), lines[1])
}

func TestLineBatcher_CloseFlushesAndRejectsWrites(t *testing.T) {
	s := newSink()
	b := telemetry.NewLineBatcher(100, time.Hour, s.collect)

	_, err := b.Write([]byte("pending\n"))
	require.NoError(t, err)
	b.Flush()
	assert.Equal(t, []string{"pending"}, s.Lines())

	_, err = b.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, []string{"pending", "tail"}, s.Lines())

	_, err = b.Write([]byte("late\n"))
	require.Error(t, err)
}

func TestLineBatcher_ConcurrentWriters(t *testing.T) {
	s := newSink()
	b := telemetry.NewLineBatcher(16, 5*time.Millisecond, s.collect)

	const writers, writes = 8, 200
	var wg sync.WaitGroup
	for range writers {
		wg.Go(func() {
			for i := range writes {
				_, _ = b.Write([]byte("x\n"))
				if i%25 == 0 {
					b.Flush()
				}
			}
		})
	}
	wg.Wait()
	require.NoError(t, b.Close())

	lines := s.Lines()
	assert.Len(t, lines, writers*writes)
	for _, line := range lines {
		assert.Equal(t, "x", line)
	}
}
