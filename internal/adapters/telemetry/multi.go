package telemetry

import (
	"context"
	"errors"
	"io"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
)

// Multi fans every vertex out to several telemetry backends.
type Multi struct {
	backends []ports.Telemetry
}

// NewMulti combines backends. Nil backends are skipped.
func NewMulti(backends ...ports.Telemetry) *Multi {
	m := &Multi{}
	for _, b := range backends {
		if b != nil {
			m.backends = append(m.backends, b)
		}
	}
	return m
}

// Record starts a vertex on every backend.
// The returned context carries the combined vertex.
func (m *Multi) Record(ctx context.Context, name string) (context.Context, ports.Vertex) {
	mv := &multiVertex{}
	for _, b := range m.backends {
		var v ports.Vertex
		ctx, v = b.Record(ctx, name)
		mv.vertices = append(mv.vertices, v)
	}

	stdout := make([]io.Writer, 0, len(mv.vertices))
	stderr := make([]io.Writer, 0, len(mv.vertices))
	for _, v := range mv.vertices {
		stdout = append(stdout, v.Stdout())
		stderr = append(stderr, v.Stderr())
	}
	mv.stdout = io.MultiWriter(stdout...)
	mv.stderr = io.MultiWriter(stderr...)

	return ports.ContextWithVertex(ctx, mv), mv
}

// Close closes every backend and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, b := range m.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type multiVertex struct {
	vertices []ports.Vertex
	stdout   io.Writer
	stderr   io.Writer
}

func (v *multiVertex) Stdout() io.Writer { return v.stdout }
func (v *multiVertex) Stderr() io.Writer { return v.stderr }

func (v *multiVertex) Log(level domain.LogLevel, msg string) {
	for _, inner := range v.vertices {
		inner.Log(level, msg)
	}
}

func (v *multiVertex) Complete(err error) {
	for _, inner := range v.vertices {
		inner.Complete(err)
	}
}

func (v *multiVertex) Cached() {
	for _, inner := range v.vertices {
		inner.Cached()
	}
}
