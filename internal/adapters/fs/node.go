package fs

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/spf13/afero"
	"go.trai.ch/bake/internal/core/ports"
)

const (
	// FsNodeID is the unique identifier for the filesystem Graft node.
	FsNodeID graft.ID = "adapter.fs"
	// SnapshotterNodeID is the unique identifier for the snapshotter Graft node.
	SnapshotterNodeID graft.ID = "adapter.fs.snapshotter"
)

func init() {
	graft.Register(graft.Node[afero.Fs]{
		ID:        FsNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (afero.Fs, error) {
			return afero.NewOsFs(), nil
		},
	})

	graft.Register(graft.Node[ports.Snapshotter]{
		ID:        SnapshotterNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{FsNodeID},
		Run: func(ctx context.Context) (ports.Snapshotter, error) {
			afs, err := graft.Dep[afero.Fs](ctx)
			if err != nil {
				return nil, err
			}
			return NewSnapshotter(afs), nil
		},
	})
}
