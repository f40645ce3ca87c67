package scheduler

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/bake/internal/adapters/logger" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/bake/internal/adapters/shell"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/manager"
)

// NodeID is the unique identifier for the scheduler Graft node.
const NodeID graft.ID = "engine.scheduler"

func init() {
	graft.Register(graft.Node[*Scheduler]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			manager.NodeID,
			shell.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Scheduler, error) {
			mgr, err := graft.Dep[*manager.Manager](ctx)
			if err != nil {
				return nil, err
			}

			executor, err := graft.Dep[ports.Executor](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return NewScheduler(mgr, executor, log), nil
		},
	})
}
