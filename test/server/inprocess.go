package server

import (
	"context"
	"fmt"

	"github.com/Kevin27954/convergence-sim-test/cmd/node"
	"github.com/Kevin27954/convergence-sim-test/config"
	"github.com/Kevin27954/convergence-sim-test/db"
	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/Kevin27954/convergence-sim-test/pkg/network"
	"go.uber.org/zap"
)

// InProcess runs every replica as a goroutine over an in-memory hub. A replica
// that returns an error, or panics on the goroutine running Launch, leaves no
// result behind, as a crashed process would. A panic in one of its background
// goroutines (hub inbox, retransmit loop) still takes the whole driver down.
type InProcess struct {
	cfg   config.Config
	store db.Store
	hub   *network.Hub
	peers map[string]string
	log   *zap.Logger
}

func InitInProcess(cfg config.Config, store db.Store, nodes []p.NodeSpec, log *zap.Logger) *InProcess {
	peers := make(map[string]string, len(nodes))
	for _, n := range nodes {
		peers[n.Id] = ""
	}

	return &InProcess{
		cfg:   cfg,
		store: store,
		hub:   network.NewHub(log),
		peers: peers,
		log:   log.Named("inprocess"),
	}
}

func (l *InProcess) Launch(ctx context.Context, spec p.NodeSpec, iterations int) (err error) {
	log := l.log.With(zap.String("node", spec.Id))

	defer func() {
		if r := recover(); r != nil {
			log.Error("replica crashed", zap.Any("panic", r))
			err = nil
		}
	}()

	if _, ok := l.peers[spec.Id]; !ok {
		return fmt.Errorf("%w %s: not part of this run", ErrLaunch, spec.Id)
	}

	workload, werr := node.LoadWorkload(ctx, l.store, spec.Id)
	if werr != nil {
		log.Error("replica crashed", zap.Error(werr))
		return nil
	}

	cfg := node.Config{
		Id:                 spec.Id,
		IsFailing:          spec.IsFailing,
		Iterations:         iterations,
		Workload:           workload,
		Peers:              l.peers,
		ItemDelay:          l.cfg.ItemDelay,
		SettleDelay:        l.cfg.SettleDelay,
		RetransmitInterval: l.cfg.RetransmitInterval,
		FailureWindow:      l.cfg.FailureWindow,
	}

	if xerr := node.Execute(ctx, cfg, l.hub.Join(spec.Id), l.store, l.log); xerr != nil {
		log.Error("replica crashed", zap.Error(xerr))
	}

	return nil
}
