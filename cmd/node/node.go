package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Kevin27954/convergence-sim-test/config"
	"github.com/Kevin27954/convergence-sim-test/db"
	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/Kevin27954/convergence-sim-test/pkg/broadcast"
	"github.com/Kevin27954/convergence-sim-test/pkg/crdt"
	"github.com/Kevin27954/convergence-sim-test/pkg/network"
	"go.uber.org/zap"
)

// Config is everything one replica needs for its run.
type Config struct {
	Id         string
	IsFailing  bool
	Iterations int
	Workload   []any

	// Peers maps every node id of the run to its address. The replica's own
	// entry is ignored.
	Peers map[string]string

	ItemDelay          time.Duration
	SettleDelay        time.Duration
	RetransmitInterval time.Duration
	FailureWindow      config.FailureWindow
}

// Node runs one replica: it mutates its own set, optionally drops off the
// network for a window of rounds, then reports what it sees of the shared set.
type Node struct {
	cfg  Config
	net  network.Network
	gate *network.CrashingNetwork
	log  *zap.Logger
}

func Init(cfg Config, net network.Network, log *zap.Logger) *Node {
	log = log.With(zap.String("node", cfg.Id))

	return &Node{
		cfg:  cfg,
		net:  net,
		gate: network.NewCrashingNetwork(cfg.Id, net, log),
		log:  log,
	}
}

// Gate exposes the fault-injecting wrapper around the node's transport.
func (n *Node) Gate() *network.CrashingNetwork {
	return n.gate
}

// Item is the value added to the owner set for a workload value in a round.
func Item(value any, round int) string {
	return fmt.Sprintf("%v (%d)", value, round)
}

func (n *Node) Run(ctx context.Context) (p.OutcomeRecord, error) {
	iterations := max(n.cfg.Iterations, 1)

	var peers []string
	for id, addr := range n.cfg.Peers {
		if id == n.cfg.Id {
			continue
		}
		if err := n.gate.RegisterNode(id, addr); err != nil {
			return p.OutcomeRecord{}, fmt.Errorf("register node %s: %w", id, err)
		}
		peers = append(peers, id)
	}
	sort.Strings(peers)

	var opts []broadcast.Option
	if n.cfg.RetransmitInterval > 0 {
		opts = append(opts, broadcast.WithRetransmitInterval(n.cfg.RetransmitInterval))
	}
	bc := broadcast.New(n.cfg.Id, peers, n.gate, n.log, opts...)
	manager := crdt.NewManager(bc, n.log)

	if err := bc.Init(ctx); err != nil {
		return p.OutcomeRecord{}, fmt.Errorf("init broadcast: %w", err)
	}

	record, err := n.simulate(ctx, manager, iterations)
	if derr := bc.Disconnect(); derr != nil {
		n.log.Warn("disconnect failed", zap.Error(derr))
	}
	if err != nil {
		return p.OutcomeRecord{}, err
	}

	n.log.Info("finished", zap.Int("owners", len(record.FinalValue)), zap.Int64("dropped", n.gate.Dropped()))
	return record, nil
}

func (n *Node) simulate(ctx context.Context, manager *crdt.Manager, iterations int) (p.OutcomeRecord, error) {
	n.log.Info("started", zap.Bool("failing", n.cfg.IsFailing), zap.Int("iterations", iterations), zap.Int("workload", len(n.cfg.Workload)))

	shared, err := manager.Get(p.SHARED_SET, crdt.GSET)
	if err != nil {
		return p.OutcomeRecord{}, err
	}
	own, err := manager.Get(p.OwnerSetName(n.cfg.Id), crdt.GSET)
	if err != nil {
		return p.OutcomeRecord{}, err
	}

	err = shared.Add(ctx, p.OwnerAnnouncement{
		Owner:                     n.cfg.Id,
		ContainedSimulatedFailure: n.cfg.IsFailing,
		ValuesSet:                 own.Name(),
	})
	if err != nil {
		return p.OutcomeRecord{}, fmt.Errorf("announce owner: %w", err)
	}

	for i := 0; i < iterations; i++ {
		n.gate.SetConnected(!n.cfg.IsFailing || n.cfg.FailureWindow.Connected(i))

		for _, value := range n.cfg.Workload {
			if err := own.Add(ctx, Item(value, i)); err != nil {
				return p.OutcomeRecord{}, fmt.Errorf("add round %d: %w", i, err)
			}
			if err := sleep(ctx, n.cfg.ItemDelay); err != nil {
				return p.OutcomeRecord{}, err
			}
		}
	}

	if err := sleep(ctx, n.cfg.SettleDelay); err != nil {
		return p.OutcomeRecord{}, err
	}

	finalValue, err := Snapshot(manager)
	if err != nil {
		return p.OutcomeRecord{}, err
	}

	return p.OutcomeRecord{
		Id:         n.cfg.Id,
		HadFailure: n.cfg.IsFailing,
		FinalValue: finalValue,
	}, nil
}

// Snapshot resolves every owner announced in the shared set into its current
// values.
func Snapshot(manager *crdt.Manager) ([]p.OwnerValue, error) {
	shared, err := manager.Get(p.SHARED_SET, crdt.GSET)
	if err != nil {
		return nil, err
	}

	finalValue := []p.OwnerValue{}
	for _, raw := range shared.Value() {
		var ann p.OwnerAnnouncement
		if err := json.Unmarshal(raw, &ann); err != nil {
			return nil, fmt.Errorf("decode shared element %s: %w", string(raw), err)
		}

		set, err := manager.Get(ann.ValuesSet, crdt.GSET)
		if err != nil {
			return nil, err
		}

		values := []any{}
		for _, elem := range set.Value() {
			var v any
			if err := json.Unmarshal(elem, &v); err != nil {
				return nil, fmt.Errorf("decode element of %s: %w", ann.ValuesSet, err)
			}
			values = append(values, v)
		}

		finalValue = append(finalValue, p.OwnerValue{
			Owner:                     ann.Owner,
			ContainedSimulatedFailure: ann.ContainedSimulatedFailure,
			Values:                    values,
		})
	}

	return finalValue, nil
}

// Execute runs the node and persists its record under the node's id.
func Execute(ctx context.Context, cfg Config, net network.Network, store db.Store, log *zap.Logger) error {
	record, err := Init(cfg, net, log).Run(ctx)
	if err != nil {
		return err
	}

	if err := store.Put(ctx, p.BUCKET_RESULTS, cfg.Id, record); err != nil {
		return fmt.Errorf("persist result of %s: %w", cfg.Id, err)
	}

	return nil
}

// LoadWorkload reads the fixed value sequence of a node.
func LoadWorkload(ctx context.Context, store db.Store, id string) ([]any, error) {
	var workload []any
	if err := store.Get(ctx, p.BUCKET_MEASUREMENTS, id, &workload); err != nil {
		return nil, fmt.Errorf("workload of %s: %w", id, err)
	}

	return workload, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
