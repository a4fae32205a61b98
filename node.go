package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Kevin27954/convergence-sim-test/assert"
	"github.com/Kevin27954/convergence-sim-test/cmd/node"
	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/Kevin27954/convergence-sim-test/pkg/network"
	"github.com/Kevin27954/convergence-sim-test/pkg/transponder"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func replicaCmd(g *globals) *cobra.Command {
	var peers []string

	cmd := &cobra.Command{
		Use:    "replica <id> <failing> <iterations>",
		Short:  "Run a single replica (spawned by `convsim run`)",
		Hidden: true,
		Args:   cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			failing, err := p.ParseFailing(args[1])
			if err != nil {
				return err
			}
			iterations, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("iterations %q: %w", args[2], err)
			}

			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync()
			log = log.With(zap.String("replica", id))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			book, err := network.LoadAddressBook(cfg.NodesFile())
			assert.NoError(log, err, "Address book unreadable", zap.String("path", cfg.NodesFile()))
			book, err = runBook(book, id, peers)
			assert.NoError(log, err, "Address book does not cover this run", zap.Strings("peers", peers))
			addr := book[id]

			store, err := cfg.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			workload, err := node.LoadWorkload(ctx, store, id)
			if err != nil {
				return err
			}

			tr := transponder.Init(id, addr, log)
			assert.NoError(log, tr.Start(), "Could not listen", zap.String("addr", addr))

			log.Info("Replica starting",
				zap.Bool("failing", failing),
				zap.Int("iterations", iterations),
				zap.Stringer("transponder", tr),
			)

			return node.Execute(ctx, node.Config{
				Id:                 id,
				IsFailing:          failing,
				Iterations:         iterations,
				Workload:           workload,
				Peers:              book,
				ItemDelay:          cfg.ItemDelay,
				SettleDelay:        cfg.SettleDelay,
				RetransmitInterval: cfg.RetransmitInterval,
				FailureWindow:      cfg.FailureWindow,
			}, tr, store, log)
		},
	}

	cmd.Flags().StringSliceVar(&peers, "peers", nil, "node ids taking part in this run (default: whole address book)")

	return cmd
}

// runBook narrows the address book to the nodes of one run. The replica's
// own id must be among them.
func runBook(book network.AddressBook, id string, peers []string) (network.AddressBook, error) {
	if _, ok := book[id]; !ok {
		return nil, fmt.Errorf("node %s is not in the address book", id)
	}
	if len(peers) == 0 {
		return book, nil
	}

	run := network.AddressBook{id: book[id]}
	for _, peer := range peers {
		addr, ok := book[peer]
		if !ok {
			return nil, fmt.Errorf("peer %s is not in the address book", peer)
		}
		run[peer] = addr
	}

	return run, nil
}
