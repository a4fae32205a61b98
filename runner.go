package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kevin27954/convergence-sim-test/config"
	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/Kevin27954/convergence-sim-test/pkg/network"
	simtest "github.com/Kevin27954/convergence-sim-test/test"
	"github.com/Kevin27954/convergence-sim-test/test/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNotConverged = errors.New("replicas did not converge")

type runOptions struct {
	inproc     bool
	strict     bool
	iterations int
}

func runCmd(g *globals) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <id> <failing> [<id> <failing> ...]",
		Short: "Run every replica, then verify that they converged",
		Long: "Run one replica per node, wait for all of them to exit and verify their results.\n\n" +
			"<failing> is fail, true, 1 or yes to simulate a partition, and ok, false, 0, no or\n" +
			"an empty string for a healthy replica. Any other token is rejected. Unlike older\n" +
			"harnesses that treated every non-empty flag as failing, \"0\" and \"false\" are healthy.\n\n" +
			"Workloads and the address book are created with `convsim init`.",
		Args: func(cmd *cobra.Command, args []string) error {
			_, err := parseNodes(args)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, _ := parseNodes(args)
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if opts.iterations > 0 {
				cfg.Iterations = opts.iterations
			}

			store, err := cfg.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var launcher simtest.Launcher
			if opts.inproc {
				launcher = server.InitInProcess(cfg, store, nodes, log)
			} else if launcher, err = processLauncher(g, cfg, nodes, log); err != nil {
				return err
			}

			report, err := simtest.Init(launcher, store, log).StartTest(ctx, nodes, cfg.Iterations)
			if err != nil {
				return err
			}

			report.Render(cmd.OutOrStdout())
			if opts.strict && !report.OK() {
				return errNotConverged
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.inproc, "inproc", false, "run replicas as goroutines over an in-memory network")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit non-zero when a replica mismatched or is missing")
	cmd.Flags().IntVar(&opts.iterations, "iterations", 0, "rounds per replica (0 = iterations from config)")

	return cmd
}

// processLauncher spawns this binary's replica command once per node. Every
// node must already have an address.
func processLauncher(g *globals, cfg config.Config, nodes []p.NodeSpec, log *zap.Logger) (simtest.Launcher, error) {
	book, err := network.LoadAddressBook(cfg.NodesFile())
	if err != nil {
		return nil, fmt.Errorf("%w (run `convsim init` first)", err)
	}
	for _, n := range nodes {
		if _, ok := book[n.Id]; !ok {
			return nil, fmt.Errorf("node %s is not in %s", n.Id, cfg.NodesFile())
		}
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("%w: locating own binary: %v", server.ErrLaunch, err)
	}

	srv := server.Init(exe, g.childArgs(), log)
	for _, n := range nodes {
		srv.Peers = append(srv.Peers, n.Id)
	}

	return srv, nil
}

func verifyCmd(g *globals) *cobra.Command {
	var iterations int
	var strict bool

	cmd := &cobra.Command{
		Use:   "verify <id> <failing> [<id> <failing> ...]",
		Short: "Verify results already in the store without running replicas",
		Args: func(cmd *cobra.Command, args []string) error {
			_, err := parseNodes(args)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, _ := parseNodes(args)
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			if iterations > 0 {
				cfg.Iterations = iterations
			}

			store, err := cfg.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sim := simtest.Init(nil, store, log)
			ctx := context.Background()

			expected, err := sim.ExpectedOutcome(ctx, nodes, cfg.Iterations)
			if err != nil {
				return err
			}

			report := sim.Verify(expected, sim.CollectExisting(ctx, nodes))
			report.Render(cmd.OutOrStdout())
			if strict && !report.OK() {
				return errNotConverged
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&iterations, "iterations", 0, "rounds the replicas ran (0 = iterations from config)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when a replica mismatched or is missing")

	return cmd
}
