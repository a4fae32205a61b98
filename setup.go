package main

import (
	"context"
	"fmt"
	"os"

	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/Kevin27954/convergence-sim-test/pkg/network"
	"github.com/Kevin27954/convergence-sim-test/test/randomizer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func initCmd(g *globals) *cobra.Command {
	var seed int64
	var values int

	cmd := &cobra.Command{
		Use:   "init <id> [<id> ...]",
		Short: "Write the address book and a random workload for every node",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			if values < 1 {
				return fmt.Errorf("--values must be positive, got %d", values)
			}

			book := make(network.AddressBook, len(args))
			for i, id := range args {
				if _, dup := book[id]; dup || id == "" {
					return fmt.Errorf("node id %q is empty or repeated", id)
				}
				book[id] = fmt.Sprintf("%s:%d", cfg.Host, cfg.BasePort+i)
			}

			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return err
			}
			if err := book.Write(cfg.NodesFile()); err != nil {
				return err
			}

			store, err := cfg.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rnd := randomizer.Init(seed)
			ctx := context.Background()
			for _, id := range book.Ids() {
				workload := rnd.Workload(values)
				if err := store.Put(ctx, p.BUCKET_MEASUREMENTS, id, workload); err != nil {
					return fmt.Errorf("workload for %s: %w", id, err)
				}
				log.Info("Workload written", zap.String("node", id), zap.Strings("values", workload))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d nodes written to %s\n", len(book), cfg.NodesFile())
			return nil
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 69, "seed for workload generation")
	cmd.Flags().IntVar(&values, "values", 5, "workload values per node")

	return cmd
}
