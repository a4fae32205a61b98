// Convergence simulation harness
// Spawns replicas of a replicated grow-only set, cuts some of them off the
// network for a while, and checks that the healthy ones end up agreeing.
package main

import (
	"fmt"
	"os"

	"github.com/Kevin27954/convergence-sim-test/config"
	"github.com/Kevin27954/convergence-sim-test/logger"
	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var g globals

	root := &cobra.Command{
		Use:          "convsim",
		Short:        "Replica convergence simulation harness",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file (env CONVSIM_* overrides it)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level, overrides log_level from config")

	root.AddCommand(runCmd(&g))
	root.AddCommand(verifyCmd(&g))
	root.AddCommand(replicaCmd(&g))
	root.AddCommand(initCmd(&g))

	return root
}

func (g *globals) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}

	log, err := logger.New(level)
	if err != nil {
		return config.Config{}, nil, err
	}

	return cfg, log, nil
}

// childArgs are the global flags a spawned replica needs to see the same
// configuration as the driver.
func (g *globals) childArgs() []string {
	var args []string
	if g.configPath != "" {
		args = append(args, "--config", g.configPath)
	}
	if g.logLevel != "" {
		args = append(args, "--log-level", g.logLevel)
	}

	return args
}

// parseNodes reads a flat list of (id, failing) pairs.
func parseNodes(args []string) ([]p.NodeSpec, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, fmt.Errorf("expected pairs of <id> <failing>, got %d arguments", len(args))
	}

	nodes := make([]p.NodeSpec, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		failing, err := p.ParseFailing(args[i+1])
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", args[i], err)
		}
		nodes = append(nodes, p.NodeSpec{Id: args[i], IsFailing: failing})
	}

	return nodes, nil
}
