package simtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Kevin27954/convergence-sim-test/cmd/node"
	"github.com/Kevin27954/convergence-sim-test/db"
	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/Kevin27954/convergence-sim-test/test/verifier"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Launcher runs one replica unit to completion. It returns an error only when
// the unit could not be started; how the unit ended is its own business.
type Launcher interface {
	Launch(ctx context.Context, node p.NodeSpec, iterations int) error
}

// Collected is what the driver found for one replica after it exited.
// Record is nil when the replica left no result.
type Collected struct {
	Id     string
	Record *p.OutcomeRecord
}

type SimTest struct {
	launcher Launcher
	store    db.Store
	verifier *verifier.Verifier
	log      *zap.Logger
}

func Init(launcher Launcher, store db.Store, log *zap.Logger) *SimTest {
	return &SimTest{
		launcher: launcher,
		store:    store,
		verifier: verifier.Init(log),
		log:      log.Named("simtest"),
	}
}

// ExpectedOutcome is what a healthy replica would report if every node's
// workload reached it, independent of any run.
func (s *SimTest) ExpectedOutcome(ctx context.Context, nodes []p.NodeSpec, iterations int) ([]p.OwnerValue, error) {
	iterations = max(iterations, 1)

	expected := make([]p.OwnerValue, 0, len(nodes))
	for _, n := range nodes {
		workload, err := node.LoadWorkload(ctx, s.store, n.Id)
		if err != nil {
			return nil, err
		}

		values := make([]any, 0, len(workload)*iterations)
		for _, value := range workload {
			for i := 0; i < iterations; i++ {
				values = append(values, node.Item(value, i))
			}
		}

		expected = append(expected, p.OwnerValue{
			Owner:                     n.Id,
			ContainedSimulatedFailure: n.IsFailing,
			Values:                    values,
		})
	}

	return expected, nil
}

// RunSimulations launches every node concurrently, waits for all of them to
// exit and collects their results in the order they exited. A node that could
// not be launched aborts the run and no results are returned.
func (s *SimTest) RunSimulations(ctx context.Context, nodes []p.NodeSpec, iterations int) ([]Collected, error) {
	if err := s.store.Reset(ctx, p.BUCKET_RESULTS); err != nil {
		return nil, fmt.Errorf("clearing results: %w", err)
	}

	var l sync.Mutex
	collected := make([]Collected, 0, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		g.Go(func() error {
			if err := s.launcher.Launch(gctx, n, iterations); err != nil {
				s.log.Error("unable to launch", zap.String("node", n.Id), zap.Error(err))
				return err
			}

			c := s.collect(gctx, n.Id)

			l.Lock()
			collected = append(collected, c)
			l.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return collected, nil
}

func (s *SimTest) collect(ctx context.Context, id string) Collected {
	var record p.OutcomeRecord
	err := s.store.Get(ctx, p.BUCKET_RESULTS, id, &record)
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.log.Error(fmt.Sprintf("Simulation of node %s failed to produce an output!", id))
		return Collected{Id: id}
	case err != nil:
		s.log.Error(fmt.Sprintf("Simulation of node %s produced an unreadable output!", id), zap.Error(err))
		return Collected{Id: id}
	}

	return Collected{Id: id, Record: &record}
}

// Verify judges the collected results. Missing results are appended to the
// report after the verified ones.
func (s *SimTest) Verify(expected []p.OwnerValue, collected []Collected) verifier.Report {
	var present []p.OutcomeRecord
	var missing []string
	for _, c := range collected {
		if c.Record == nil {
			missing = append(missing, c.Id)
			continue
		}
		present = append(present, *c.Record)
	}

	report := s.verifier.Verify(expected, present)
	for _, id := range missing {
		report.Results = append(report.Results, verifier.Result{Id: id, Verdict: verifier.MISSING})
	}

	return report
}

// StartTest runs a whole simulation and verifies it.
func (s *SimTest) StartTest(ctx context.Context, nodes []p.NodeSpec, iterations int) (verifier.Report, error) {
	if err := validateNodes(nodes); err != nil {
		return verifier.Report{}, err
	}

	expected, err := s.ExpectedOutcome(ctx, nodes, iterations)
	if err != nil {
		return verifier.Report{}, fmt.Errorf("computing expected outcome: %w", err)
	}

	collected, err := s.RunSimulations(ctx, nodes, iterations)
	if err != nil {
		return verifier.Report{}, err
	}

	report := s.Verify(expected, collected)
	s.log.Info("Done!", zap.Bool("ok", report.OK()), zap.String("representative", report.Representative))

	return report, nil
}

// CollectExisting reads results already in the store without running anything.
func (s *SimTest) CollectExisting(ctx context.Context, nodes []p.NodeSpec) []Collected {
	collected := make([]Collected, 0, len(nodes))
	for _, n := range nodes {
		collected = append(collected, s.collect(ctx, n.Id))
	}

	return collected
}

func validateNodes(nodes []p.NodeSpec) error {
	if len(nodes) == 0 {
		return errors.New("no nodes to simulate")
	}

	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.Id == "" {
			return errors.New("node id must not be empty")
		}
		if _, ok := seen[n.Id]; ok {
			return fmt.Errorf("duplicate node id %q", n.Id)
		}
		seen[n.Id] = struct{}{}
	}

	return nil
}
