package server

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kevin27954/convergence-sim-test/config"
	"github.com/Kevin27954/convergence-sim-test/db"
	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestServerArgs(t *testing.T) {
	s := Init("convsim", []string{"--config", "sim.yaml"}, zap.NewNop())

	assert.Equal(t,
		[]string{"--config", "sim.yaml", "replica", "a", "fail", "200"},
		s.Args(p.NodeSpec{Id: "a", IsFailing: true}, 200))
	assert.Equal(t,
		[]string{"--config", "sim.yaml", "replica", "b", "ok", "1"},
		s.Args(p.NodeSpec{Id: "b"}, 1))
}

func TestServerArgsWithPeers(t *testing.T) {
	s := Init("convsim", nil, zap.NewNop())
	s.Peers = []string{"a", "b"}

	assert.Equal(t,
		[]string{"replica", "a", "ok", "3", "--peers", "a,b"},
		s.Args(p.NodeSpec{Id: "a"}, 3))
}

func TestServerLaunchMissingBinary(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := Init("/nonexistent/convsim", nil, zap.New(core))

	err := s.Launch(context.Background(), p.NodeSpec{Id: "a"}, 1)
	assert.ErrorIs(t, err, ErrLaunch)
	assert.Equal(t, 0, logs.FilterMessage("replica exited").Len())
}

func TestServerLaunchNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convsim")
	require.NoError(t, os.WriteFile(path, []byte("not a program"), 0o644))

	err := Init(path, nil, zap.NewNop()).Launch(context.Background(), p.NodeSpec{Id: "a"}, 1)
	assert.ErrorIs(t, err, ErrLaunch)
}

func TestServerLaunchForwardsOutput(t *testing.T) {
	echo, err := exec.LookPath("echo")
	if err != nil {
		t.Skip("echo not available")
	}

	core, logs := observer.New(zap.DebugLevel)
	s := Init(echo, []string{"hello"}, zap.New(core))

	require.NoError(t, s.Launch(context.Background(), p.NodeSpec{Id: "a"}, 1))
	assert.Equal(t, 1, logs.FilterMessage("hello replica a ok 1").Len())
	assert.Equal(t, 1, logs.FilterMessage("replica exited").Len())
}

func TestServerNonZeroExitIsNotAnError(t *testing.T) {
	falseBin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not available")
	}

	s := Init(falseBin, nil, zap.NewNop())
	assert.NoError(t, s.Launch(context.Background(), p.NodeSpec{Id: "a"}, 1))
}

func TestServerLaunchStopsOnCancel(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	// The replica args land in $0.. of the script and are ignored.
	s := Init(sh, []string{"-c", "sleep 30"}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.NoError(t, s.Launch(ctx, p.NodeSpec{Id: "a"}, 1))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestInProcessLaunchWritesResult(t *testing.T) {
	store := db.InitMemory()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, p.BUCKET_MEASUREMENTS, "a", []string{"v"}))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.ItemDelay = 0
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.RetransmitInterval = 10 * time.Millisecond

	nodes := []p.NodeSpec{{Id: "a"}}
	l := InitInProcess(cfg, store, nodes, zap.NewNop())
	require.NoError(t, l.Launch(ctx, nodes[0], 1))

	var record p.OutcomeRecord
	require.NoError(t, store.Get(ctx, p.BUCKET_RESULTS, "a", &record))
	assert.Equal(t, "a", record.Id)
}

func TestInProcessMissingWorkloadLeavesNoResult(t *testing.T) {
	store := db.InitMemory()
	cfg, err := config.Load("")
	require.NoError(t, err)

	nodes := []p.NodeSpec{{Id: "a"}}
	l := InitInProcess(cfg, store, nodes, zap.NewNop())
	require.NoError(t, l.Launch(context.Background(), nodes[0], 1))

	var record p.OutcomeRecord
	assert.ErrorIs(t, store.Get(context.Background(), p.BUCKET_RESULTS, "a", &record), db.ErrNotFound)
}

func TestInProcessUnknownNode(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	l := InitInProcess(cfg, db.InitMemory(), []p.NodeSpec{{Id: "a"}}, zap.NewNop())
	assert.ErrorIs(t, l.Launch(context.Background(), p.NodeSpec{Id: "z"}, 1), ErrLaunch)
}
