package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/go-cmd/cmd"
	"go.uber.org/zap"
)

// ErrLaunch means a replica unit could not be started at all.
var ErrLaunch = errors.New("unable to launch replica")

// Server starts every replica as a child process running the replica command
// and forwards its output into the driver's log.
type Server struct {
	binary   string
	baseArgs []string
	Dir      string
	// Peers limits every replica to these node ids. Empty means the whole
	// address book.
	Peers []string
	log   *zap.Logger
}

func Init(binary string, baseArgs []string, log *zap.Logger) Server {
	return Server{
		binary:   binary,
		baseArgs: baseArgs,
		log:      log.Named("server"),
	}
}

func (s Server) Args(node p.NodeSpec, iterations int) []string {
	args := append([]string{}, s.baseArgs...)
	args = append(args, "replica", node.Id, p.FailingToken(node.IsFailing), strconv.Itoa(iterations))
	if len(s.Peers) > 0 {
		args = append(args, "--peers", strings.Join(s.Peers, ","))
	}
	return args
}

// Launch runs the replica process for node and returns once it has exited.
// Only a process that never started is an error; how it exited is logged.
func (s Server) Launch(ctx context.Context, node p.NodeSpec, iterations int) error {
	log := s.log.With(zap.String("node", node.Id))

	startNodeCmd := cmd.NewCmdOptions(cmd.Options{Buffered: false, Streaming: true}, s.binary, s.Args(node, iterations)...)
	startNodeCmd.Dir = s.Dir
	log.Info("Ran", zap.Strings("args", startNodeCmd.Args))

	doneChan := make(chan struct{})
	go func() {
		defer close(doneChan)
		s.forward(log, startNodeCmd)
	}()

	statusChan := startNodeCmd.Start()

	var status cmd.Status
	select {
	case status = <-statusChan:
	case <-ctx.Done():
		startNodeCmd.Stop()
		status = <-statusChan
	}
	<-doneChan

	// go-cmd stamps StartTs even when exec fails, PID is only set once the
	// process is running.
	if status.PID == 0 && status.Error != nil {
		return fmt.Errorf("%w %s: %v", ErrLaunch, node.Id, status.Error)
	}

	log.Info("replica exited",
		zap.Int("exit", status.Exit),
		zap.Bool("complete", status.Complete),
		zap.Float64("runtime_s", status.Runtime),
		zap.NamedError("cause", status.Error))

	return nil
}

func (s Server) forward(log *zap.Logger, c *cmd.Cmd) {
	stdout, stderr := c.Stdout, c.Stderr
	for stdout != nil || stderr != nil {
		select {
		case line, open := <-stdout:
			if !open {
				stdout = nil
				continue
			}
			log.Info(line)
		case line, open := <-stderr:
			if !open {
				stderr = nil
				continue
			}
			log.Warn(line)
		}
	}
}
