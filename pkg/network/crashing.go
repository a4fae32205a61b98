package network

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// CrashingNetwork wraps a Network and can simulate the node being cut off.
// While disconnected every message to or from another node is dropped. A node
// is never partitioned from itself.
type CrashingNetwork struct {
	ownId   string
	inner   Network
	log     *zap.Logger
	running atomic.Bool
	dropped atomic.Int64
}

func NewCrashingNetwork(ownId string, inner Network, log *zap.Logger) *CrashingNetwork {
	c := &CrashingNetwork{ownId: ownId, inner: inner, log: log.Named("gate")}
	c.running.Store(true)

	return c
}

func (c *CrashingNetwork) SetConnected(connected bool) {
	if c.running.Swap(connected) != connected {
		c.log.Info("connectivity changed", zap.String("node", c.ownId), zap.Bool("connected", connected))
	}
}

func (c *CrashingNetwork) Connected() bool {
	return c.running.Load()
}

// Dropped is the number of sends and receives discarded so far.
func (c *CrashingNetwork) Dropped() int64 {
	return c.dropped.Load()
}

func (c *CrashingNetwork) RegisterNode(id string, addr string) error {
	return c.inner.RegisterNode(id, addr)
}

func (c *CrashingNetwork) RegisterReceiver(topic string, recv Receiver) error {
	return c.inner.RegisterReceiver(topic, func(senderId string, payload []byte) {
		if c.running.Load() || senderId == c.ownId {
			recv(senderId, payload)
			return
		}
		c.dropped.Add(1)
	})
}

func (c *CrashingNetwork) SendMessage(ctx context.Context, targetId string, topic string, payload []byte) error {
	if c.running.Load() || targetId == c.ownId {
		return c.inner.SendMessage(ctx, targetId, topic, payload)
	}
	c.dropped.Add(1)

	return nil
}

func (c *CrashingNetwork) Stop() error {
	return c.inner.Stop()
}
