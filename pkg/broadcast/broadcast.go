package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/Kevin27954/convergence-sim-test/pkg/network"
	"github.com/Kevin27954/convergence-sim-test/pkg/task"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DEFAULT_RETRANSMIT = 500 * time.Millisecond
	SEND_WAIT          = 2 * time.Second
)

// Envelope is the unit the distributor sends and acknowledges.
type Envelope struct {
	Id      string `json:"id"`
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

type ack struct {
	Id string `json:"id"`
}

type Option func(*ReliableMessageDistributor)

func WithRetransmitInterval(d time.Duration) Option {
	return func(r *ReliableMessageDistributor) { r.interval = d }
}

// ReliableMessageDistributor delivers every broadcast payload to every peer at
// least once on the wire and at most once to the application. Unacknowledged
// messages are resent until each peer confirms them.
type ReliableMessageDistributor struct {
	id       string
	peers    []string
	net      network.Network
	log      *zap.Logger
	interval time.Duration

	pending *task.TaskManager

	mu      sync.Mutex
	seen    map[string]struct{}
	deliver func(origin string, payload []byte)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(id string, peers []string, net network.Network, log *zap.Logger, opts ...Option) *ReliableMessageDistributor {
	r := &ReliableMessageDistributor{
		id:       id,
		net:      net,
		log:      log.Named("broadcast").With(zap.String("node", id)),
		interval: DEFAULT_RETRANSMIT,
		pending:  task.Init(),
		seen:     make(map[string]struct{}),
	}
	for _, peer := range peers {
		if peer != id {
			r.peers = append(r.peers, peer)
		}
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// OnDeliver sets the callback that receives every message exactly once,
// including the node's own broadcasts.
func (r *ReliableMessageDistributor) OnDeliver(fn func(origin string, payload []byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deliver = fn
}

func (r *ReliableMessageDistributor) Init(ctx context.Context) error {
	if err := r.net.RegisterReceiver(p.TOPIC_BROADCAST, r.handleMessage); err != nil {
		return fmt.Errorf("register %s: %w", p.TOPIC_BROADCAST, err)
	}
	if err := r.net.RegisterReceiver(p.TOPIC_ACK, r.handleAck); err != nil {
		return fmt.Errorf("register %s: %w", p.TOPIC_ACK, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	r.wg.Add(1)
	go r.retransmitLoop(loopCtx)

	return nil
}

func (r *ReliableMessageDistributor) Broadcast(ctx context.Context, payload []byte) error {
	env := Envelope{Id: uuid.NewString(), Origin: r.id, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	r.pending.AddTask(env.Id, data, r.peers)
	r.accept(env)

	for _, peer := range r.peers {
		if err := r.net.SendMessage(ctx, peer, p.TOPIC_BROADCAST, data); err != nil {
			r.log.Debug("send failed, will retransmit", zap.String("peer", peer), zap.Error(err))
		}
	}

	return nil
}

// Disconnect stops retransmission and the underlying network.
func (r *ReliableMessageDistributor) Disconnect() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	started, complete := r.pending.Stats()
	r.log.Info("disconnecting", zap.Int("broadcasts", started), zap.Int("fully_acked", complete))

	return r.net.Stop()
}

func (r *ReliableMessageDistributor) accept(env Envelope) {
	r.mu.Lock()
	if _, ok := r.seen[env.Id]; ok {
		r.mu.Unlock()
		return
	}
	r.seen[env.Id] = struct{}{}
	deliver := r.deliver
	r.mu.Unlock()

	if deliver != nil {
		deliver(env.Origin, env.Payload)
	}
}

func (r *ReliableMessageDistributor) handleMessage(senderId string, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.log.Warn("dropping malformed envelope", zap.String("from", senderId), zap.Error(err))
		return
	}

	r.accept(env)

	reply, err := json.Marshal(ack{Id: env.Id})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), SEND_WAIT)
	defer cancel()
	if err := r.net.SendMessage(ctx, senderId, p.TOPIC_ACK, reply); err != nil {
		r.log.Debug("ack failed", zap.String("peer", senderId), zap.Error(err))
	}
}

func (r *ReliableMessageDistributor) handleAck(senderId string, data []byte) {
	var a ack
	if err := json.Unmarshal(data, &a); err != nil {
		r.log.Warn("dropping malformed ack", zap.String("from", senderId), zap.Error(err))
		return
	}

	r.pending.Ack(a.Id, senderId)
}

func (r *ReliableMessageDistributor) retransmitLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.retransmit(ctx)
		}
	}
}

func (r *ReliableMessageDistributor) retransmit(ctx context.Context) {
	for _, t := range r.pending.Outstanding() {
		for _, peer := range t.Waiting {
			if ctx.Err() != nil {
				return
			}

			sendCtx, cancel := context.WithTimeout(ctx, SEND_WAIT)
			err := r.net.SendMessage(sendCtx, peer, p.TOPIC_BROADCAST, t.Payload)
			cancel()
			if err != nil {
				r.log.Debug("retransmit failed", zap.String("peer", peer), zap.String("msg", t.Id), zap.Error(err))
			}
		}
	}
}
