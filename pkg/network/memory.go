package network

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const INBOX_SIZE = 4096

type delivery struct {
	from    string
	topic   string
	payload []byte
}

// Hub connects in-process Memory networks by id.
type Hub struct {
	mu      sync.RWMutex
	members map[string]*Memory
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{members: make(map[string]*Memory), log: log.Named("hub")}
}

// Join creates the member for id and starts its delivery loop. Joining with an
// id that is still live replaces the old member.
func (h *Hub) Join(id string) *Memory {
	m := &Memory{
		id:        id,
		hub:       h,
		receivers: make(map[string]Receiver),
		inbox:     make(chan delivery, INBOX_SIZE),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	old := h.members[id]
	h.members[id] = m
	h.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	go m.run()
	return m
}

func (h *Hub) lookup(id string) *Memory {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.members[id]
}

func (h *Hub) leave(m *Memory) {
	h.mu.Lock()
	if h.members[m.id] == m {
		delete(h.members, m.id)
	}
	h.mu.Unlock()
}

// Memory is a Network whose peers live in the same process.
type Memory struct {
	id  string
	hub *Hub

	mu        sync.RWMutex
	receivers map[string]Receiver
	peers     []string

	inbox    chan delivery
	done     chan struct{}
	stopOnce sync.Once
}

func (m *Memory) RegisterNode(id string, addr string) error {
	m.mu.Lock()
	m.peers = append(m.peers, id)
	m.mu.Unlock()

	return nil
}

func (m *Memory) RegisterReceiver(topic string, recv Receiver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.receivers[topic] = recv
	return nil
}

func (m *Memory) SendMessage(ctx context.Context, targetId string, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-m.done:
		return ErrStopped
	default:
	}

	target := m.hub.lookup(targetId)
	if target == nil {
		return fmt.Errorf("send to %s: %w", targetId, ErrUnknownNode)
	}

	return target.enqueue(delivery{from: m.id, topic: topic, payload: append([]byte(nil), payload...)})
}

func (m *Memory) enqueue(d delivery) error {
	select {
	case <-m.done:
		return fmt.Errorf("send to %s: %w", m.id, ErrStopped)
	default:
	}

	select {
	case m.inbox <- d:
		return nil
	default:
		return fmt.Errorf("send to %s: %w", m.id, ErrInboxFull)
	}
}

func (m *Memory) run() {
	for {
		select {
		case <-m.done:
			return
		case d := <-m.inbox:
			m.mu.RLock()
			recv := m.receivers[d.topic]
			m.mu.RUnlock()

			if recv == nil {
				m.hub.log.Debug("no receiver for topic", zap.String("node", m.id), zap.String("topic", d.topic))
				continue
			}
			recv(d.from, d.payload)
		}
	}
}

func (m *Memory) Stop() error {
	m.stopOnce.Do(func() {
		close(m.done)
		m.hub.leave(m)
	})

	return nil
}
