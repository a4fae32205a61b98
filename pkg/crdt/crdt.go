package crdt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"go.uber.org/zap"
)

type Kind string

const GSET Kind = "g-set"

var ErrUnknownKind = errors.New("unknown crdt kind")

// Broadcaster is the part of the reliable distributor the manager needs.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) error
	OnDeliver(fn func(origin string, payload []byte))
}

// Manager holds every named CRDT of a replica and applies delivered operations.
type Manager struct {
	mu    sync.Mutex
	crdts map[string]*GSet
	bc    Broadcaster
	log   *zap.Logger
}

func NewManager(bc Broadcaster, log *zap.Logger) *Manager {
	m := &Manager{
		crdts: make(map[string]*GSet),
		bc:    bc,
		log:   log.Named("crdt"),
	}
	bc.OnDeliver(m.apply)

	return m
}

// Get returns the CRDT called name, creating it if needed.
func (m *Manager) Get(name string, kind Kind) (*GSet, error) {
	if kind != GSET {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getLocked(name), nil
}

// Names lists every CRDT the manager knows about.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.crdts))
	for name := range m.crdts {
		names = append(names, name)
	}
	return names
}

func (m *Manager) getLocked(name string) *GSet {
	set, ok := m.crdts[name]
	if !ok {
		set = &GSet{name: name, mgr: m, index: make(map[string]struct{})}
		m.crdts[name] = set
	}
	return set
}

func (m *Manager) apply(origin string, payload []byte) {
	op, err := p.ParseOperation(payload)
	if err != nil {
		m.log.Warn("dropping operation", zap.String("origin", origin), zap.Error(err))
		return
	}
	if Kind(op.Kind) != GSET {
		m.log.Warn("dropping operation", zap.String("origin", origin), zap.Error(fmt.Errorf("%w: %s", ErrUnknownKind, op.Kind)))
		return
	}

	m.mu.Lock()
	set := m.getLocked(op.CRDT)
	m.mu.Unlock()

	set.insert(op.Element)
}

// GSet is a grow-only set of JSON-encoded elements.
type GSet struct {
	name string
	mgr  *Manager

	mu       sync.RWMutex
	elements []json.RawMessage
	index    map[string]struct{}
}

func (g *GSet) Name() string {
	return g.name
}

// Add inserts v locally and replicates it to every peer.
func (g *GSet) Add(ctx context.Context, v any) error {
	element, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode element for %s: %w", g.name, err)
	}

	g.insert(element)

	payload, err := json.Marshal(p.Operation{CRDT: g.name, Kind: string(GSET), Element: element})
	if err != nil {
		return fmt.Errorf("encode operation for %s: %w", g.name, err)
	}

	return g.mgr.bc.Broadcast(ctx, payload)
}

func (g *GSet) insert(element json.RawMessage) {
	key := string(element)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.index[key]; ok {
		return
	}
	g.index[key] = struct{}{}
	g.elements = append(g.elements, append(json.RawMessage(nil), element...))
}

// Value returns the elements in the order they were first seen.
func (g *GSet) Value() []json.RawMessage {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]json.RawMessage, len(g.elements))
	copy(out, g.elements)
	return out
}

func (g *GSet) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.elements)
}
