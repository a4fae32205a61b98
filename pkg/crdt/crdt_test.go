package crdt

import (
	"context"
	"encoding/json"
	"testing"

	p "github.com/Kevin27954/convergence-sim-test/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// loopback delivers broadcasts straight back, and to any linked managers.
type loopback struct {
	deliver []func(origin string, payload []byte)
	sent    int
}

func (l *loopback) Broadcast(ctx context.Context, payload []byte) error {
	l.sent++
	for _, d := range l.deliver {
		d("self", payload)
	}
	return nil
}

func (l *loopback) OnDeliver(fn func(origin string, payload []byte)) {
	l.deliver = append(l.deliver, fn)
}

func TestGSetAddIsIdempotent(t *testing.T) {
	bc := &loopback{}
	m := NewManager(bc, zap.NewNop())

	set, err := m.Get("s", GSET)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, set.Add(ctx, "a (0)"))
	require.NoError(t, set.Add(ctx, "b (0)"))
	require.NoError(t, set.Add(ctx, "a (0)"))

	assert.Equal(t, 3, bc.sent)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`"a (0)"`), json.RawMessage(`"b (0)"`)}, set.Value())
	assert.Equal(t, 2, set.Len())
}

func TestManagerGetReturnsSameInstance(t *testing.T) {
	m := NewManager(&loopback{}, zap.NewNop())

	a, err := m.Get("s", GSET)
	require.NoError(t, err)
	b, err := m.Get("s", GSET)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, "s", a.Name())
}

func TestManagerRejectsUnknownKind(t *testing.T) {
	m := NewManager(&loopback{}, zap.NewNop())

	_, err := m.Get("s", Kind("or-set"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestManagerAppliesRemoteOperations(t *testing.T) {
	bc := &loopback{}
	local := NewManager(bc, zap.NewNop())
	remote := NewManager(&loopback{}, zap.NewNop())
	bc.OnDeliver(remote.apply)

	set, err := local.Get(p.OwnerSetName("a"), GSET)
	require.NoError(t, err)
	require.NoError(t, set.Add(context.Background(), "x (0)"))

	seen, err := remote.Get(p.OwnerSetName("a"), GSET)
	require.NoError(t, err)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`"x (0)"`)}, seen.Value())
	assert.ElementsMatch(t, []string{p.OwnerSetName("a")}, remote.Names())
}

func TestManagerIgnoresMalformedOperations(t *testing.T) {
	m := NewManager(&loopback{}, zap.NewNop())

	m.apply("x", []byte("not json"))
	m.apply("x", []byte(`{"crdt":"s","kind":"lww","element":"1"}`))

	assert.Empty(t, m.Names())
}
