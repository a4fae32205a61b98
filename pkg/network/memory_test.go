package network

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type message struct {
	from    string
	payload string
}

func TestMemoryDelivers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := hub.Join("a")
	b := hub.Join("b")
	defer a.Stop()
	defer b.Stop()

	ch := make(chan message, 1)
	require.NoError(t, b.RegisterReceiver("t", func(senderId string, payload []byte) {
		ch <- message{from: senderId, payload: string(payload)}
	}))

	require.NoError(t, a.SendMessage(context.Background(), "b", "t", []byte("hello")))

	select {
	case m := <-ch:
		assert.Equal(t, message{from: "a", payload: "hello"}, m)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestMemoryUnknownAndStopped(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := hub.Join("a")
	b := hub.Join("b")

	err := a.SendMessage(context.Background(), "c", "t", nil)
	assert.ErrorIs(t, err, ErrUnknownNode)

	require.NoError(t, b.Stop())
	err = a.SendMessage(context.Background(), "b", "t", nil)
	assert.ErrorIs(t, err, ErrUnknownNode)

	require.NoError(t, a.Stop())
	err = a.SendMessage(context.Background(), "a", "t", nil)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestAddressBookRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	book := AddressBook{"b": "localhost:9001", "a": "localhost:9000"}

	require.NoError(t, book.Write(path))
	loaded, err := LoadAddressBook(path)
	require.NoError(t, err)

	assert.Equal(t, book, loaded)
	assert.Equal(t, []string{"a", "b"}, loaded.Ids())
}

func TestAddressBookBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o644))

	_, err := LoadAddressBook(path)
	assert.Error(t, err)
}
