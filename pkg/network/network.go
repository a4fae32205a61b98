package network

import (
	"context"
	"errors"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrStopped     = errors.New("network stopped")
	ErrInboxFull   = errors.New("inbox full")
)

// Receiver handles a message that arrived on a topic.
type Receiver func(senderId string, payload []byte)

// Network is an addressed-messaging transport between replicas.
type Network interface {
	RegisterNode(id string, addr string) error
	RegisterReceiver(topic string, recv Receiver) error
	SendMessage(ctx context.Context, targetId string, topic string, payload []byte) error
	Stop() error
}
