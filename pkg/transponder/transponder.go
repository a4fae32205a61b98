package transponder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Kevin27954/convergence-sim-test/pkg/network"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	WRITEWAIT = 10 * time.Second
	DIALWAIT  = 5 * time.Second
	READLIMIT = 1 << 20
	ENDPOINT  = "/internal/"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type frame struct {
	From    string `json:"from"`
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

type peerConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Transponder is a websocket Network. Inbound sockets are read-only, outbound
// sockets (dialed lazily per peer) are write-only.
type Transponder struct {
	from string // Id of the node this transponder belongs to.
	addr string
	log  *zap.Logger

	mu        sync.RWMutex
	peers     map[string]string
	conns     map[string]*peerConn
	inbound   map[*websocket.Conn]struct{}
	receivers map[string]network.Receiver
	stopped   bool

	listener net.Listener
	server   *http.Server
}

func Init(from string, addr string, log *zap.Logger) *Transponder {
	return &Transponder{
		from:      from,
		addr:      addr,
		log:       log.Named("transponder").With(zap.String("node", from)),
		peers:     make(map[string]string),
		conns:     make(map[string]*peerConn),
		inbound:   make(map[*websocket.Conn]struct{}),
		receivers: make(map[string]network.Receiver),
	}
}

// Start listens on the configured address and serves inbound peers.
func (t *Transponder) Start() error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", t.addr, err)
	}
	t.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc(ENDPOINT, t.handleInternal)
	t.server = &http.Server{Handler: mux, ReadHeaderTimeout: DIALWAIT}

	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("server stopped", zap.Error(err))
		}
	}()

	t.log.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the address actually bound by Start.
func (t *Transponder) Addr() string {
	if t.listener == nil {
		return t.addr
	}
	return t.listener.Addr().String()
}

func (t *Transponder) RegisterNode(id string, addr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.peers[id] = addr
	return nil
}

func (t *Transponder) RegisterReceiver(topic string, recv network.Receiver) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.receivers[topic] = recv
	return nil
}

func (t *Transponder) SendMessage(ctx context.Context, targetId string, topic string, payload []byte) error {
	if targetId == t.from {
		t.dispatch(frame{From: t.from, Topic: topic, Payload: payload})
		return nil
	}

	pc, err := t.connTo(ctx, targetId)
	if err != nil {
		return err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	deadline := time.Now().Add(WRITEWAIT)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	pc.conn.SetWriteDeadline(deadline)

	err = pc.conn.WriteJSON(frame{From: t.from, Topic: topic, Payload: payload})
	if err != nil {
		t.dropConn(targetId, pc)
		return fmt.Errorf("write to %s: %w", targetId, err)
	}

	return nil
}

func (t *Transponder) Stop() error {
	t.mu.Lock()
	t.stopped = true
	conns := t.conns
	inbound := t.inbound
	t.conns = make(map[string]*peerConn)
	t.inbound = make(map[*websocket.Conn]struct{})
	t.mu.Unlock()

	for _, pc := range conns {
		pc.mu.Lock()
		pc.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		pc.conn.Close()
		pc.mu.Unlock()
	}
	for conn := range inbound {
		conn.Close()
	}

	if t.server != nil {
		return t.server.Close()
	}
	return nil
}

func (t *Transponder) connTo(ctx context.Context, id string) (*peerConn, error) {
	t.mu.RLock()
	pc, ok := t.conns[id]
	addr, known := t.peers[id]
	stopped := t.stopped
	t.mu.RUnlock()

	if stopped {
		return nil, network.ErrStopped
	}
	if ok {
		return pc, nil
	}
	if !known {
		return nil, fmt.Errorf("send to %s: %w", id, network.ErrUnknownNode)
	}

	dialCtx, cancel := context.WithTimeout(ctx, DIALWAIT)
	defer cancel()

	connStr := fmt.Sprintf("ws://%s%s%s", addr, ENDPOINT, t.from)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", connStr, err)
	}

	t.mu.Lock()
	if existing, ok := t.conns[id]; ok {
		t.mu.Unlock()
		conn.Close()
		return existing, nil
	}
	pc = &peerConn{conn: conn}
	t.conns[id] = pc
	t.mu.Unlock()

	t.log.Debug("connected", zap.String("peer", id), zap.String("url", connStr))

	// Outbound sockets still need a reader so close and ping frames are processed.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				t.dropConn(id, pc)
				return
			}
		}
	}()

	return pc, nil
}

func (t *Transponder) dropConn(id string, pc *peerConn) {
	t.mu.Lock()
	if t.conns[id] == pc {
		delete(t.conns, id)
	}
	t.mu.Unlock()

	pc.conn.Close()
}

func (t *Transponder) handleInternal(w http.ResponseWriter, r *http.Request) {
	sender := strings.TrimPrefix(r.URL.Path, ENDPOINT)
	if sender == "" {
		http.Error(w, "missing sender id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("unable to upgrade", zap.String("peer", sender), zap.Error(err))
		return
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.inbound[conn] = struct{}{}
	t.mu.Unlock()

	go t.listen(sender, conn)
}

func (t *Transponder) listen(sender string, conn *websocket.Conn) {
	defer func() {
		t.mu.Lock()
		delete(t.inbound, conn)
		t.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadLimit(READLIMIT)

	for {
		var f frame
		err := conn.ReadJSON(&f)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Debug("peer read failed", zap.String("peer", sender), zap.Error(err))
			}
			return
		}

		if f.From != sender {
			t.log.Warn("frame sender does not match socket", zap.String("peer", sender), zap.String("from", f.From))
			continue
		}
		t.dispatch(f)
	}
}

func (t *Transponder) dispatch(f frame) {
	t.mu.RLock()
	recv := t.receivers[f.Topic]
	t.mu.RUnlock()

	if recv == nil {
		t.log.Debug("no receiver for topic", zap.String("topic", f.Topic))
		return
	}
	recv(f.From, f.Payload)
}

func (t *Transponder) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("  Connection List: [")
	for id := range t.peers {
		_, ok := t.conns[id]
		sb.WriteString(fmt.Sprintf("\n    Connected to %s: %t", id, ok))
	}
	sb.WriteString("\n]\n")

	return sb.String()
}
