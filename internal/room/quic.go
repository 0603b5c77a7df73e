package room

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	quic "github.com/quic-go/quic-go"
)

// Hub is the rendezvous process a QUICRoom dials into. It is what gives
// the transport total order: every member connects to the same Hub, every
// broadcast passes through the Hub's single fan-out goroutine, and that
// goroutine relays each broadcast, in the order it arrived, to every
// member currently connected — the sender included. Without a single
// sequencing point like this, a mesh of per-peer QUIC connections could
// not honor the Channel core's loop-back-inclusive total-order assumption
// over an unreliable network; that is the gap a plain best-effort
// multicast transport cannot close either.
type Hub struct {
	listener *quic.Listener

	mu      sync.Mutex
	members map[string]*quic.Conn

	relay chan relayedMessage
	done  chan struct{}
}

type relayedMessage struct {
	sender  string
	payload []byte
}

type registerFrame struct {
	Username string `json:"username"`
}

type broadcastFrame struct {
	Sender  string `json:"sender"`
	Payload []byte `json:"payload"`
}

// ListenHub starts a Hub on addr.
func ListenHub(addr string) (*Hub, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	listener, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("room: quic listen: %w", err)
	}
	h := &Hub{
		listener: listener,
		members:  make(map[string]*quic.Conn),
		relay:    make(chan relayedMessage, 256),
		done:     make(chan struct{}),
	}
	go h.acceptLoop()
	go h.relayLoop()
	return h, nil
}

// Addr reports the address the Hub is actually listening on, useful when
// ListenHub was given a ":0" port.
func (h *Hub) Addr() string { return h.listener.Addr().String() }

func (h *Hub) acceptLoop() {
	for {
		conn, err := h.listener.Accept(context.Background())
		if err != nil {
			return
		}
		go h.serveConn(conn)
	}
}

// serveConn reads the connecting member's registration frame off the
// first stream it opens, then treats every later stream on that
// connection as one broadcast payload from that member.
func (h *Hub) serveConn(conn *quic.Conn) {
	regStream, err := conn.AcceptStream(context.Background())
	if err != nil {
		return
	}
	regData, err := io.ReadAll(regStream)
	if err != nil {
		return
	}
	var reg registerFrame
	if err := json.Unmarshal(regData, &reg); err != nil || reg.Username == "" {
		return
	}

	h.mu.Lock()
	h.members[reg.Username] = conn
	h.mu.Unlock()

	for {
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			h.mu.Lock()
			delete(h.members, reg.Username)
			h.mu.Unlock()
			return
		}
		payload, err := io.ReadAll(stream)
		if err != nil {
			continue
		}
		select {
		case h.relay <- relayedMessage{sender: reg.Username, payload: payload}:
		case <-h.done:
			return
		}
	}
}

// relayLoop is the Hub's single sequencing point: draining it one message
// at a time and fanning each one out before pulling the next is what
// gives every member the same broadcast order.
func (h *Hub) relayLoop() {
	for {
		select {
		case msg := <-h.relay:
			h.fanOut(msg)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) fanOut(msg relayedMessage) {
	frame, err := json.Marshal(broadcastFrame{Sender: msg.sender, Payload: msg.payload})
	if err != nil {
		return
	}
	h.mu.Lock()
	conns := make(map[string]*quic.Conn, len(h.members))
	for name, conn := range h.members {
		conns[name] = conn
	}
	h.mu.Unlock()

	for _, conn := range conns {
		stream, err := conn.OpenStreamSync(context.Background())
		if err != nil {
			continue
		}
		_, _ = stream.Write(frame)
		_ = stream.Close()
	}
}

// Close shuts the Hub down.
func (h *Hub) Close() error {
	close(h.done)
	return h.listener.Close()
}

// QUICRoom implements channel.Room over a QUIC connection to a Hub: every
// SendMessage opens one stream per call (mirroring the teacher's
// network.Send), and a background goroutine accepts the Hub's fan-out
// streams and delivers each to onMessage.
type QUICRoom struct {
	Identity

	conn *quic.Conn
}

// DialQUICRoom connects to the Hub at addr as identity, registers, and
// starts delivering broadcasts to onMessage until the connection closes.
func DialQUICRoom(addr string, identity Identity, onMessage func(sender string, payload []byte)) (*QUICRoom, error) {
	tlsConf, err := clientTLSConfig()
	if err != nil {
		return nil, err
	}
	conn, err := quic.DialAddr(context.Background(), addr, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("room: quic dial: %w", err)
	}

	reg, err := json.Marshal(registerFrame{Username: identity.Username()})
	if err != nil {
		return nil, err
	}
	regStream, err := conn.OpenStreamSync(context.Background())
	if err != nil {
		return nil, err
	}
	if _, err := regStream.Write(reg); err != nil {
		return nil, err
	}
	if err := regStream.Close(); err != nil {
		return nil, err
	}

	r := &QUICRoom{Identity: identity, conn: conn}
	go r.receiveLoop(onMessage)
	return r, nil
}

func (r *QUICRoom) receiveLoop(onMessage func(sender string, payload []byte)) {
	for {
		stream, err := r.conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		data, err := io.ReadAll(stream)
		if err != nil {
			continue
		}
		var frame broadcastFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		onMessage(frame.Sender, frame.Payload)
	}
}

// SendMessage opens a fresh stream to the Hub and writes payload,
// one message per stream, matching the teacher's network.Send shape.
func (r *QUICRoom) SendMessage(payload []byte) error {
	stream, err := r.conn.OpenStreamSync(context.Background())
	if err != nil {
		return fmt.Errorf("room: open stream: %w", err)
	}
	if _, err := stream.Write(payload); err != nil {
		return fmt.Errorf("room: write: %w", err)
	}
	return stream.Close()
}

// Close disconnects from the Hub.
func (r *QUICRoom) Close() error {
	return r.conn.CloseWithError(0, "")
}
