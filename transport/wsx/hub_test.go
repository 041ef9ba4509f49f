package wsx

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

// stubConnect records delivered frames instead of writing to a socket.
type stubConnect struct {
	mu     sync.Mutex
	id     string
	peerID string
	meta   map[string]interface{}
	sent   [][]byte
	closed bool
}

func newStubConnect(userID, peerID string) *stubConnect {
	return &stubConnect{id: userID, peerID: peerID, meta: make(map[string]interface{})}
}

func (c *stubConnect) SendText(_ context.Context, text string) error {
	return c.SendBinary(context.Background(), []byte(text))
}

func (c *stubConnect) SendBinary(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *stubConnect) SendJSON(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendBinary(ctx, data)
}

func (c *stubConnect) ReadMessage(context.Context) (websocket.MessageType, []byte, error) {
	return 0, nil, context.Canceled
}

func (c *stubConnect) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConnect) Conn() *websocket.Conn { return nil }

func (c *stubConnect) ID() string          { return c.id }
func (c *stubConnect) SetID(id string)     { c.id = id }
func (c *stubConnect) PeerID() string      { return c.peerID }
func (c *stubConnect) SetPeerID(id string) { c.peerID = id }

func (c *stubConnect) Get(key string) (interface{}, bool) {
	v, ok := c.meta[key]
	return v, ok
}
func (c *stubConnect) Set(key string, value interface{}) { c.meta[key] = value }

func (c *stubConnect) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestHubSendToPeerDeliversToExactlyOneSocket(t *testing.T) {
	h := NewHub()
	a := newStubConnect("10", "1")
	b := newStubConnect("10", "2") // same user, second device
	h.Register(a)
	h.Register(b)

	h.SendToPeer(context.Background(), "2", []byte("hello"))

	if a.sentCount() != 0 {
		t.Fatalf("peer 1 received %d frames, want 0", a.sentCount())
	}
	if b.sentCount() != 1 {
		t.Fatalf("peer 2 received %d frames, want 1", b.sentCount())
	}
}

func TestHubSendToUserDeliversToEveryDevice(t *testing.T) {
	h := NewHub()
	a := newStubConnect("10", "1")
	b := newStubConnect("10", "2")
	other := newStubConnect("20", "3")
	h.Register(a)
	h.Register(b)
	h.Register(other)

	h.SendToUser(context.Background(), "10", []byte("hello"))

	if a.sentCount() != 1 || b.sentCount() != 1 {
		t.Fatalf("user 10's devices received %d/%d frames, want 1/1", a.sentCount(), b.sentCount())
	}
	if other.sentCount() != 0 {
		t.Fatalf("user 20 received %d frames, want 0", other.sentCount())
	}
}

func TestHubUnregisterRemovesFromIndexes(t *testing.T) {
	h := NewHub()
	a := newStubConnect("10", "1")
	h.Register(a)
	h.Unregister(a)

	h.SendToPeer(context.Background(), "1", []byte("x"))
	h.SendToUser(context.Background(), "10", []byte("x"))

	if a.sentCount() != 0 {
		t.Fatalf("unregistered connection received %d frames, want 0", a.sentCount())
	}
	if h.Count() != 0 {
		t.Fatalf("Count = %d, want 0", h.Count())
	}
}

func TestHubKickClosesEveryDevice(t *testing.T) {
	h := NewHub()
	a := newStubConnect("10", "1")
	b := newStubConnect("10", "2")
	h.Register(a)
	h.Register(b)

	h.Kick(context.Background(), "10")

	if !a.closed || !b.closed {
		t.Fatalf("kick should close both devices, got %v/%v", a.closed, b.closed)
	}
}

func TestHubBroadcastReachesAllConnections(t *testing.T) {
	h := NewHub()
	a := newStubConnect("10", "1")
	b := newStubConnect("20", "2")
	h.Register(a)
	h.Register(b)

	h.Broadcast(context.Background(), []byte("all"))

	if a.sentCount() != 1 || b.sentCount() != 1 {
		t.Fatalf("broadcast delivered %d/%d frames, want 1/1", a.sentCount(), b.sentCount())
	}
}
