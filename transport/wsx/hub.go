package wsx

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bang-go/opt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Hub 管理所有活跃连接，按 PeerID（单 socket）和 UserID（同一用户的多端）双重索引。
// 接了 MessageBroker 后所有发送操作为分布式：先发布到 broker，各节点各自投递本地连接。
type Hub interface {
	// Register 注册连接（按其 PeerID / ID 建立索引）
	Register(Connect)
	// Unregister 注销连接
	Unregister(Connect)

	// Broadcast 广播消息给所有连接（分布式）
	Broadcast(ctx context.Context, msg []byte)

	// SendToPeer 向单个 PeerID 对应的 socket 发送消息（分布式）
	SendToPeer(ctx context.Context, peerID string, msg []byte)

	// SendToUser 向特定 UserID 的全部连接发送消息（分布式）
	SendToUser(ctx context.Context, userID string, msg []byte)

	// Kick 强制断开特定 UserID 的所有连接（分布式）
	Kick(ctx context.Context, userID string)

	// Count 返回当前本地在线连接数
	Count() int64

	// Close 关闭所有连接
	Close()
}

// hubMessage is the broker wire frame. TraceHeader carries W3C trace
// context so a push fanned out through Redis still links to the span that
// produced it.
type hubMessage struct {
	Type        string            `json:"type"`             // "broadcast", "peer_cast", "user_cast", "kick"
	Target      string            `json:"target,omitempty"` // PeerID for peer_cast, UserID for user_cast/kick
	Payload     []byte            `json:"payload,omitempty"`
	TraceHeader map[string]string `json:"trace_header,omitempty"`
}

type hubEntity struct {
	mu          sync.RWMutex
	connections map[Connect]struct{}
	// peerIndex maps PeerID -> Connect; one socket per peer id.
	peerIndex map[string]Connect
	// userIndex maps UserID -> set of Connect; one user may hold many sockets.
	userIndex map[string]map[Connect]struct{}

	broker  MessageBroker
	channel string
}

func NewHub(opts ...opt.Option[hubOptions]) Hub {
	options := &hubOptions{
		channel: "ws:global",
	}
	opt.Each(options, opts...)

	h := &hubEntity{
		connections: make(map[Connect]struct{}),
		peerIndex:   make(map[string]Connect),
		userIndex:   make(map[string]map[Connect]struct{}),
		broker:      options.broker,
		channel:     options.channel,
	}

	if h.broker != nil {
		_ = h.broker.Subscribe(context.Background(), h.channel, h.handleBrokerMessage)
	}

	return h
}

type hubOptions struct {
	broker  MessageBroker
	channel string
}

func WithHubBroker(broker MessageBroker) opt.Option[hubOptions] {
	return opt.OptionFunc[hubOptions](func(o *hubOptions) {
		o.broker = broker
	})
}

func WithHubChannel(channel string) opt.Option[hubOptions] {
	return opt.OptionFunc[hubOptions](func(o *hubOptions) {
		o.channel = channel
	})
}

func (h *hubEntity) Register(c Connect) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = struct{}{}

	if pid := c.PeerID(); pid != "" {
		h.peerIndex[pid] = c
	}
	if uid := c.ID(); uid != "" {
		if h.userIndex[uid] == nil {
			h.userIndex[uid] = make(map[Connect]struct{})
		}
		h.userIndex[uid][c] = struct{}{}
	}
}

func (h *hubEntity) Unregister(c Connect) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[c]; !ok {
		return
	}
	delete(h.connections, c)

	if pid := c.PeerID(); pid != "" && h.peerIndex[pid] == c {
		delete(h.peerIndex, pid)
	}
	if uid := c.ID(); uid != "" && h.userIndex[uid] != nil {
		delete(h.userIndex[uid], c)
		if len(h.userIndex[uid]) == 0 {
			delete(h.userIndex, uid)
		}
	}
}

func (h *hubEntity) Broadcast(ctx context.Context, msg []byte) {
	hubBroadcast.Inc()
	h.publish(ctx, hubMessage{Type: "broadcast", Payload: msg})
}

func (h *hubEntity) SendToPeer(ctx context.Context, peerID string, msg []byte) {
	hubSend.WithLabelValues("peer").Inc()
	h.publish(ctx, hubMessage{Type: "peer_cast", Target: peerID, Payload: msg})
}

func (h *hubEntity) SendToUser(ctx context.Context, userID string, msg []byte) {
	hubSend.WithLabelValues("user").Inc()
	h.publish(ctx, hubMessage{Type: "user_cast", Target: userID, Payload: msg})
}

func (h *hubEntity) Kick(ctx context.Context, userID string) {
	hubKick.Inc()
	h.publish(ctx, hubMessage{Type: "kick", Target: userID})
}

// publish routes a frame through the broker when one is installed, falling
// back to local-only delivery otherwise.
func (h *hubEntity) publish(ctx context.Context, hm hubMessage) {
	if h.broker != nil {
		hm.TraceHeader = make(map[string]string)
		otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(hm.TraceHeader))
		data, _ := json.Marshal(hm)
		_ = h.broker.Publish(ctx, h.channel, data)
		return
	}
	h.deliverLocal(ctx, hm)
}

func (h *hubEntity) handleBrokerMessage(data []byte) {
	var hm hubMessage
	if err := json.Unmarshal(data, &hm); err != nil {
		return
	}
	ctx := context.Background()
	if hm.TraceHeader != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(hm.TraceHeader))
	}
	h.deliverLocal(ctx, hm)
}

func (h *hubEntity) deliverLocal(ctx context.Context, hm hubMessage) {
	switch hm.Type {
	case "broadcast":
		h.batchSend(ctx, h.snapshotAll(), hm.Payload)
	case "peer_cast":
		h.mu.RLock()
		c, ok := h.peerIndex[hm.Target]
		h.mu.RUnlock()
		if ok {
			h.batchSend(ctx, []Connect{c}, hm.Payload)
		}
	case "user_cast":
		h.batchSend(ctx, h.snapshotUser(hm.Target), hm.Payload)
	case "kick":
		for _, c := range h.snapshotUser(hm.Target) {
			_ = c.Close()
		}
	}
}

func (h *hubEntity) snapshotAll() []Connect {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]Connect, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	return conns
}

func (h *hubEntity) snapshotUser(userID string) []Connect {
	h.mu.RLock()
	defer h.mu.RUnlock()
	target := h.userIndex[userID]
	conns := make([]Connect, 0, len(target))
	for c := range target {
		conns = append(conns, c)
	}
	return conns
}

func (h *hubEntity) batchSend(ctx context.Context, conns []Connect, msg []byte) {
	for _, c := range conns {
		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
		_ = c.SendBinary(sendCtx, msg)
		cancel()
	}
}

func (h *hubEntity) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return int64(len(h.connections))
}

func (h *hubEntity) Close() {
	h.mu.Lock()
	conns := make([]Connect, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.connections = make(map[Connect]struct{})
	h.peerIndex = make(map[string]Connect)
	h.userIndex = make(map[string]map[Connect]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}

	if h.broker != nil {
		_ = h.broker.Close()
	}
}
