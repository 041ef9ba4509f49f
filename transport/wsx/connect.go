package wsx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bang-go/opt"
	"github.com/coder/websocket"
)

type message struct {
	typ  websocket.MessageType
	data []byte
}

// Connect 封装单个 websocket 连接：出站队列、心跳、元数据。
// 写入全部经过 sendChan 由单个 writeLoop 串行执行。
type Connect interface {
	// SendText queues a text frame. Returns an error once the connection
	// is closed; ctx bounds how long to wait for queue space.
	SendText(context.Context, string) error

	// SendBinary queues a binary frame.
	SendBinary(context.Context, []byte) error

	// SendJSON marshals v and queues it as a text frame.
	SendJSON(context.Context, interface{}) error

	// ReadMessage blocks until a frame arrives, the read deadline passes,
	// or ctx is done.
	ReadMessage(context.Context) (websocket.MessageType, []byte, error)

	// Close closes the socket and stops the write loop. Idempotent.
	Close() error

	// Conn returns the underlying connection.
	Conn() *websocket.Conn

	// ID 返回该连接绑定的用户标识（一个用户可持有多个连接）
	ID() string
	SetID(string)

	// PeerID 返回该连接唯一的对端标识（会话层 ConnectionID），
	// 与 ID 不同：一个 PeerID 只对应一个 socket。
	PeerID() string
	SetPeerID(string)

	// Get retrieves a metadata value set by Set.
	Get(key string) (value interface{}, exists bool)
	Set(key string, value interface{})
}

type connectEntity struct {
	conn *websocket.Conn

	id     string
	peerID string
	meta   map[string]interface{}
	metaMu sync.RWMutex

	heartbeatInterval time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration

	sendChan chan message

	closed chan struct{}
	once   sync.Once
}

func NewConnect(conn *websocket.Conn, opts ...opt.Option[connectOptions]) Connect {
	options := &connectOptions{
		heartbeatInterval: 30 * time.Second,
		readTimeout:       60 * time.Second,
		writeTimeout:      10 * time.Second,
	}
	opt.Each(options, opts...)

	if options.sendBufferSize == 0 {
		options.sendBufferSize = 256
	}

	c := &connectEntity{
		conn:              conn,
		heartbeatInterval: options.heartbeatInterval,
		readTimeout:       options.readTimeout,
		writeTimeout:      options.writeTimeout,
		sendChan:          make(chan message, options.sendBufferSize),
		closed:            make(chan struct{}),
		meta:              make(map[string]interface{}),
	}

	connActive.Inc()

	go c.writeLoop()

	return c
}

func (c *connectEntity) writeLoop() {
	// A nil channel never fires, so a zero interval sends no pings.
	var tick <-chan time.Time
	if c.heartbeatInterval > 0 {
		ticker := time.NewTicker(c.heartbeatInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer connActive.Dec()

	for {
		select {
		case <-c.closed:
			return

		case msg := <-c.sendChan:
			ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
			err := c.conn.Write(ctx, msg.typ, msg.data)
			cancel()
			if err != nil {
				msgSent.WithLabelValues("error").Inc()
				c.Close()
				return
			}
			msgSent.WithLabelValues("success").Inc()

		case <-tick:
			if c.heartbeatInterval > 0 {
				ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
				err := c.conn.Ping(ctx)
				cancel()
				if err != nil {
					c.Close()
					return
				}
			}
		}
	}
}

func (c *connectEntity) SendText(ctx context.Context, text string) error {
	return c.send(ctx, message{typ: websocket.MessageText, data: []byte(text)})
}

func (c *connectEntity) SendBinary(ctx context.Context, data []byte) error {
	return c.send(ctx, message{typ: websocket.MessageBinary, data: data})
}

func (c *connectEntity) SendJSON(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(ctx, message{typ: websocket.MessageText, data: data})
}

func (c *connectEntity) send(ctx context.Context, msg message) error {
	select {
	case <-c.closed:
		return fmt.Errorf("connection closed")
	case c.sendChan <- msg:
		return nil
	case <-ctx.Done():
		msgSent.WithLabelValues("dropped").Inc()
		return ctx.Err()
	}
}

func (c *connectEntity) ReadMessage(ctx context.Context) (websocket.MessageType, []byte, error) {
	var cancel context.CancelFunc
	if c.readTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}

	mt, data, err := c.conn.Read(ctx)
	if err != nil {
		return 0, nil, err
	}
	msgReceived.Inc()
	return mt, data, nil
}

func (c *connectEntity) Close() error {
	c.once.Do(func() {
		close(c.closed)
		// sendChan stays open: closing it would panic concurrent senders.
		_ = c.conn.Close(websocket.StatusNormalClosure, "closed")
	})
	return nil
}

func (c *connectEntity) Conn() *websocket.Conn {
	return c.conn
}

func (c *connectEntity) ID() string {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return c.id
}

func (c *connectEntity) SetID(id string) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.id = id
}

func (c *connectEntity) PeerID() string {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return c.peerID
}

func (c *connectEntity) SetPeerID(id string) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.peerID = id
}

func (c *connectEntity) Get(key string) (value interface{}, exists bool) {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	value, exists = c.meta[key]
	return
}

func (c *connectEntity) Set(key string, value interface{}) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.meta[key] = value
}
