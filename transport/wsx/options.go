package wsx

import (
	"context"
	"net/http"
	"time"

	"github.com/bang-go/opt"
)

// MessageBroker fans hub messages out across nodes (e.g. Redis pub/sub).
// A Hub with no broker only multicasts to connections local to this process.
type MessageBroker interface {
	Subscribe(ctx context.Context, channel string, handler func(msg []byte)) error
	Publish(ctx context.Context, channel string, msg []byte) error
	Close() error
}

// serverOptions configures Server beyond ServerConfig: hooks into the
// upgrade path and the Connect values it produces.
type serverOptions struct {
	path          string
	checkOrigin   func(*http.Request) bool
	beforeUpgrade func(*http.Request) error
	onConnect     func(Connect, *http.Request) error
	hub           Hub
	connectOpts   []opt.Option[connectOptions]
}

// WithServerPath overrides the default "/ws" upgrade route.
func WithServerPath(path string) opt.Option[serverOptions] {
	return opt.OptionFunc[serverOptions](func(o *serverOptions) { o.path = path })
}

// WithServerCheckOrigin overrides the default allow-all origin check.
func WithServerCheckOrigin(f func(*http.Request) bool) opt.Option[serverOptions] {
	return opt.OptionFunc[serverOptions](func(o *serverOptions) { o.checkOrigin = f })
}

// WithServerBeforeUpgrade installs an auth hook run before the websocket
// handshake; returning an error rejects the upgrade with 401.
func WithServerBeforeUpgrade(f func(*http.Request) error) opt.Option[serverOptions] {
	return opt.OptionFunc[serverOptions](func(o *serverOptions) { o.beforeUpgrade = f })
}

// WithServerOnConnect installs a hook run immediately after a successful
// upgrade, before the connection handler loop starts — the usual place to
// bind an authenticated identity (e.g. SetID) onto the Connect.
func WithServerOnConnect(f func(Connect, *http.Request) error) opt.Option[serverOptions] {
	return opt.OptionFunc[serverOptions](func(o *serverOptions) { o.onConnect = f })
}

// WithServerHub attaches a Hub the server closes on Shutdown.
func WithServerHub(h Hub) opt.Option[serverOptions] {
	return opt.OptionFunc[serverOptions](func(o *serverOptions) { o.hub = h })
}

// WithServerConnectOptions forwards options to every Connect the server
// creates.
func WithServerConnectOptions(opts ...opt.Option[connectOptions]) opt.Option[serverOptions] {
	return opt.OptionFunc[serverOptions](func(o *serverOptions) { o.connectOpts = append(o.connectOpts, opts...) })
}

// connectOptions configures a single Connect's timing and buffering.
type connectOptions struct {
	heartbeatInterval time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	sendBufferSize    int
	skipObservability bool
}

// WithHeartbeatInterval overrides the ping interval. Zero disables pinging.
func WithHeartbeatInterval(d time.Duration) opt.Option[connectOptions] {
	return opt.OptionFunc[connectOptions](func(o *connectOptions) { o.heartbeatInterval = d })
}

// WithReadTimeout overrides the per-read deadline.
func WithReadTimeout(d time.Duration) opt.Option[connectOptions] {
	return opt.OptionFunc[connectOptions](func(o *connectOptions) { o.readTimeout = d })
}

// WithWriteTimeout overrides the per-write deadline.
func WithWriteTimeout(d time.Duration) opt.Option[connectOptions] {
	return opt.OptionFunc[connectOptions](func(o *connectOptions) { o.writeTimeout = d })
}

// WithSendBufferSize overrides the outbound queue depth.
func WithSendBufferSize(n int) opt.Option[connectOptions] {
	return opt.OptionFunc[connectOptions](func(o *connectOptions) { o.sendBufferSize = n })
}

// WithSkipObservability sets a per-connection skip flag (the server sets it
// for upgrades on ServerConfig.ObservabilitySkipPaths). Connect does not read
// the flag: the ws_* metrics are recorded for the connection either way.
func WithSkipObservability(skip bool) opt.Option[connectOptions] {
	return opt.OptionFunc[connectOptions](func(o *connectOptions) { o.skipObservability = skip })
}
