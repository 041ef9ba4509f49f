// Package rpcserver binds session.Store operations to websocket connections.
// The store itself stays deliberately agnostic of sockets, databases, and
// clocks; this package is where those concerns meet it.
package rpcserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bang-go/collabd/contrib/auth/jwtx"
	"github.com/bang-go/collabd/pkg/pool"
	"github.com/bang-go/collabd/session"
	"github.com/bang-go/collabd/telemetry/logger"
	"github.com/bang-go/collabd/transport/wsx"
	"github.com/bang-go/opt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Config configures a Server.
type Config struct {
	Addr string

	// JWT authenticates the "token" query parameter of the upgrade request.
	// When nil, no token is checked and each socket's user id is taken from
	// its "user_id" query parameter.
	JWT *jwtx.JWT

	// Contacts backs the external contacts database, which lives outside
	// the store. Required to answer the initial update_contacts push.
	Contacts ContactStore

	// Broker, if set, is installed on the wsx.Hub so peer- and
	// user-addressed sends fan out across every collabd process, not just
	// this one. Nil keeps delivery local-only.
	Broker wsx.MessageBroker

	// FanoutWorkers sizes the pool used to dispatch per-recipient sends
	// instead of blocking the RPC handler goroutine on slow sockets.
	FanoutWorkers int

	Logger *logger.Logger
}

// Server owns one session.Store and the wsx transport driving it. The store
// is not safe for concurrent use, so every store call here happens on a
// single dispatch goroutine (loopC); everything else (accepting sockets,
// sending responses) may run concurrently.
type Server struct {
	cfg   *Config
	store *session.Store
	hub   wsx.Hub
	ws    wsx.Server
	pool  pool.Pool
	log   *logger.Logger
	conns *connectionRegistry
	tr    trace.Tracer

	loopC chan func()
	done  chan struct{}
}

// New builds a Server. The store begins empty; connections are added as
// sockets complete their handshake.
func New(cfg *Config, opts ...opt.Option[options]) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.New(logger.WithLevel("info"))
	}
	if cfg.FanoutWorkers <= 0 {
		cfg.FanoutWorkers = 32
	}

	o := &options{}
	opt.Each(o, opts...)

	fanoutPool, err := pool.New(cfg.FanoutWorkers, pool.WithLogger(cfg.Logger))
	if err != nil {
		return nil, err
	}

	var hub wsx.Hub
	if cfg.Broker != nil {
		hub = wsx.NewHub(wsx.WithHubBroker(cfg.Broker))
	} else {
		hub = wsx.NewHub()
	}

	s := &Server{
		cfg:   cfg,
		store: session.New(),
		hub:   hub,
		pool:  fanoutPool,
		log:   cfg.Logger,
		conns: newConnectionRegistry(),
		tr:    otel.Tracer("collabd/rpcserver"),
		loopC: make(chan func(), 256),
		done:  make(chan struct{}),
	}

	s.ws = wsx.NewServer(&wsx.ServerConfig{
		Addr:         cfg.Addr,
		Logger:       cfg.Logger,
		EnableLogger: true,
	},
		wsx.WithServerHub(hub),
		wsx.WithServerBeforeUpgrade(s.authenticate),
		wsx.WithServerOnConnect(s.onConnect),
	)

	go s.loop()
	go s.runMetricsLoop(context.Background(), 5*time.Second)

	return s, nil
}

// options is reserved for future functional configuration of Server beyond
// Config; no fields yet.
type options struct{}

// Start blocks serving websocket connections until ctx is cancelled or the
// listener errors.
func (s *Server) Start(ctx context.Context) error {
	return s.ws.Start(ctx, s.handleConnection)
}

// Shutdown stops accepting new connections, drains the fan-out pool, and
// stops the store's dispatch loop.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.ws.Shutdown(ctx)
	s.pool.Release()
	close(s.done)
	return err
}

// KickUser force-closes every socket userID currently holds (across all
// collabd processes when a broker is installed). Each closed socket's
// handler loop exits and unwinds through the normal disconnect path, so the
// store needs no special casing here.
func (s *Server) KickUser(ctx context.Context, userID session.UserID) {
	s.hub.Kick(ctx, strconv.FormatInt(int64(userID), 10))
}

// DumpStore produces the store's structured debugging snapshot, serialized
// by the admin HTTP surface. Diagnostic only; never reloaded.
func (s *Server) DumpStore() session.DumpView {
	result := make(chan session.DumpView, 1)
	s.withStore(func(store *session.Store) {
		result <- store.Dump()
	})
	return <-result
}

// Metrics snapshots the store's counters at the given instant.
func (s *Server) Metrics(now time.Time) session.Metrics {
	result := make(chan session.Metrics, 1)
	s.withStore(func(store *session.Store) {
		result <- store.Metrics(now)
	})
	return <-result
}

// withStore runs fn on the dispatch goroutine, serializing every access to
// the non-concurrency-safe session.Store.
func (s *Server) withStore(fn func(*session.Store)) {
	done := make(chan struct{})
	s.loopC <- func() {
		fn(s.store)
		close(done)
	}
	<-done
}

func (s *Server) loop() {
	for {
		select {
		case <-s.done:
			return
		case task := <-s.loopC:
			task()
		}
	}
}

// authenticate is the beforeUpgrade hook: it verifies the "token" query
// parameter before the websocket handshake completes.
func (s *Server) authenticate(r *http.Request) error {
	if s.cfg.JWT == nil {
		return nil
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		return errors.New("missing token")
	}
	_, err := s.cfg.JWT.Verify(token)
	return err
}
