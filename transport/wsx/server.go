package wsx

import (
	"context"
	"net/http"

	"github.com/bang-go/collabd/telemetry/logger"
	"github.com/bang-go/opt"
	"github.com/coder/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server interface {
	Start(context.Context, func(Connect)) error
	Shutdown(context.Context) error
	Handler(func(Connect)) http.HandlerFunc
}

type ServerConfig struct {
	Addr         string
	Logger       *logger.Logger
	EnableLogger bool
	// ObservabilitySkipPaths 跳过 Trace 记录的路径列表，
	// 默认为 /healthz, /metrics。用户配置将与默认值合并。连接级 ws_* 指标不受此列表影响。
	ObservabilitySkipPaths []string
}

type serverEntity struct {
	config  *ServerConfig
	options *serverOptions
	server  *http.Server
}

func NewServer(conf *ServerConfig, opts ...opt.Option[serverOptions]) Server {
	if conf == nil {
		conf = &ServerConfig{}
	}
	if conf.Logger == nil {
		conf.Logger = logger.New(logger.WithLevel("info"))
	}

	options := &serverOptions{
		path:        "/ws",
		checkOrigin: func(r *http.Request) bool { return true },
	}
	opt.Each(options, opts...)

	s := &serverEntity{
		config:  conf,
		options: options,
	}
	return s
}

func (s *serverEntity) Start(ctx context.Context, handler func(Connect)) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.options.path, s.Handler(handler))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	skipPaths := []string{"/healthz", "/metrics"}
	skipPaths = append(skipPaths, s.config.ObservabilitySkipPaths...)

	s.server = &http.Server{
		Addr: s.config.Addr,
		Handler: otelhttp.NewHandler(mux, "wsx",
			otelhttp.WithFilter(func(r *http.Request) bool {
				for _, p := range skipPaths {
					if r.URL.Path == p {
						return false
					}
				}
				return true
			}),
		),
	}
	s.info(ctx, "ws server starting", "addr", s.config.Addr)
	return s.server.ListenAndServe()
}

func (s *serverEntity) Shutdown(ctx context.Context) error {
	if s.options.hub != nil {
		s.options.hub.Close()
	}
	if s.server != nil {
		s.info(ctx, "ws server shutting down")
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *serverEntity) info(ctx context.Context, msg string, args ...any) {
	if s.config.EnableLogger {
		s.config.Logger.Info(ctx, msg, args...)
	}
}

func (s *serverEntity) Handler(handler func(Connect)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.config.Logger.Error(r.Context(), "[ws_panic_recovery]",
					"error", err,
					"path", r.URL.Path,
				)
			}
		}()

		// Auth hook runs before the handshake so a bad token costs no
		// upgrade.
		if s.options.beforeUpgrade != nil {
			if err := s.options.beforeUpgrade(r); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
		}

		// Origin policy is ours, not coder/websocket's: AcceptOptions only
		// supports patterns, so the configurable check runs here and Accept
		// skips its own.
		if s.options.checkOrigin != nil {
			if !s.options.checkOrigin(r) {
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}

		s.info(r.Context(), "ws_access_log",
			"method", r.Method,
			"path", r.URL.Path,
			"ip", r.RemoteAddr,
		)

		skipObservability := false
		for _, p := range s.config.ObservabilitySkipPaths {
			if r.URL.Path == p {
				skipObservability = true
				break
			}
		}

		connOpts := s.options.connectOpts
		if skipObservability {
			connOpts = append(connOpts, WithSkipObservability(true))
		}

		c := NewConnect(conn, connOpts...)

		// onConnect binds identity (ID/PeerID) before the handler loop, so
		// the Connect is addressable from the moment it is registered.
		if s.options.onConnect != nil {
			if err := s.options.onConnect(c, r); err != nil {
				c.Close()
				return
			}
		}

		defer c.Close()

		handler(c)
	}
}
