// Package ginx is the admin HTTP surface: a gin engine pre-wired with
// tracing, recovery, Prometheus, and access-log middleware, serving the
// health, metrics, and debug endpoints beside the websocket listener.
package ginx

import (
	"context"
	"net/http"
	"time"

	"github.com/bang-go/collabd/telemetry/logger"
	middleware "github.com/bang-go/collabd/transport/ginx/middleware"
	"github.com/bang-go/util"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Server interface {
	Start() error
	Use(...gin.HandlerFunc)
	Engine() *http.Server
	GinEngine() *gin.Engine
	Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup
	Shutdown() error
}

type ServerConfig struct {
	ServiceName string // service name reported on traces
	Addr        string
	Mode        string
	Trace       bool
	Logger       *logger.Logger
	EnableLogger bool // enable access logging

	// Timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ServerEntity struct {
	*ServerConfig
	ginEngine  *gin.Engine
	httpServer *http.Server
}

func New(conf *ServerConfig) Server {
	if conf == nil {
		conf = &ServerConfig{}
	}
	mode := util.If(conf.Mode != "", conf.Mode, gin.ReleaseMode)
	gin.SetMode(mode)

	if conf.ReadTimeout == 0 {
		conf.ReadTimeout = 10 * time.Second
	}
	if conf.WriteTimeout == 0 {
		conf.WriteTimeout = 10 * time.Second
	}
	if conf.IdleTimeout == 0 {
		conf.IdleTimeout = 30 * time.Second
	}

	if conf.Logger == nil {
		if mode == gin.DebugMode {
			conf.Logger = logger.New(logger.WithLevel("debug"))
		} else {
			conf.Logger = logger.New(logger.WithLevel("info"))
		}
	}

	ginEngine := gin.New()

	// Middleware order matters: the trace span must open before recovery,
	// metrics, and access logging run inside it.
	if conf.Trace {
		ginEngine.Use(otelgin.Middleware(util.If(conf.ServiceName != "", conf.ServiceName, "collabd")))
	}
	ginEngine.Use(middleware.RecoveryMiddleware(conf.Logger, true))
	ginEngine.Use(middleware.MetricMiddleware("/metrics", "/healthz"))
	ginEngine.Use(middleware.LoggerMiddleware(conf.Logger, "/metrics", "/healthz"))

	return &ServerEntity{
		ServerConfig: conf,
		ginEngine:    ginEngine,
	}
}

func (s *ServerEntity) GinEngine() *gin.Engine {
	return s.ginEngine
}

func (s *ServerEntity) Engine() *http.Server {
	return s.httpServer
}

func (s *ServerEntity) Use(middlewares ...gin.HandlerFunc) {
	s.ginEngine.Use(middlewares...)
}

func (s *ServerEntity) Start() (err error) {
	s.httpServer = &http.Server{
		Addr:    s.Addr,
		Handler: s.ginEngine,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
	}
	err = s.httpServer.ListenAndServe()
	return
}

func (s *ServerEntity) Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return s.ginEngine.Group(relativePath, handlers...)
}

func (s *ServerEntity) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
