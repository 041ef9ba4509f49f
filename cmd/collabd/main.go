// Command collabd runs the realtime collaboration server: it loads
// configuration, wires logging, tracing, and the optional Redis broker and
// contacts database, then serves websocket connections until signaled to
// stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bang-go/collabd/conf/viperx"
	"github.com/bang-go/collabd/contrib/auth/jwtx"
	"github.com/bang-go/collabd/rpcserver"
	"github.com/bang-go/collabd/session"
	"github.com/bang-go/collabd/store/gormx"
	"github.com/bang-go/collabd/store/redisx"
	"github.com/bang-go/collabd/telemetry/logger"
	"github.com/bang-go/collabd/telemetry/trace"
	"github.com/bang-go/collabd/transport/ginx"
	"github.com/bang-go/collabd/transport/wsx"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// appConfig mirrors the application.yaml / application.<env>.yaml shape
// viperx.New loads, plus environment variable overrides (the upper-cased
// key with dots replaced by underscores, e.g. JWT_SECRET_KEY).
type appConfig struct {
	Addr      string `mapstructure:"addr"`
	AdminAddr string `mapstructure:"admin_addr"`

	JWT struct {
		SecretKey string        `mapstructure:"secret_key"`
		Issuer    string        `mapstructure:"issuer"`
		Expire    time.Duration `mapstructure:"expire"`
	} `mapstructure:"jwt"`

	Redis struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"redis"`

	Contacts struct {
		Enabled bool   `mapstructure:"enabled"`
		Driver  string `mapstructure:"driver"`
		DSN     string `mapstructure:"dsn"`
	} `mapstructure:"contacts"`

	Tracing struct {
		Exporter string  `mapstructure:"exporter"`
		Endpoint string  `mapstructure:"endpoint"`
		Sample   float64 `mapstructure:"sample"`
	} `mapstructure:"tracing"`

	LogLevel string `mapstructure:"log_level"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "collabd:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := viperx.New(&viperx.Config{Name: "application", Type: "yaml", Path: "./config"})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var cfg appConfig
	cfg.Addr = ":8080"
	cfg.AdminAddr = ":9090"
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	log := logger.New(logger.WithLevel(cfg.LogLevel), logger.WithJSON(true))

	shutdownTracer, err := trace.InitTracer(ctx, &trace.Config{
		ServiceName: "collabd",
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.Sample,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	var jwt *jwtx.JWT
	if cfg.JWT.SecretKey != "" {
		jwt, err = jwtx.New(&jwtx.Config{
			SecretKey: cfg.JWT.SecretKey,
			Issuer:    cfg.JWT.Issuer,
			Expire:    cfg.JWT.Expire,
		})
		if err != nil {
			return fmt.Errorf("init jwt: %w", err)
		}
	} else {
		log.Warn(ctx, "starting without JWT authentication; every socket must present ?user_id=")
	}

	var broker wsx.MessageBroker
	if cfg.Redis.Enabled {
		rdb := redisx.New(&redisx.Config{
			Addr:   cfg.Redis.Addr,
			Trace:  true,
			Logger: log,
		})
		broker = wsx.NewRedisBroker(rdb)
	}

	var contacts rpcserver.ContactStore
	if cfg.Contacts.Enabled {
		db, err := gormx.New(&gormx.Config{
			Name:         "contacts",
			Driver:       cfg.Contacts.Driver,
			DSN:          cfg.Contacts.DSN,
			Trace:        true,
			Logger:       log,
			EnableLogger: true,
		})
		if err != nil {
			return fmt.Errorf("connect contacts db: %w", err)
		}
		contacts = rpcserver.NewGormContactStore(db)
	} else {
		contacts = noContactStore{}
	}

	srv, err := rpcserver.New(&rpcserver.Config{
		Addr:     cfg.Addr,
		JWT:      jwt,
		Contacts: contacts,
		Broker:   broker,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	admin := ginx.New(&ginx.ServerConfig{
		ServiceName:  "collabd",
		Addr:         cfg.AdminAddr,
		Trace:        true,
		Logger:       log,
		EnableLogger: true,
	})
	admin.GinEngine().GET("/healthz", func(c *gin.Context) { c.Status(200) })
	admin.GinEngine().GET("/metrics", gin.WrapH(promhttp.Handler()))
	admin.GinEngine().GET("/debug/store", func(c *gin.Context) { c.JSON(200, srv.DumpStore()) })
	admin.GinEngine().POST("/debug/kick/:user_id", func(c *gin.Context) {
		uid, err := strconv.Atoi(c.Param("user_id"))
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		srv.KickUser(c.Request.Context(), session.UserID(uid))
		c.Status(http.StatusAccepted)
	})

	log.Info(ctx, "collabd starting", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr)

	errC := make(chan error, 1)
	go func() { errC <- srv.Start(ctx) }()
	go func() {
		if err := admin.Start(); err != nil && err != http.ErrServerClosed {
			errC <- fmt.Errorf("admin server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info(ctx, "collabd shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = admin.Shutdown()
		return srv.Shutdown(shutdownCtx)
	case err := <-errC:
		return err
	}
}

// noContactStore is the default when no contacts database is configured:
// every user has an empty contact list.
type noContactStore struct{}

func (noContactStore) ContactsForUser(context.Context, session.UserID) ([]session.Contact, error) {
	return nil, nil
}
