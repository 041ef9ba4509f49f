// Package gormx builds the instrumented GORM client backing the contacts
// database: Prometheus histograms/counters per statement, OpenTelemetry
// tracing, and structured access logging through telemetry/logger.
package gormx

import (
	"errors"
	"time"

	"github.com/bang-go/collabd/telemetry/logger"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

var (
	DBRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collabd_db_request_duration_seconds",
			Help:    "Database request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"db_name", "operation", "status", "table"},
	)

	DBRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabd_db_requests_total",
			Help: "Database requests total",
		},
		[]string{"db_name", "operation", "status", "table"},
	)
)

func init() {
	prometheus.MustRegister(DBRequestDuration)
	prometheus.MustRegister(DBRequestsTotal)
}

type Config struct {
	Name         string // Database logical name for metrics (e.g., "contacts")
	Driver       string // "mysql" or "postgres"
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
	Trace        bool

	Logger       *logger.Logger
	EnableLogger bool
}

func New(conf *Config) (*gorm.DB, error) {
	if conf == nil {
		return nil, errors.New("config is nil")
	}
	if conf.Logger == nil {
		conf.Logger = logger.New(logger.WithLevel("info"))
	}
	if conf.Name == "" {
		conf.Name = "default"
	}

	var dialector gorm.Dialector
	switch conf.Driver {
	case "mysql":
		dialector = mysql.Open(conf.DSN)
	case "postgres":
		dialector = postgres.Open(conf.DSN)
	default:
		return nil, errors.New("unsupported driver: " + conf.Driver)
	}

	// GORM's own logger is discarded; the plugin below owns logging so
	// every statement goes through the shared structured logger once.
	gormConfig := &gorm.Config{
		Logger: gormlogger.Discard,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if conf.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(conf.MaxIdleConns)
	}
	if conf.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(conf.MaxOpenConns)
	}
	if conf.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(conf.MaxLifetime)
	}

	err = db.Use(&plugin{
		logger:       conf.Logger,
		enableLogger: conf.EnableLogger,
		dbName:       conf.Name,
	})
	if err != nil {
		return nil, err
	}

	if conf.Trace {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, err
		}
	}

	return db, nil
}

type plugin struct {
	logger       *logger.Logger
	enableLogger bool
	dbName       string
}

func (p *plugin) Name() string {
	return "collabd_gorm_plugin"
}

func (p *plugin) Initialize(db *gorm.DB) error {
	return p.registerCallbacks(db)
}

func (p *plugin) registerCallbacks(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("collabd:before_create", p.before); err != nil {
		return err
	}
	if err := db.Callback().Create().After("gorm:create").Register("collabd:after_create", p.after("create")); err != nil {
		return err
	}

	if err := db.Callback().Query().Before("gorm:query").Register("collabd:before_query", p.before); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("collabd:after_query", p.after("query")); err != nil {
		return err
	}

	if err := db.Callback().Update().Before("gorm:update").Register("collabd:before_update", p.before); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("collabd:after_update", p.after("update")); err != nil {
		return err
	}

	if err := db.Callback().Delete().Before("gorm:delete").Register("collabd:before_delete", p.before); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("collabd:after_delete", p.after("delete")); err != nil {
		return err
	}

	if err := db.Callback().Row().Before("gorm:row").Register("collabd:before_row", p.before); err != nil {
		return err
	}
	if err := db.Callback().Row().After("gorm:row").Register("collabd:after_row", p.after("row")); err != nil {
		return err
	}

	if err := db.Callback().Raw().Before("gorm:raw").Register("collabd:before_raw", p.before); err != nil {
		return err
	}
	if err := db.Callback().Raw().After("gorm:raw").Register("collabd:after_raw", p.after("raw")); err != nil {
		return err
	}

	return nil
}

const startTimeKey = "collabd:start_time"

func (p *plugin) before(db *gorm.DB) {
	db.InstanceSet(startTimeKey, time.Now())
}

func (p *plugin) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		startTime, ok := db.InstanceGet(startTimeKey)
		if !ok {
			return
		}

		t, ok := startTime.(time.Time)
		if !ok {
			return
		}

		duration := time.Since(t).Seconds()
		status := "success"
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			status = "error"
		}

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}

		DBRequestDuration.WithLabelValues(p.dbName, operation, status, table).Observe(duration)
		DBRequestsTotal.WithLabelValues(p.dbName, operation, status, table).Inc()

		if p.enableLogger {
			sql := db.Dialector.Explain(db.Statement.SQL.String(), db.Statement.Vars...)

			if status == "error" {
				p.logger.Error(db.Statement.Context, "db_query_failed",
					"db", p.dbName,
					"operation", operation,
					"table", table,
					"sql", sql,
					"rows", db.RowsAffected,
					"error", db.Error,
					"cost", duration,
				)
			} else {
				p.logger.Info(db.Statement.Context, "db_access_log",
					"db", p.dbName,
					"operation", operation,
					"table", table,
					"sql", sql,
					"rows", db.RowsAffected,
					"status", status,
					"cost", duration,
				)
			}
		}
	}
}
