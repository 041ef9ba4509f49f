package pool

import (
	"github.com/bang-go/collabd/telemetry/logger"
)

// Option configures a Pool built by New.
type Option func(*options)

type options struct {
	panicHandler func(interface{})
	logger       *logger.Logger
	nonBlocking  bool
	queueSize    int
}

// WithPanicHandler installs a callback invoked with the recover() value
// when a task panics, replacing the default error log.
func WithPanicHandler(h func(interface{})) Option {
	return func(o *options) {
		o.panicHandler = h
	}
}

// WithLogger sets the logger used to report task panics when no
// PanicHandler is installed.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithNonBlocking makes Submit return ErrPoolFull immediately when the
// queue is full instead of blocking for a slot.
func WithNonBlocking(b bool) Option {
	return func(o *options) {
		o.nonBlocking = b
	}
}

// WithQueueSize sets the task queue depth. Zero or negative falls back to
// the worker count.
func WithQueueSize(size int) Option {
	return func(o *options) {
		o.queueSize = size
	}
}
