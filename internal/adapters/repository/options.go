package repository

import (
	"github.com/okian/minirank/pkg/logger"
)

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	logger    logger.Logger
	keyPrefix string
	maxConns  int32
}

func defaultOptions() options {
	return options{
		logger:    logger.Discard(),
		keyPrefix: "minirank",
		maxConns:  4,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithKeyPrefix namespaces redis keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithMaxConns caps the postgres connection pool.
func WithMaxConns(n int32) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConns = n
		}
	}
}
