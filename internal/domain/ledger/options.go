package ledger

import (
	"github.com/okian/minirank/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithWindow labels logs and metrics with the window being folded.
func WithWindow(window string) Option {
	return func(g *Aggregator) {
		if window != "" {
			g.window = window
		}
	}
}

// WithLogger sets a custom logger for the aggregator.
func WithLogger(l logger.Logger) Option {
	return func(g *Aggregator) {
		if l != nil {
			g.logger = l
		}
	}
}
