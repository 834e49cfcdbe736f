// Package transport provides the connection backends behind
// bootstrap.ClientBootstrap: Socket dials directly with net.Dialer, SSH
// forwards every stream through a shared SSH gateway.  Each backend has
// exactly one TLS provider, SocketTLS and SSHTLS respectively.
//
// Both backends are immutable values.  Configuration problems (protocol
// handlers or TLS set twice, options the backend cannot apply) are
// recorded when configuring and reported through the Future of the next
// connect call.
package transport

import (
	"connboot/internal/metrics"
	"connboot/internal/retry"
	"connboot/util"
)

// Options carries the ambient dependencies of a backend or gateway.
type Options struct {
	Logger          *util.Logger
	Metrics         *metrics.Collector
	GatewayAttempts int
	Breaker         *retry.CircuitBreakerConfig
}

// Option configures Options.
type Option func(opts *Options)

// WithLogger sets the logger.  A nil logger keeps the backend quiet.
func WithLogger(logger *util.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics sets the collector that connect outcomes are counted in.
func WithMetrics(c *metrics.Collector) Option {
	return func(opts *Options) {
		opts.Metrics = c
	}
}

// WithGatewayAttempts bounds how many times a gateway tries to
// establish its SSH session before giving up (default 3).
func WithGatewayAttempts(n int) Option {
	return func(opts *Options) {
		opts.GatewayAttempts = n
	}
}

// WithCircuitBreaker overrides the gateway's circuit breaker settings.
func WithCircuitBreaker(cfg *retry.CircuitBreakerConfig) Option {
	return func(opts *Options) {
		opts.Breaker = cfg
	}
}

func buildOptions(opts []Option) Options {
	o := Options{GatewayAttempts: 3}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
