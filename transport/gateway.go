package transport

import (
	"context"
	"net"
	"sync"
	"time"

	ncerr "connboot/internal/errors"
	"connboot/internal/metrics"
	"connboot/internal/retry"
	"connboot/tunnel"
	"connboot/util"
)

// Gateway is an SSH session shared by every SSH backend value built on
// it.  The session is opened on first use, re-opened after it drops,
// and guarded by a circuit breaker so an unreachable gateway fails fast.
type Gateway struct {
	tunnel   *tunnel.SSHTunnel
	attempts int
	breaker  *retry.CircuitBreaker
	logger   *util.Logger
	metrics  *metrics.Collector

	mu sync.Mutex
}

// NewGateway prepares a gateway for cfg without connecting.
func NewGateway(cfg *tunnel.SSHConfig, opts ...Option) *Gateway {
	o := buildOptions(opts)
	logger := o.Logger.Scoped("gateway")

	breakerCfg := retry.DefaultCircuitBreakerConfig()
	if o.Breaker != nil {
		c := *o.Breaker
		breakerCfg = &c
	}
	prev := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(from, to retry.State) {
		logger.Verbose("circuit %s -> %s", from, to)
		if to == retry.StateOpen {
			o.Metrics.GatewayCircuitOpened()
		}
		if prev != nil {
			prev(from, to)
		}
	}

	return &Gateway{
		tunnel:   tunnel.NewSSHTunnel(cfg, o.Logger),
		attempts: o.GatewayAttempts,
		breaker:  retry.NewCircuitBreaker(breakerCfg),
		logger:   logger,
		metrics:  o.Metrics,
	}
}

// Config returns the effective SSH configuration.
func (g *Gateway) Config() tunnel.SSHConfig { return g.tunnel.Config() }

// Dial opens a stream to address through the gateway, connecting the
// session first if needed.
func (g *Gateway) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := g.ensure(ctx); err != nil {
		return nil, err
	}
	return g.tunnel.Dial(ctx, network, address)
}

// CircuitState reports the breaker guarding session attempts.
func (g *Gateway) CircuitState() retry.State { return g.breaker.State() }

// Close ends the session and closes the circuit.  A later Dial opens a
// new session with a clean failure count.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.breaker.Reset()
	return g.tunnel.Close()
}

// ensure connects the session unless it is alive.  Concurrent callers
// wait for the one attempt in flight.
func (g *Gateway) ensure(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tunnel.IsAlive() {
		return nil
	}

	b := retry.GatewayBackoff(g.attempts)
	b.Retryable = ncerr.IsRetryable
	cfg := g.tunnel.Config()
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		g.logger.Warn("attempt %d to reach %s failed: %v (retrying in %v)",
			attempt, cfg.String(), err, wait.Truncate(time.Millisecond))
	}

	return g.breaker.Execute(func() error {
		return b.Do(ctx, func(int) error {
			if err := g.tunnel.Connect(ctx); err != nil {
				return err
			}
			g.metrics.GatewaySession()
			return nil
		})
	})
}
