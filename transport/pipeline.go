package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"connboot/bootstrap"
	ncerr "connboot/internal/errors"
	"connboot/internal/metrics"
	"connboot/util"
)

// pipeline is the configuration both backends share and the code that
// turns a raw stream into the connection handed to the caller.  It is
// copied by value on every configuration step.
type pipeline struct {
	init        bootstrap.Initializer
	handlers    func() []bootstrap.Handler
	handlersSet bool
	options     bootstrap.Options
	timeout     time.Duration
	tlsEnabled  bool
	tlsConfig   *tls.Config

	// err is the first configuration error; connect reports it.
	err error

	logger  *util.Logger
	metrics *metrics.Collector
}

func newPipeline(o Options, scope string) pipeline {
	return pipeline{logger: o.Logger.Scoped(scope), metrics: o.Metrics}
}

func (p pipeline) fail(err error) pipeline {
	if p.err == nil {
		p.err = err
	}
	return p
}

func (p pipeline) withInitializer(init bootstrap.Initializer) pipeline {
	p.init = init
	return p
}

func (p pipeline) withHandlers(handlers func() []bootstrap.Handler) pipeline {
	if p.handlersSet {
		return p.fail(ncerr.ErrHandlersAlreadySet)
	}
	p.handlers = handlers
	p.handlersSet = true
	return p
}

func (p pipeline) withOption(opt bootstrap.Option, value any) pipeline {
	p.options = p.options.With(opt, value)
	return p
}

func (p pipeline) withTimeout(d time.Duration) pipeline {
	p.timeout = d
	return p
}

func (p pipeline) withTLS(cfg *tls.Config) pipeline {
	if p.tlsEnabled {
		return p.fail(ncerr.ErrTLSAlreadyEnabled)
	}
	p.tlsEnabled = true
	if cfg != nil {
		p.tlsConfig = cfg.Clone()
	} else {
		p.tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return p
}

type dialFunc func(ctx context.Context) (net.Conn, error)

// run starts one connect attempt.  target names the destination in
// errors and logs; serverName is the TLS server name used when the
// config carries none.
func (p pipeline) run(ctx context.Context, target, serverName string, dial dialFunc) *bootstrap.Future {
	p.metrics.ConnectAttempt()
	if p.err != nil {
		p.metrics.ConnectFailed(p.err.Error())
		p.logger.Debug("%s: not connecting: %v", target, p.err)
		return bootstrap.Failed(p.err)
	}

	return bootstrap.Go(ctx, func(ctx context.Context) (net.Conn, error) {
		start := time.Now()
		conn, err := p.establish(ctx, target, serverName, dial)
		if err != nil {
			p.metrics.ConnectFailed(err.Error())
			p.logger.Debug("%s: %v", target, err)
			return nil, err
		}
		p.metrics.ConnectSucceeded()
		p.logger.Verbose("connected to %s in %v", target, time.Since(start).Truncate(time.Millisecond))
		return conn, nil
	})
}

// establish runs raw dial, TLS, handlers and initializer in that order
// under the connect timeout.  The stream is closed on any failure.
func (p pipeline) establish(ctx context.Context, target, serverName string, dial dialFunc) (net.Conn, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	conn, err := dial(ctx)
	if err != nil {
		return nil, ncerr.Wrap("dial", target, err)
	}

	if p.tlsEnabled {
		cfg := p.tlsConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = serverName
		}
		tc := tls.Client(conn, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, ncerr.Wrap("tls", target, err)
		}
		p.metrics.TLSHandshake()
		p.logger.Debug("%s: TLS %s established", target, tls.VersionName(tc.ConnectionState().Version))
		conn = tc
	}

	if p.handlers != nil {
		for _, h := range p.handlers() {
			next, err := h.Handshake(ctx, conn)
			if err != nil {
				conn.Close()
				return nil, ncerr.Wrap("handler", target, err)
			}
			conn = next
		}
	}

	if p.init != nil {
		p.metrics.InitializerInvoked()
		if err := p.init(ctx, conn); err != nil {
			conn.Close()
			return nil, ncerr.Wrap("init", target, err)
		}
	}
	return conn, nil
}
