package core

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"strings"

	"connboot/bootstrap"
	"connboot/config"
	ncerr "connboot/internal/errors"
	"connboot/internal/capability"
	"connboot/internal/metrics"
	"connboot/transport"
	"connboot/tunnel"
	"connboot/util"
)

// Build constructs the Mode for cfg.  cfg must have been validated.
func Build(cfg *config.Config, logger *util.Logger, collector *metrics.Collector) (Mode, error) {
	if cfg.UnixPath == "" {
		if _, err := util.ResolveAddr(cfg.Host, cfg.Port, cfg.NoDNS); err != nil {
			return nil, &ncerr.ConfigError{Field: "nodns", Value: cfg.Host, Message: err.Error()}
		}
	}

	boot, closer, err := buildBootstrap(cfg, logger, collector)
	if err != nil {
		return nil, err
	}

	if cfg.ZeroIO {
		ports := cfg.AllPorts()
		if len(ports) == 0 && cfg.Port > 0 {
			ports = []int{cfg.Port}
		}
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = config.DefaultScanTimeout
		}
		return &ScanMode{
			Bootstrap:   boot,
			Host:        cfg.Host,
			Ports:       ports,
			Timeout:     timeout,
			Concurrency: config.DefaultMaxConcurrentScans,
			Closer:      closer,
			Logger:      logger,
			Verbose:     cfg.Verbose,
		}, nil
	}

	target := Target{Host: cfg.Host, Port: cfg.Port, Path: cfg.UnixPath}
	if target.Path == "" && target.Port == 0 {
		if ports := cfg.AllPorts(); len(ports) > 0 {
			target.Port = ports[0]
		}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = config.DefaultConnTimeout
	}
	return &ConnectMode{
		Bootstrap:  boot.WithConnectTimeout(timeout),
		Target:     target,
		Capability: buildCapability(cfg),
		Closer:     closer,
		Logger:     logger,
		Metrics:    collector,
	}, nil
}

// bind pairs backend with its TLS provider, or with the insecure
// provider when TLS is off so an accidental EnableTLS cannot silently
// produce plaintext.
func bind[B bootstrap.Backend[B]](backend B, useTLS bool, provider bootstrap.TLSProvider[B]) bootstrap.ClientBootstrap {
	if !useTLS {
		return bootstrap.New(backend, bootstrap.InsecureNoTLS[B]{})
	}
	return bootstrap.New(backend, provider)
}

// buildBootstrap selects the backend and applies every configuration
// step.  TLS is enabled last.  The returned Closer releases backend
// resources such as the SSH gateway.
func buildBootstrap(cfg *config.Config, logger *util.Logger, collector *metrics.Collector) (bootstrap.ClientBootstrap, io.Closer, error) {
	var tlsCfg *tls.Config
	if cfg.TLS.Enabled {
		c, err := config.LoadTLS(cfg.TLS)
		if err != nil {
			return bootstrap.ClientBootstrap{}, nil, &ncerr.ConfigError{Field: "tls", Message: err.Error()}
		}
		tlsCfg = c
	}

	opts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithMetrics(collector),
		transport.WithGatewayAttempts(cfg.GatewayAttempts),
	}

	var (
		boot   bootstrap.ClientBootstrap
		closer io.Closer = nopCloser{}
	)
	if cfg.TunnelEnabled {
		gw := transport.NewGateway(sshConfig(cfg), opts...)
		boot = bind(transport.NewSSH(gw, opts...), cfg.TLS.Enabled, transport.SSHTLS{Config: tlsCfg})
		closer = gw
	} else {
		s := transport.NewSocket(opts...)
		if local := localAddr(cfg); local != nil {
			s = s.WithLocalAddr(local)
		}
		boot = bind(s, cfg.TLS.Enabled, transport.SocketTLS{Config: tlsCfg})
	}

	for _, so := range cfg.Sockopts {
		opt, ok := transport.LookupSocketOption(so.Name)
		if !ok {
			return bootstrap.ClientBootstrap{}, nil, &ncerr.ConfigError{
				Field:   "sockopt",
				Value:   so.Name,
				Message: "unknown socket option",
				Hint:    "known options: " + strings.Join(transport.SocketOptionNames(), ", "),
			}
		}
		boot = boot.WithOption(opt, so.Value)
	}

	boot = boot.WithInitializer(readyLogger(logger))
	if cfg.TLS.Enabled {
		boot = boot.EnableTLS()
	}
	return boot, closer, nil
}

// readyLogger returns the initializer the command installs.  It keeps
// no state, so concurrent invocations are safe.
func readyLogger(logger *util.Logger) bootstrap.Initializer {
	return func(_ context.Context, conn net.Conn) error {
		logger.Debug("ready %s -> %s", conn.LocalAddr(), conn.RemoteAddr())
		return nil
	}
}

func sshConfig(cfg *config.Config) *tunnel.SSHConfig {
	return &tunnel.SSHConfig{
		User:          cfg.TunnelUser,
		Host:          cfg.TunnelHost,
		Port:          cfg.TunnelPort,
		KeyPath:       cfg.SSHKeyPath,
		Password:      cfg.SSHPass,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   cfg.Timeout,
	}
}

func localAddr(cfg *config.Config) net.Addr {
	if cfg.SourceAddr == "" && cfg.LocalPort == 0 {
		return nil
	}
	return &net.TCPAddr{IP: net.ParseIP(cfg.SourceAddr), Port: cfg.LocalPort}
}

func buildCapability(cfg *config.Config) capability.Capability {
	if cfg.Execute != "" || cfg.Command != "" {
		return &capability.Exec{Program: cfg.Execute, Command: cfg.Command}
	}
	return &capability.Relay{}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
