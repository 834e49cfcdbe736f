package transport

import (
	"context"
	"net"
	"time"

	"connboot/bootstrap"
	ncerr "connboot/internal/errors"
	"connboot/util"
)

// SSH forwards every connection through a Gateway.  TCP targets use
// direct-tcpip channels, filesystem paths the OpenSSH
// direct-streamlocal extension.  It accepts no options.
type SSH struct {
	pipeline
	gateway *Gateway
}

var _ bootstrap.Backend[SSH] = SSH{}

// NewSSH returns an SSH backend forwarding through gw.
func NewSSH(gw *Gateway, opts ...Option) SSH {
	return SSH{pipeline: newPipeline(buildOptions(opts), "ssh"), gateway: gw}
}

func (s SSH) WithInitializer(init bootstrap.Initializer) SSH {
	s.pipeline = s.pipeline.withInitializer(init)
	return s
}

func (s SSH) WithProtocolHandlers(handlers func() []bootstrap.Handler) SSH {
	s.pipeline = s.pipeline.withHandlers(handlers)
	return s
}

// WithOption records opt; connecting then fails with
// ErrUnsupportedOption because forwarded streams have no local socket.
func (s SSH) WithOption(opt bootstrap.Option, value any) SSH {
	s.pipeline = s.pipeline.withOption(opt, value).fail(ncerr.Unsupported("ssh", optionLabel(opt)))
	return s
}

func (s SSH) WithConnectTimeout(d time.Duration) SSH {
	s.pipeline = s.pipeline.withTimeout(d)
	return s
}

func (s SSH) Connect(ctx context.Context, host string, port int) *bootstrap.Future {
	return s.forward(ctx, "tcp", util.FormatAddr(host, port), host)
}

func (s SSH) ConnectAddr(ctx context.Context, addr net.Addr) *bootstrap.Future {
	return s.forward(ctx, addr.Network(), addr.String(), util.HostOf(addr))
}

func (s SSH) ConnectPath(ctx context.Context, path string) *bootstrap.Future {
	return s.forward(ctx, "unix", path, "")
}

func (s SSH) forward(ctx context.Context, network, address, serverName string) *bootstrap.Future {
	p := s.pipeline
	gw := s.gateway
	if gw == nil {
		p = p.fail(ncerr.ErrNotConnected)
	}
	p.logger.Debug("forwarding %s %s", network, address)
	return p.run(ctx, address, serverName, func(ctx context.Context) (net.Conn, error) {
		return gw.Dial(ctx, network, address)
	})
}

func optionLabel(opt bootstrap.Option) string {
	if s, ok := opt.(interface{ String() string }); ok {
		return s.String()
	}
	return opt.OptionName()
}
