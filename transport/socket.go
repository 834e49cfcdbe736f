package transport

import (
	"context"
	"net"
	"time"

	"connboot/bootstrap"
	"connboot/util"
)

// Socket connects with the operating system's sockets through
// net.Dialer.  Host names are resolved by the dialer; with both address
// families available the connection races IPv6 and IPv4.
type Socket struct {
	pipeline
	localAddr     net.Addr
	fallbackDelay time.Duration
}

var _ bootstrap.Backend[Socket] = Socket{}

// NewSocket returns an unconfigured socket backend.
func NewSocket(opts ...Option) Socket {
	return Socket{pipeline: newPipeline(buildOptions(opts), "socket")}
}

func (s Socket) WithInitializer(init bootstrap.Initializer) Socket {
	s.pipeline = s.pipeline.withInitializer(init)
	return s
}

func (s Socket) WithProtocolHandlers(handlers func() []bootstrap.Handler) Socket {
	s.pipeline = s.pipeline.withHandlers(handlers)
	return s
}

// WithOption sets a socket option.  Options other than SocketOption are
// rejected when connecting.
func (s Socket) WithOption(opt bootstrap.Option, value any) Socket {
	s.pipeline = s.pipeline.withOption(opt, value)
	return s
}

func (s Socket) WithConnectTimeout(d time.Duration) Socket {
	s.pipeline = s.pipeline.withTimeout(d)
	return s
}

// WithLocalAddr binds outgoing connections to addr.
func (s Socket) WithLocalAddr(addr net.Addr) Socket {
	s.localAddr = addr
	return s
}

// WithFallbackDelay sets how long the dialer waits on the primary
// address family before racing the other one.  Negative disables the
// race.
func (s Socket) WithFallbackDelay(d time.Duration) Socket {
	s.fallbackDelay = d
	return s
}

func (s Socket) Connect(ctx context.Context, host string, port int) *bootstrap.Future {
	return s.dial(ctx, "tcp", util.FormatAddr(host, port), host)
}

func (s Socket) ConnectAddr(ctx context.Context, addr net.Addr) *bootstrap.Future {
	return s.dial(ctx, addr.Network(), addr.String(), util.HostOf(addr))
}

func (s Socket) ConnectPath(ctx context.Context, path string) *bootstrap.Future {
	return s.dial(ctx, "unix", path, "")
}

func (s Socket) dial(ctx context.Context, network, address, serverName string) *bootstrap.Future {
	p := s.pipeline
	control, err := socketControl(p.options, network)
	if err != nil {
		p = p.fail(err)
	}

	d := &net.Dialer{
		LocalAddr:     s.localAddr,
		FallbackDelay: s.fallbackDelay,
		Control:       control,
	}
	p.logger.Debug("dialing %s %s", network, address)
	return p.run(ctx, address, serverName, func(ctx context.Context) (net.Conn, error) {
		return d.DialContext(ctx, network, address)
	})
}
