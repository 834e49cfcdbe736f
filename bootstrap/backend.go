// Package bootstrap describes outbound connections without committing
// the call site to one connection-establishment implementation.
//
// A Backend is a concrete, immutable connector configuration (a plain
// socket dialer, an SSH-tunnelled dialer, ...).  A TLSProvider knows how
// to enable TLS on exactly one Backend type.  ClientBootstrap erases the
// backend type so heterogeneous backends share one chainable API, while
// guaranteeing that TLS is only ever enabled on the backend type the
// provider was bound to.
//
//	boot := bootstrap.New(transport.NewSocket(), transport.SocketTLS{Config: cfg}).
//		WithConnectTimeout(10 * time.Second).
//		EnableTLS()
//	conn, err := boot.Connect(ctx, "example.com", 443).Wait(ctx)
package bootstrap

import (
	"context"
	"net"
	"time"
)

// Initializer prepares one freshly established connection.  Backends
// may race several attempts for a single connect call, so an
// Initializer can run more than once and concurrently; it must build
// fresh per-connection state on every call.
type Initializer func(ctx context.Context, conn net.Conn) error

// Handler is a protocol layer installed on every connection before the
// Initializer runs.  Handshake may return a wrapped connection.
type Handler interface {
	Handshake(ctx context.Context, conn net.Conn) (net.Conn, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn net.Conn) (net.Conn, error)

// Handshake calls f(ctx, conn).
func (f HandlerFunc) Handshake(ctx context.Context, conn net.Conn) (net.Conn, error) {
	return f(ctx, conn)
}

// Backend is the capability set every concrete connector implements.
// B is the implementing type itself: each configuration method returns
// a new B and never mutates the receiver.
type Backend[B any] interface {
	// WithInitializer replaces the per-connection initializer.
	WithInitializer(init Initializer) B

	// WithProtocolHandlers sets the handler-producing function.  It may
	// be called at most once per lineage; a second call is reported as
	// ErrHandlersAlreadySet, at the latest when connecting.
	WithProtocolHandlers(handlers func() []Handler) B

	// WithOption attaches a configuration entry.  A later value for the
	// same option replaces the earlier one.
	WithOption(opt Option, value any) B

	// WithConnectTimeout bounds the eventual connection attempt.
	WithConnectTimeout(d time.Duration) B

	// Connect resolves host and connects to port.
	Connect(ctx context.Context, host string, port int) *Future

	// ConnectAddr connects to an already resolved address.
	ConnectAddr(ctx context.Context, addr net.Addr) *Future

	// ConnectPath connects to a filesystem (unix domain socket) path.
	ConnectPath(ctx context.Context, path string) *Future
}
