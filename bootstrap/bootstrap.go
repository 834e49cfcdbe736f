package bootstrap

import (
	"context"
	"fmt"
	"net"
	"reflect"
	"time"

	ncerr "connboot/internal/errors"
)

// Configuration errors reported by backends through the Future.
var (
	ErrHandlersAlreadySet = ncerr.ErrHandlersAlreadySet
	ErrTLSAlreadyEnabled  = ncerr.ErrTLSAlreadyEnabled
	ErrUnsupportedOption  = ncerr.ErrUnsupportedOption
	ErrInsecureNoTLS      = ncerr.ErrInsecureNoTLS
)

// InvariantError is the panic value raised when ClientBootstrap finds a
// backend of a type it was not built for.  It signals a defect in this
// package, never a caller mistake that can be handled.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "bootstrap: invariant violated: " + e.Msg
}

// erased is the type-erased view of a Backend.  Every method hands back
// another erased value wrapping the same concrete type.
type erased interface {
	withInitializer(init Initializer) erased
	withProtocolHandlers(handlers func() []Handler) erased
	withOption(opt Option, value any) erased
	withConnectTimeout(d time.Duration) erased
	connect(ctx context.Context, host string, port int) *Future
	connectAddr(ctx context.Context, addr net.Addr) *Future
	connectPath(ctx context.Context, path string) *Future
}

// boxed carries a concrete backend through the erased interface.
type boxed[B Backend[B]] struct {
	backend B
}

func (x boxed[B]) withInitializer(init Initializer) erased {
	return boxed[B]{backend: x.backend.WithInitializer(init)}
}

func (x boxed[B]) withProtocolHandlers(handlers func() []Handler) erased {
	return boxed[B]{backend: x.backend.WithProtocolHandlers(handlers)}
}

func (x boxed[B]) withOption(opt Option, value any) erased {
	return boxed[B]{backend: x.backend.WithOption(opt, value)}
}

func (x boxed[B]) withConnectTimeout(d time.Duration) erased {
	return boxed[B]{backend: x.backend.WithConnectTimeout(d)}
}

func (x boxed[B]) connect(ctx context.Context, host string, port int) *Future {
	return x.backend.Connect(ctx, host, port)
}

func (x boxed[B]) connectAddr(ctx context.Context, addr net.Addr) *Future {
	return x.backend.ConnectAddr(ctx, addr)
}

func (x boxed[B]) connectPath(ctx context.Context, path string) *Future {
	return x.backend.ConnectPath(ctx, path)
}

// ClientBootstrap is an immutable connection description whose backend
// type is hidden.  Every configuration method returns a new value; the
// receiver is never modified, so a ClientBootstrap can be shared freely
// between goroutines.
//
// The zero value is not usable; build one with New.
type ClientBootstrap struct {
	backend erased
	enable  func(erased) erased
}

// New binds backend to provider.  The provider stays attached to every
// ClientBootstrap derived from the result.  A nil provider, including a
// typed nil such as TLSProviderFunc[B](nil), panics with *InvariantError.
func New[B Backend[B]](backend B, provider TLSProvider[B]) ClientBootstrap {
	if isNil(provider) {
		panic(&InvariantError{Msg: fmt.Sprintf("nil TLS provider for %T", backend)})
	}
	enable := func(e erased) erased {
		x, ok := e.(boxed[B])
		if !ok {
			panic(&InvariantError{
				Msg: fmt.Sprintf("TLS provider %T bound to %T received %T", provider, backend, e),
			})
		}
		return boxed[B]{backend: provider.EnableTLS(x.backend)}
	}
	return ClientBootstrap{backend: boxed[B]{backend: backend}, enable: enable}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Underlying returns the concrete backend held by c when it is a B.
func Underlying[B Backend[B]](c ClientBootstrap) (B, bool) {
	x, ok := c.backend.(boxed[B])
	return x.backend, ok
}

func (c ClientBootstrap) current() erased {
	if c.backend == nil || c.enable == nil {
		panic(&InvariantError{Msg: "zero ClientBootstrap used; construct it with New"})
	}
	return c.backend
}

func (c ClientBootstrap) derive(next erased) ClientBootstrap {
	return ClientBootstrap{backend: next, enable: c.enable}
}

// WithInitializer replaces the per-connection initializer.
func (c ClientBootstrap) WithInitializer(init Initializer) ClientBootstrap {
	return c.derive(c.current().withInitializer(init))
}

// WithProtocolHandlers sets the protocol handlers.  Only one call per
// lineage is allowed; see Backend.
func (c ClientBootstrap) WithProtocolHandlers(handlers func() []Handler) ClientBootstrap {
	return c.derive(c.current().withProtocolHandlers(handlers))
}

// WithOption attaches a configuration entry to the backend.
func (c ClientBootstrap) WithOption(opt Option, value any) ClientBootstrap {
	return c.derive(c.current().withOption(opt, value))
}

// WithConnectTimeout bounds the connection attempt.
func (c ClientBootstrap) WithConnectTimeout(d time.Duration) ClientBootstrap {
	return c.derive(c.current().withConnectTimeout(d))
}

// EnableTLS applies the provider given to New to the current backend.
// Enabling TLS twice on one lineage is reported by the backend as
// ErrTLSAlreadyEnabled when connecting.
func (c ClientBootstrap) EnableTLS() ClientBootstrap {
	return c.derive(c.enable(c.current()))
}

// Connect starts a connection to host:port.
func (c ClientBootstrap) Connect(ctx context.Context, host string, port int) *Future {
	return c.current().connect(ctx, host, port)
}

// ConnectAddr starts a connection to addr.
func (c ClientBootstrap) ConnectAddr(ctx context.Context, addr net.Addr) *Future {
	return c.current().connectAddr(ctx, addr)
}

// ConnectPath starts a connection to the unix domain socket at path.
func (c ClientBootstrap) ConnectPath(ctx context.Context, path string) *Future {
	return c.current().connectPath(ctx, path)
}
