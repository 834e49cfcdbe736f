// Package tunnel opens the encrypted SSH gateway through which the SSH
// connection backend forwards its streams.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is a live channel to a gateway host that can open forwarded
// streams on the caller's behalf.
type Tunnel interface {
	// Connect establishes (or re-establishes) the gateway session.
	Connect(ctx context.Context) error

	// Dial opens a stream to address as seen from the gateway.  network
	// is "tcp", "tcp4", "tcp6" or "unix".
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears the session down.  Streams already opened are closed
	// with it.
	Close() error

	// IsAlive reports whether the session is still usable.
	IsAlive() bool
}
