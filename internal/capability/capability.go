// Package capability defines what happens over an established
// connection: relaying local stdio, or handing the connection to a
// child process.
package capability

import (
	"context"

	"connboot/internal/session"
)

// Capability handles one connection.  Handle blocks until the
// connection is done or ctx is cancelled.
type Capability interface {
	Handle(ctx context.Context, sess *session.Session) error
}
