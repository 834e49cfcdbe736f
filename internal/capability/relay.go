package capability

import (
	"context"

	"connboot/internal/session"
	"connboot/util"
)

// Relay copies between the connection and the session's stdin/stdout.
type Relay struct{}

// Handle shuttles bytes until both directions are finished or ctx is
// cancelled, then records the totals.
func (r *Relay) Handle(ctx context.Context, sess *session.Session) error {
	stats, err := util.Relay(ctx, sess.Conn, sess.Stdin, sess.Stdout)
	sess.Metrics.BytesReceived(stats.In)
	sess.Metrics.BytesSent(stats.Out)
	sess.Logger.Debug("relay done: %d bytes in, %d bytes out", stats.In, stats.Out)
	return err
}
