// Package session binds one established connection to the local I/O
// endpoints and the ambient logger and metrics, so capabilities do not
// care whether they talk to a terminal or a test buffer.
package session

import (
	"io"
	"net"

	"connboot/internal/metrics"
	"connboot/util"
)

// Session is the runtime context of a single connection.
type Session struct {
	Conn    net.Conn
	Stdin   io.Reader
	Stdout  io.Writer
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// New creates a Session bound to conn and the given I/O pair.
func New(conn net.Conn, stdin io.Reader, stdout io.Writer, logger *util.Logger) *Session {
	return &Session{
		Conn:   conn,
		Stdin:  stdin,
		Stdout: stdout,
		Logger: logger,
	}
}

// Counted returns Conn wrapped so every byte read or written is
// recorded in Metrics.
func (s *Session) Counted() net.Conn {
	if s.Metrics == nil {
		return s.Conn
	}
	return &countingConn{Conn: s.Conn, m: s.Metrics}
}

type countingConn struct {
	net.Conn
	m *metrics.Collector
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.m.BytesReceived(int64(n))
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.m.BytesSent(int64(n))
	return n, err
}
