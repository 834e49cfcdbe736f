package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"connboot/bootstrap"
	"connboot/internal/capability"
	"connboot/internal/metrics"
	"connboot/internal/session"
	"connboot/util"
)

// Target is where a connection goes: a unix socket path, or host:port.
type Target struct {
	Host string
	Port int
	Path string
}

func (t Target) String() string {
	if t.Path != "" {
		return t.Path
	}
	return util.FormatAddr(t.Host, t.Port)
}

func (t Target) connect(ctx context.Context, boot bootstrap.ClientBootstrap) *bootstrap.Future {
	if t.Path != "" {
		return boot.ConnectPath(ctx, t.Path)
	}
	return boot.Connect(ctx, t.Host, t.Port)
}

// ConnectMode opens one connection through Bootstrap and runs a
// capability on it.  This is the default mode.
type ConnectMode struct {
	Bootstrap  bootstrap.ClientBootstrap
	Target     Target
	Capability capability.Capability
	Closer     io.Closer
	Logger     *util.Logger
	Metrics    *metrics.Collector

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *ConnectMode) String() string {
	return fmt.Sprintf("connect %s, then %T", m.Target, m.Capability)
}

// Run connects, wraps the connection in a session and hands it to the
// capability.  The connection and the backend are released when Run
// returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	if m.Closer != nil {
		defer m.Closer.Close()
	}

	m.Logger.Verbose("connecting to %s", m.Target)

	fut := m.Target.connect(ctx, m.Bootstrap)
	conn, err := fut.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			fut.Cancel()
			go closeLate(fut)
		}
		return fmt.Errorf("connect to %s: %w", m.Target, err)
	}
	defer conn.Close()

	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	sess := session.New(conn, m.stdin(), m.stdout(), m.Logger)
	sess.Metrics = m.Metrics
	return m.Capability.Handle(ctx, sess)
}

// closeLate releases a connection that completed after the caller
// stopped waiting for it.
func closeLate(fut *bootstrap.Future) {
	if conn, err := fut.Result(); err == nil {
		conn.Close()
	}
}

