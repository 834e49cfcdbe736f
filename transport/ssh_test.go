package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"connboot/bootstrap"
	ncerr "connboot/internal/errors"
	"connboot/internal/metrics"
	"connboot/internal/retry"
	"connboot/internal/sshtest"
	"connboot/internal/tlstest"
	"connboot/tunnel"
)

func newTestGateway(t *testing.T, srv *sshtest.Server, opts ...Option) *Gateway {
	t.Helper()
	t.Setenv("SSH_AUTH_SOCK", "")
	gw := NewGateway(&tunnel.SSHConfig{
		User:        sshtest.User,
		Password:    sshtest.Password,
		Host:        srv.Host(),
		Port:        srv.Port(),
		ConnTimeout: 5 * time.Second,
	}, opts...)
	t.Cleanup(func() { gw.Close() })
	return gw
}

func TestSSH_Connect(t *testing.T) {
	srv := sshtest.Start(t)
	host, port := startEcho(t)

	conn, err := NewSSH(newTestGateway(t, srv)).Connect(context.Background(), host, port).Result()
	require.NoError(t, err)
	defer conn.Close()

	requireEcho(t, conn, "through the gateway")
	require.Equal(t, int64(1), srv.Channels())
}

func TestSSH_ConnectPath(t *testing.T) {
	srv := sshtest.Start(t)
	path := startUnixEcho(t)

	conn, err := NewSSH(newTestGateway(t, srv)).ConnectPath(context.Background(), path).Result()
	require.NoError(t, err)
	defer conn.Close()
	requireEcho(t, conn, "streamlocal")
}

func TestSSH_ConnectAddr(t *testing.T) {
	srv := sshtest.Start(t)
	host, port := startEcho(t)

	addr := &net.TCPAddr{IP: net.ParseIP(host), Port: port}
	conn, err := NewSSH(newTestGateway(t, srv)).ConnectAddr(context.Background(), addr).Result()
	require.NoError(t, err)
	defer conn.Close()
	requireEcho(t, conn, "addr")
}

func TestSSH_TLSEndToEnd(t *testing.T) {
	srv := sshtest.Start(t)
	pair := tlstest.Generate(t)
	host, port := splitHostPort(t, pair.Listen(t))

	c := metrics.New()
	gw := newTestGateway(t, srv, WithMetrics(c))
	boot := bootstrap.New(NewSSH(gw, WithMetrics(c)), SSHTLS{Config: pair.ClientConfig(t)}).
		WithConnectTimeout(5 * time.Second).
		EnableTLS()

	conn, err := boot.Connect(context.Background(), host, port).Result()
	require.NoError(t, err)
	defer conn.Close()
	requireEcho(t, conn, "tls over ssh")

	snap := c.Snapshot()
	require.Equal(t, int64(1), snap.TLSHandshakes)
	require.Equal(t, int64(1), snap.GatewaySessions)
}

func TestSSH_SharesOneSession(t *testing.T) {
	srv := sshtest.Start(t)
	host, port := startEcho(t)
	backend := NewSSH(newTestGateway(t, srv))

	for i := 0; i < 3; i++ {
		conn, err := backend.Connect(context.Background(), host, port).Result()
		require.NoError(t, err)
		conn.Close()
	}
	require.Equal(t, int64(1), srv.Logins())
	require.Equal(t, int64(3), srv.Channels())
}

func TestSSH_RejectsOptions(t *testing.T) {
	srv := sshtest.Start(t)
	host, port := startEcho(t)

	_, err := NewSSH(newTestGateway(t, srv)).
		WithOption(TCPNoDelay, 1).
		Connect(context.Background(), host, port).Result()
	require.ErrorIs(t, err, ncerr.ErrUnsupportedOption)
	require.Zero(t, srv.Logins(), "a misconfigured backend must not reach the gateway")
}

func TestSSH_NilGateway(t *testing.T) {
	_, err := NewSSH(nil).Connect(context.Background(), "127.0.0.1", 80).Result()
	require.ErrorIs(t, err, ncerr.ErrNotConnected)
}

func TestSSH_HandlersTwice(t *testing.T) {
	none := func() []bootstrap.Handler { return nil }
	_, err := NewSSH(nil).
		WithProtocolHandlers(none).
		WithProtocolHandlers(none).
		Connect(context.Background(), "127.0.0.1", 80).Result()
	require.ErrorIs(t, err, ncerr.ErrHandlersAlreadySet)
}

func TestGateway_AuthFailureIsNotRetried(t *testing.T) {
	srv := sshtest.Start(t)
	t.Setenv("SSH_AUTH_SOCK", "")

	gw := NewGateway(&tunnel.SSHConfig{
		User:     sshtest.User,
		Password: "wrong",
		Host:     srv.Host(),
		Port:     srv.Port(),
	}, WithGatewayAttempts(5))
	defer gw.Close()

	start := time.Now()
	_, err := gw.Dial(context.Background(), "tcp", "127.0.0.1:1")
	require.ErrorIs(t, err, ncerr.ErrAuthFailed)
	require.Less(t, time.Since(start), 2*time.Second, "auth failures should not back off")
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func unreachableGateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()
	t.Setenv("SSH_AUTH_SOCK", "")
	return NewGateway(&tunnel.SSHConfig{
		User:     sshtest.User,
		Password: sshtest.Password,
		Host:     "127.0.0.1",
		Port:     closedPort(t),
	}, opts...)
}

func TestGateway_CircuitOpensWhenUnreachable(t *testing.T) {
	collector := metrics.New()
	gw := unreachableGateway(t,
		WithMetrics(collector),
		WithGatewayAttempts(1),
		WithCircuitBreaker(&retry.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}),
	)
	defer gw.Close()

	_, err := gw.Dial(context.Background(), "tcp", "127.0.0.1:1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ncerr.ErrCircuitOpen)
	require.Equal(t, retry.StateOpen, gw.CircuitState())
	require.Equal(t, int64(1), collector.Snapshot().CircuitOpens)

	_, err = gw.Dial(context.Background(), "tcp", "127.0.0.1:1")
	require.ErrorIs(t, err, ncerr.ErrCircuitOpen)

	// Closing the gateway clears the circuit, so the next Dial tries
	// the network again instead of failing fast.
	require.NoError(t, gw.Close())
	require.Equal(t, retry.StateClosed, gw.CircuitState())
	_, err = gw.Dial(context.Background(), "tcp", "127.0.0.1:1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ncerr.ErrCircuitOpen)
}

// TestGateway_RetriesRefusedConnections checks a refused dial uses the
// whole attempt budget instead of failing on the first try.
func TestGateway_RetriesRefusedConnections(t *testing.T) {
	gw := unreachableGateway(t, WithGatewayAttempts(2))
	defer gw.Close()

	_, err := gw.Dial(context.Background(), "tcp", "127.0.0.1:1")
	require.ErrorContains(t, err, "max retries (2) exceeded")
	require.ErrorContains(t, err, "connection refused")
}

func TestGateway_ReconnectsAfterClose(t *testing.T) {
	srv := sshtest.Start(t)
	host, port := startEcho(t)
	gw := newTestGateway(t, srv)
	backend := NewSSH(gw)

	conn, err := backend.Connect(context.Background(), host, port).Result()
	require.NoError(t, err)
	conn.Close()

	require.NoError(t, gw.Close())

	conn, err = backend.Connect(context.Background(), host, port).Result()
	require.NoError(t, err)
	conn.Close()
	require.Equal(t, int64(2), srv.Logins())
}
