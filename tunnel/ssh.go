package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	ncerr "connboot/internal/errors"
	"connboot/util"
)

// SSHConfig describes the gateway and how to authenticate against it.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	Password      string // non-interactive password, e.g. from a config file
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

// Addr returns host:port of the gateway.
func (c SSHConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c SSHConfig) String() string {
	if c.User == "" {
		return c.Addr()
	}
	return c.User + "@" + c.Addr()
}

// SSHTunnel implements [Tunnel] on top of an ssh.Client.
type SSHTunnel struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
}

// NewSSHTunnel returns a tunnel ready to [SSHTunnel.Connect].  Missing
// port and timeout are filled with 22 and 30s on a copy of cfg.
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	c := *cfg
	if c.Port == 0 {
		c.Port = 22
	}
	if c.ConnTimeout == 0 {
		c.ConnTimeout = 30 * time.Second
	}
	return &SSHTunnel{config: &c, logger: logger.Scoped("ssh")}
}

// Config returns the effective gateway configuration.
func (t *SSHTunnel) Config() SSHConfig { return *t.config }

// Connect dials the gateway and completes the SSH handshake.  A session
// left over from an earlier Connect is closed first.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	authMethods, err := BuildAuthMethods(t.config)
	if err != nil {
		return ncerr.WrapSSH("auth", t.config.Host, t.config.Port, err)
	}
	hkCallback, err := hostKeyCallback(t.config)
	if err != nil {
		return ncerr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         t.config.ConnTimeout,
	}

	addr := t.config.Addr()
	t.logger.Debug("dialing %s", t.config)

	dialCtx, cancel := context.WithTimeout(ctx, t.config.ConnTimeout)
	defer cancel()

	var dialer net.Dialer
	raw, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		raw.SetDeadline(deadline) //nolint:errcheck
	}

	conn, chans, reqs, err := ssh.NewClientConn(raw, addr, clientCfg)
	if err != nil {
		raw.Close()
		return ncerr.WrapSSH("handshake", t.config.Host, t.config.Port, classifyHandshake(err))
	}
	raw.SetDeadline(time.Time{}) //nolint:errcheck

	client := ssh.NewClient(conn, chans, reqs)

	t.mu.Lock()
	prev := t.client
	t.client = client
	t.alive = true
	t.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	t.logger.Verbose("connected to %s", t.config)

	go t.monitor(client)
	return nil
}

// Dial opens a forwarded stream.  The ssh package offers no cancellable
// dial, so a stream that arrives after ctx ended is closed on arrival.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.RLock()
	client, alive := t.client, t.alive
	t.mu.RUnlock()

	if !alive || client == nil {
		return nil, ncerr.ErrNotConnected
	}

	t.logger.Debug("forwarding %s %s", network, address)

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := client.Dial(network, address)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("tunnel dial %s: %w", address, r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close shuts down the session.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

// IsAlive reports whether the session is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor waits for client to end and marks the tunnel dead if client
// is still the current session.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("session closed: %v", err)
	} else {
		t.logger.Debug("session closed")
	}
}

// classifyHandshake attaches ErrAuthFailed or ErrHostKeyMismatch to
// handshake errors so callers can match them with errors.Is.
func classifyHandshake(err error) error {
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return fmt.Errorf("%w: %v", ncerr.ErrHostKeyMismatch, err)
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("%w: %v", ncerr.ErrAuthFailed, err)
	}
	return err
}
