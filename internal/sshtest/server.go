// Package sshtest runs a minimal in-process SSH gateway for tests.  It
// accepts password logins and serves direct-tcpip and
// direct-streamlocal channels by dialing the requested target locally.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Credentials accepted by every Server.
const (
	User     = "tester"
	Password = "s3cret"
)

const (
	directTCPIP       = "direct-tcpip"                   // RFC 4254 7.2
	directStreamLocal = "direct-streamlocal@openssh.com" // OpenSSH PROTOCOL 2.4
)

type directTCPIPPayload struct {
	Host       string
	Port       uint32
	OriginHost string
	OriginPort uint32
}

type streamLocalPayload struct {
	SocketPath string
	Reserved0  string
	Reserved1  uint32
}

// Server is a running gateway bound to 127.0.0.1.
type Server struct {
	ln      net.Listener
	hostKey ssh.Signer
	config  *ssh.ServerConfig

	channels atomic.Int64
	logins   atomic.Int64

	wg sync.WaitGroup
}

// Start launches a Server and registers its shutdown with t.Cleanup.
func Start(t testing.TB) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	s := &Server{hostKey: signer}
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(md ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if md.User() == User && string(pass) == Password {
				s.logins.Add(1)
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", md.User())
		},
	}
	s.config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Host and Port of the listener.
func (s *Server) Host() string { return "127.0.0.1" }

func (s *Server) Port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// Addr is host:port of the listener.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// HostKey is the server's public host key.
func (s *Server) HostKey() ssh.PublicKey { return s.hostKey.PublicKey() }

// Channels counts forwarded channels served so far.
func (s *Server) Channels() int64 { return s.channels.Load() }

// Logins counts successful authentications.
func (s *Server) Logins() int64 { return s.logins.Load() }

// Close stops accepting and waits for the accept loop to exit.
func (s *Server) Close() {
	s.ln.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	sc, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		conn.Close()
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		network, target, err := parseTarget(nc)
		if err != nil {
			nc.Reject(ssh.UnknownChannelType, err.Error()) //nolint:errcheck
			continue
		}
		upstream, err := net.Dial(network, target)
		if err != nil {
			nc.Reject(ssh.ConnectionFailed, err.Error()) //nolint:errcheck
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			upstream.Close()
			continue
		}
		s.channels.Add(1)
		go ssh.DiscardRequests(chReqs)
		go pipe(ch, upstream)
	}
}

func parseTarget(nc ssh.NewChannel) (network, target string, err error) {
	switch nc.ChannelType() {
	case directTCPIP:
		var p directTCPIPPayload
		if err := ssh.Unmarshal(nc.ExtraData(), &p); err != nil {
			return "", "", err
		}
		return "tcp", net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port))), nil
	case directStreamLocal:
		var p streamLocalPayload
		if err := ssh.Unmarshal(nc.ExtraData(), &p); err != nil {
			return "", "", err
		}
		return "unix", p.SocketPath, nil
	default:
		return "", "", fmt.Errorf("unsupported channel type: %s", nc.ChannelType())
	}
}

func pipe(ch ssh.Channel, upstream net.Conn) {
	defer ch.Close()
	defer upstream.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(upstream, ch) //nolint:errcheck
		if cw, ok := upstream.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite() //nolint:errcheck
		}
		done <- struct{}{}
	}()
	go func() {
		io.Copy(ch, upstream) //nolint:errcheck
		ch.CloseWrite()       //nolint:errcheck
		done <- struct{}{}
	}()
	<-done
	<-done
}
