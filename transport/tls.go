package transport

import (
	"crypto/tls"

	"connboot/bootstrap"
)

// SocketTLS enables client TLS on a Socket.  A nil Config means a
// default client config; the server name defaults to the dialed host.
type SocketTLS struct {
	Config *tls.Config
}

var _ bootstrap.TLSProvider[Socket] = SocketTLS{}

func (p SocketTLS) EnableTLS(s Socket) Socket {
	s.pipeline = s.pipeline.withTLS(p.Config)
	return s
}

// SSHTLS enables TLS end to end over streams forwarded by an SSH
// backend.  The gateway only sees ciphertext.
type SSHTLS struct {
	Config *tls.Config
}

var _ bootstrap.TLSProvider[SSH] = SSHTLS{}

func (p SSHTLS) EnableTLS(s SSH) SSH {
	s.pipeline = s.pipeline.withTLS(p.Config)
	return s
}
