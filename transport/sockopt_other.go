//go:build !unix

package transport

import (
	"connboot/bootstrap"
	ncerr "connboot/internal/errors"
)

// Socket options are only implemented on unix platforms.  The values
// exist so configuration parses everywhere; connecting with one fails.
var (
	ReuseAddr  = SocketOption{Level: -1, Name: 1, Label: "reuseaddr"}
	KeepAlive  = SocketOption{Level: -1, Name: 2, Label: "keepalive"}
	TCPNoDelay = SocketOption{Level: -1, Name: 3, Label: "nodelay"}
	RecvBuffer = SocketOption{Level: -1, Name: 4, Label: "rcvbuf"}
	SendBuffer = SocketOption{Level: -1, Name: 5, Label: "sndbuf"}
)

func socketControl(opts bootstrap.Options, _ string) (controlFunc, error) {
	set, err := collectSocketOptions(opts)
	if err != nil || len(set) == 0 {
		return nil, err
	}
	return nil, ncerr.Unsupported("socket", set[0].opt.String())
}
