//go:build unix

package transport

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"connboot/bootstrap"
)

var (
	ReuseAddr  = SocketOption{Level: unix.SOL_SOCKET, Name: unix.SO_REUSEADDR, Label: "reuseaddr"}
	KeepAlive  = SocketOption{Level: unix.SOL_SOCKET, Name: unix.SO_KEEPALIVE, Label: "keepalive"}
	TCPNoDelay = SocketOption{Level: unix.IPPROTO_TCP, Name: unix.TCP_NODELAY, Label: "nodelay"}
	RecvBuffer = SocketOption{Level: unix.SOL_SOCKET, Name: unix.SO_RCVBUF, Label: "rcvbuf"}
	SendBuffer = SocketOption{Level: unix.SOL_SOCKET, Name: unix.SO_SNDBUF, Label: "sndbuf"}
)

// socketControl returns the dialer Control hook applying opts, or nil
// when there is nothing to apply.  TCP-level options are skipped on
// unix-domain sockets.
func socketControl(opts bootstrap.Options, network string) (controlFunc, error) {
	set, err := collectSocketOptions(opts)
	if err != nil || len(set) == 0 {
		return nil, err
	}
	isUnix := strings.HasPrefix(network, "unix")

	return func(_, _ string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			for _, s := range set {
				if isUnix && s.opt.Level == unix.IPPROTO_TCP {
					continue
				}
				if e := unix.SetsockoptInt(int(fd), s.opt.Level, s.opt.Name, s.value); e != nil {
					serr = fmt.Errorf("setsockopt %s=%d: %w", s.opt, s.value, e)
					return
				}
			}
		})
		if err != nil {
			return err
		}
		return serr
	}, nil
}
