package transport

import (
	"fmt"
	"sort"
	"strings"
	"syscall"

	"connboot/bootstrap"
	ncerr "connboot/internal/errors"
)

// SocketOption is a setsockopt(2) level/name pair.  Its value is an
// integer; booleans are accepted and mean 1 or 0.
type SocketOption struct {
	Level int
	Name  int
	Label string
}

// OptionName identifies the option by level and name, so two options
// naming the same socket setting are the same key.
func (o SocketOption) OptionName() string {
	return fmt.Sprintf("socket(%d,%d)", o.Level, o.Name)
}

func (o SocketOption) String() string {
	if o.Label != "" {
		return o.Label
	}
	return o.OptionName()
}

var socketOptions = map[string]SocketOption{
	"reuseaddr": ReuseAddr,
	"keepalive": KeepAlive,
	"nodelay":   TCPNoDelay,
	"rcvbuf":    RecvBuffer,
	"sndbuf":    SendBuffer,
}

// LookupSocketOption returns the predefined option called name
// (case-insensitive).
func LookupSocketOption(name string) (SocketOption, bool) {
	o, ok := socketOptions[strings.ToLower(name)]
	return o, ok
}

// SocketOptionNames lists the names LookupSocketOption accepts.
func SocketOptionNames() []string {
	names := make([]string, 0, len(socketOptions))
	for n := range socketOptions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type sockopt struct {
	opt   SocketOption
	value int
}

// collectSocketOptions validates opts for the socket backend.
func collectSocketOptions(opts bootstrap.Options) ([]sockopt, error) {
	var (
		out []sockopt
		err error
	)
	opts.Each(func(opt bootstrap.Option, value any) {
		if err != nil {
			return
		}
		so, ok := opt.(SocketOption)
		if !ok {
			err = ncerr.Unsupported("socket", opt.OptionName())
			return
		}
		v, ok := bootstrap.IntValue(value)
		if !ok {
			err = &ncerr.OptionError{
				Backend: "socket",
				Option:  so.String(),
				Err:     fmt.Errorf("value %v is not an integer", value),
			}
			return
		}
		out = append(out, sockopt{opt: so, value: v})
	})
	return out, err
}

type controlFunc func(network, address string, c syscall.RawConn) error
