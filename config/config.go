// Package config defines the runtime configuration of the connboot
// command and the parsers for its compact command-line notations.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "connboot/internal/errors"
)

// Config holds every tuneable for one connboot run.
type Config struct {
	// ── Target ───────────────────────────────────────────────────────
	Host       string
	Port       int         // primary destination port
	Ports      []PortRange // every destination port spec (scanning)
	UnixPath   string      // -U: unix domain socket instead of host/port
	LocalPort  int         // -p: source port
	SourceAddr string      // -s: source address
	Timeout    time.Duration
	NoDNS      bool

	// ── TLS ──────────────────────────────────────────────────────────
	TLS TLSConfig

	// ── Socket options ───────────────────────────────────────────────
	Sockopts []Sockopt

	// ── SSH gateway ──────────────────────────────────────────────────
	TunnelSpec      string // raw [user@]host[:port] from -T
	TunnelEnabled   bool
	TunnelUser      string
	TunnelHost      string
	TunnelPort      int
	SSHKeyPath      string
	SSHPassword     bool   // prompt for a password
	SSHPass         string // password from the environment or config file
	UseSSHAgent     bool
	StrictHostKey   bool
	KnownHostsPath  string
	GatewayAttempts int

	// ── Execution ────────────────────────────────────────────────────
	Execute string // -e: program path
	Command string // -c: shell command

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	ZeroIO  bool
	DryRun  bool
	Metrics string // "", "json" or "prom"
}

// TLSConfig selects client TLS and the material it uses.
type TLSConfig struct {
	Enabled            bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// configured reports whether any TLS setting other than Enabled is set.
func (t TLSConfig) configured() bool {
	return t.CAFile != "" || t.CertFile != "" || t.KeyFile != "" ||
		t.ServerName != "" || t.InsecureSkipVerify
}

// Default returns a Config populated from defaults.go.  Timeout stays
// zero: the mode picks DefaultConnTimeout or DefaultScanTimeout.
func Default() *Config {
	return &Config{GatewayAttempts: DefaultGatewayAttempts}
}

// ApplyTunnelSpec parses TunnelSpec, when set, into the tunnel fields.
// A missing user falls back to $USER.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &ncerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	c.TunnelEnabled = true
	c.TunnelUser, c.TunnelHost, c.TunnelPort = user, host, port
	return nil
}

// ── Ports ────────────────────────────────────────────────────────────

// PortRange is an inclusive start-end pair.
type PortRange struct {
	Start int
	End   int
}

// Expand returns every port in the range.
func (pr PortRange) Expand() []int {
	out := make([]int, 0, pr.End-pr.Start+1)
	for p := pr.Start; p <= pr.End; p++ {
		out = append(out, p)
	}
	return out
}

// AllPorts flattens every PortRange into a single slice.
func (c *Config) AllPorts() []int {
	var out []int
	for _, pr := range c.Ports {
		out = append(out, pr.Expand()...)
	}
	return out
}

// ParsePortSpec accepts "80" or "80-90".
func ParsePortSpec(spec string) (PortRange, error) {
	if lo, hi, ok := strings.Cut(spec, "-"); ok {
		start, err := strconv.Atoi(lo)
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range start %q", lo)
		}
		end, err := strconv.Atoi(hi)
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range end %q", hi)
		}
		if start < 1 || end > 65535 || start > end {
			return PortRange{}, fmt.Errorf("invalid port range %d-%d", start, end)
		}
		return PortRange{Start: start, End: end}, nil
	}

	port, err := strconv.Atoi(spec)
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return PortRange{}, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return PortRange{Start: port, End: port}, nil
}

// ── Tunnel spec ──────────────────────────────────────────────────────

// tunnelRe matches [user@]host[:port]; IPv6 hosts go in brackets.
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?(\[[^\]]+\]|[^:@\[\]]+)(?::(\d+))?$`)

// ParseTunnelSpec splits "admin@bastion.example.com:2222" into its
// parts.  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q: expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = strings.Trim(m[2], "[]")
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ── Socket options ───────────────────────────────────────────────────

// Sockopt is a "name=value" pair from --sockopt.  Name is resolved by
// the socket backend.
type Sockopt struct {
	Name  string
	Value int
}

func (s Sockopt) String() string { return fmt.Sprintf("%s=%d", s.Name, s.Value) }

// ParseSockopt parses "nodelay", "nodelay=1", "keepalive=off" or
// "rcvbuf=65536".  A bare name means 1.
func ParseSockopt(spec string) (Sockopt, error) {
	name, raw, hasValue := strings.Cut(spec, "=")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Sockopt{}, fmt.Errorf("invalid socket option %q: missing name", spec)
	}
	if !hasValue {
		return Sockopt{Name: name, Value: 1}, nil
	}

	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "yes":
		return Sockopt{Name: name, Value: 1}, nil
	case "off", "false", "no":
		return Sockopt{Name: name, Value: 0}, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return Sockopt{}, fmt.Errorf("invalid socket option %q: value must be an integer or on/off", spec)
	}
	return Sockopt{Name: name, Value: v}, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Errors are *errors.ConfigError values carrying a hint.
func (c *Config) Validate() error {
	if c.UnixPath != "" {
		if c.Host != "" || c.Port != 0 || len(c.Ports) > 0 {
			return &ncerr.ConfigError{Field: "unix", Value: c.UnixPath,
				Message: "a unix socket path excludes host and port",
				Hint:    "use either connboot -U /path/to.sock or connboot host port"}
		}
		if c.ZeroIO {
			return &ncerr.ConfigError{Field: "zero", Message: "port scanning needs a host, not a unix socket"}
		}
		if c.LocalPort != 0 || c.SourceAddr != "" {
			return &ncerr.ConfigError{Field: "source", Message: "source binding does not apply to unix sockets"}
		}
	} else {
		if c.Host == "" {
			return &ncerr.ConfigError{Field: "host", Message: "hostname is required",
				Hint: "connboot [options] host port, or -U path"}
		}
		if c.Port == 0 && len(c.Ports) == 0 {
			return &ncerr.ConfigError{Field: "port", Message: "destination port is required"}
		}
		if !c.ZeroIO && len(c.AllPorts()) > 1 {
			return &ncerr.ConfigError{Field: "port", Value: len(c.AllPorts()),
				Message: "connect mode takes exactly one port",
				Hint:    "add -z to scan several ports"}
		}
		if c.NoDNS && net.ParseIP(c.Host) == nil {
			return &ncerr.ConfigError{Field: "nodns", Value: c.Host,
				Message: "host is not a numeric IP address and DNS is disabled"}
		}
	}

	if c.Timeout < 0 {
		return &ncerr.ConfigError{Field: "wait", Value: c.Timeout, Message: "timeout cannot be negative"}
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return &ncerr.ConfigError{Field: "local-port", Value: c.LocalPort, Message: "port out of range 1-65535"}
	}
	if c.SourceAddr != "" && net.ParseIP(c.SourceAddr) == nil {
		return &ncerr.ConfigError{Field: "source", Value: c.SourceAddr, Message: "source address must be an IP address"}
	}

	if c.Execute != "" && c.Command != "" {
		return &ncerr.ConfigError{Field: "exec", Message: "-e and -c are mutually exclusive"}
	}
	if c.ZeroIO && (c.Execute != "" || c.Command != "") {
		return &ncerr.ConfigError{Field: "zero", Message: "scan mode cannot run a program",
			Hint: "drop -e/-c or -z"}
	}

	if c.TLS.configured() && !c.TLS.Enabled {
		return &ncerr.ConfigError{Field: "tls", Message: "TLS settings given but TLS is not enabled",
			Hint: "add --tls"}
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return &ncerr.ConfigError{Field: "tls-cert", Message: "client certificate and key must be given together",
			Hint: "set both --tls-cert and --tls-key"}
	}

	if c.TunnelEnabled {
		if c.TunnelHost == "" {
			return &ncerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: "tunnel host is required"}
		}
		if c.LocalPort != 0 || c.SourceAddr != "" {
			return &ncerr.ConfigError{Field: "source", Message: "source binding is not possible through an SSH tunnel"}
		}
		if len(c.Sockopts) > 0 {
			return &ncerr.ConfigError{Field: "sockopt", Value: c.Sockopts[0].Name,
				Message: "socket options are not supported through an SSH tunnel",
				Hint:    "the gateway opens the socket; drop --sockopt"}
		}
		if c.GatewayAttempts < 1 {
			return &ncerr.ConfigError{Field: "gateway-attempts", Value: c.GatewayAttempts,
				Message: "at least one attempt is required"}
		}
	}

	switch c.Metrics {
	case "", "json", "prom":
	default:
		return &ncerr.ConfigError{Field: "metrics", Value: c.Metrics,
			Message: "unknown metrics format", Hint: "use json or prom"}
	}
	return nil
}
