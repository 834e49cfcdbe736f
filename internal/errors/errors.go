// Package errors provides domain-specific error types for connboot.
//
// Configuration mistakes and connection failures are ordinary error
// values carrying structured context (operation, address, retryability,
// offending field).  The two fatal conditions of the bootstrap layer
// are not represented here: they are panics raised by package bootstrap.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrHandlersAlreadySet is reported when protocol handlers are set
	// a second time on one bootstrap lineage.
	ErrHandlersAlreadySet = errors.New("protocol handlers can only be set once per bootstrap")

	// ErrTLSAlreadyEnabled is reported when TLS is enabled a second
	// time on one bootstrap lineage.
	ErrTLSAlreadyEnabled = errors.New("TLS is already enabled on this bootstrap")

	// ErrUnsupportedOption is reported when a backend is asked to apply
	// an option it cannot honour.
	ErrUnsupportedOption = errors.New("option not supported by backend")

	// ErrInsecureNoTLS is the panic value raised when TLS is requested
	// from a bootstrap built with the insecure no-TLS provider.
	ErrInsecureNoTLS = errors.New("TLS requested on a bootstrap built with the insecure no-TLS provider")

	ErrNotConnected    = errors.New("not connected")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrHostKeyMismatch = errors.New("host key mismatch")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // "dial", "tls", "handler", "init"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with gateway context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "channel"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name, as spelled on the command line
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// OptionError names the option a backend refused.
type OptionError struct {
	Backend string
	Option  string
	Err     error
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("%s backend: option %s: %v", e.Backend, e.Option, e.Err)
}

func (e *OptionError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Unsupported creates an OptionError wrapping ErrUnsupportedOption.
func Unsupported(backend, option string) *OptionError {
	return &OptionError{Backend: backend, Option: option, Err: ErrUnsupportedOption}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.  SSH handshake,
// authentication and host-key failures never are, nor is a cancelled
// context.  Refused or unreachable dials are, since a gateway may be
// restarting.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *SSHError
	if errors.As(err, &se) {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsConfig reports whether err stems from caller configuration rather
// than from the network.
func IsConfig(err error) bool {
	var ce *ConfigError
	var oe *OptionError
	return errors.As(err, &ce) || errors.As(err, &oe) ||
		errors.Is(err, ErrHandlersAlreadySet) || errors.Is(err, ErrTLSAlreadyEnabled)
}

func classifyRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Timeout() || opErr.Op == "dial" ||
			opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	return false
}
