package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so flags, the config file and the
// environment agree on them.

const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout bounds one connect attempt, handshakes
	// included.
	DefaultConnTimeout = 30 * time.Second

	// DefaultScanTimeout is the per-port timeout for port scanning.
	DefaultScanTimeout = 3 * time.Second

	// DefaultMaxConcurrentScans limits simultaneous scan probes.
	DefaultMaxConcurrentScans = 100

	// DefaultGatewayAttempts is how often the SSH gateway session is
	// tried before a connect fails.
	DefaultGatewayAttempts = 3

	// EnvPrefix prefixes every environment variable connboot reads.
	EnvPrefix = "CONNBOOT_"
)
