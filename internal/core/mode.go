// Package core is the orchestration layer.  It turns a Config into a
// bootstrap.ClientBootstrap (backend, TLS provider, options, timeout,
// initializer) and wraps it in the mode the command runs.
//
// Architecture layers (bottom → top):
//
//	bootstrap  →  transport  →  capability  →  session  →  core  →  cmd
package core

import "context"

// Mode is one complete run of connboot: a single connection handed to
// a capability, or a port scan.
type Mode interface {
	Run(ctx context.Context) error

	// String describes what Run would do, for --dry-run.
	String() string
}
