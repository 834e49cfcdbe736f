// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	flag "github.com/spf13/pflag"

	"connboot/config"
	"connboot/internal/core"
	"connboot/internal/metrics"
	"connboot/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X connboot/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the selected mode.  Settings are layered
// as defaults, then the --config file, then CONNBOOT_* variables, then
// flags.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := config.Default()

	if path := configPath(args); path != "" {
		file, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		if err := file.Apply(cfg); err != nil {
			return err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return err
	}

	fs := flag.NewFlagSet("connboot", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── connection ───────────────────────────────────────────────
	fs.StringVarP(&cfg.UnixPath, "unix", "U", cfg.UnixPath, "Connect to a unix domain socket")
	fs.IntVarP(&cfg.LocalPort, "port", "p", cfg.LocalPort, "Local source port")
	fs.StringVarP(&cfg.SourceAddr, "source", "s", cfg.SourceAddr, "Local source address")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")
	fs.BoolVarP(&cfg.ZeroIO, "zero-io", "z", cfg.ZeroIO, "Zero-I/O mode (port scanning)")
	timeoutSec := fs.IntP("timeout", "w", int(cfg.Timeout/time.Second), "Connect timeout in seconds")
	sockopts := fs.StringArray("sockopt", nil, "Socket option name[=value] (repeatable)")

	// ── TLS ──────────────────────────────────────────────────────
	fs.BoolVar(&cfg.TLS.Enabled, "tls", cfg.TLS.Enabled, "Wrap the connection in TLS")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca", cfg.TLS.CAFile, "CA bundle used to verify the server")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert", cfg.TLS.CertFile, "Client certificate")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key", cfg.TLS.KeyFile, "Client certificate key")
	fs.StringVar(&cfg.TLS.ServerName, "tls-server-name", cfg.TLS.ServerName, "Server name to verify (default: target host)")
	fs.BoolVar(&cfg.TLS.InsecureSkipVerify, "tls-insecure", cfg.TLS.InsecureSkipVerify, "Skip server certificate verification")

	// ── execution ────────────────────────────────────────────────
	fs.StringVarP(&cfg.Execute, "exec", "e", cfg.Execute, "Execute program after connect")
	fs.StringVarP(&cfg.Command, "command", "c", cfg.Command, "Execute shell command after connect")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Connect through an SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.IntVar(&cfg.GatewayAttempts, "gateway-attempts", cfg.GatewayAttempts, "SSH gateway connection attempts")

	// ── output ───────────────────────────────────────────────────
	baseVerbose := cfg.Verbose // CountVarP resets its target
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate and describe, but do not connect")
	fs.StringVar(&cfg.Metrics, "metrics", cfg.Metrics, "Print connection metrics on exit: json or prom")
	fs.String("config", "", "YAML config file")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(stderr, fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Verbose += baseVerbose

	if showHelp || len(args) == 0 {
		printUsage(stderr, fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "connboot %s\n", version)
		return nil
	}

	if fs.Changed("timeout") {
		cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	}
	if fs.Changed("sockopt") {
		cfg.Sockopts = cfg.Sockopts[:0:0]
		for _, spec := range *sockopts {
			so, err := config.ParseSockopt(spec)
			if err != nil {
				return err
			}
			cfg.Sockopts = append(cfg.Sockopts, so)
		}
	}

	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	collector := metrics.New()

	mode, err := core.Build(cfg, logger, collector)
	if err != nil {
		return err
	}
	if cfg.DryRun {
		fmt.Fprintf(stdout, "dry run: %s\n", mode)
		return nil
	}

	runErr := mode.Run(ctx)
	if err := writeMetrics(stderr, cfg.Metrics, collector); err != nil {
		logger.Warn("metrics: %v", err)
	}
	return runErr
}

// ── helpers ──────────────────────────────────────────────────────────

// configPath finds --config before the full flag set exists, since the
// file supplies the flag defaults.
func configPath(args []string) string {
	for i, a := range args {
		switch {
		case a == "--":
			return ""
		case a == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.UnixPath != "" {
		if len(remaining) > 0 {
			return fmt.Errorf("unexpected arguments with -U: %s", strings.Join(remaining, " "))
		}
		return nil
	}

	// host port [port …]
	if len(remaining) < 1 {
		if cfg.Host != "" {
			return nil
		}
		return fmt.Errorf("hostname required (use --help for usage)")
	}
	cfg.Host = remaining[0]

	if len(remaining) < 2 {
		if cfg.Port != 0 {
			return nil
		}
		return fmt.Errorf("port required")
	}

	cfg.Ports = nil
	for _, arg := range remaining[1:] {
		pr, err := config.ParsePortSpec(arg)
		if err != nil {
			return fmt.Errorf("port %q: %w", arg, err)
		}
		cfg.Ports = append(cfg.Ports, pr)
	}
	cfg.Port = cfg.Ports[0].Start
	return nil
}

func writeMetrics(w io.Writer, format string, collector *metrics.Collector) error {
	switch format {
	case "json":
		_, err := fmt.Fprintln(w, collector.JSON())
		return err
	case "prom":
		reg := prometheus.NewRegistry()
		if err := reg.Register(collector); err != nil {
			return err
		}
		families, err := reg.Gather()
		if err != nil {
			return err
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
				return err
			}
		}
	}
	return nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `connboot - client connection bootstrap v%s

Opens one client connection over plain TCP, TLS, a unix socket or an
SSH gateway, and relays it to stdio or a program.

Usage:
  connboot [options] <host> <port>            Connect
  connboot -U <path> [options]                Unix domain socket
  connboot -z [options] <host> <ports...>     Scan
  connboot -T user@gateway <host> <port>      Through an SSH gateway

Options:
`, version)
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Examples:
  connboot example.com 80                          TCP connect
  connboot --tls --tls-ca ca.pem api.internal 443  TLS with a private CA
  connboot -vz host.example.com 20-25 80 443       Port scan
  connboot -T admin@bastion db-internal 5432       SSH gateway
  connboot --sockopt nodelay host 9000             Socket option
  echo "hello" | connboot host.example.com 9000    Pipe data
`)
}
