package config

// loader.go - configuration from the environment and from a YAML file.
//
// Precedence order (highest wins):
//   1. CLI flags  (cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile + File.Apply)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ── Environment ──────────────────────────────────────────────────────
//
// Every variable carries the CONNBOOT_ prefix.  Booleans accept "1",
// "true" and "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Unset or empty
// variables leave cfg untouched.  Call it before parsing flags.
func LoadFromEnv(cfg *Config) error {
	if v := env("HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("PORT"); v > 0 {
		cfg.Port = v
	}
	if v := env("UNIX"); v != "" {
		cfg.UnixPath = v
	}
	if v := env("TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Timeout = d
	}
	if envBool("NO_DNS") {
		cfg.NoDNS = true
	}

	// TLS
	if envBool("TLS") {
		cfg.TLS.Enabled = true
	}
	if v := env("TLS_CA"); v != "" {
		cfg.TLS.CAFile = v
	}
	if v := env("TLS_CERT"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := env("TLS_KEY"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := env("TLS_SERVER_NAME"); v != "" {
		cfg.TLS.ServerName = v
	}
	if envBool("TLS_INSECURE") {
		cfg.TLS.InsecureSkipVerify = true
	}

	// Socket options, comma separated
	if v := env("SOCKOPTS"); v != "" {
		for _, spec := range strings.Split(v, ",") {
			so, err := ParseSockopt(strings.TrimSpace(spec))
			if err != nil {
				return fmt.Errorf("%sSOCKOPTS: %w", EnvPrefix, err)
			}
			cfg.Sockopts = append(cfg.Sockopts, so)
		}
	}

	// SSH gateway
	if v := env("TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := env("SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if v := env("SSH_PASS"); v != "" {
		cfg.SSHPass = v
	}
	if envBool("SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := env("KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := envInt("GATEWAY_ATTEMPTS"); v > 0 {
		cfg.GatewayAttempts = v
	}

	// Output
	if v := envInt("VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if v := env("METRICS"); v != "" {
		cfg.Metrics = v
	}
	return nil
}

// ── Config file ──────────────────────────────────────────────────────

// Duration wraps time.Duration so YAML can say "5s" or "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings; a bare integer means seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	dur, err := parseTimeout(raw)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// File is the on-disk shape of a connboot config file.  Absent keys
// leave the corresponding setting alone.
type File struct {
	Timeout  *Duration `yaml:"timeout,omitempty"`
	NoDNS    *bool     `yaml:"no_dns,omitempty"`
	Verbose  *int      `yaml:"verbose,omitempty"`
	Metrics  string    `yaml:"metrics,omitempty"`
	Sockopts []string  `yaml:"sockopts,omitempty"`

	TLS *struct {
		Enabled            *bool  `yaml:"enabled,omitempty"`
		CA                 string `yaml:"ca,omitempty"`
		Cert               string `yaml:"cert,omitempty"`
		Key                string `yaml:"key,omitempty"`
		ServerName         string `yaml:"server_name,omitempty"`
		InsecureSkipVerify *bool  `yaml:"insecure_skip_verify,omitempty"`
	} `yaml:"tls,omitempty"`

	SSH *struct {
		Tunnel     string `yaml:"tunnel,omitempty"`
		Key        string `yaml:"key,omitempty"`
		Password   string `yaml:"password,omitempty"`
		Agent      *bool  `yaml:"agent,omitempty"`
		StrictHost *bool  `yaml:"strict_hostkey,omitempty"`
		KnownHosts string `yaml:"known_hosts,omitempty"`
		Attempts   int    `yaml:"attempts,omitempty"`
	} `yaml:"ssh,omitempty"`
}

// LoadFile reads and decodes a YAML config file.  Unknown keys are an
// error so typos do not go unnoticed.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return &file, nil
}

// Apply overlays the file onto cfg.
func (f *File) Apply(cfg *Config) error {
	if f.Timeout != nil {
		cfg.Timeout = f.Timeout.Duration
	}
	if f.NoDNS != nil {
		cfg.NoDNS = *f.NoDNS
	}
	if f.Verbose != nil {
		cfg.Verbose = *f.Verbose
	}
	if f.Metrics != "" {
		cfg.Metrics = f.Metrics
	}
	for _, spec := range f.Sockopts {
		so, err := ParseSockopt(spec)
		if err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		cfg.Sockopts = append(cfg.Sockopts, so)
	}

	if t := f.TLS; t != nil {
		if t.Enabled != nil {
			cfg.TLS.Enabled = *t.Enabled
		}
		setString(&cfg.TLS.CAFile, t.CA)
		setString(&cfg.TLS.CertFile, t.Cert)
		setString(&cfg.TLS.KeyFile, t.Key)
		setString(&cfg.TLS.ServerName, t.ServerName)
		if t.InsecureSkipVerify != nil {
			cfg.TLS.InsecureSkipVerify = *t.InsecureSkipVerify
		}
	}

	if s := f.SSH; s != nil {
		setString(&cfg.TunnelSpec, s.Tunnel)
		setString(&cfg.SSHKeyPath, s.Key)
		setString(&cfg.SSHPass, s.Password)
		setString(&cfg.KnownHostsPath, s.KnownHosts)
		if s.Agent != nil {
			cfg.UseSSHAgent = *s.Agent
		}
		if s.StrictHost != nil {
			cfg.StrictHostKey = *s.StrictHost
		}
		if s.Attempts > 0 {
			cfg.GatewayAttempts = s.Attempts
		}
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

func env(key string) string { return os.Getenv(EnvPrefix + key) }

func envInt(key string) int {
	n, err := strconv.Atoi(env(key))
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(env(key))
	return v == "1" || v == "true" || v == "yes"
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseTimeout accepts a Go duration ("1m30s") or whole seconds ("90").
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
