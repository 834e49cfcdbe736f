package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ncerr "connboot/internal/errors"
	"connboot/internal/metrics"
	"connboot/transport"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out, _, err := run(t, "--version")
	require.NoError(t, err)
	require.Equal(t, "connboot "+version+"\n", out)
}

// TestExecute_Help verifies --help (and no args) returns without error.
func TestExecute_Help(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {}} {
		name := "no-args"
		if len(args) > 0 {
			name = args[0]
		}
		t.Run(name, func(t *testing.T) {
			_, errOut, err := run(t, args...)
			require.NoError(t, err)
			require.Contains(t, errOut, "Usage:")
		})
	}
}

func TestExecute_DryRun(t *testing.T) {
	out, _, err := run(t, "--dry-run", "127.0.0.1", "8080")
	require.NoError(t, err)
	require.Contains(t, out, "connect 127.0.0.1:8080")
}

func TestExecute_DryRunScan(t *testing.T) {
	out, _, err := run(t, "--dry-run", "-z", "127.0.0.1", "20-22", "80")
	require.NoError(t, err)
	require.Contains(t, out, "scan 127.0.0.1, 4 port(s)")
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	_, _, err := run(t, "--dry-run", "-U", "/tmp/x.sock", "-z")
	require.True(t, ncerr.IsConfig(err), "got %v", err)
}

func TestExecute_InvalidFlags(t *testing.T) {
	_, _, err := run(t, "--nonexistent-flag")
	require.Error(t, err)
}

// TestExecute_ConflictingFlags verifies -e and -c conflict is caught.
func TestExecute_ConflictingFlags(t *testing.T) {
	_, _, err := run(t, "-e", "cat", "-c", "ls", "localhost", "80", "--dry-run")
	require.Error(t, err)
	require.Contains(t, err.Error(), "mutually exclusive")
}

func TestExecute_UnknownSockopt(t *testing.T) {
	_, _, err := run(t, "--sockopt", "so_bogus=1", "--dry-run", "127.0.0.1", "80")
	var ce *ncerr.ConfigError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "sockopt", ce.Field)
}

// TestUsage_SockoptExamplesAreKnown keeps the help examples in step
// with the registered socket option names.
func TestUsage_SockoptExamplesAreKnown(t *testing.T) {
	_, usage, err := run(t, "--help")
	require.NoError(t, err)

	matches := regexp.MustCompile(`connboot --sockopt (\S+)`).FindAllStringSubmatch(usage, -1)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		_, ok := transport.LookupSocketOption(m[1])
		require.True(t, ok, "help example uses unknown socket option %q", m[1])

		_, _, err := run(t, "--sockopt", m[1], "--dry-run", "127.0.0.1", "80")
		require.NoError(t, err)
	}
}

func TestExecute_TLSFlagsNeedTLS(t *testing.T) {
	_, _, err := run(t, "--tls-ca", "ca.pem", "--dry-run", "127.0.0.1", "443")
	require.ErrorContains(t, err, "add --tls")
}

func TestExecute_ConfigFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connboot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: 7s\nmetrics: json\n"), 0600))
	t.Setenv("CONNBOOT_TIMEOUT", "9")

	// Env wins over the file, the flag wins over both.
	out, _, err := run(t, "--config", path, "--dry-run", "-z", "127.0.0.1", "80")
	require.NoError(t, err)
	require.Contains(t, out, "9s per port")

	out, _, err = run(t, "--config="+path, "-w", "2", "--dry-run", "-z", "127.0.0.1", "80")
	require.NoError(t, err)
	require.Contains(t, out, "2s per port")
}

func TestExecute_MissingConfigFile(t *testing.T) {
	_, _, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "127.0.0.1", "80")
	require.Error(t, err)
}

// TestExecute_RelayWithMetrics drives a real connection and checks the
// JSON metrics printed on exit.
func TestExecute_RelayWithMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("banner\n")) //nolint:errcheck
		io.Copy(io.Discard, conn)      //nolint:errcheck
	}()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	// Stdin is the process stdin; give it an empty file so the relay
	// half-closes immediately.
	empty, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer empty.Close()
	orig := os.Stdin
	os.Stdin = empty
	defer func() { os.Stdin = orig }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	err = execute(ctx, []string{"--metrics", "json", "127.0.0.1", port}, &stdout, &stderr)
	require.NoError(t, err)

	var snap struct {
		ConnectAttempts  int64 `json:"connect_attempts"`
		ConnectSucceeded int64 `json:"connect_succeeded"`
		BytesIn          int64 `json:"bytes_in"`
	}
	line := strings.TrimSpace(stderr.String())
	require.NoError(t, json.Unmarshal([]byte(line[strings.Index(line, "{"):]), &snap))
	require.Equal(t, int64(1), snap.ConnectAttempts)
	require.Equal(t, int64(1), snap.ConnectSucceeded)
	require.Equal(t, int64(len("banner\n")), snap.BytesIn)
}

func TestWriteMetrics_Prometheus(t *testing.T) {
	collector := metrics.New()
	collector.ConnectAttempt()
	collector.BytesReceived(42)

	var buf bytes.Buffer
	require.NoError(t, writeMetrics(&buf, "prom", collector))
	require.Contains(t, buf.String(), "connboot_connect_attempts_total 1")
	require.Contains(t, buf.String(), `connboot_relay_bytes_total{direction="in"} 42`)

	buf.Reset()
	require.NoError(t, writeMetrics(&buf, "", collector))
	require.Empty(t, buf.String())
}

func TestConfigPath(t *testing.T) {
	require.Equal(t, "a.yaml", configPath([]string{"-v", "--config", "a.yaml", "host", "80"}))
	require.Equal(t, "b.yaml", configPath([]string{"--config=b.yaml"}))
	require.Equal(t, "", configPath([]string{"--", "--config", "c.yaml"}))
	require.Equal(t, "", configPath([]string{"host", "80"}))
}
