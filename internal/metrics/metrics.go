// Package metrics counts what the connection backends and the command
// do: connect attempts and their outcome, TLS use, initializer runs,
// gateway sessions and relayed bytes.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so backends built without one need no checks.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "connboot"

var (
	attemptsDesc = prometheus.NewDesc(namespace+"_connect_attempts_total",
		"Connect calls started by any backend.", nil, nil)
	succeededDesc = prometheus.NewDesc(namespace+"_connect_succeeded_total",
		"Connect calls that resolved with a connection.", nil, nil)
	failedDesc = prometheus.NewDesc(namespace+"_connect_failed_total",
		"Connect calls that resolved with an error.", nil, nil)
	tlsDesc = prometheus.NewDesc(namespace+"_tls_handshakes_total",
		"Completed client TLS handshakes.", nil, nil)
	initDesc = prometheus.NewDesc(namespace+"_initializer_invocations_total",
		"Per-connection initializer invocations.", nil, nil)
	gatewayDesc = prometheus.NewDesc(namespace+"_gateway_sessions_total",
		"SSH gateway sessions established.", nil, nil)
	circuitDesc = prometheus.NewDesc(namespace+"_gateway_circuit_opens_total",
		"Times the SSH gateway circuit breaker opened.", nil, nil)
	bytesDesc = prometheus.NewDesc(namespace+"_relay_bytes_total",
		"Bytes relayed over established connections.", []string{"direction"}, nil)
)

// Collector holds the counters.  It implements prometheus.Collector.
type Collector struct {
	attempts    atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	tls         atomic.Int64
	initializer atomic.Int64
	gateway     atomic.Int64
	circuit     atomic.Int64
	bytesIn     atomic.Int64
	bytesOut    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connect lifecycle ────────────────────────────────────────────────

// ConnectAttempt records the start of a terminal connect call.
func (c *Collector) ConnectAttempt() {
	if c == nil {
		return
	}
	c.attempts.Add(1)
}

// ConnectSucceeded records a connect call that produced a connection.
func (c *Collector) ConnectSucceeded() {
	if c == nil {
		return
	}
	c.succeeded.Add(1)
}

// ConnectFailed records a failed connect call and keeps its message.
func (c *Collector) ConnectFailed(msg string) {
	if c == nil {
		return
	}
	c.failed.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// TLSHandshake records a completed client handshake.
func (c *Collector) TLSHandshake() {
	if c == nil {
		return
	}
	c.tls.Add(1)
}

// InitializerInvoked records one run of a per-connection initializer.
func (c *Collector) InitializerInvoked() {
	if c == nil {
		return
	}
	c.initializer.Add(1)
}

// GatewaySession records a newly established SSH gateway session.
func (c *Collector) GatewaySession() {
	if c == nil {
		return
	}
	c.gateway.Add(1)
}

// GatewayCircuitOpened records the gateway circuit breaker opening.
func (c *Collector) GatewayCircuitOpened() {
	if c == nil {
		return
	}
	c.circuit.Add(1)
}

// ── Relay ────────────────────────────────────────────────────────────

// BytesReceived records n bytes read from a connection.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to a connection.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all counters.
type Snapshot struct {
	Uptime             string `json:"uptime"`
	ConnectAttempts    int64  `json:"connect_attempts"`
	ConnectSucceeded   int64  `json:"connect_succeeded"`
	ConnectFailed      int64  `json:"connect_failed"`
	TLSHandshakes      int64  `json:"tls_handshakes"`
	InitializerInvoked int64  `json:"initializer_invocations"`
	GatewaySessions    int64  `json:"gateway_sessions"`
	CircuitOpens       int64  `json:"gateway_circuit_opens"`
	BytesIn            int64  `json:"bytes_in"`
	BytesOut           int64  `json:"bytes_out"`
	LastError          string `json:"last_error,omitempty"`
	LastErrorMessage   string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:             time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectAttempts:    c.attempts.Load(),
		ConnectSucceeded:   c.succeeded.Load(),
		ConnectFailed:      c.failed.Load(),
		TLSHandshakes:      c.tls.Load(),
		InitializerInvoked: c.initializer.Load(),
		GatewaySessions:    c.gateway.Load(),
		CircuitOpens:       c.circuit.Load(),
		BytesIn:            c.bytesIn.Load(),
		BytesOut:           c.bytesOut.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	data, _ := json.MarshalIndent(c.Snapshot(), "", "  ")
	return string(data)
}

// ── prometheus.Collector ─────────────────────────────────────────────

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		attemptsDesc, succeededDesc, failedDesc, tlsDesc, initDesc, gatewayDesc, circuitDesc, bytesDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.  Values are read without a
// common lock, so one scrape may mix counters from adjacent instants.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.Snapshot()
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(attemptsDesc, s.ConnectAttempts)
	counter(succeededDesc, s.ConnectSucceeded)
	counter(failedDesc, s.ConnectFailed)
	counter(tlsDesc, s.TLSHandshakes)
	counter(initDesc, s.InitializerInvoked)
	counter(gatewayDesc, s.GatewaySessions)
	counter(circuitDesc, s.CircuitOpens)
	counter(bytesDesc, s.BytesIn, "in")
	counter(bytesDesc, s.BytesOut, "out")
}

var _ prometheus.Collector = (*Collector)(nil)
