package core

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"connboot/bootstrap"
	"connboot/config"
	"connboot/util"
)

// ScanResult records whether a single port accepted a connection.
type ScanResult struct {
	Port int
	Open bool
	Err  error
}

// ScanMode probes a set of ports on one host through a single shared
// bootstrap and reports which are open.
type ScanMode struct {
	Bootstrap   bootstrap.ClientBootstrap
	Host        string
	Ports       []int
	Timeout     time.Duration
	Concurrency int
	Closer      io.Closer
	Logger      *util.Logger
	Verbose     int
}

func (m *ScanMode) String() string {
	return fmt.Sprintf("scan %s, %d port(s), %v per port", m.Host, len(m.Ports), m.Timeout)
}

// Run scans all configured ports and logs the open ones.
func (m *ScanMode) Run(ctx context.Context) error {
	if m.Closer != nil {
		defer m.Closer.Close()
	}

	if len(m.Ports) == 0 {
		return fmt.Errorf("no ports specified for scanning")
	}

	timeout := m.Timeout
	if timeout == 0 {
		timeout = config.DefaultScanTimeout
	}

	m.Logger.Verbose("scanning %s - %d port(s)", m.Host, len(m.Ports))

	results := ScanPorts(ctx, m.Bootstrap, m.Host, m.Ports, timeout, m.Concurrency)

	open := 0
	for _, r := range results {
		if r.Open {
			open++
			m.Logger.Info("%s %d/tcp open", m.Host, r.Port)
		} else if m.Verbose >= 2 {
			m.Logger.Verbose("%s %d/tcp closed - %v", m.Host, r.Port, r.Err)
		}
	}

	if open == 0 && m.Verbose >= 1 {
		m.Logger.Info("no open ports found on %s", m.Host)
	}
	return nil
}

// ScanPorts probes every port concurrently, at most concurrency at a
// time, and returns results in input order.  Every probe starts from
// the same boot value; the connect timeout bounds each one.
func ScanPorts(ctx context.Context, boot bootstrap.ClientBootstrap, host string, ports []int, timeout time.Duration, concurrency int) []ScanResult {
	if concurrency <= 0 {
		concurrency = config.DefaultMaxConcurrentScans
	}
	boot = boot.WithConnectTimeout(timeout)

	results := make([]ScanResult, len(ports))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, port := range ports {
		wg.Add(1)
		go func(idx, p int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			conn, err := boot.Connect(ctx, host, p).Result()
			if err != nil {
				results[idx] = ScanResult{Port: p, Err: err}
				return
			}
			conn.Close()
			results[idx] = ScanResult{Port: p, Open: true}
		}(i, port)
	}

	wg.Wait()
	return results
}
