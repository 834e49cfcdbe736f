package bootstrap

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ── test backend ─────────────────────────────────────────────────────

type testOption string

func (o testOption) OptionName() string { return string(o) }

const optX testOption = "OPT_X"

// attempt records one terminal call made against a fakeBackend.
type attempt struct {
	path    string // "hostport", "addr" or "path"
	target  string
	history string
	tls     string
}

type recorder struct {
	mu       sync.Mutex
	attempts []attempt
}

func (p *recorder) record(a attempt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, a)
}

func (p *recorder) snapshot() []attempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]attempt(nil), p.attempts...)
}

type fakeConn struct {
	net.Conn
	target string
}

// fakeBackend is an immutable backend that remembers every generation
// it went through.
type fakeBackend struct {
	history     []string
	options     Options
	timeout     time.Duration
	tls         string
	handlersSet bool
	err         error
	init        Initializer
	recorder    *recorder
}

func newFake() fakeBackend { return fakeBackend{history: []string{"B0"}, recorder: &recorder{}} }

func (f fakeBackend) next(step string) fakeBackend {
	f.history = append(append([]string(nil), f.history...), step)
	return f
}

func (f fakeBackend) WithInitializer(init Initializer) fakeBackend {
	f = f.next("init")
	f.init = init
	return f
}

func (f fakeBackend) WithProtocolHandlers(func() []Handler) fakeBackend {
	f = f.next("handlers")
	if f.handlersSet && f.err == nil {
		f.err = ErrHandlersAlreadySet
	}
	f.handlersSet = true
	return f
}

func (f fakeBackend) WithOption(opt Option, value any) fakeBackend {
	f = f.next(fmt.Sprintf("%s=%v", opt.OptionName(), value))
	f.options = f.options.With(opt, value)
	return f
}

func (f fakeBackend) WithConnectTimeout(d time.Duration) fakeBackend {
	f = f.next("timeout=" + d.String())
	f.timeout = d
	return f
}

func (f fakeBackend) start(ctx context.Context, path, target string) *Future {
	f.recorder.record(attempt{path: path, target: target, history: strings.Join(f.history, " -> "), tls: f.tls})
	if f.err != nil {
		return Failed(f.err)
	}
	return Go(ctx, func(ctx context.Context) (net.Conn, error) {
		conn := &fakeConn{target: target}
		if f.init != nil {
			if err := f.init(ctx, conn); err != nil {
				return nil, err
			}
		}
		return conn, nil
	})
}

func (f fakeBackend) Connect(ctx context.Context, host string, port int) *Future {
	return f.start(ctx, "hostport", net.JoinHostPort(host, fmt.Sprint(port)))
}

func (f fakeBackend) ConnectAddr(ctx context.Context, addr net.Addr) *Future {
	return f.start(ctx, "addr", addr.String())
}

func (f fakeBackend) ConnectPath(ctx context.Context, path string) *Future {
	return f.start(ctx, "path", path)
}

// providerP tags the backend so tests can tell which provider ran.
func providerP(calls *int) TLSProvider[fakeBackend] {
	return TLSProviderFunc[fakeBackend](func(b fakeBackend) fakeBackend {
		*calls++
		b = b.next("tls(P)")
		b.tls = "P"
		return b
	})
}

func underlying(t *testing.T, c ClientBootstrap) fakeBackend {
	t.Helper()
	b, ok := Underlying[fakeBackend](c)
	require.True(t, ok, "bootstrap should hold a fakeBackend")
	return b
}

// ── properties ───────────────────────────────────────────────────────

func TestConfigurationDoesNotMutateReceiver(t *testing.T) {
	var calls int
	base := New(newFake(), providerP(&calls))

	steps := map[string]func(ClientBootstrap) ClientBootstrap{
		"initializer": func(c ClientBootstrap) ClientBootstrap {
			return c.WithInitializer(func(context.Context, net.Conn) error { return nil })
		},
		"handlers": func(c ClientBootstrap) ClientBootstrap {
			return c.WithProtocolHandlers(func() []Handler { return nil })
		},
		"option":    func(c ClientBootstrap) ClientBootstrap { return c.WithOption(optX, 1) },
		"timeout":   func(c ClientBootstrap) ClientBootstrap { return c.WithConnectTimeout(time.Second) },
		"enableTLS": func(c ClientBootstrap) ClientBootstrap { return c.EnableTLS() },
	}

	for name, step := range steps {
		t.Run(name, func(t *testing.T) {
			before := underlying(t, base)
			derived := step(base)
			after := underlying(t, base)

			require.Equal(t, before.history, after.history)
			require.Equal(t, 0, after.options.Len())
			require.Zero(t, after.timeout)
			require.Empty(t, after.tls)
			require.NotEqual(t, after.history, underlying(t, derived).history)
		})
	}
}

func TestEnableTLSAppliesBoundProvider(t *testing.T) {
	var calls int
	c := New(newFake(), providerP(&calls)).
		WithOption(optX, 1).
		WithInitializer(func(context.Context, net.Conn) error { return nil }).
		WithConnectTimeout(time.Second)

	enabled := c.EnableTLS()
	require.Equal(t, 1, calls)

	b := underlying(t, enabled)
	require.Equal(t, "P", b.tls)
	require.Equal(t, []string{"B0", "OPT_X=1", "init", "timeout=1s", "tls(P)"}, b.history)

	// Later generations keep the same provider.
	again := enabled.WithOption(optX, 2).EnableTLS()
	require.Equal(t, 2, calls)
	require.Equal(t, "tls(P)", underlying(t, again).history[len(underlying(t, again).history)-1])
}

func TestProtocolHandlersTwiceIsConfigError(t *testing.T) {
	var calls int
	first := func() []Handler { return nil }
	c := New(newFake(), providerP(&calls)).
		WithProtocolHandlers(first).
		WithProtocolHandlers(first)

	conn, err := c.Connect(context.Background(), "example.com", 80).Result()
	require.Nil(t, conn)
	require.ErrorIs(t, err, ErrHandlersAlreadySet)
}

func TestConnectDispatch(t *testing.T) {
	tests := []struct {
		name    string
		connect func(ctx context.Context, c ClientBootstrap) *Future
		path    string
		target  string
	}{
		{
			name:    "host and port",
			connect: func(ctx context.Context, c ClientBootstrap) *Future { return c.Connect(ctx, "example.com", 443) },
			path:    "hostport",
			target:  "example.com:443",
		},
		{
			name: "address",
			connect: func(ctx context.Context, c ClientBootstrap) *Future {
				return c.ConnectAddr(ctx, &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 8080})
			},
			path:   "addr",
			target: "192.0.2.1:8080",
		},
		{
			name:    "path",
			connect: func(ctx context.Context, c ClientBootstrap) *Future { return c.ConnectPath(ctx, "/run/app.sock") },
			path:    "path",
			target:  "/run/app.sock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			backend := newFake()
			c := New(backend, providerP(&calls))

			conn, err := tt.connect(context.Background(), c).Result()
			require.NoError(t, err)
			require.Equal(t, tt.target, conn.(*fakeConn).target)

			attempts := backend.recorder.snapshot()
			require.Len(t, attempts, 1)
			require.Equal(t, tt.path, attempts[0].path)
			require.Equal(t, tt.target, attempts[0].target)
		})
	}
}

func TestInsecureNoTLSNeverCompletes(t *testing.T) {
	c := New(newFake(), InsecureNoTLS[fakeBackend]{}).WithConnectTimeout(time.Second)

	require.PanicsWithError(t, ErrInsecureNoTLS.Error(), func() {
		c.EnableTLS()
	})
}

func TestEndToEndGenerations(t *testing.T) {
	var calls int
	backend := newFake()

	c := New(backend, providerP(&calls)).
		WithOption(optX, 5).
		WithConnectTimeout(30 * time.Second).
		EnableTLS()

	b3 := underlying(t, c)
	require.Equal(t, []string{"B0", "OPT_X=5", "timeout=30s", "tls(P)"}, b3.history)
	v, ok := b3.options.Int(optX)
	require.True(t, ok)
	require.Equal(t, 5, v)
	require.Equal(t, 30*time.Second, b3.timeout)

	conn, err := c.Connect(context.Background(), "example.com", 443).Result()
	require.NoError(t, err)
	require.Equal(t, "example.com:443", conn.(*fakeConn).target)

	attempts := backend.recorder.snapshot()
	require.Len(t, attempts, 1)
	require.Equal(t, "B0 -> OPT_X=5 -> timeout=30s -> tls(P)", attempts[0].history)
	require.Equal(t, "P", attempts[0].tls)
}

func TestOptionOverwrite(t *testing.T) {
	var calls int
	c := New(newFake(), providerP(&calls)).
		WithOption(optX, 1).
		WithOption(testOption("OPT_Y"), true).
		WithOption(optX, 2)

	b := underlying(t, c)
	require.Equal(t, 2, b.options.Len())
	require.Equal(t, 2, b.options.Get(optX))
}

func TestInitializerRunsPerConnection(t *testing.T) {
	var calls int
	var mu sync.Mutex
	seen := map[net.Conn]bool{}

	c := New(newFake(), providerP(&calls)).
		WithInitializer(func(_ context.Context, conn net.Conn) error {
			mu.Lock()
			defer mu.Unlock()
			seen[conn] = true
			return nil
		})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			_, err := c.Connect(context.Background(), "127.0.0.1", port).Result()
			errs <- err
		}(9000 + i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, seen, 8)
}

func TestUnderlyingWrongType(t *testing.T) {
	var calls int
	c := New(newFake(), providerP(&calls))

	_, ok := Underlying[otherBackend](c)
	require.False(t, ok)
}

func TestInvariantViolationPanics(t *testing.T) {
	var calls int
	c := New(newFake(), providerP(&calls))
	c.backend = boxed[otherBackend]{}

	defer func() {
		r := recover()
		require.IsType(t, &InvariantError{}, r)
		require.Contains(t, r.(*InvariantError).Error(), "otherBackend")
		require.Zero(t, calls)
	}()
	c.EnableTLS()
}

func TestZeroValuePanics(t *testing.T) {
	var c ClientBootstrap
	require.Panics(t, func() { c.WithConnectTimeout(time.Second) })
	require.Panics(t, func() { c.Connect(context.Background(), "example.com", 80) })
}

type pointerProvider struct{}

func (*pointerProvider) EnableTLS(b fakeBackend) fakeBackend { return b }

func TestNilProviderPanics(t *testing.T) {
	providers := map[string]TLSProvider[fakeBackend]{
		"untyped nil": nil,
		"nil func":    TLSProviderFunc[fakeBackend](nil),
		"nil pointer": (*pointerProvider)(nil),
	}
	for name, p := range providers {
		t.Run(name, func(t *testing.T) {
			defer func() {
				require.IsType(t, &InvariantError{}, recover())
			}()
			New[fakeBackend](newFake(), p)
		})
	}
}

// otherBackend exists only to be the wrong type.
type otherBackend struct{}

func (o otherBackend) WithInitializer(Initializer) otherBackend           { return o }
func (o otherBackend) WithProtocolHandlers(func() []Handler) otherBackend { return o }
func (o otherBackend) WithOption(Option, any) otherBackend                { return o }
func (o otherBackend) WithConnectTimeout(time.Duration) otherBackend      { return o }

func (otherBackend) Connect(context.Context, string, int) *Future {
	return Failed(fmt.Errorf("other"))
}

func (otherBackend) ConnectAddr(context.Context, net.Addr) *Future {
	return Failed(fmt.Errorf("other"))
}

func (otherBackend) ConnectPath(context.Context, string) *Future {
	return Failed(fmt.Errorf("other"))
}
