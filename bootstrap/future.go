package bootstrap

import (
	"context"
	"errors"
	"net"
)

var errNoConn = errors.New("bootstrap: connect returned neither connection nor error")

// Future is the asynchronous result of a terminal connect call.  It
// completes exactly once, with either a connection or an error.
type Future struct {
	done   chan struct{}
	cancel context.CancelFunc
	conn   net.Conn
	err    error
}

// Go runs fn on its own goroutine and returns a Future for its result.
// fn receives a context derived from ctx that Cancel also cancels.
func Go(ctx context.Context, fn func(ctx context.Context) (net.Conn, error)) *Future {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer cancel()
		conn, err := fn(ctx)
		if conn == nil && err == nil {
			err = errNoConn
		}
		f.conn, f.err = conn, err
		close(f.done)
	}()
	return f
}

// Failed returns a Future that has already completed with err.
func Failed(err error) *Future {
	f := &Future{done: make(chan struct{}), cancel: func() {}, err: err}
	close(f.done)
	return f
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the attempt completes.
func (f *Future) Result() (net.Conn, error) {
	<-f.done
	return f.conn, f.err
}

// Wait blocks until the attempt completes or ctx ends.  When ctx ends
// first the attempt keeps running; call Cancel to stop it.
func (f *Future) Wait(ctx context.Context) (net.Conn, error) {
	select {
	case <-f.done:
		return f.conn, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel aborts an attempt that is still in progress.  It has no effect
// on a completed Future.
func (f *Future) Cancel() { f.cancel() }
