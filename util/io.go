package util

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// DefaultBufSize is the standard buffer size for network I/O (32 KiB).
const DefaultBufSize = 32 * 1024

var bufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// Transfer counts the bytes moved by Relay.
type Transfer struct {
	In  int64 // network → writer
	Out int64 // reader → network
}

// Relay shuffles data between a connection and a local reader/writer
// pair until one side reaches EOF or ctx is cancelled.  When the reader
// is exhausted the connection's write side is half-closed and Relay
// keeps draining the remote until it closes.
func Relay(ctx context.Context, conn net.Conn, r io.Reader, w io.Writer) (Transfer, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		stats Transfer
	)
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		n, err := copyPooled(w, conn)
		stats.In = n
		errCh <- err
		cancel()
	}()
	go func() {
		defer wg.Done()
		n, err := copyPooled(conn, r)
		stats.Out = n
		closeWrite(conn)
		errCh <- err
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	conn.Close() // unblock any pending reads/writes
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil && !isHarmless(err) {
			return stats, err
		}
	}
	return stats, nil
}

func copyPooled(dst io.Writer, src io.Reader) (int64, error) {
	buf := bufPool.Get().(*[]byte)
	defer bufPool.Put(buf)
	return io.CopyBuffer(dst, src, *buf)
}

// closeWrite half-closes conn when the transport supports it.  TLS
// connections expose CloseWrite too, so the check is by interface.
func closeWrite(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite() //nolint:errcheck
	}
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
