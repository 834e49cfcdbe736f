package bootstrap

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFuture_Result(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	f := Go(context.Background(), func(context.Context) (net.Conn, error) {
		return client, nil
	})

	conn, err := f.Result()
	require.NoError(t, err)
	require.Same(t, client, conn)

	select {
	case <-f.Done():
	default:
		t.Fatal("Done should be closed after Result returns")
	}
	conn.Close()
}

func TestFuture_Failed(t *testing.T) {
	boom := errors.New("boom")
	f := Failed(boom)

	conn, err := f.Wait(context.Background())
	require.Nil(t, conn)
	require.ErrorIs(t, err, boom)
	f.Cancel()
}

func TestFuture_WaitContextEndsFirst(t *testing.T) {
	release := make(chan struct{})
	f := Go(context.Background(), func(ctx context.Context) (net.Conn, error) {
		<-release
		return nil, errors.New("late")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	_, err = f.Result()
	require.EqualError(t, err, "late")
}

func TestFuture_Cancel(t *testing.T) {
	f := Go(context.Background(), func(ctx context.Context) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	f.Cancel()
	_, err := f.Result()
	require.ErrorIs(t, err, context.Canceled)
}

func TestFuture_NilResult(t *testing.T) {
	f := Go(context.Background(), func(context.Context) (net.Conn, error) {
		return nil, nil
	})

	_, err := f.Result()
	require.Error(t, err)
}
