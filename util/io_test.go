package util

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func TestRelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn) //nolint:errcheck // echo
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	input := bytes.NewBufferString("hello world\n")
	output := &bytes.Buffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// input → conn → echo → output; the half-close after input ends
	// makes the echo server close its side.
	stats, err := Relay(ctx, conn, input, output)
	if err != nil {
		t.Fatalf("Relay: %v", err)
	}

	if got := output.String(); got != "hello world\n" {
		t.Errorf("output = %q, want %q", got, "hello world\n")
	}
	if stats.In != 12 || stats.Out != 12 {
		t.Errorf("stats = %+v, want 12 bytes each way", stats)
	}
}

// TestRelay_LargerThanBuffer pushes several pooled buffers' worth of
// data through an echo server.
func TestRelay_LargerThanBuffer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn) //nolint:errcheck // echo
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	payload := bytes.Repeat([]byte("0123456789abcdef"), 3*DefaultBufSize/16+7)
	output := &bytes.Buffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := Relay(ctx, conn, bytes.NewReader(payload), output)
	if err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if !bytes.Equal(output.Bytes(), payload) {
		t.Errorf("echoed %d bytes, want %d", output.Len(), len(payload))
	}
	if stats.Out != int64(len(payload)) || stats.In != int64(len(payload)) {
		t.Errorf("stats = %+v, want %d each way", stats, len(payload))
	}
}

func TestIsHarmless(t *testing.T) {
	if !isHarmless(nil) {
		t.Error("nil should be harmless")
	}
	if !isHarmless(io.EOF) {
		t.Error("io.EOF should be harmless")
	}
	if !isHarmless(net.ErrClosed) {
		t.Error("net.ErrClosed should be harmless")
	}
	if isHarmless(io.ErrUnexpectedEOF) {
		t.Error("ErrUnexpectedEOF should NOT be harmless")
	}
}
