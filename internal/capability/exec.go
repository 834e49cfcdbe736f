package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"

	"connboot/internal/session"
)

// outputGrace bounds how long Handle waits for the child's output to
// drain after it exited, e.g. when a grandchild still holds stdout.
const outputGrace = 500 * time.Millisecond

// Exec wires the connection to a child process's stdio.  Either
// Program (-e) or Command (-c) must be set.
type Exec struct {
	Program string // run directly
	Command string // run through the system shell
}

func (e *Exec) command(ctx context.Context) (*exec.Cmd, error) {
	switch {
	case e.Command != "":
		if runtime.GOOS == "windows" {
			return exec.CommandContext(ctx, "cmd.exe", "/C", e.Command), nil
		}
		return exec.CommandContext(ctx, "/bin/sh", "-c", e.Command), nil
	case e.Program != "":
		return exec.CommandContext(ctx, e.Program), nil
	default:
		return nil, errors.New("exec: no program or command given")
	}
}

// Handle runs the child with stdin, stdout and stderr on the
// connection and returns once it exits, even if the peer keeps the
// connection open.
func (e *Exec) Handle(ctx context.Context, sess *session.Session) error {
	cmd, err := e.command(ctx)
	if err != nil {
		return err
	}

	conn := sess.Counted()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}
	cmd.Stdout = conn
	cmd.Stderr = conn
	cmd.WaitDelay = outputGrace

	sess.Logger.Debug("exec: %s", cmd.String())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}

	// The stdin copy is ours, not exec's, so Wait does not block on a
	// peer that never sends.
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		io.Copy(stdin, conn) //nolint:errcheck
		stdin.Close()
	}()

	waitErr := cmd.Wait()
	sess.Conn.SetReadDeadline(time.Now()) //nolint:errcheck
	<-copied
	sess.Conn.SetReadDeadline(time.Time{}) //nolint:errcheck

	if waitErr != nil && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return fmt.Errorf("exec %q: %w", cmd.Path, waitErr)
	}
	return nil
}
