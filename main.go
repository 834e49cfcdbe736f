// connboot opens a single client connection over TCP, TLS, a unix
// socket or an SSH gateway and relays it to stdio or a program.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"connboot/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "connboot: %v\n", err)
		os.Exit(1)
	}
}
