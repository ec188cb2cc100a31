// cmd/guessctl/main.go
//
// guessctl is a command line client for a guessroom server.
//
//	guessctl --room lobby --nick alice join
//	guessctl --room lobby start          # waits until enough players joined
//	guessctl --room lobby --nick alice say 42
//	guessctl --room lobby watch

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
