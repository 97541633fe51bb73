// File: cmd/sbr/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/sbr-tools/sbr-cli/cmd"
	"github.com/sbr-tools/sbr-cli/internal/observability"
)

// Replaced in tests.
var osExit = os.Exit

func main() {
	defer handlePanic()

	// Ctrl+C cancels the current row; the run log is still written.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if code := exitCode(cmd.Execute(ctx)); code != 0 {
		osExit(code)
	}
}

// exitInterrupted follows the shell convention of 128 + SIGINT.
const exitInterrupted = 130

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return 1
	}
}

// handlePanic reports an unrecovered panic with its stack and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()
	fmt.Fprintf(os.Stderr, "panic: %v\n\n%s\n", r, debug.Stack())
	osExit(1)
}
