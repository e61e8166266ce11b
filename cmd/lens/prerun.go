package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/steveyegge/issuelens/internal/debug"
)

var (
	rootCtx    = context.Background()
	rootCancel context.CancelFunc
)

// setupSignalContext cancels rootCtx on Ctrl+C or SIGTERM.
func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// applyVerbosityFlags propagates --verbose and --quiet to the debug package
// and rebuilds the structured logger at the matching level.
func applyVerbosityFlags() {
	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag)
	logger = debug.NewLogger(os.Stderr)
}
