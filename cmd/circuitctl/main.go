// Package main implements circuitctl, a command line tool for circuit
// layouts and running circuitd instances.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "circuitctl",
		Short:         "Evaluate circuit layouts and drive circuitd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newEvalCmd(),
		newCyclesCmd(),
		newValidateCmd(),
		newSendCmd(),
		newWatchCmd(),
		newExportCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
