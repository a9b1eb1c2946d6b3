// Command conclave-batch runs the team orchestrator across a batch of
// problem instances in parallel, one sandboxed container per instance.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/conclave-dev/conclave/pkg/logger"
)

func newRootCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "conclave-batch",
		Short: "Batch runner for the Conclave team orchestrator",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if debug {
				logger.SetLevel(logger.DEBUG)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.AddCommand(newRunCommand())
	return cmd
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.ErrorCF("cli", "run failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
