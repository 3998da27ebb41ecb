// Package main provides the taskpilot CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/taskpilot/internal/render"
)

var (
	version = "0.1.0"
	pretty  = true
)

func main() {
	pretty = term.IsTerminal(int(os.Stdout.Fd()))

	rootCmd := &cobra.Command{
		Use:   "taskpilot",
		Short: "Agentic task orchestrator",
		Long: `taskpilot: plan-driven task orchestration.

A natural-language prompt becomes a dependency-ordered task plan,
executed under timeout/retry policy while the control loop stays
responsive to pause, resume, cancel, and new requests.

Use 'taskpilot run "prompt"' to generate and execute a plan.
Use 'taskpilot plan "prompt"' to preview a plan without running it.`,
	}

	rootCmd.AddCommand(
		runCmd(),
		planCmd(),
		statusCmd(),
		historyCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRenderer() *render.Renderer {
	return render.New(pretty)
}

func fatalError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("taskpilot %s\n", version)
		},
	}
}
