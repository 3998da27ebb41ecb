// Package main run/plan commands: generate and execute task plans.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joss/taskpilot/internal/config"
	"github.com/joss/taskpilot/internal/controller"
	"github.com/joss/taskpilot/internal/executor"
	"github.com/joss/taskpilot/internal/generator"
	"github.com/joss/taskpilot/internal/history"
	"github.com/joss/taskpilot/internal/plan"
	"github.com/joss/taskpilot/internal/scan"
	"github.com/joss/taskpilot/internal/step"
)

func runCmd() *cobra.Command {
	var dir string
	var interactive bool

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Generate a plan from a prompt and execute it",
		Long: `Generate a task plan from a natural-language prompt and execute it.

While the plan runs, control lines on stdin steer it (with --interactive):
  pause / resume / cancel    adjust execution
  anything else              queued as a new request; the plan is
                             regenerated to satisfy it

Examples:
  taskpilot run "summarize the repo layout and count TODOs"
  taskpilot run --dir ./service "run the unit tests and report failures"`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			prompt := strings.Join(args, " ")
			env := config.Env()
			r := newRenderer()

			provider, err := selectProvider(env)
			if err != nil {
				fatalError(err)
			}
			gen := generator.New(provider, env.Model)

			summary, err := scan.New(dir).Summary()
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: context scan failed: %v\n", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			fmt.Println("Generating plan...")
			p, err := gen.GeneratePlan(ctx, prompt, summary)
			if err != nil {
				fatalError(err)
			}
			fmt.Println(r.Plan(p))

			exec := executor.New(step.NewBuiltin(dir), executor.Policy{
				Timeout:       env.TaskTimeout,
				AutoRetry:     env.AutoRetry,
				MaxRetries:    env.MaxRetries,
				MaxConcurrent: env.MaxConcurrent,
			})

			opts := []controller.Option{
				controller.WithGenerator(gen),
				controller.WithPauseOnError(env.PauseOnError),
			}
			store, err := history.New(config.GetPaths().Data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: history disabled: %v\n", err)
			} else {
				defer store.Close()
				opts = append(opts, controller.WithArchiver(store))
			}

			ctrl := controller.New(exec, opts...)

			done := make(chan plan.PlanStatus, 1)
			ctrl.OnTaskStarted = func(taskID string) {
				fmt.Printf("  ► Started: %s\n", taskID)
			}
			ctrl.OnTaskComplete = func(taskID string, res *plan.Result) {
				fmt.Printf("  %s\n", r.Result(taskID, res))
			}
			ctrl.OnPlanStatus = func(planID string, status plan.PlanStatus) {
				if status.Terminal() {
					select {
					case done <- status:
					default:
					}
				}
			}

			go ctrl.Run(ctx)

			if err := ctrl.StartPlan(p); err != nil {
				fatalError(err)
			}

			if interactive {
				go readControlLines(ctx, ctrl)
			}

			status := <-done
			fmt.Println()
			fmt.Println(r.Plan(ctrl.Snapshot()))
			if status != plan.PlanCompleted {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "project directory tasks operate on")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", true, "accept control lines on stdin")
	return cmd
}

// readControlLines translates stdin lines into control messages.
func readControlLines(ctx context.Context, ctrl *controller.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch strings.ToLower(line) {
		case "":
			continue
		case "pause":
			err = ctrl.Pause()
		case "resume":
			err = ctrl.Resume()
		case "cancel":
			err = ctrl.Cancel()
		default:
			err = ctrl.UserRequest(line)
			if err == nil {
				fmt.Printf("  queued request: %q\n", line)
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "control message dropped: %v\n", err)
		}
	}
}

func planCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "plan [prompt]",
		Short: "Generate and print a plan without executing it",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			prompt := strings.Join(args, " ")
			env := config.Env()

			provider, err := selectProvider(env)
			if err != nil {
				fatalError(err)
			}
			gen := generator.New(provider, env.Model)

			summary, err := scan.New(dir).Summary()
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: context scan failed: %v\n", err)
			}

			p, err := gen.GeneratePlan(cmd.Context(), prompt, summary)
			if err != nil {
				fatalError(err)
			}
			fmt.Println(newRenderer().Plan(p))
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "project directory for context scanning")
	return cmd
}
