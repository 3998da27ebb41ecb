package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/taskpilot/internal/config"
	"github.com/joss/taskpilot/internal/history"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and provider status",
		Run: func(cmd *cobra.Command, args []string) {
			env := config.Env()
			paths := config.GetPaths()

			fmt.Printf("taskpilot %s\n\n", version)
			fmt.Printf("Provider:        %s (model %s)\n", env.Provider, env.Model)
			fmt.Printf("Max concurrent:  %d\n", env.MaxConcurrent)
			fmt.Printf("Task timeout:    %s\n", env.TaskTimeout)
			fmt.Printf("Auto retry:      %v (max %d retries)\n", env.AutoRetry, env.MaxRetries)
			fmt.Printf("Pause on error:  %v\n", env.PauseOnError)
			fmt.Printf("Home:            %s\n", paths.Home)

			for _, p := range buildRegistry(env).List() {
				fmt.Printf("  provider available: %s (%s)\n", p.ID(), p.Name())
			}
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived plan runs",
		Run: func(cmd *cobra.Command, args []string) {
			store, err := history.New(config.GetPaths().Data)
			if err != nil {
				fatalError(err)
			}
			defer store.Close()

			runs, err := store.Recent(limit)
			if err != nil {
				fatalError(err)
			}
			fmt.Println(newRenderer().Runs(runs))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}
