package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/agent"
	"github.com/stewardhq/steward/ai/anthropic"
	"github.com/stewardhq/steward/store"
	"github.com/stewardhq/steward/tools"
)

// JobsCmd groups job operations
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List, trigger, and toggle jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		jobs, err := store.NewJobStore(database).GetAll()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			pterm.Info.Println("No jobs found. Add job documents to the jobs directory.")
			return nil
		}

		data := pterm.TableData{{"ID", "TITLE", "SCHEDULE", "ENABLED", "LAST RUN", "NEXT RUN"}}
		for _, job := range jobs {
			data = append(data, []string{
				job.ID,
				job.Title,
				job.Schedule,
				fmt.Sprintf("%v", job.Enabled),
				formatTime(job.LastRunAt),
				formatTime(job.NextRunAt),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var jobsTriggerCmd = &cobra.Command{
	Use:   "trigger <job-id>",
	Short: "Run a job immediately",
	Long: `Run a job immediately in this process and wait for it to finish.

Without a configured Anthropic API key the run uses simulation mode.
When the daemon is running, prefer triggering through its API so the
run-lock covers scheduled fires too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, cfg, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		jobs := store.NewJobStore(database)
		executions := store.NewExecutionStore(database)
		actions := store.NewActionStore(database)

		job, err := jobs.GetByID(args[0])
		if err != nil {
			return err
		}

		client := anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.Anthropic.APIKey,
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: cfg.Anthropic.Temperature,
		})
		if !client.IsConfigured() {
			pterm.Info.Println("No API key configured, running in simulation mode")
		}

		executor := agent.NewExecutor(client, tools.DefaultRegistry(), jobs, executions, actions)

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Jobs.RunTimeout())
		defer cancel()

		result, err := executor.Run(ctx, job)
		if err != nil {
			if result != nil {
				pterm.Error.Printf("Run %s failed: %v\n", result.ExecutionID, err)
			}
			return err
		}

		pterm.Success.Printf("Run %s finished: %s (%d actions, %d pending approval)\n",
			result.ExecutionID, result.Status, result.ActionCount, result.PendingCount)
		if result.PendingCount > 0 {
			pterm.Info.Println("Review with: steward approvals ls")
		}
		return nil
	},
}

var jobsToggleCmd = &cobra.Command{
	Use:   "toggle <job-id>",
	Short: "Enable or disable a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		jobs := store.NewJobStore(database)
		job, err := jobs.GetByID(args[0])
		if err != nil {
			return err
		}

		updated, err := jobs.SetEnabled(job.ID, !job.Enabled)
		if err != nil {
			return err
		}

		state := "disabled"
		if updated.Enabled {
			state = "enabled"
		}
		pterm.Success.Printf("Job %s %s\n", updated.ID, state)
		if updated.Enabled {
			pterm.Info.Println("The running daemon applies the change on its next reload.")
		}
		return nil
	},
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func init() {
	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsTriggerCmd)
	JobsCmd.AddCommand(jobsToggleCmd)
}
