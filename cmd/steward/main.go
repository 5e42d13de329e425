package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/cmd/steward/commands"
	"github.com/stewardhq/steward/logger"
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "steward - autonomous job orchestration",
	Long: `steward runs scheduled autonomous jobs: each job has a goal, soft
policies, hard boundaries, and a set of tool categories. Runs are driven
by a reasoning service (or a deterministic simulation when no API key is
configured) and every tool call is recorded in an auditable ledger.
Actions that cross a boundary wait for human approval.

Available commands:
  serve     - Run the scheduler daemon and admin API
  jobs      - List, trigger, and toggle jobs
  approvals - Review and resolve pending actions
  version   - Show build information

Examples:
  steward serve                      # Start the daemon
  steward jobs ls                    # List jobs with schedules
  steward jobs trigger JOB_inbox-triage
  steward approvals ls               # Show the pending queue
  steward approvals approve ACT_1a2b3c4d5e6f`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.ApprovalsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
