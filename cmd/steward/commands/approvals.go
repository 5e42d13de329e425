package commands

import (
	"database/sql"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/approval"
	"github.com/stewardhq/steward/store"
	"github.com/stewardhq/steward/tools"
)

var vetoReason string

// ApprovalsCmd groups pending-action review operations
var ApprovalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Review actions held for human approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var approvalsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List actions awaiting approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		workflow := newWorkflow(database)
		pending, err := workflow.ListPending()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			pterm.Success.Println("No actions awaiting approval.")
			return nil
		}

		data := pterm.TableData{{"ACTION", "JOB", "TOOL", "BOUNDARY", "CREATED"}}
		for _, p := range pending {
			tool := "-"
			if p.Tool != nil {
				tool = *p.Tool
			}
			boundary := "-"
			if p.BoundaryViolation != nil {
				boundary = *p.BoundaryViolation
			}
			data = append(data, []string{
				p.ID,
				p.JobTitle,
				tool,
				boundary,
				p.CreatedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
		pterm.Info.Printf("%d action(s) pending. Approve or veto by ID.\n", len(pending))
		return nil
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <action-id>",
	Short: "Approve a pending action and execute it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		workflow := newWorkflow(database)
		action, err := workflow.Approve(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		pterm.Success.Printf("Approved %s\n", action.ID)
		if action.Result != nil {
			pterm.Info.Printf("Result: %s\n", *action.Result)
		}
		return nil
	},
}

var approvalsVetoCmd = &cobra.Command{
	Use:   "veto <action-id>",
	Short: "Veto a pending action without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		workflow := newWorkflow(database)
		action, err := workflow.Veto(cmd.Context(), args[0], vetoReason)
		if err != nil {
			return err
		}

		pterm.Success.Printf("Vetoed %s\n", action.ID)
		return nil
	},
}

func newWorkflow(database *sql.DB) *approval.Workflow {
	return approval.NewWorkflow(
		tools.DefaultRegistry(),
		store.NewExecutionStore(database),
		store.NewActionStore(database),
	)
}

func init() {
	approvalsVetoCmd.Flags().StringVar(&vetoReason, "reason", "", "note recorded with the veto")

	ApprovalsCmd.AddCommand(approvalsLsCmd)
	ApprovalsCmd.AddCommand(approvalsApproveCmd)
	ApprovalsCmd.AddCommand(approvalsVetoCmd)
}
