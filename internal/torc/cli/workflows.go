package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/domain"
)

func newWorkflowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"workflow", "wf"},
		Short:   "Manage workflows",
	}
	cmd.AddCommand(
		newWorkflowCreateCmd(),
		newWorkflowListCmd(),
		newWorkflowGetCmd(),
		newWorkflowArchiveCmd(),
		newWorkflowInitializeCmd(),
		newWorkflowReinitializeCmd(),
		newWorkflowCancelCmd(),
		newWorkflowReadyJobsCmd(),
	)
	return cmd
}

func newWorkflowCreateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			wf := &domain.Workflow{Name: name}
			if description != "" {
				wf.Description = &description
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			id, err := c.CreateWorkflow(ctx, wf)
			if err != nil {
				return fail(err)
			}
			return printResult(map[string]int64{"id": id}, func() {
				fmt.Printf("created workflow %d\n", id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workflow name")
	cmd.Flags().StringVar(&description, "description", "", "workflow description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newWorkflowListCmd() *cobra.Command {
	var includeArchived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			wfs, err := c.ListWorkflows(ctx, includeArchived)
			if err != nil {
				return fail(err)
			}
			return printResult(wfs, func() {
				for _, wf := range wfs {
					fmt.Printf("%-6d %-30s %s\n", wf.ID, wf.Name, wf.User)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&includeArchived, "include-archived", false, "include archived workflows")
	return cmd
}

func workflowIDArg(args []string) (int64, error) {
	return strconv.ParseInt(args[0], 10, 64)
}

func newWorkflowGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <workflow-id>",
		Short: "Show a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			wf, err := c.GetWorkflow(ctx, id)
			if err != nil {
				return fail(err)
			}
			return printResult(wf, func() {
				fmt.Printf("ID: %d\nName: %s\nUser: %s\nArchived: %v\n", wf.ID, wf.Name, wf.User, wf.IsArchived)
			})
		},
	}
}

func newWorkflowArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <workflow-id>",
		Short: "Archive a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.ArchiveWorkflow(ctx, id); err != nil {
				return fail(err)
			}
			return printResult(map[string]string{"status": "archived"}, func() {
				fmt.Printf("archived workflow %d\n", id)
			})
		},
	}
}

func newWorkflowInitializeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "initialize <workflow-id>",
		Short: "Initialize a workflow's first run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.Initialize(ctx, id, force); err != nil {
				return fail(err)
			}
			return printResult(map[string]string{"status": "initialized"}, func() {
				fmt.Printf("initialized workflow %d\n", id)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-run initialize even if jobs have already moved past uninitialized")
	return cmd
}

func newWorkflowReinitializeCmd() *cobra.Command {
	var resetFailedOnly, onlyUnfinished bool
	cmd := &cobra.Command{
		Use:   "reinitialize <workflow-id>",
		Short: "Start the next run of a workflow, resetting terminal jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.Reinitialize(ctx, id, resetFailedOnly, onlyUnfinished); err != nil {
				return fail(err)
			}
			return printResult(map[string]string{"status": "reinitialized"}, func() {
				fmt.Printf("reinitialized workflow %d\n", id)
			})
		},
	}
	cmd.Flags().BoolVar(&resetFailedOnly, "reset-failed-only", false, "reset only failed/terminated jobs, leaving completed and canceled jobs untouched")
	cmd.Flags().BoolVar(&onlyUnfinished, "only-unfinished", false, "reset every unfinished job (failed, terminated, canceled) but spare completed jobs")
	return cmd
}

func newWorkflowCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <workflow-id>",
		Short: "Cancel a workflow's current run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.Cancel(ctx, id); err != nil {
				return fail(err)
			}
			return printResult(map[string]string{"status": "canceled"}, func() {
				fmt.Printf("canceled workflow %d\n", id)
			})
		},
	}
}

func newWorkflowReadyJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready-jobs <workflow-id>",
		Short: "List the current ready set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			jobs, err := c.ReadyJobs(ctx, id)
			if err != nil {
				return fail(err)
			}
			return printResult(jobs, func() {
				for _, j := range jobs {
					fmt.Printf("%-6d %s\n", j.ID, j.Name)
				}
			})
		},
	}
}
