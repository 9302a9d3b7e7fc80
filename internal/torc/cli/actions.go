package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/domain"
)

func newActionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Manage declarative workflow actions (triggers)",
	}
	cmd.AddCommand(newActionCreateCmd(), newActionListCmd(), newActionClaimCmd())
	return cmd
}

func newActionCreateCmd() *cobra.Command {
	var trigger, actionType, actionConfig string
	var jobIDs []int64
	var jobRegexes []string
	cmd := &cobra.Command{
		Use:   "create <workflow-id>",
		Short: "Declare an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			a := &domain.WorkflowAction{
				TriggerType:      domain.WorkflowActionTriggerType(trigger),
				ActionType:       domain.WorkflowActionType(actionType),
				ActionConfigJSON: actionConfig,
				JobIDs:           jobIDs,
				JobNameRegexes:   jobRegexes,
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			id, err := c.CreateAction(ctx, wfID, a)
			if err != nil {
				return fail(err)
			}
			return printResult(map[string]int64{"id": id}, func() {
				fmt.Printf("created action %d\n", id)
			})
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", "", "on_workflow_start|on_jobs_ready|on_jobs_complete|on_workflow_complete")
	cmd.Flags().StringVar(&actionType, "type", "", "run_commands|schedule_nodes")
	cmd.Flags().StringVar(&actionConfig, "config", "{}", "JSON action configuration")
	cmd.Flags().Int64SliceVar(&jobIDs, "job-ids", nil, "explicit target job ids")
	cmd.Flags().StringSliceVar(&jobRegexes, "job-name-regex", nil, "target job name regexes")
	_ = cmd.MarkFlagRequired("trigger")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newActionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <workflow-id>",
		Short: "List declared actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			actions, err := c.ListActions(ctx, wfID)
			if err != nil {
				return fail(err)
			}
			return printResult(actions, func() {
				for _, a := range actions {
					fmt.Printf("%-6d %-20s %-16s executed=%v\n", a.ID, a.TriggerType, a.ActionType, a.Executed)
				}
			})
		},
	}
}

func newActionClaimCmd() *cobra.Command {
	var computeNodeID int64
	cmd := &cobra.Command{
		Use:   "claim <workflow-id> <action-id>",
		Short: "Claim an action's at-most-once execution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			actionID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			claimed, err := c.ClaimAction(ctx, wfID, actionID, computeNodeID)
			if err != nil {
				return fail(err)
			}
			return printResult(claimed, func() {
				fmt.Printf("claimed action %d\n", claimed.ID)
			})
		},
	}
	cmd.Flags().Int64Var(&computeNodeID, "compute-node-id", 0, "claiming compute node id")
	_ = cmd.MarkFlagRequired("compute-node-id")
	return cmd
}
