package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/domain"
)

// newSlurmCmd is the `slurm` command group of spec §6: it manages the
// ScheduledComputeNode allocation-request records the core owns
// (pending -> active -> complete, per internal/torc/scheduler). Actually
// generating and submitting a Slurm batch script is the external
// scheduler adapter's job (spec §1), out of scope here.
func newSlurmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slurm",
		Short: "Manage requested Slurm/HPC compute-node allocations",
	}
	cmd.AddCommand(newSlurmRequestCmd(), newSlurmListCmd())
	return cmd
}

func newSlurmRequestCmd() *cobra.Command {
	var schedulerID, schedulerType string
	var schedulerConfigID int64
	cmd := &cobra.Command{
		Use:   "request <workflow-id>",
		Short: "Request a compute-node allocation from the scheduler",
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
			n := &domain.ScheduledComputeNode{
				SchedulerID: schedulerID, SchedulerConfigID: schedulerConfigID, SchedulerType: schedulerType,
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			id, err := c.RequestScheduledComputeNode(ctx, wfID, n)
			if err != nil {
				return fail(err)
			}
			return printResult(map[string]int64{"id": id}, func() {
				fmt.Printf("requested scheduled compute node %d\n", id)
			})
		},
	}
	cmd.Flags().StringVar(&schedulerID, "scheduler-id", "", "external scheduler job/allocation id")
	cmd.Flags().Int64Var(&schedulerConfigID, "scheduler-config-id", 0, "scheduler configuration id")
	cmd.Flags().StringVar(&schedulerType, "scheduler-type", "slurm", "scheduler type")
	return cmd
}

func newSlurmListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list <workflow-id>",
		Short: "List requested compute-node allocations",
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
			nodes, err := c.ListScheduledComputeNodes(ctx, wfID, domain.ScheduledComputeNodeStatus(status))
			if err != nil {
				return fail(err)
			}
			return printResult(nodes, func() {
				for _, n := range nodes {
					fmt.Printf("%-6d %-10s %-8s status=%s\n", n.ID, n.SchedulerID, n.SchedulerType, n.Status)
				}
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|active|canceling|complete)")
	return cmd
}
