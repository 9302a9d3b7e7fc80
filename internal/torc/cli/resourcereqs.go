package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/domain"
)

func newResourceRequirementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resource-requirements",
		Aliases: []string{"resource-reqs"},
		Short:   "Manage named resource profiles referenced by jobs",
	}
	cmd.AddCommand(newResourceRequirementCreateCmd(), newResourceRequirementListCmd())
	return cmd
}

func newResourceRequirementCreateCmd() *cobra.Command {
	var name string
	var numCPUs, numGPUs, numNodes int32
	var memoryBytes, runtimeSeconds int64
	cmd := &cobra.Command{
		Use:   "create <workflow-id>",
		Short: "Register a resource requirement profile",
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
			rr := &domain.ResourceRequirement{
				Name: name, NumCPUs: numCPUs, NumGPUs: numGPUs, NumNodes: numNodes,
				MemoryBytes: memoryBytes, RuntimeSeconds: runtimeSeconds,
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			id, err := c.CreateResourceRequirement(ctx, wfID, rr)
			if err != nil {
				return fail(err)
			}
			return printResult(map[string]int64{"id": id}, func() {
				fmt.Printf("created resource requirement %d\n", id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "profile name")
	cmd.Flags().Int32Var(&numCPUs, "num-cpus", 1, "CPU count")
	cmd.Flags().Int32Var(&numGPUs, "num-gpus", 0, "GPU count")
	cmd.Flags().Int32Var(&numNodes, "num-nodes", 1, "node count")
	cmd.Flags().Int64Var(&memoryBytes, "memory-bytes", 0, "memory in bytes")
	cmd.Flags().Int64Var(&runtimeSeconds, "runtime-seconds", 0, "expected runtime in seconds")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newResourceRequirementListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <workflow-id>",
		Short: "List resource requirement profiles",
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
			rows, err := c.ListResourceRequirements(ctx, wfID)
			if err != nil {
				return fail(err)
			}
			return printResult(rows, func() {
				for _, rr := range rows {
					fmt.Printf("%-6d %-24s cpus=%d gpus=%d nodes=%d\n", rr.ID, rr.Name, rr.NumCPUs, rr.NumGPUs, rr.NumNodes)
				}
			})
		},
	}
}
