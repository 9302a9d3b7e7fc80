package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/domain"
)

func newComputeNodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "compute-nodes",
		Aliases: []string{"nodes"},
		Short:   "Manage worker self-registration",
	}
	cmd.AddCommand(newComputeNodeRegisterCmd(), newComputeNodeListCmd(), newComputeNodeShutdownCmd())
	return cmd
}

func newComputeNodeRegisterCmd() *cobra.Command {
	var hostname string
	var pid, numCPUs, numGPUs, numNodes int32
	var memoryGB float64
	var nodeType string
	var scheduledComputeNodeID int64
	cmd := &cobra.Command{
		Use:   "register <workflow-id>",
		Short: "Announce a worker process",
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
			n := &domain.ComputeNode{
				Hostname: hostname, Pid: pid, NumCPUs: numCPUs, NumGPUs: numGPUs,
				NumNodes: numNodes, MemoryGB: memoryGB, NodeType: domain.ComputeNodeType(nodeType),
			}
			if scheduledComputeNodeID != 0 {
				n.ScheduledComputeNodeID = &scheduledComputeNodeID
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			id, err := c.RegisterComputeNode(ctx, wfID, n)
			if err != nil {
				return fail(err)
			}
			return printResult(map[string]int64{"id": id}, func() {
				fmt.Printf("registered compute node %d\n", id)
			})
		},
	}
	cmd.Flags().StringVar(&hostname, "hostname", "", "worker hostname")
	cmd.Flags().Int32Var(&pid, "pid", 0, "worker process id")
	cmd.Flags().Int32Var(&numCPUs, "num-cpus", 1, "CPU count")
	cmd.Flags().Int32Var(&numGPUs, "num-gpus", 0, "GPU count")
	cmd.Flags().Int32Var(&numNodes, "num-nodes", 1, "node count")
	cmd.Flags().Float64Var(&memoryGB, "memory-gb", 0, "memory in GB")
	cmd.Flags().StringVar(&nodeType, "node-type", string(domain.ComputeNodeLocal), "local|slurm")
	cmd.Flags().Int64Var(&scheduledComputeNodeID, "scheduled-compute-node-id", 0, "allocation this worker fulfills, if any")
	_ = cmd.MarkFlagRequired("hostname")
	return cmd
}

func newComputeNodeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <workflow-id>",
		Short: "List active compute nodes",
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
			nodes, err := c.ListActiveComputeNodes(ctx, wfID)
			if err != nil {
				return fail(err)
			}
			return printResult(nodes, func() {
				for _, n := range nodes {
					fmt.Printf("%-6d %-24s pid=%d\n", n.ID, n.Hostname, n.Pid)
				}
			})
		},
	}
}

func newComputeNodeShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown <workflow-id> <compute-node-id>",
		Short: "Announce a worker's graceful exit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			nodeID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.ShutdownComputeNode(ctx, wfID, nodeID); err != nil {
				return fail(err)
			}
			return printResult(map[string]string{"status": "shutdown"}, func() {
				fmt.Printf("shut down compute node %d\n", nodeID)
			})
		},
	}
}
