package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/client"
	"github.com/nrel/torc/internal/torc/domain"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage jobs within a workflow",
	}
	cmd.AddCommand(
		newJobCreateCmd(),
		newJobListCmd(),
		newJobGetCmd(),
		newJobClaimCmd(),
		newJobStartCmd(),
		newJobCompleteCmd(),
		newJobResetCmd(),
		newJobResetAllCmd(),
		newJobResultsCmd(),
	)
	return cmd
}

func newJobCreateCmd() *cobra.Command {
	var name, command string
	var dependsOn []int64
	cmd := &cobra.Command{
		Use:   "create <workflow-id>",
		Short: "Add a job to a workflow",
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
			job := &domain.Job{Name: name, Command: command, DependsOnJobIDs: dependsOn}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			id, err := c.CreateJob(ctx, wfID, job)
			if err != nil {
				return fail(err)
			}
			return printResult(map[string]int64{"id": id}, func() {
				fmt.Printf("created job %d\n", id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&command, "command", "", "shell command the job runs")
	cmd.Flags().Int64SliceVar(&dependsOn, "depends-on", nil, "job ids this job depends on")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("command")
	return cmd
}

func newJobListCmd() *cobra.Command {
	var status []string
	cmd := &cobra.Command{
		Use:   "list <workflow-id>",
		Short: "List jobs in a workflow",
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
			opts := client.ListJobsOptions{}
			for _, s := range status {
				opts.Status = append(opts.Status, domain.JobStatus(s))
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			jobs, err := c.ListJobs(ctx, wfID, opts)
			if err != nil {
				return fail(err)
			}
			return printResult(jobs, func() {
				for _, j := range jobs {
					fmt.Printf("%-6d %-24s %s\n", j.ID, j.Name, j.Status)
				}
			})
		},
	}
	cmd.Flags().StringSliceVar(&status, "status", nil, "filter by job status")
	return cmd
}

func newJobGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <workflow-id> <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, jobID, err := workflowAndJobArgs(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			job, err := c.GetJob(ctx, wfID, jobID)
			if err != nil {
				return fail(err)
			}
			return printResult(job, func() {
				fmt.Printf("ID: %d\nName: %s\nStatus: %s\nCommand: %s\n", job.ID, job.Name, job.Status, job.Command)
			})
		},
	}
}

func workflowAndJobArgs(args []string) (int64, int64, error) {
	wfID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	jobID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return wfID, jobID, nil
}

func newJobClaimCmd() *cobra.Command {
	var limit int
	var computeNodeID int64
	cmd := &cobra.Command{
		Use:   "claim <workflow-id>",
		Short: "Claim up to --limit ready jobs for a compute node",
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
			jobs, err := c.ClaimJobs(ctx, wfID, client.ClaimJobsRequest{Limit: limit, ComputeNodeID: computeNodeID})
			if err != nil {
				return fail(err)
			}
			return printResult(jobs, func() {
				for _, j := range jobs {
					fmt.Printf("%-6d %-24s %s\n", j.ID, j.Name, j.Command)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1, "maximum jobs to claim")
	cmd.Flags().Int64Var(&computeNodeID, "compute-node-id", 0, "claiming compute node id")
	_ = cmd.MarkFlagRequired("compute-node-id")
	return cmd
}

func newJobStartCmd() *cobra.Command {
	var computeNodeID int64
	cmd := &cobra.Command{
		Use:   "start <workflow-id> <job-id>",
		Short: "Mark a claimed job running",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, jobID, err := workflowAndJobArgs(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.StartJob(ctx, wfID, jobID, computeNodeID); err != nil {
				return fail(err)
			}
			return printResult(map[string]string{"status": "running"}, func() {
				fmt.Printf("started job %d\n", jobID)
			})
		},
	}
	cmd.Flags().Int64Var(&computeNodeID, "compute-node-id", 0, "compute node running the job")
	_ = cmd.MarkFlagRequired("compute-node-id")
	return cmd
}

func newJobCompleteCmd() *cobra.Command {
	var runID, attemptID int64
	var returnCode int32
	var execMinutes float64
	var terminatedBySignal bool
	cmd := &cobra.Command{
		Use:   "complete <workflow-id> <job-id>",
		Short: "Report a job's terminal outcome",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, jobID, err := workflowAndJobArgs(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			req := client.CompleteJobRequest{
				RunID: runID, AttemptID: attemptID, ReturnCode: returnCode,
				ExecTimeMinutes: execMinutes, TerminatedBySignal: terminatedBySignal,
			}
			if err := c.CompleteJob(ctx, wfID, jobID, req); err != nil {
				return fail(err)
			}
			return printResult(map[string]string{"status": "completed"}, func() {
				fmt.Printf("completed job %d (return_code=%d)\n", jobID, returnCode)
			})
		},
	}
	cmd.Flags().Int64Var(&runID, "run-id", 1, "run id this attempt belongs to")
	cmd.Flags().Int64Var(&attemptID, "attempt-id", 1, "attempt number within the run")
	cmd.Flags().Int32Var(&returnCode, "return-code", 0, "process return code")
	cmd.Flags().Float64Var(&execMinutes, "exec-time-minutes", 0, "execution time in minutes")
	cmd.Flags().BoolVar(&terminatedBySignal, "terminated-by-signal", false, "the process was terminated by a signal")
	return cmd
}

func newJobResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <workflow-id> <job-id>",
		Short: "Reset a single terminal job back to uninitialized",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, jobID, err := workflowAndJobArgs(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.ResetJob(ctx, wfID, jobID); err != nil {
				return fail(err)
			}
			return printResult(map[string]string{"status": "reset"}, func() {
				fmt.Printf("reset job %d\n", jobID)
			})
		},
	}
}

func newJobResetAllCmd() *cobra.Command {
	var failedOnly bool
	var jobIDs []int64
	cmd := &cobra.Command{
		Use:   "reset-all <workflow-id>",
		Short: "Reset terminal jobs across a workflow back to uninitialized",
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
			req := client.ResetJobsRequest{FailedOnly: failedOnly, JobIDs: jobIDs}
			if err := c.ResetJobs(ctx, wfID, req); err != nil {
				return fail(err)
			}
			return printResult(map[string]string{"status": "reset"}, func() {
				fmt.Printf("reset jobs in workflow %d\n", wfID)
			})
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed-only", false, "reset only failed/terminated jobs")
	cmd.Flags().Int64SliceVar(&jobIDs, "job-id", nil, "restrict the reset to these job ids (repeatable)")
	return cmd
}

func newJobResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <workflow-id> <job-id>",
		Short: "List every attempt recorded for a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, jobID, err := workflowAndJobArgs(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			results, err := c.ListJobResults(ctx, wfID, jobID)
			if err != nil {
				return fail(err)
			}
			return printResult(results, func() {
				for _, r := range results {
					fmt.Printf("run=%d attempt=%d return_code=%d\n", r.RunID, r.AttemptID, r.ReturnCode)
				}
			})
		},
	}
}
