package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/client"
	"github.com/nrel/torc/internal/torc/domain"
)

// newReportsCmd is the `reports` command group of spec §6: a read-only
// summary over a workflow's current job-status distribution, derived
// entirely from existing job/result queries (no separate reporting store).
func newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Summarize a workflow's run",
	}
	cmd.AddCommand(newReportsSummaryCmd())
	return cmd
}

// statusSummary counts jobs per status, in a fixed display order so the
// human-readable report doesn't reshuffle between runs.
type statusSummary struct {
	Counts map[domain.JobStatus]int `json:"counts"`
	Total  int                      `json:"total"`
}

var reportStatusOrder = []domain.JobStatus{
	domain.JobUninitialized, domain.JobReady, domain.JobBlocked, domain.JobPending,
	domain.JobRunning, domain.JobCompleted, domain.JobFailed, domain.JobTerminated,
	domain.JobCanceled, domain.JobDisabled,
}

func newReportsSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <workflow-id>",
		Short: "Print job-status counts and failed-job return codes",
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

			jobs, err := c.ListJobs(ctx, wfID, client.ListJobsOptions{})
			if err != nil {
				return fail(err)
			}
			summary := statusSummary{Counts: map[domain.JobStatus]int{}}
			for _, j := range jobs {
				summary.Counts[j.Status]++
				summary.Total++
			}

			results, err := c.ListWorkflowResults(ctx, wfID)
			if err != nil {
				return fail(err)
			}
			var failed []domain.Result
			for _, r := range results {
				if r.Status == domain.JobFailed || r.Status == domain.JobTerminated {
					failed = append(failed, r)
				}
			}

			return printResult(struct {
				Summary statusSummary  `json:"summary"`
				Failed  []domain.Result `json:"failed"`
			}{summary, failed}, func() {
				fmt.Printf("%d jobs\n", summary.Total)
				for _, st := range reportStatusOrder {
					if n := summary.Counts[st]; n > 0 {
						fmt.Printf("  %-14s %d\n", st, n)
					}
				}
				for _, r := range failed {
					fmt.Printf("failed: job=%d return_code=%d\n", r.JobID, r.ReturnCode)
				}
			})
		},
	}
}
