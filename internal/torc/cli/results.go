package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <workflow-id>",
		Short: "List the latest result per job for the current run",
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
			results, err := c.ListWorkflowResults(ctx, wfID)
			if err != nil {
				return fail(err)
			}
			return printResult(results, func() {
				for _, r := range results {
					fmt.Printf("job=%d return_code=%d status=%s\n", r.JobID, r.ReturnCode, r.Status)
				}
			})
		},
	}
}
