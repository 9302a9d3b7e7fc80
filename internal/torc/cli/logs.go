package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/workerlog"
)

// newLogsCmd is the `logs` command group of spec §6. The core commits only
// to the on-disk path shape a worker writes stdio under
// (internal/torc/workerlog.Path); collecting, bundling or tailing those
// files is the out-of-core log-bundle analysis layer's job (spec §1).
func newLogsCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Locate worker stdout/stderr log files",
	}
	pathCmd := &cobra.Command{
		Use:   "path <workflow-id> <job-id> <run-id>",
		Short: "Print the stdout/stderr log paths for one job run",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fail(err)
			}
			jobID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fail(err)
			}
			runID, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fail(err)
			}
			paths := map[string]string{
				"stdout": workerlog.Path(outputDir, wfID, jobID, runID, workerlog.Stdout),
				"stderr": workerlog.Path(outputDir, wfID, jobID, runID, workerlog.Stderr),
			}
			return printResult(paths, func() {
				fmt.Println(paths["stdout"])
				fmt.Println(paths["stderr"])
			})
		},
	}
	pathCmd.Flags().StringVar(&outputDir, "output-dir", ".", "worker output directory root")
	cmd.AddCommand(pathCmd)
	return cmd
}
