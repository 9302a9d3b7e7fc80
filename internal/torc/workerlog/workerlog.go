// Package workerlog is the log-bundle path contract of spec §6/§10: the
// core commits only to where a worker's stdout/stderr for a given run
// lives on disk, not to bundling or analyzing those files (out of core per
// spec.md §1).
package workerlog

import (
	"fmt"
	"path/filepath"
)

// Stream distinguishes a job run's two output streams, named the way the
// path contract's literal suffixes are (o for stdout, e for stderr), not
// spelled out, since the suffix itself is part of the bit-exact contract.
type Stream string

const (
	Stdout Stream = "o"
	Stderr Stream = "e"
)

// Path returns the on-disk location of one job run's log for the given
// stream, rooted at outputDir. The shape is spec §6's literal contract —
// `<output_dir>/job_stdio/job_<workflow_id>_<job_id>_r<run_id>.{o,e}` —
// reproduced bit-exact since the out-of-core log-bundle analysis layer
// locates files by this shape alone, the same way the orphan sentinel
// return code (domain.OrphanSentinelReturnCode) is a bit-exact contract
// with that layer.
func Path(outputDir string, workflowID, jobID, runID int64, stream Stream) string {
	return filepath.Join(
		outputDir,
		"job_stdio",
		fmt.Sprintf("job_%d_%d_r%d.%s", workflowID, jobID, runID, stream),
	)
}
