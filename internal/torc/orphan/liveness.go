//go:build unix

package orphan

import (
	"context"
	"syscall"

	"github.com/nrel/torc/internal/torc/domain"
)

// PIDLivenessChecker probes a "local" ComputeNode's liveness the way the
// teacher's platform layer probes a child process: signal 0 to its recorded
// pid, which the kernel delivers to no one but still reports ESRCH if the
// process is gone (jsturma-joblet/pkg/platform.BasePlatform.Kill).
//
// Slurm-backed nodes have no local pid to probe; they are reported alive
// here and left to the (external, out-of-core per SPEC_FULL.md §10) Slurm
// scheduler adapter to reconcile through ScheduledComputeNode state instead.
type PIDLivenessChecker struct{}

func (PIDLivenessChecker) IsAlive(_ context.Context, node *domain.ComputeNode) (bool, error) {
	if node.NodeType != domain.ComputeNodeLocal {
		return true, nil
	}
	if node.Pid <= 0 {
		return false, nil
	}
	err := syscall.Kill(int(node.Pid), syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if err == syscall.ESRCH {
		return false, nil
	}
	// EPERM means the process exists but we can't signal it — still alive.
	return true, nil
}
