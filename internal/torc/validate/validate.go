// Package validate holds the resource-requirement and job-name validation
// rules the original Rust implementation enforced
// (tests/test_resource_requirements.rs, tests/test_jobs.rs) that spec.md's
// distillation left implicit. These run at the handler/request-payload
// boundary, ahead of domain.Job.Validate's narrower non-empty checks.
package validate

import (
	"strconv"
	"strings"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/torcerr"
)

// MaxNameBytes bounds Job, File, UserData, and ResourceRequirement names.
const MaxNameBytes = 256

// JobName rejects empty names, names over MaxNameBytes, and names
// containing a path separator (job names double as log-file path
// components, spec §6/§10).
func JobName(name string) error {
	return entityName("job", name)
}

// FileName applies the same name rules to a File entity (spec §3: "name
// unique per workflow").
func FileName(name string) error {
	return entityName("file", name)
}

// UserDataName applies the same name rules to a UserData entity.
func UserDataName(name string) error {
	return entityName("user data", name)
}

// EntityName is the exported form of the shared name-validation rule, for
// callers outside this package that validate an entity kind not given its
// own named wrapper above.
func EntityName(kind, name string) error {
	return entityName(kind, name)
}

func entityName(kind, name string) error {
	if name == "" {
		return torcerr.New(torcerr.InvalidArgument, kind+" name must not be empty")
	}
	if len(name) > MaxNameBytes {
		return torcerr.New(torcerr.InvalidArgument, kind+" name exceeds "+strconv.Itoa(MaxNameBytes)+" bytes")
	}
	if strings.ContainsAny(name, "/\\") {
		return torcerr.New(torcerr.InvalidArgument, kind+" name must not contain a path separator")
	}
	return nil
}

// ResourceRequirementName additionally rejects the reserved name "default"
// on create (spec §3: "Name \"default\" is reserved").
func ResourceRequirementName(name string) error {
	if err := entityName("resource requirement", name); err != nil {
		return err
	}
	if name == domain.ReservedResourceRequirementName {
		return torcerr.New(torcerr.InvalidArgument, `resource requirement name "default" is reserved`)
	}
	return nil
}

// ResourceRequirement enforces the numeric bounds of spec §3: num_cpus >= 0,
// num_gpus >= 0, num_nodes >= 1.
func ResourceRequirement(r *domain.ResourceRequirement) error {
	if err := ResourceRequirementName(r.Name); err != nil {
		return err
	}
	if r.NumCPUs < 0 {
		return torcerr.New(torcerr.InvalidArgument, "num_cpus must be >= 0")
	}
	if r.NumGPUs < 0 {
		return torcerr.New(torcerr.InvalidArgument, "num_gpus must be >= 0")
	}
	if r.NumNodes < 1 {
		return torcerr.New(torcerr.InvalidArgument, "num_nodes must be >= 1")
	}
	return nil
}
