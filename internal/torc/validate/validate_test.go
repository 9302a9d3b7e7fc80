package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/torcerr"
)

func TestJobName(t *testing.T) {
	cases := []struct {
		name    string
		jobName string
		wantErr bool
	}{
		{"valid", "preprocess-step-1", false},
		{"empty", "", true},
		{"forward slash", "stage/one", true},
		{"backslash", `stage\one`, true},
		{"too long", strings.Repeat("a", MaxNameBytes+1), true},
		{"exactly max", strings.Repeat("a", MaxNameBytes), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := JobName(c.jobName)
			if c.wantErr {
				assert.Error(t, err)
				assert.Equal(t, torcerr.InvalidArgument, torcerr.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResourceRequirementName_RejectsReserved(t *testing.T) {
	err := ResourceRequirementName(domain.ReservedResourceRequirementName)
	assert.Error(t, err)
	assert.Equal(t, torcerr.InvalidArgument, torcerr.KindOf(err))
}

func TestResourceRequirement_Bounds(t *testing.T) {
	valid := &domain.ResourceRequirement{Name: "gpu-large", NumCPUs: 8, NumGPUs: 1, NumNodes: 1}
	assert.NoError(t, ResourceRequirement(valid))

	negCPU := &domain.ResourceRequirement{Name: "bad", NumCPUs: -1, NumNodes: 1}
	assert.Error(t, ResourceRequirement(negCPU))

	zeroNodes := &domain.ResourceRequirement{Name: "bad", NumNodes: 0}
	assert.Error(t, ResourceRequirement(zeroNodes))
}
