package buildkite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJob_DisplayName(t *testing.T) {
	assert.Equal(t, "test", Job{Name: "test", Label: "label"}.DisplayName())
	assert.Equal(t, "label", Job{Label: "label"}.DisplayName())
	assert.Equal(t, "Unknown job", Job{}.DisplayName())
}

func TestJob_Failed(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want bool
	}{
		{"failed", Job{State: "failed"}, true},
		{"timed out", Job{State: "timed_out"}, true},
		{"passed", Job{State: "passed"}, false},
		{"soft failed", Job{State: "failed", SoftFailed: true}, false},
		{"retried", Job{State: "failed", Retried: true}, false},
		{"running", Job{State: "running"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.job.Failed())
		})
	}
}

func TestBuild_FailedJobsKeepsOrder(t *testing.T) {
	b := Build{Jobs: []Job{
		{ID: "a", State: "passed"},
		{ID: "b", State: "failed"},
		{ID: "c", State: "timed_out"},
	}}
	failed := b.FailedJobs()
	assert.Len(t, failed, 2)
	assert.Equal(t, "b", failed[0].ID)
	assert.Equal(t, "c", failed[1].ID)

	assert.Nil(t, Build{}.FailedJobs())
}
