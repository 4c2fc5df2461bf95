package checks

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bkLink(pipeline string, n int) string {
	return fmt.Sprintf("https://buildkite.com/acme/%s/builds/%d", pipeline, n)
}

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		raw    string
		bucket string
		want   State
	}{
		{"SUCCESS", "pass", StatePassed},
		{"FAILURE", "fail", StateFailed},
		{"ERROR", "", StateFailed},
		{"IN_PROGRESS", "pending", StateRunning},
		{"PENDING", "pending", StatePending},
		{"QUEUED", "", StatePending},
		{"WAITING", "", StatePending},
		{"REQUESTED", "", StatePending},
		{"EXPECTED", "", StatePending},
		{"success", "", StatePassed},
		{"NEUTRAL", "pass", StateOther},
		{"SKIPPED", "skipping", StateOther},
		{"CANCELLED", "cancel", StateOther},
		{"TIMED_OUT", "fail", StateOther},
		{"STARTUP_FAILURE", "fail", StateOther},
		{"SOMETHING_NEW", "fail", StateFailed},
		{"SOMETHING_NEW", "", StateOther},
		{"", "", StateOther},
	}
	for _, tt := range tests {
		t.Run(tt.raw+"/"+tt.bucket, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeState(tt.raw, tt.bucket))
		})
	}
}

func TestNewCheckStatus(t *testing.T) {
	c := NewCheckStatus(RawCheck{
		Name:  "buildkite/web",
		State: "FAILURE",
		Link:  bkLink("web", 42) + "#0190-job",
	})
	assert.Equal(t, StateFailed, c.State)
	assert.Equal(t, BackendBuildkite, c.Backend)
	require.NotNil(t, c.Build)
	assert.Equal(t, "web", c.Build.Pipeline)
	assert.Equal(t, "42", c.Build.Number)

	gha := NewCheckStatus(RawCheck{
		Name:  "lint",
		State: "SUCCESS",
		Link:  "https://github.com/acme/web/actions/runs/1",
	})
	assert.Equal(t, BackendOther, gha.Backend)
	assert.Nil(t, gha.Build)

	// A Buildkite link that is not a build page is still Buildkite.
	org := NewCheckStatus(RawCheck{Name: "bk", State: "PENDING", Link: "https://buildkite.com/acme"})
	assert.Equal(t, BackendBuildkite, org.Backend)
	assert.Nil(t, org.Build)
}

func twelveChecks() []CheckStatus {
	var raw []RawCheck
	for i := 0; i < 7; i++ {
		raw = append(raw, RawCheck{Name: fmt.Sprintf("pass-%d", i), State: "SUCCESS", Link: bkLink("web", 100+i)})
	}
	for i := 0; i < 3; i++ {
		raw = append(raw, RawCheck{Name: fmt.Sprintf("fail-%d", i), State: "FAILURE", Link: bkLink("web", 200+i)})
	}
	raw = append(raw,
		RawCheck{Name: "run-0", State: "IN_PROGRESS", Link: bkLink("web", 300)},
		RawCheck{Name: "run-1", State: "IN_PROGRESS", Link: "https://github.com/acme/web/actions/runs/9"},
	)
	return NewCheckStatuses(raw)
}

func TestAggregate(t *testing.T) {
	result, err := Aggregate(twelveChecks())
	require.NoError(t, err)

	assert.Equal(t, 12, result.Total)
	assert.Equal(t, 7, result.Passed)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, 2, result.Running)
	assert.Equal(t, 0, result.Pending)
	assert.Equal(t, 0, result.Other)
	assert.Equal(t, 11, result.Buildkite)
	assert.Equal(t, result.Total, result.Passed+result.Failed+result.Running+result.Pending+result.Other)

	require.Len(t, result.Failures, 3)
	for i, f := range result.Failures {
		assert.Equal(t, i+1, f.Index)
		assert.Equal(t, fmt.Sprintf("fail-%d", i), f.CheckName)
		assert.Equal(t, DetailPending, f.Status)
	}

	require.Len(t, result.InProgress, 1)
	assert.Equal(t, "run-0", result.InProgress[0].Name)
}

func TestAggregate_Empty(t *testing.T) {
	result, err := Aggregate(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.NotNil(t, result.Failures)
	assert.Empty(t, result.Failures)
	assert.False(t, result.HasFailures())
	assert.Equal(t, -1.0, result.SuccessRate())
}

func TestAggregate_ResultIsValid(t *testing.T) {
	tests := []struct {
		name string
		raw  []RawCheck
	}{
		{"only failures", []RawCheck{{Name: "a", State: "FAILURE"}, {Name: "b", State: "ERROR"}}},
		{"unknown states", []RawCheck{{Name: "a", State: "STALE"}, {Name: "b"}}},
		{"mixed backends", []RawCheck{
			{Name: "a", State: "FAILURE", Link: bkLink("web", 1)},
			{Name: "b", State: "PENDING", Link: bkLink("web", 2)},
			{Name: "c", State: "FAILURE", Link: "https://github.com/acme/web/actions/runs/3"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Aggregate(NewCheckStatuses(tt.raw))
			require.NoError(t, err)

			// Round-tripping through the validating constructor must agree.
			again, err := NewAnalysisResult(result.Counts, result.OtherStates, result.Failures, result.InProgress)
			require.NoError(t, err)
			assert.Equal(t, result, again)
		})
	}
}

func TestAggregate_OtherBreakdown(t *testing.T) {
	result, err := Aggregate(NewCheckStatuses([]RawCheck{
		{Name: "a", State: "SKIPPED"},
		{Name: "b", State: "SKIPPED"},
		{Name: "c", State: "CANCELLED"},
		{Name: "d", State: "SUCCESS"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Other)
	assert.Equal(t, map[string]int{"SKIPPED": 2, "CANCELLED": 1}, result.OtherStates)
	assert.Equal(t, 100.0, result.SuccessRate())
}

func TestAnalysisResult_Failure(t *testing.T) {
	result, err := Aggregate(twelveChecks())
	require.NoError(t, err)

	f, err := result.Failure(2)
	require.NoError(t, err)
	assert.Equal(t, "fail-1", f.CheckName)

	for _, n := range []int{0, -1, 4, 5} {
		_, err := result.Failure(n)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "index %d", n)
	}
	assert.ErrorIs(t, result.ValidateIndices([]int{1, 5}), ErrIndexOutOfRange)
	assert.NoError(t, result.ValidateIndices([]int{3, 1}))
}

func TestNewAnalysisResult_Validation(t *testing.T) {
	failed := CheckStatus{Name: "x", State: StateFailed}
	d1, err := NewFailureDetail(1, failed)
	require.NoError(t, err)
	d3, err := NewFailureDetail(3, failed)
	require.NoError(t, err)

	tests := []struct {
		name     string
		counts   Counts
		failures []FailureDetail
		wantErr  bool
	}{
		{"consistent", Counts{Total: 2, Passed: 1, Failed: 1}, []FailureDetail{d1}, false},
		{"sum mismatch", Counts{Total: 3, Passed: 1, Failed: 1}, nil, true},
		{"too many failures", Counts{Total: 1, Passed: 1}, []FailureDetail{d1}, true},
		{"sparse ordinals", Counts{Total: 2, Failed: 2}, []FailureDetail{d1, d3}, true},
		{"buildkite above total", Counts{Total: 1, Passed: 1, Buildkite: 2}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAnalysisResult(tt.counts, nil, tt.failures, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResult)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewFailureDetail(t *testing.T) {
	_, err := NewFailureDetail(0, CheckStatus{State: StateFailed})
	assert.ErrorIs(t, err, ErrInvalidResult)

	_, err = NewFailureDetail(1, CheckStatus{State: StatePassed})
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestParseIndices(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"1", []int{1}, false},
		{"1,3", []int{1, 3}, false},
		{" 3 , 1 ,3", []int{3, 1}, false},
		{"2,,4", []int{2, 4}, false},
		{"", nil, true},
		{"0", nil, true},
		{"-1", nil, true},
		{"a", nil, true},
		{"1,x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIndices(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIndex)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
