package display

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/cifail/internal/checks"
	"github.com/newhook/cifail/internal/github"
	"github.com/newhook/cifail/internal/logparser"
)

func sampleResult(t *testing.T) checks.AnalysisResult {
	t.Helper()
	result, err := checks.Aggregate(checks.NewCheckStatuses([]checks.RawCheck{
		{Name: "buildkite/web", State: "FAILURE", Link: "https://buildkite.com/acme/web/builds/42", Description: "Build #42 failed"},
		{Name: "buildkite/api", State: "IN_PROGRESS", Link: "https://buildkite.com/acme/api/builds/7"},
		{Name: "lint", State: "SUCCESS"},
		{Name: "docs", State: "SKIPPED"},
	}))
	require.NoError(t, err)
	return result
}

func samplePR() github.PRInfo {
	return github.PRInfo{Number: 17, URL: "https://github.com/acme/web/pull/17", Title: "Fix flaky test"}
}

func analyzedJob() checks.JobFailure {
	return checks.JobFailure{
		JobID:        "0190-job",
		JobName:      ":pytest: tests",
		BuildID:      "42",
		PipelineSlug: "web",
		Analyzed:     true,
		Analysis: logparser.Analysis{
			Command: "pytest tests/test_auth.py",
			Error:   "AssertionError: Expected True",
			Context: []string{"1 │ $ pytest tests/test_auth.py", "2 │ AssertionError: Expected True"},
		},
	}
}

func TestPrinter_Checks(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Checks(ChecksReport{PR: samplePR(), Result: sampleResult(t)})
	out := buf.String()

	assert.Contains(t, out, "PR #17 - Fix flaky test")
	assert.Contains(t, out, "CI Checks Status")
	assert.Contains(t, out, "Total Checks")
	assert.Contains(t, out, "skipped: 1")
	assert.Contains(t, out, "Success Rate")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "Buildkite In Progress")
	assert.Contains(t, out, "Failing Checks")
	assert.Contains(t, out, "buildkite/web")
	assert.Contains(t, out, "cifail checks --detail 1")
	assert.Contains(t, out, "cifail logs 42 --pipeline-slug web")
}

func TestPrinter_ChecksDetailed(t *testing.T) {
	result := sampleResult(t)
	d := result.Failures[0]
	d.Status = checks.DetailAnalyzed
	d.Jobs = []checks.JobFailure{analyzedJob()}

	var buf bytes.Buffer
	NewPrinter(&buf).Checks(ChecksReport{PR: samplePR(), Result: result, Details: []checks.FailureDetail{d}, Detailed: true})
	out := buf.String()

	assert.Contains(t, out, "Failure #1: buildkite/web")
	assert.Contains(t, out, "CI Command (Failed)")
	assert.Contains(t, out, "pytest tests/test_auth.py")
	assert.Contains(t, out, "AssertionError: Expected True")
	assert.Contains(t, out, "2 │ AssertionError")
	assert.Contains(t, out, "Job 1: :pytest: tests")
	assert.NotContains(t, out, "Quick Actions")
}

func TestPrinter_FailureDetailStatuses(t *testing.T) {
	tests := []struct {
		name   string
		detail checks.FailureDetail
		want   string
	}{
		{
			name:   "trigger",
			detail: checks.FailureDetail{Index: 1, CheckName: "main", Status: checks.DetailTrigger},
			want:   "About Trigger Jobs",
		},
		{
			name:   "not buildkite",
			detail: checks.FailureDetail{Index: 1, CheckName: "gha", Status: checks.DetailNotBuildkite},
			want:   "does not run on Buildkite",
		},
		{
			name:   "unanalyzable without jobs",
			detail: checks.FailureDetail{Index: 1, CheckName: "x", Status: checks.DetailUnanalyzable, Reason: "build web#1 not found"},
			want:   "build web#1 not found",
		},
		{
			name: "no details extracted",
			detail: checks.FailureDetail{Index: 1, CheckName: "x", Status: checks.DetailNoDetails,
				Jobs: []checks.JobFailure{{JobID: "j", JobName: "setup", Analyzed: true}}},
			want: "Could not extract detailed failure information",
		},
		{
			name: "missing log",
			detail: checks.FailureDetail{Index: 1, CheckName: "x", Status: checks.DetailUnanalyzable,
				Jobs: []checks.JobFailure{{JobID: "j", JobName: "setup", Reason: "log not available"}}},
			want: "log not available",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPrinter(&buf).FailureDetail(tt.detail)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestPrinter_Jobs(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Jobs(JobsReport{BuildID: "42", PipelineSlug: "web"})
	assert.Contains(t, buf.String(), "No failed jobs found")

	buf.Reset()
	p.Jobs(JobsReport{BuildID: "42", PipelineSlug: "web", Jobs: []checks.JobFailure{{JobID: "j1", JobName: "lint"}}})
	assert.Contains(t, buf.String(), "Found 1 failed jobs")
	assert.Contains(t, buf.String(), "Use --detailed")
	assert.Contains(t, buf.String(), "bk api /pipelines/web/builds/42/jobs/<job-id>/log")
}

func TestPrinter_NarrowWidthKeepsContextLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.SetWidth(10)
	job := analyzedJob()
	job.Analysis.Context = []string{"1 │ " + string(bytes.Repeat([]byte("x"), 200))}
	p.JobDetail(job, 1)
	assert.Contains(t, buf.String(), "...")
}

func TestChecksJSON(t *testing.T) {
	result := sampleResult(t)
	resolved := result.Failures[0]
	resolved.Status = checks.DetailAnalyzed
	resolved.Command = "pytest tests/test_auth.py"

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, ChecksJSON(ChecksReport{PR: samplePR(), Result: result, Details: []checks.FailureDetail{resolved}})))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	for _, key := range []string{"pr_number", "pr_url", "pr_title", "total_checks", "buildkite_checks",
		"running_checks", "pending_checks", "passed_checks", "failed_checks", "other_checks",
		"failing_checks", "in_progress_checks"} {
		assert.Contains(t, got, key)
	}
	assert.EqualValues(t, 17, got["pr_number"])
	assert.EqualValues(t, 4, got["total_checks"])

	failing := got["failing_checks"].([]any)
	require.Len(t, failing, 1)
	first := failing[0].(map[string]any)
	assert.Equal(t, "pytest tests/test_auth.py", first["failing_command"])
	assert.Equal(t, "analyzed", first["status"])
	assert.EqualValues(t, 1, first["index"])

	// The result itself is not modified.
	assert.Equal(t, checks.DetailPending, result.Failures[0].Status)
}

func TestChecksJSON_EmptyListsAreArrays(t *testing.T) {
	empty, err := checks.Aggregate(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, ChecksJSON(ChecksReport{PR: samplePR(), Result: empty})))
	assert.Contains(t, buf.String(), `"failing_checks": []`)
	assert.Contains(t, buf.String(), `"in_progress_checks": []`)
}

func TestJobsJSON(t *testing.T) {
	jobs := []checks.JobFailure{analyzedJob()}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, JobsJSON(JobsReport{BuildID: "42", PipelineSlug: "web", Jobs: jobs, Detailed: true})))
	var got struct {
		BuildID      string `json:"build_id"`
		PipelineSlug string `json:"pipeline_slug"`
		FailedJobs   []struct {
			JobID          string   `json:"job_id"`
			FailingCommand *string  `json:"failing_command"`
			ErrorMessage   string   `json:"error_message"`
			ErrorContext   []string `json:"error_context"`
		} `json:"failed_jobs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "42", got.BuildID)
	assert.Equal(t, "web", got.PipelineSlug)
	require.Len(t, got.FailedJobs, 1)
	require.NotNil(t, got.FailedJobs[0].FailingCommand)
	assert.Equal(t, "pytest tests/test_auth.py", *got.FailedJobs[0].FailingCommand)
	assert.Len(t, got.FailedJobs[0].ErrorContext, 2)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, JobsJSON(JobsReport{BuildID: "42", PipelineSlug: "web", Jobs: jobs})))
	assert.NotContains(t, buf.String(), "failing_command")

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, JobsJSON(JobsReport{BuildID: "42", PipelineSlug: "web"})))
	assert.Contains(t, buf.String(), `"failed_jobs": []`)
}

func TestJobJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, JobJSON(analyzedJob())))
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "0190-job", got["job_id"])
	assert.Equal(t, "42", got["build_id"])
	assert.Equal(t, "web", got["pipeline_slug"])
	assert.Equal(t, "AssertionError: Expected True", got["error_message"])
}

func TestSpinnerDisabledOffTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	s := NewSpinner(f, true)
	assert.False(t, s.Enabled())
	s.Start("working")
	s.Update("still working")
	s.Stop()

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
