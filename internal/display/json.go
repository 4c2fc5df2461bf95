package display

import (
	"encoding/json"
	"io"

	"github.com/newhook/cifail/internal/checks"
	"github.com/newhook/cifail/internal/github"
)

// ChecksReport is everything the checks command shows.
type ChecksReport struct {
	PR     github.PRInfo
	Result checks.AnalysisResult
	// Details holds resolved failures, in the order they were requested.
	Details []checks.FailureDetail
	// Detailed is set when --detailed or --detail was given.
	Detailed bool
}

// JobsReport is everything the logs command shows.
type JobsReport struct {
	BuildID      string
	PipelineSlug string
	Jobs         []checks.JobFailure
	Detailed     bool
}

type checksJSON struct {
	PRNumber int    `json:"pr_number"`
	PRURL    string `json:"pr_url"`
	PRTitle  string `json:"pr_title"`
	checks.Counts
	OtherStates map[string]int         `json:"other_states,omitempty"`
	Failing     []checks.FailureDetail `json:"failing_checks"`
	InProgress  []checks.CheckStatus   `json:"in_progress_checks"`
}

// JobDetail is the analysis part of a job entry.
type JobDetail struct {
	FailingCommand string   `json:"failing_command"`
	ErrorMessage   string   `json:"error_message"`
	ErrorContext   []string `json:"error_context"`
	FailedTests    []string `json:"failed_tests,omitempty"`
}

type jobJSON struct {
	JobID   string `json:"job_id"`
	JobName string `json:"job_name"`
	WebURL  string `json:"web_url,omitempty"`
	*JobDetail
	Reason string `json:"reason,omitempty"`
}

type jobsJSON struct {
	BuildID      string    `json:"build_id"`
	PipelineSlug string    `json:"pipeline_slug"`
	FailedJobs   []jobJSON `json:"failed_jobs"`
}

type singleJobJSON struct {
	BuildID      string `json:"build_id"`
	PipelineSlug string `json:"pipeline_slug"`
	jobJSON
}

// ChecksJSON builds the JSON document for the checks command. Resolved
// details replace the matching placeholder entries.
func ChecksJSON(report ChecksReport) any {
	failing := make([]checks.FailureDetail, len(report.Result.Failures))
	copy(failing, report.Result.Failures)
	for _, d := range report.Details {
		if d.Index >= 1 && d.Index <= len(failing) {
			failing[d.Index-1] = d
		}
	}
	inProgress := report.Result.InProgress
	if inProgress == nil {
		inProgress = []checks.CheckStatus{}
	}
	return checksJSON{
		PRNumber:    report.PR.Number,
		PRURL:       report.PR.URL,
		PRTitle:     report.PR.Title,
		Counts:      report.Result.Counts,
		OtherStates: report.Result.OtherStates,
		Failing:     failing,
		InProgress:  inProgress,
	}
}

func newJobJSON(j checks.JobFailure, detailed bool) jobJSON {
	out := jobJSON{JobID: j.JobID, JobName: j.JobName, WebURL: j.WebURL, Reason: j.Reason}
	if detailed {
		ctx := j.Analysis.Context
		if ctx == nil {
			ctx = []string{}
		}
		out.JobDetail = &JobDetail{
			FailingCommand: j.Analysis.Command,
			ErrorMessage:   j.Analysis.Error,
			ErrorContext:   ctx,
			FailedTests:    j.Analysis.FailedTests,
		}
	}
	return out
}

// JobsJSON builds the JSON document for the logs command.
func JobsJSON(report JobsReport) any {
	jobs := make([]jobJSON, len(report.Jobs))
	for i, j := range report.Jobs {
		jobs[i] = newJobJSON(j, report.Detailed)
	}
	return jobsJSON{BuildID: report.BuildID, PipelineSlug: report.PipelineSlug, FailedJobs: jobs}
}

// JobJSON builds the JSON document for the job command.
func JobJSON(j checks.JobFailure) any {
	return singleJobJSON{BuildID: j.BuildID, PipelineSlug: j.PipelineSlug, jobJSON: newJobJSON(j, true)}
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
