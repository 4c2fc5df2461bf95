// Package checks aggregates PR check states and resolves failure details
// from Buildkite job logs.
package checks

import (
	"errors"
	"fmt"
	"strings"

	"github.com/newhook/cifail/internal/buildkite"
	"github.com/newhook/cifail/internal/logparser"
)

var (
	// ErrInvalidResult is returned when an AnalysisResult violates its count
	// or ordinal invariants.
	ErrInvalidResult = errors.New("invalid analysis result")
	// ErrIndexOutOfRange is returned for failure ordinals outside 1..K.
	ErrIndexOutOfRange = errors.New("failure index out of range")
	// ErrInvalidIndex is returned for --detail values that are not positive integers.
	ErrInvalidIndex = errors.New("invalid failure index")
)

// State is the normalized state of a check.
type State string

const (
	StatePassed  State = "passed"
	StateFailed  State = "failed"
	StateRunning State = "running"
	StatePending State = "pending"
	StateOther   State = "other"
)

// Backend identifies the CI system behind a check.
type Backend string

const (
	BackendBuildkite Backend = "buildkite"
	BackendOther     Backend = "other-github-check"
)

// RawCheck is a check as reported by gh pr checks.
type RawCheck struct {
	Name        string `json:"name"`
	State       string `json:"state"`
	Description string `json:"description"`
	Workflow    string `json:"workflow"`
	Link        string `json:"link"`
	Bucket      string `json:"bucket"`
}

// CheckStatus is a normalized PR check.
type CheckStatus struct {
	Name        string              `json:"name"`
	State       State               `json:"state"`
	Backend     Backend             `json:"backend"`
	RawState    string              `json:"raw_state"`
	Description string              `json:"description,omitempty"`
	Link        string              `json:"link,omitempty"`
	Workflow    string              `json:"workflow,omitempty"`
	Build       *buildkite.BuildRef `json:"build,omitempty"`
}

var rawStates = map[string]State{
	"SUCCESS":     StatePassed,
	"FAILURE":     StateFailed,
	"ERROR":       StateFailed,
	"IN_PROGRESS": StateRunning,
	"PENDING":     StatePending,
	"QUEUED":      StatePending,
	"WAITING":     StatePending,
	"REQUESTED":   StatePending,
	"EXPECTED":    StatePending,
}

// States that gh reports but which never count as pass, fail or running.
var knownOther = map[string]bool{
	"NEUTRAL":         true,
	"SKIPPED":         true,
	"CANCELLED":       true,
	"TIMED_OUT":       true,
	"STALE":           true,
	"ACTION_REQUIRED": true,
	"STARTUP_FAILURE": true,
}

var bucketStates = map[string]State{
	"pass":    StatePassed,
	"fail":    StateFailed,
	"pending": StatePending,
}

// NormalizeState maps a gh state, with its bucket as a fallback for states
// gh added after this table was written.
func NormalizeState(raw, bucket string) State {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if s, ok := rawStates[upper]; ok {
		return s
	}
	if knownOther[upper] {
		return StateOther
	}
	if s, ok := bucketStates[strings.ToLower(strings.TrimSpace(bucket))]; ok {
		return s
	}
	return StateOther
}

// NewCheckStatus normalizes a raw check.
func NewCheckStatus(raw RawCheck) CheckStatus {
	c := CheckStatus{
		Name:        raw.Name,
		State:       NormalizeState(raw.State, raw.Bucket),
		Backend:     BackendOther,
		RawState:    raw.State,
		Description: raw.Description,
		Link:        raw.Link,
		Workflow:    raw.Workflow,
	}
	if buildkite.IsBuildkiteURL(raw.Link) {
		c.Backend = BackendBuildkite
		if ref, err := buildkite.ParseBuildURL(raw.Link); err == nil {
			c.Build = &ref
		}
	}
	return c
}

// NewCheckStatuses normalizes a list of raw checks, keeping order.
func NewCheckStatuses(raw []RawCheck) []CheckStatus {
	out := make([]CheckStatus, len(raw))
	for i, r := range raw {
		out[i] = NewCheckStatus(r)
	}
	return out
}

// DetailStatus reports how far a failure detail got.
type DetailStatus string

const (
	DetailPending      DetailStatus = "pending"
	DetailAnalyzed     DetailStatus = "analyzed"
	DetailNoDetails    DetailStatus = "no-details"
	DetailUnanalyzable DetailStatus = "unanalyzable"
	DetailTrigger      DetailStatus = "trigger"
	DetailNotBuildkite DetailStatus = "not-buildkite"
)

// JobFailure is the analysis of one failed Buildkite job.
type JobFailure struct {
	JobID        string             `json:"job_id"`
	JobName      string             `json:"job_name"`
	BuildID      string             `json:"build_id"`
	PipelineSlug string             `json:"pipeline_slug"`
	WebURL       string             `json:"web_url,omitempty"`
	Analysis     logparser.Analysis `json:"analysis"`
	Analyzed     bool               `json:"analyzed"`
	Reason       string             `json:"reason,omitempty"`
}

// FailureDetail describes one failed check. Index is its 1-based ordinal
// among the failed checks of a result.
type FailureDetail struct {
	Index       int                 `json:"index"`
	CheckName   string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Link        string              `json:"link,omitempty"`
	Backend     Backend             `json:"backend"`
	Build       *buildkite.BuildRef `json:"build,omitempty"`

	Command string   `json:"failing_command,omitempty"`
	Error   string   `json:"error_message,omitempty"`
	Context []string `json:"error_context,omitempty"`
	JobID   string   `json:"job_id,omitempty"`
	JobName string   `json:"job_name,omitempty"`

	Jobs   []JobFailure `json:"jobs,omitempty"`
	Status DetailStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// NewFailureDetail creates a pending detail for a failed check.
func NewFailureDetail(index int, check CheckStatus) (FailureDetail, error) {
	if index < 1 {
		return FailureDetail{}, fmt.Errorf("%w: index %d must be positive", ErrInvalidResult, index)
	}
	if check.State != StateFailed {
		return FailureDetail{}, fmt.Errorf("%w: check %q is %s, not failed", ErrInvalidResult, check.Name, check.State)
	}
	return FailureDetail{
		Index:       index,
		CheckName:   check.Name,
		Description: check.Description,
		Link:        check.Link,
		Backend:     check.Backend,
		Build:       check.Build,
		Status:      DetailPending,
	}, nil
}

// HasFindings reports whether a command or error was extracted.
func (d FailureDetail) HasFindings() bool {
	return d.Command != "" || d.Error != ""
}

// Counts tallies checks by normalized state.
type Counts struct {
	Total     int `json:"total_checks"`
	Buildkite int `json:"buildkite_checks"`
	Running   int `json:"running_checks"`
	Pending   int `json:"pending_checks"`
	Passed    int `json:"passed_checks"`
	Failed    int `json:"failed_checks"`
	Other     int `json:"other_checks"`
}

// SuccessRate is passed over passed+failed as a percentage, or -1 when no
// check has completed.
func (c Counts) SuccessRate() float64 {
	done := c.Passed + c.Failed
	if done == 0 {
		return -1
	}
	return float64(c.Passed) * 100 / float64(done)
}

// AnalysisResult is the aggregated view of a PR's checks.
type AnalysisResult struct {
	Counts
	OtherStates map[string]int  `json:"other_states,omitempty"`
	Failures    []FailureDetail `json:"failing_checks"`
	InProgress  []CheckStatus   `json:"in_progress_checks"`
}

// NewAnalysisResult validates counts and failure ordinals.
func NewAnalysisResult(counts Counts, otherStates map[string]int, failures []FailureDetail, inProgress []CheckStatus) (AnalysisResult, error) {
	if sum := counts.Passed + counts.Failed + counts.Running + counts.Pending + counts.Other; sum != counts.Total {
		return AnalysisResult{}, fmt.Errorf("%w: state counts sum to %d, total is %d", ErrInvalidResult, sum, counts.Total)
	}
	if counts.Buildkite > counts.Total {
		return AnalysisResult{}, fmt.Errorf("%w: %d buildkite checks of %d total", ErrInvalidResult, counts.Buildkite, counts.Total)
	}
	if len(failures) > counts.Failed {
		return AnalysisResult{}, fmt.Errorf("%w: %d failure details for %d failed checks", ErrInvalidResult, len(failures), counts.Failed)
	}
	for i, f := range failures {
		if f.Index != i+1 {
			return AnalysisResult{}, fmt.Errorf("%w: failure %d has index %d", ErrInvalidResult, i+1, f.Index)
		}
	}
	if failures == nil {
		failures = []FailureDetail{}
	}
	if inProgress == nil {
		inProgress = []CheckStatus{}
	}
	return AnalysisResult{
		Counts:      counts,
		OtherStates: otherStates,
		Failures:    failures,
		InProgress:  inProgress,
	}, nil
}

// Failure returns the failure with ordinal n.
func (r AnalysisResult) Failure(n int) (FailureDetail, error) {
	if n < 1 || n > len(r.Failures) {
		return FailureDetail{}, fmt.Errorf("%w: %d (have %d failures)", ErrIndexOutOfRange, n, len(r.Failures))
	}
	return r.Failures[n-1], nil
}

// HasFailures reports whether any check failed.
func (r AnalysisResult) HasFailures() bool {
	return r.Failed > 0
}
