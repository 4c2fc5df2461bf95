package buildkite

import "fmt"

// Build is the subset of the Buildkite REST build payload cifail uses.
type Build struct {
	ID       string   `json:"id"`
	Number   int      `json:"number"`
	State    string   `json:"state"`
	WebURL   string   `json:"web_url"`
	Message  string   `json:"message"`
	Branch   string   `json:"branch"`
	Pipeline Pipeline `json:"pipeline"`
	Jobs     []Job    `json:"jobs"`
}

// Pipeline identifies the pipeline a build belongs to.
type Pipeline struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Job is one step execution within a build.
type Job struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	Label      string `json:"label"`
	State      string `json:"state"`
	WebURL     string `json:"web_url"`
	RawLogURL  string `json:"raw_log_url"`
	ExitStatus *int   `json:"exit_status"`
	SoftFailed bool   `json:"soft_failed"`
	Retried    bool   `json:"retried"`

	TriggeredBuild *TriggeredBuild `json:"triggered_build,omitempty"`
}

// TriggeredBuild links a trigger step to the build it started.
type TriggeredBuild struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	WebURL string `json:"web_url"`
}

const (
	jobStateFailed    = "failed"
	jobStateTimedOut  = "timed_out"
	jobTypeScript     = "script"
	jobTypeTrigger    = "trigger"
	defaultJobName    = "Unknown job"
	buildkiteHostName = "buildkite.com"
)

// DisplayName returns the job's name, falling back to its label.
func (j Job) DisplayName() string {
	switch {
	case j.Name != "":
		return j.Name
	case j.Label != "":
		return j.Label
	}
	return defaultJobName
}

// Failed reports a hard failure: soft failures and retried attempts do not count.
func (j Job) Failed() bool {
	if j.SoftFailed || j.Retried {
		return false
	}
	return j.State == jobStateFailed || j.State == jobStateTimedOut
}

// HasLog reports whether the job type produces a log.
func (j Job) HasLog() bool {
	return j.Type == "" || j.Type == jobTypeScript
}

// IsTrigger reports whether the job is a trigger step.
func (j Job) IsTrigger() bool {
	return j.Type == jobTypeTrigger
}

// FailedJobs returns the build's hard-failed jobs in build order.
func (b Build) FailedJobs() []Job {
	var out []Job
	for _, j := range b.Jobs {
		if j.Failed() {
			out = append(out, j)
		}
	}
	return out
}

// Ref returns the "<pipeline>#<number>" label for b.
func (b Build) Ref() string {
	return fmt.Sprintf("%s#%d", b.Pipeline.Slug, b.Number)
}
