package checks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/cifail/internal/buildkite"
	"github.com/newhook/cifail/internal/logparser"
	"github.com/newhook/cifail/internal/process"
)

type fakeBuilds struct {
	mu        sync.Mutex
	builds    map[string]buildkite.Build
	buildErrs map[string]error
	logs      map[string]string
	logErrs   map[string]error
	logCalls  int
}

func (f *fakeBuilds) Build(_ context.Context, pipeline, number string) (buildkite.Build, error) {
	key := pipeline + "/" + number
	if err := f.buildErrs[key]; err != nil {
		return buildkite.Build{}, err
	}
	b, ok := f.builds[key]
	if !ok {
		return buildkite.Build{}, fmt.Errorf("%w: build %s", buildkite.ErrNotFound, key)
	}
	return b, nil
}

func (f *fakeBuilds) JobLog(_ context.Context, _, _, jobID string) (string, error) {
	f.mu.Lock()
	f.logCalls++
	f.mu.Unlock()
	if err := f.logErrs[jobID]; err != nil {
		return "", err
	}
	log, ok := f.logs[jobID]
	if !ok {
		return "", fmt.Errorf("%w: log %s", buildkite.ErrNotFound, jobID)
	}
	return log, nil
}

func failedDetail(t *testing.T, index int, link string) FailureDetail {
	t.Helper()
	d, err := NewFailureDetail(index, NewCheckStatus(RawCheck{Name: fmt.Sprintf("check-%d", index), State: "FAILURE", Link: link}))
	require.NoError(t, err)
	return d
}

func webBuild() buildkite.Build {
	return buildkite.Build{
		Number:   42,
		Pipeline: buildkite.Pipeline{Slug: "web"},
		Jobs: []buildkite.Job{
			{ID: "ok", Type: "script", Name: "lint", State: "passed"},
			{ID: "silent", Type: "script", Name: "setup", State: "failed"},
			{ID: "py", Type: "script", Name: "pytest", State: "failed"},
		},
	}
}

func TestResolver_Resolve(t *testing.T) {
	src := &fakeBuilds{
		builds: map[string]buildkite.Build{"web/42": webBuild()},
		logs: map[string]string{
			"silent": "",
			"py":     "$ pytest tests/test_auth.py\nAssertionError: Expected True\n",
		},
	}
	r := &Resolver{Builds: src}

	d, err := r.Resolve(context.Background(), failedDetail(t, 1, bkLink("web", 42)))
	require.NoError(t, err)

	assert.Equal(t, DetailAnalyzed, d.Status)
	assert.Equal(t, "pytest tests/test_auth.py", d.Command)
	assert.Equal(t, "AssertionError: Expected True", d.Error)
	assert.Equal(t, "py", d.JobID)
	assert.Equal(t, "pytest", d.JobName)
	require.Len(t, d.Jobs, 2)
	assert.Equal(t, "silent", d.Jobs[0].JobID)
	assert.True(t, d.Jobs[0].Analyzed)
	assert.False(t, d.Jobs[0].Analysis.Found())
	assert.Equal(t, 2, src.logCalls)
}

func TestResolver_ResolveStatuses(t *testing.T) {
	build := webBuild()
	passing := buildkite.Build{Number: 7, Pipeline: buildkite.Pipeline{Slug: "api"}}

	src := &fakeBuilds{
		builds: map[string]buildkite.Build{"web/42": build, "api/7": passing},
		logs:   map[string]string{"silent": "nothing to see", "py": "all quiet"},
	}

	tests := []struct {
		name       string
		link       string
		main       string
		wantStatus DetailStatus
	}{
		{"github actions", "https://github.com/acme/web/actions/runs/1", "", DetailNotBuildkite},
		{"main pipeline", bkLink("acme-main", 1), "acme-main", DetailTrigger},
		{"no failed jobs", bkLink("api", 7), "", DetailNoDetails},
		{"missing build", bkLink("gone", 1), "", DetailUnanalyzable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{Builds: src, MainPipeline: tt.main}
			d, err := r.Resolve(context.Background(), failedDetail(t, 1, tt.link))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, d.Status)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestResolver_NoDetailsExtracted(t *testing.T) {
	src := &fakeBuilds{
		builds: map[string]buildkite.Build{"web/42": webBuild()},
		logs:   map[string]string{"silent": "", "py": ""},
	}
	d, err := (&Resolver{Builds: src}).Resolve(context.Background(), failedDetail(t, 1, bkLink("web", 42)))
	require.NoError(t, err)
	assert.Equal(t, DetailNoDetails, d.Status)
	assert.Equal(t, "no details extracted", d.Reason)
	assert.False(t, d.HasFindings())
}

func TestResolver_MissingLogsAreContained(t *testing.T) {
	src := &fakeBuilds{
		builds: map[string]buildkite.Build{"web/42": webBuild()},
		logs:   map[string]string{},
	}
	d, err := (&Resolver{Builds: src}).Resolve(context.Background(), failedDetail(t, 1, bkLink("web", 42)))
	require.NoError(t, err)
	assert.Equal(t, DetailUnanalyzable, d.Status)
	assert.Equal(t, "log not available", d.Reason)
	for _, j := range d.Jobs {
		assert.False(t, j.Analyzed)
	}
}

func TestResolver_PropagatesFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeBuilds
		want error
	}{
		{
			name: "auth on build",
			src:  &fakeBuilds{buildErrs: map[string]error{"web/42": buildkite.ErrAuth}},
			want: buildkite.ErrAuth,
		},
		{
			name: "missing bk",
			src:  &fakeBuilds{buildErrs: map[string]error{"web/42": &process.NotFoundError{Name: "bk"}}},
			want: process.ErrCommandNotFound,
		},
		{
			name: "timeout on log",
			src: &fakeBuilds{
				builds:  map[string]buildkite.Build{"web/42": webBuild()},
				logs:    map[string]string{"silent": ""},
				logErrs: map[string]error{"py": process.ErrTimeout},
			},
			want: process.ErrTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Resolver{Builds: tt.src}).Resolve(context.Background(), failedDetail(t, 1, bkLink("web", 42)))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestResolver_AnalyzerPanicIsContained(t *testing.T) {
	reg := logparser.NewRegistry(logparser.Pattern{
		Name:    "explodes",
		Purpose: logparser.PurposeCommand,
		Regexp:  regexp.MustCompile(`.`),
		Accept:  func(string) bool { panic("boom") },
	})
	src := &fakeBuilds{
		builds: map[string]buildkite.Build{"web/42": webBuild()},
		logs:   map[string]string{"silent": "x", "py": "y"},
	}
	r := &Resolver{Builds: src, Analyzer: &logparser.Analyzer{Registry: reg}}

	d, err := r.Resolve(context.Background(), failedDetail(t, 1, bkLink("web", 42)))
	require.NoError(t, err)
	assert.Equal(t, DetailUnanalyzable, d.Status)
	assert.Equal(t, "log could not be analyzed", d.Reason)
}

func TestResolver_ResolveIndices(t *testing.T) {
	src := &fakeBuilds{
		builds: map[string]buildkite.Build{"web/42": webBuild()},
		logs:   map[string]string{"silent": "", "py": "Error: broken"},
	}
	result, err := Aggregate(NewCheckStatuses([]RawCheck{
		{Name: "a", State: "FAILURE", Link: bkLink("web", 42)},
		{Name: "b", State: "SUCCESS"},
		{Name: "c", State: "FAILURE", Link: "https://github.com/acme/web/actions/runs/3"},
		{Name: "d", State: "FAILURE", Link: bkLink("web", 42)},
	}))
	require.NoError(t, err)
	r := &Resolver{Builds: src, Parallelism: 2}

	got, err := r.ResolveIndices(context.Background(), result, []int{3, 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, DetailAnalyzed, got[1].Status)

	calls := src.logCalls
	_, err = r.ResolveIndices(context.Background(), result, []int{1, 5})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, calls, src.logCalls, "nothing fetched for an invalid selection")

	all, err := r.ResolveAll(context.Background(), result)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, d := range all {
		assert.Equal(t, i+1, d.Index)
	}
	assert.Equal(t, DetailNotBuildkite, all[1].Status)
}

func TestResolver_AnalyzeJob(t *testing.T) {
	build := webBuild()
	build.Jobs = append(build.Jobs,
		buildkite.Job{ID: "trig", Type: "trigger", Name: "deploy", State: "failed",
			TriggeredBuild: &buildkite.TriggeredBuild{WebURL: "https://buildkite.com/acme/deploy/builds/3"}},
		buildkite.Job{ID: "block", Type: "manual", State: "failed"},
	)
	src := &fakeBuilds{
		builds: map[string]buildkite.Build{"web/42": build},
		logs:   map[string]string{"py": "+ go test ./...\n--- FAIL: TestX (0.00s)\nFAIL\n"},
	}
	r := &Resolver{Builds: src}

	jf, err := r.AnalyzeJobByID(context.Background(), "web", "42", "py")
	require.NoError(t, err)
	assert.True(t, jf.Analyzed)
	assert.Equal(t, "42", jf.BuildID)
	assert.Equal(t, "web", jf.PipelineSlug)
	assert.Equal(t, "go test ./...", jf.Analysis.Command)

	jf, err = r.AnalyzeJobByID(context.Background(), "web", "42", "trig")
	require.NoError(t, err)
	assert.False(t, jf.Analyzed)
	assert.Contains(t, jf.Reason, "deploy/builds/3")

	jf, err = r.AnalyzeJobByID(context.Background(), "web", "42", "block")
	require.NoError(t, err)
	assert.Equal(t, "manual step has no log", jf.Reason)

	_, err = r.AnalyzeJobByID(context.Background(), "web", "42", "nope")
	assert.ErrorIs(t, err, buildkite.ErrNotFound)
}
