package checks

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/newhook/cifail/internal/buildkite"
	"github.com/newhook/cifail/internal/logging"
	"github.com/newhook/cifail/internal/logparser"
)

// DefaultParallelism bounds concurrent log fetches when Resolver.Parallelism is unset.
const DefaultParallelism = 4

// BuildSource fetches Buildkite builds and job logs.
type BuildSource interface {
	Build(ctx context.Context, pipeline, number string) (buildkite.Build, error)
	JobLog(ctx context.Context, pipeline, number, jobID string) (string, error)
}

// Resolver fills in failure details on demand.
//
// A job whose log is missing or whose analysis panics is reported as
// unanalyzable; authentication, network and missing-tool errors are returned
// and abort the whole resolution.
type Resolver struct {
	Builds BuildSource
	// MainPipeline names a pipeline whose builds only trigger other pipelines.
	MainPipeline string
	Analyzer     *logparser.Analyzer
	Parallelism  int
}

func (r *Resolver) analyzer() *logparser.Analyzer {
	if r.Analyzer != nil {
		return r.Analyzer
	}
	return logparser.NewAnalyzer(logparser.DefaultContextBefore, logparser.DefaultContextAfter)
}

func (r *Resolver) limit() int {
	if r.Parallelism > 0 {
		return r.Parallelism
	}
	return DefaultParallelism
}

// Resolve drills into one failure.
func (r *Resolver) Resolve(ctx context.Context, d FailureDetail) (FailureDetail, error) {
	if d.Backend != BackendBuildkite || d.Build == nil || d.Build.Pipeline == "" {
		d.Status = DetailNotBuildkite
		d.Reason = "not a Buildkite build"
		return d, nil
	}
	if r.MainPipeline != "" && d.Build.Pipeline == r.MainPipeline {
		d.Status = DetailTrigger
		d.Reason = "build only triggers other pipelines; failures are in the triggered builds"
		return d, nil
	}

	build, err := r.Builds.Build(ctx, d.Build.Pipeline, d.Build.Number)
	if err != nil {
		if errors.Is(err, buildkite.ErrNotFound) {
			logging.Warn("build not found", "check", d.CheckName, "build", d.Build.String(), "error", err)
			d.Status = DetailUnanalyzable
			d.Reason = fmt.Sprintf("build %s not found", d.Build)
			return d, nil
		}
		return d, fmt.Errorf("failed to resolve failure %d (%s): %w", d.Index, d.CheckName, err)
	}

	failed := build.FailedJobs()
	if len(failed) == 0 {
		d.Status = DetailNoDetails
		d.Reason = "no failed jobs in build"
		return d, nil
	}

	jobs, err := r.AnalyzeJobs(ctx, build, failed)
	if err != nil {
		return d, fmt.Errorf("failed to resolve failure %d (%s): %w", d.Index, d.CheckName, err)
	}
	d.Jobs = jobs

	analyzed := false
	for _, j := range jobs {
		analyzed = analyzed || j.Analyzed
		if j.Analyzed && j.Analysis.Found() {
			d.Command = j.Analysis.Command
			d.Error = j.Analysis.Error
			d.Context = j.Analysis.Context
			d.JobID = j.JobID
			d.JobName = j.JobName
			d.Status = DetailAnalyzed
			return d, nil
		}
	}

	if analyzed {
		d.Status = DetailNoDetails
		d.Reason = "no details extracted"
	} else {
		d.Status = DetailUnanalyzable
		d.Reason = jobs[0].Reason
	}
	return d, nil
}

// ResolveIndices resolves the failures with the given ordinals, in the order
// given. Every ordinal is validated before anything is fetched.
func (r *Resolver) ResolveIndices(ctx context.Context, result AnalysisResult, indices []int) ([]FailureDetail, error) {
	if err := result.ValidateIndices(indices); err != nil {
		return nil, err
	}
	selected := make([]FailureDetail, len(indices))
	for i, n := range indices {
		selected[i] = result.Failures[n-1]
	}
	return r.resolveMany(ctx, selected)
}

// ResolveAll resolves every failure of result, keeping index order.
func (r *Resolver) ResolveAll(ctx context.Context, result AnalysisResult) ([]FailureDetail, error) {
	return r.resolveMany(ctx, result.Failures)
}

func (r *Resolver) resolveMany(ctx context.Context, details []FailureDetail) ([]FailureDetail, error) {
	out := make([]FailureDetail, len(details))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit())

	for i, d := range details {
		g.Go(func() error {
			resolved, err := r.Resolve(gctx, d)
			if err != nil {
				return err
			}
			out[i] = resolved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalyzeJobs analyzes each job's log concurrently. Results follow the order
// of jobs.
func (r *Resolver) AnalyzeJobs(ctx context.Context, build buildkite.Build, jobs []buildkite.Job) ([]JobFailure, error) {
	out := make([]JobFailure, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit())

	for i, job := range jobs {
		g.Go(func() error {
			jf, err := r.AnalyzeJob(gctx, build, job)
			if err != nil {
				return err
			}
			out[i] = jf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalyzeJob fetches and analyzes a single job's log.
func (r *Resolver) AnalyzeJob(ctx context.Context, build buildkite.Build, job buildkite.Job) (JobFailure, error) {
	number := strconv.Itoa(build.Number)
	jf := JobFailure{
		JobID:        job.ID,
		JobName:      job.DisplayName(),
		BuildID:      number,
		PipelineSlug: build.Pipeline.Slug,
		WebURL:       job.WebURL,
	}

	switch {
	case job.IsTrigger():
		jf.Reason = "trigger step"
		if job.TriggeredBuild != nil {
			jf.Reason = "trigger step; see " + job.TriggeredBuild.WebURL
		}
		return jf, nil
	case !job.HasLog():
		jf.Reason = fmt.Sprintf("%s step has no log", job.Type)
		return jf, nil
	}

	log := logging.With("build", build.Ref(), "job", job.ID)
	raw, err := r.Builds.JobLog(ctx, build.Pipeline.Slug, number, job.ID)
	if err != nil {
		if errors.Is(err, buildkite.ErrNotFound) {
			log.Warn("job log not found", "error", err)
			jf.Reason = "log not available"
			return jf, nil
		}
		return jf, fmt.Errorf("failed to fetch log for job %s: %w", job.DisplayName(), err)
	}

	analysis, err := r.analyze(raw)
	if err != nil {
		log.Error("log analysis failed", "error", err)
		jf.Reason = "log could not be analyzed"
		return jf, nil
	}
	jf.Analysis = analysis
	jf.Analyzed = true
	logging.DebugContext(ctx, "analyzed job log",
		"build", build.Ref(), "job", job.ID,
		"command_line", analysis.CommandLine, "error_line", analysis.ErrorLine)
	return jf, nil
}

// AnalyzeJobByID analyzes one job of a build, looked up by ID.
func (r *Resolver) AnalyzeJobByID(ctx context.Context, pipeline, number, jobID string) (JobFailure, error) {
	build, err := r.Builds.Build(ctx, pipeline, number)
	if err != nil {
		return JobFailure{}, err
	}
	for _, job := range build.Jobs {
		if job.ID == jobID {
			return r.AnalyzeJob(ctx, build, job)
		}
	}
	return JobFailure{}, fmt.Errorf("%w: job %s in build %s", buildkite.ErrNotFound, jobID, build.Ref())
}

func (r *Resolver) analyze(raw string) (a logparser.Analysis, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("analyzer panic: %v", p)
		}
	}()
	return r.analyzer().Analyze(raw), nil
}
