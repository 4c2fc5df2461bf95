package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/newhook/cifail/internal/buildkite"
	"github.com/newhook/cifail/internal/checks"
	"github.com/newhook/cifail/internal/display"
)

var (
	flagLogsDetailed     bool
	flagLogsPipelineSlug string
	flagLogsFormat       string
)

var logsCmd = &cobra.Command{
	Use:   "logs <build-id-or-url>",
	Short: "List the failed jobs of a Buildkite build",
	Long: `List the failed jobs of a Buildkite build.

The build can be a number or a Buildkite build URL. With a bare number the
pipeline comes from --pipeline-slug or the configured default pipeline.
Use --detailed to fetch each job's log and extract the failure.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVar(&flagLogsDetailed, "detailed", false, "fetch logs and extract failing commands and errors")
	logsCmd.Flags().StringVar(&flagLogsPipelineSlug, "pipeline-slug", "", "pipeline slug for bare build numbers")
	addFormatFlag(logsCmd, &flagLogsFormat)
}

func runLogs(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(flagLogsFormat)
	if err != nil {
		return err
	}
	ref, err := buildkite.ParseBuildInput(args[0])
	if err != nil {
		return err
	}

	cfg := appConfig
	ref, err = buildkite.ResolvePipeline(ref, flagLogsPipelineSlug, cfg.Buildkite.Pipeline)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := GetContext()
	runner := newRunner(cfg)
	resolver := newResolver(cfg, newBuildkiteClient(cfg, runner))

	spin := newSpinner(cmd, format)
	spin.Start("Fetching build " + ref.String() + "...")
	defer spin.Stop()

	build, err := resolver.Builds.Build(ctx, ref.Pipeline, ref.Number)
	if err != nil {
		return err
	}
	failed := build.FailedJobs()

	report := display.JobsReport{
		BuildID:      strconv.Itoa(build.Number),
		PipelineSlug: ref.Pipeline,
		Detailed:     flagLogsDetailed,
	}
	if flagLogsDetailed {
		spin.Update("Analyzing failed jobs...")
		report.Jobs, err = resolver.AnalyzeJobs(ctx, build, failed)
		if err != nil {
			return err
		}
	} else {
		report.Jobs = make([]checks.JobFailure, len(failed))
		for i, job := range failed {
			report.Jobs[i] = checks.JobFailure{
				JobID:        job.ID,
				JobName:      job.DisplayName(),
				BuildID:      report.BuildID,
				PipelineSlug: ref.Pipeline,
				WebURL:       job.WebURL,
			}
		}
	}
	spin.Stop()

	if format == formatJSON {
		return display.WriteJSON(cmd.OutOrStdout(), display.JobsJSON(report))
	}
	display.NewPrinter(cmd.OutOrStdout()).Jobs(report)
	return nil
}
