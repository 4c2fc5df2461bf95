package cmd

import (
	"github.com/spf13/cobra"

	"github.com/newhook/cifail/internal/buildkite"
	"github.com/newhook/cifail/internal/display"
)

var flagJobFormat string

var jobCmd = &cobra.Command{
	Use:   "job <job-id> <build-id> <pipeline-slug>",
	Short: "Extract the failure from a single Buildkite job",
	Args:  cobra.ExactArgs(3),
	RunE:  runJob,
}

func init() {
	addFormatFlag(jobCmd, &flagJobFormat)
}

func runJob(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(flagJobFormat)
	if err != nil {
		return err
	}
	jobID := args[0]
	ref, err := buildkite.ParseBuildInput(args[1])
	if err != nil {
		return err
	}
	pipeline := args[2]

	cfg := appConfig
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := GetContext()
	resolver := newResolver(cfg, newBuildkiteClient(cfg, newRunner(cfg)))

	spin := newSpinner(cmd, format)
	spin.Start("Analyzing job " + jobID + "...")
	jf, err := resolver.AnalyzeJobByID(ctx, pipeline, ref.Number, jobID)
	spin.Stop()
	if err != nil {
		return err
	}

	if format == formatJSON {
		return display.WriteJSON(cmd.OutOrStdout(), display.JobJSON(jf))
	}
	display.NewPrinter(cmd.OutOrStdout()).JobDetail(jf, 1)
	return nil
}
