package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newhook/cifail/internal/buildkite"
	"github.com/newhook/cifail/internal/checks"
	"github.com/newhook/cifail/internal/config"
	"github.com/newhook/cifail/internal/display"
	"github.com/newhook/cifail/internal/git"
	"github.com/newhook/cifail/internal/logparser"
	"github.com/newhook/cifail/internal/process"
)

var (
	// ErrInvalidFormat is returned for --format values other than table or json.
	ErrInvalidFormat = errors.New("invalid output format")
	// ErrNotGitRepo is returned when checks runs outside a git work tree.
	ErrNotGitRepo = git.ErrNotRepo
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
)

// parseFormat accepts table (or its alias human) and json.
func parseFormat(s string) (outputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "human", "":
		return formatTable, nil
	case "json":
		return formatJSON, nil
	}
	return "", fmt.Errorf("%w: %q (use table or json)", ErrInvalidFormat, s)
}

func addFormatFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "format", string(formatTable), "output format: table or json")
}

// stderrFile returns the command's stderr as a file when it is one.
func stderrFile(cmd *cobra.Command) *os.File {
	f, _ := cmd.ErrOrStderr().(*os.File)
	return f
}

func newSpinner(cmd *cobra.Command, format outputFormat) *display.Spinner {
	f := stderrFile(cmd)
	if f == nil {
		return &display.Spinner{}
	}
	return display.NewSpinner(f, format == formatTable)
}

// printWarnings writes prerequisite warnings to w.
func printWarnings(w io.Writer, warnings []string) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "⚠️  %s\n", warn)
	}
}

func newBuildkiteClient(cfg *config.Config, runner process.Runner) *buildkite.Client {
	return buildkite.NewClient(runner, cfg.BuildkiteEnv())
}

func newResolver(cfg *config.Config, source checks.BuildSource) *checks.Resolver {
	return &checks.Resolver{
		Builds:       source,
		MainPipeline: cfg.Buildkite.MainPipeline,
		Analyzer:     logparser.NewAnalyzer(cfg.Analysis.GetContextBefore(), cfg.Analysis.GetContextAfter()),
		Parallelism:  cfg.Fetch.GetParallelism(),
	}
}
