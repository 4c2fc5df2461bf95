package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newhook/cifail/internal/checks"
	"github.com/newhook/cifail/internal/display"
	"github.com/newhook/cifail/internal/git"
	"github.com/newhook/cifail/internal/github"
	"github.com/newhook/cifail/internal/logging"
)

var (
	flagChecksDetailed bool
	flagChecksDetail   string
	flagChecksFormat   string
	flagChecksPR       string
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "Show CI check status for the current branch's pull request",
	Long: `Show CI check status for the pull request of the current branch.

Failing checks are numbered. Use --detail to drill into specific failures
(for example --detail 1,3) or --detailed to analyze all of them.`,
	Args: cobra.NoArgs,
	RunE: runChecks,
}

func init() {
	checksCmd.Flags().BoolVar(&flagChecksDetailed, "detailed", false, "analyze every failing check")
	checksCmd.Flags().StringVar(&flagChecksDetail, "detail", "", "analyze failing checks by number, comma separated (e.g. 1,3)")
	checksCmd.Flags().StringVar(&flagChecksPR, "pr", "", "pull request number or URL (default: current branch)")
	addFormatFlag(checksCmd, &flagChecksFormat)
}

func runChecks(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(flagChecksFormat)
	if err != nil {
		return err
	}
	var indices []int
	if flagChecksDetail != "" {
		if indices, err = checks.ParseIndices(flagChecksDetail); err != nil {
			return err
		}
	}
	pr, err := github.ParsePRArg(flagChecksPR)
	if err != nil {
		return err
	}

	ctx := GetContext()
	cfg := appConfig
	runner := newRunner(cfg)
	wantDetails := flagChecksDetailed || len(indices) > 0

	cwd, err := getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	if err := git.RequireRepo(ctx, runner, cwd); err != nil {
		return err
	}
	if wantDetails {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if format == formatTable {
			if home, err := userHomeDir(); err == nil {
				printWarnings(cmd.ErrOrStderr(), cfg.QuickCheck(home))
			}
		}
	}

	spin := newSpinner(cmd, format)
	spin.Start("Fetching PR checks...")
	defer spin.Stop()

	gh := github.NewClient(runner, cwd)
	info, err := gh.PRInfo(ctx, pr)
	if err != nil {
		if errors.Is(err, github.ErrNoPR) && pr == "" {
			if branch, berr := git.CurrentBranch(ctx, runner, cwd); berr == nil && branch != "" {
				return fmt.Errorf("%w (branch %s)", err, branch)
			}
		}
		return err
	}
	raw, err := gh.PRChecks(ctx, pr)
	if err != nil {
		return err
	}
	result, err := checks.Aggregate(checks.NewCheckStatuses(raw))
	if err != nil {
		return err
	}
	logging.Debug("aggregated checks",
		"pr", info.Number,
		"total", result.Total,
		"failed", result.Failed,
		"running", result.Running,
		"pending", result.Pending)

	report := display.ChecksReport{PR: info, Result: result, Detailed: wantDetails}

	if wantDetails && result.HasFailures() {
		resolver := newResolver(cfg, newBuildkiteClient(cfg, runner))
		if len(indices) > 0 {
			spin.Update("Analyzing selected failures...")
			report.Details, err = resolver.ResolveIndices(ctx, result, indices)
		} else {
			spin.Update("Analyzing failures...")
			report.Details, err = resolver.ResolveAll(ctx, result)
		}
		if err != nil {
			return err
		}
	} else if len(indices) > 0 {
		// No failures: any requested index is out of range.
		if err := result.ValidateIndices(indices); err != nil {
			return err
		}
	}
	spin.Stop()

	if format == formatJSON {
		return display.WriteJSON(cmd.OutOrStdout(), display.ChecksJSON(report))
	}
	display.NewPrinter(cmd.OutOrStdout()).Checks(report)
	return nil
}
