package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newhook/cifail/internal/config"
	"github.com/newhook/cifail/internal/display"
	"github.com/newhook/cifail/internal/github"
	"github.com/newhook/cifail/internal/logging"
	cisignal "github.com/newhook/cifail/internal/signal"
	"github.com/newhook/cifail/internal/tui"
)

var (
	flagConfigureToken        string
	flagConfigureOrg          string
	flagConfigurePipeline     string
	flagConfigureMainPipeline string
	flagConfigureNoInput      bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Save Buildkite credentials and configure the bk CLI",
	Long: `Save the Buildkite API token and organization to the cifail config file and
configure the bk CLI with them.

Without flags an interactive form is shown. Use --no-input with --token and
--org in scripts.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&flagConfigureToken, "token", "", "Buildkite API token")
	configureCmd.Flags().StringVar(&flagConfigureOrg, "org", "", "Buildkite organization slug")
	configureCmd.Flags().StringVar(&flagConfigurePipeline, "pipeline", "", "default pipeline slug")
	configureCmd.Flags().StringVar(&flagConfigureMainPipeline, "main-pipeline", "", "pipeline whose builds only trigger other pipelines")
	configureCmd.Flags().BoolVar(&flagConfigureNoInput, "no-input", false, "do not show the interactive form")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	if err := checkTools("bk", "gh"); err != nil {
		return err
	}

	// Start from the file alone so environment overrides are not persisted.
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return err
	}

	values := tui.FormValues{
		Token:        firstNonEmpty(flagConfigureToken, cfg.Buildkite.Token, appConfig.Buildkite.Token),
		Org:          firstNonEmpty(flagConfigureOrg, cfg.Buildkite.Org, appConfig.Buildkite.Org),
		Pipeline:     firstNonEmpty(flagConfigurePipeline, cfg.Buildkite.Pipeline),
		MainPipeline: firstNonEmpty(flagConfigureMainPipeline, cfg.Buildkite.MainPipeline),
	}

	in, _ := cmd.InOrStdin().(*os.File)
	if !flagConfigureNoInput && in != nil && display.IsTerminal(in) {
		values, err = tui.RunConfigureForm(ctx, in, cmd.OutOrStdout(), values)
		if err != nil {
			return err
		}
	}

	if err := validateCredentials(values); err != nil {
		return err
	}

	cfg.Buildkite.Token = values.Token
	cfg.Buildkite.Org = values.Org
	cfg.Buildkite.Pipeline = values.Pipeline
	cfg.Buildkite.MainPipeline = values.MainPipeline

	// Don't let Ctrl+C leave a half-written config behind.
	if err := cisignal.Critical(func() error { return cfg.Save(configPath) }); err != nil {
		return err
	}
	logging.Info("saved config", "path", configPath, "org", cfg.Buildkite.Org)

	p := display.NewPrinter(cmd.OutOrStdout())
	p.Message("success", "✅ Saved configuration to "+configPath)

	home, err := userHomeDir()
	if err != nil {
		return fmt.Errorf("failed to find home directory: %w", err)
	}
	cwd, err := getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	runner := newRunner(cfg)
	bk := newBuildkiteClient(cfg, runner)
	removed, err := bk.Configure(ctx, home, cwd, cfg.Buildkite.Token, cfg.Buildkite.Org)
	if err != nil {
		return err
	}
	if removed {
		p.Message("info", "🧹 Removed stray .bk.yaml from the current directory")
	}
	if err := bk.UseOrg(ctx, cfg.Buildkite.Org); err != nil {
		return err
	}
	if err := bk.Ping(ctx); err != nil {
		return err
	}
	p.Message("success", "✅ Buildkite CLI configured for "+cfg.Buildkite.Org)

	if err := github.NewClient(runner, cwd).AuthStatus(ctx); err != nil {
		p.Message("warning", "⚠️  "+err.Error())
	} else {
		p.Message("success", "✅ GitHub CLI is authenticated")
	}
	return nil
}

func validateCredentials(v tui.FormValues) error {
	switch {
	case v.Token == "":
		return config.ErrMissingToken
	case v.Org == "":
		return errors.New("buildkite organization is required (use --org)")
	case strings.ContainsAny(v.Org, " /"):
		return fmt.Errorf("organization slug %q must not contain spaces or slashes", v.Org)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
