package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/newhook/cifail/internal/buildkite"
	"github.com/newhook/cifail/internal/checks"
	"github.com/newhook/cifail/internal/config"
	"github.com/newhook/cifail/internal/github"
	"github.com/newhook/cifail/internal/logging"
	"github.com/newhook/cifail/internal/process"
	cisignal "github.com/newhook/cifail/internal/signal"
)

var (
	// rootCtx holds the signal-cancellable context for the application
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// appConfig is loaded once per invocation in PersistentPreRunE.
	appConfig  *config.Config
	configPath string

	flagConfig string
	flagDebug  bool
)

// Seams replaced by tests.
var (
	lookupEnv   config.Env = config.OSEnv
	userHomeDir            = os.UserHomeDir
	getwd                  = os.Getwd
	checkTools             = process.CheckInstalled
	newRunner              = func(cfg *config.Config) process.Runner {
		return process.NewExecRunner(cfg.Fetch.Timeout())
	}
)

var rootCmd = &cobra.Command{
	Use:   "cifail",
	Short: "Explain failing Buildkite checks on the current pull request",
	Long: `cifail inspects the CI checks of the pull request for the current branch and
extracts the failing command, error message and surrounding log lines from
Buildkite job logs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Create a cancellable context with signal handling
		rootCtx, rootCancel = cisignal.WithSignalCancel(context.Background())

		configPath = flagConfig
		if configPath == "" {
			configPath = config.DefaultPath(lookupEnv)
		}
		cfg, err := config.Load(configPath, lookupEnv)
		if err != nil {
			return err
		}
		appConfig = cfg

		if flagDebug || cfg.Log.Debug {
			logPath := cfg.Log.Path
			if logPath == "" {
				logPath = logging.DefaultPath()
			}
			if err := logging.Init(logPath); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: debug log disabled: %v\n", err)
			}
		} else {
			_ = logging.Init("")
		}
		logging.Debug("starting", "command", cmd.CommandPath(), "args", args, "config", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
		if rootCancel != nil {
			rootCancel()
		}
	},
}

// Execute runs the CLI. Errors are printed with a hint; the caller only
// chooses the exit code.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		logging.Error("command failed", "error", err)
		_ = logging.Close()
	}
	if rootCancel != nil {
		rootCancel()
	}
	return err
}

// GetContext returns the root context that is cancelled on SIGINT/SIGTERM.
func GetContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "❌ %v\n", err)
	if hint := hintFor(err); hint != "" {
		fmt.Fprintf(w, "   %s\n", hint)
	}
}

func hintFor(err error) string {
	var notFound *process.NotFoundError
	switch {
	case errors.As(err, &notFound) && notFound.Hint != "":
		return notFound.Hint
	case errors.Is(err, config.ErrMissingToken):
		return "Run `cifail configure` or export " + config.EnvToken + "."
	case errors.Is(err, buildkite.ErrAuth):
		return "Check your Buildkite token and organization; run `cifail configure`."
	case errors.Is(err, github.ErrNoPR):
		return "Push the branch and open a pull request, or pass --pr."
	case errors.Is(err, ErrNotGitRepo):
		return "Run cifail from inside a git repository."
	case errors.Is(err, checks.ErrIndexOutOfRange):
		return "Run `cifail checks` to see the failure numbers."
	case errors.Is(err, process.ErrTimeout):
		return "Raise timeout_seconds in the [fetch] section of " + configPath + "."
	}
	return ""
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default $XDG_CONFIG_HOME/cifail/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "write a debug log")

	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(checksCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(jobCmd)
}
