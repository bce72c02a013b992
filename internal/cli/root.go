// Package cli implements the perfharness command surface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/config"
	"github.com/FairForge/perfharness/internal/logging"
)

// ErrRunFailed is returned when a run's report status is fail.
var ErrRunFailed = errors.New("run failed")

// app carries state shared by every subcommand.
type app struct {
	v        *viper.Viper
	settings *config.Settings
	registry *config.Registry
	logger   *zap.Logger

	scenarioFile string
	duration     string
	users        int
	spawnRate    float64
	out          string
	listen       string
	seed         uint64
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "perfharness",
		Short: "Load generation and performance sampling for the clinical search stack",
		Long: `perfharness drives synthetic workloads against PostgreSQL, Neo4j and Redis,
simulates users against the chat/search service, samples host and service
health, and writes a JSON report with a pass/degraded/fail status.

Configuration comes from PERF_* environment variables, for example
PERF_TARGET_URL, PERF_POSTGRES_DSN, PERF_NEO4J_URI, PERF_REDIS_URL and
PERF_MONITORING_PROMETHEUS_URL.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, console)")
	pf.StringVar(&a.scenarioFile, "scenario-file", "", "YAML file with additional or overriding scenarios")
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", pf.Lookup("log-format"))

	root.AddCommand(
		a.runCommand(),
		a.presetCommand("quick"),
		a.presetCommand("peak"),
		a.presetCommand("stress"),
		a.presetCommand("full"),
		a.simulateCommand(),
		a.monitorCommand(),
		a.scenariosCommand(),
		a.mockServiceCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	settings, err := config.LoadFromEnv(a.v)
	if err != nil {
		return err
	}
	a.settings = settings

	logger, err := logging.New(&logging.LoggerConfig{
		Level:  settings.Log.Level,
		Format: settings.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.logger = logger

	a.registry = config.NewRegistry()
	if a.scenarioFile != "" {
		names, err := config.LoadScenarioFile(a.registry, a.scenarioFile)
		if err != nil {
			return err
		}
		logger.Info("scenario file loaded", zap.String("path", a.scenarioFile), zap.Strings("scenarios", names))
	}
	return nil
}

// Execute runs the command tree and maps the outcome to a process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, ErrRunFailed) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}
