package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/config"
	"github.com/FairForge/perfharness/internal/harness"
	"github.com/FairForge/perfharness/internal/report"
)

type runFlags struct {
	withUsers bool
	history   string
}

func (a *app) addRunFlags(cmd *cobra.Command, rf *runFlags) {
	f := cmd.Flags()
	f.StringVar(&a.duration, "duration", "", "scenario duration (e.g. 90s, 5m, or bare seconds)")
	f.IntVar(&a.users, "users", 0, "concurrent simulated users")
	f.Float64Var(&a.spawnRate, "spawn-rate", 0, "users spawned per second")
	f.StringVar(&a.out, "out", "", "write the JSON report to this path instead of stdout")
	f.StringVar(&a.listen, "listen", "", "serve /metrics, /status and /healthz on this address during the run")
	f.Uint64Var(&a.seed, "seed", 0, "seed for reproducible workloads (0 picks one)")
	if rf != nil {
		f.BoolVar(&rf.withUsers, "with-users", false, "also simulate users against the target service")
		f.StringVar(&rf.history, "history", "", "export raw samples here (.json, .json.gz or .json.zst)")
	}
}

func (a *app) runCommand() *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <scenario>...",
		Short: "Run one or more named scenarios",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd, harness.RunRequest{
				Scenarios:   args,
				Overrides:   a.override(config.Override{}),
				Users:       rf.withUsers,
				HistoryPath: rf.history,
			})
		},
	}
	a.addRunFlags(cmd, rf)
	return cmd
}

func (a *app) presetCommand(name string) *cobra.Command {
	preset, err := config.LookupPreset(name)
	if err != nil {
		panic(err)
	}
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   name,
		Short: preset.Description,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.execute(cmd, harness.RunRequest{
				Scenarios:   preset.Scenarios,
				Overrides:   a.override(preset.Override),
				Users:       rf.withUsers,
				HistoryPath: rf.history,
			})
		},
	}
	a.addRunFlags(cmd, rf)
	return cmd
}

func (a *app) simulateCommand() *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "simulate [scenario]",
		Short: "Simulate users against the target service without backend load",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario := "baseline"
			if len(args) == 1 {
				scenario = args[0]
			}
			return a.execute(cmd, harness.RunRequest{
				Scenarios:   []string{scenario},
				Overrides:   a.override(config.Override{}),
				UsersOnly:   true,
				HistoryPath: history,
			})
		},
	}
	a.addRunFlags(cmd, nil)
	cmd.Flags().StringVar(&history, "history", "", "export raw samples here (.json, .json.gz or .json.zst)")
	return cmd
}

// override layers explicit flags over a preset's overrides.
func (a *app) override(base config.Override) config.Override {
	if a.duration != "" {
		base.Duration = a.duration
	}
	if a.users > 0 {
		base.Users = a.users
	}
	if a.spawnRate > 0 {
		base.SpawnRate = a.spawnRate
	}
	return base
}

func (a *app) newRunner() *harness.Runner {
	if a.listen != "" {
		a.settings.Monitoring.ListenAddr = a.listen
	}
	opts := []harness.Option{}
	if a.seed != 0 {
		opts = append(opts, harness.WithSeed(a.seed))
	}
	return harness.NewRunner(a.settings, a.registry, a.logger, opts...)
}

func (a *app) execute(cmd *cobra.Command, req harness.RunRequest) error {
	started := time.Now()
	rep, err := a.newRunner().Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	if a.out != "" {
		if err := rep.WriteJSON(a.out); err != nil {
			return err
		}
		a.logger.Info("report written", zap.String("path", a.out))
	} else if err := rep.Encode(cmd.OutOrStdout()); err != nil {
		return err
	}

	printVerdict(cmd, rep, time.Since(started))
	if rep.Failed() {
		return ErrRunFailed
	}
	return nil
}

func printVerdict(cmd *cobra.Command, rep *report.Report, elapsed time.Duration) {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "status: %s  tests: %d  operations: %d  failed: %d  recommendations: %d  elapsed: %s\n",
		rep.Status, rep.Summary.TotalTests, rep.Summary.TotalOperations, rep.Summary.FailedOperations,
		len(rep.Recommendations), elapsed.Round(time.Millisecond))
	names := make([]string, 0, len(rep.Unavailable))
	for name := range rep.Unavailable {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "unavailable: %s: %s\n", name, rep.Unavailable[name])
	}
}
