package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/config"
	"github.com/FairForge/perfharness/internal/harness"
)

func (a *app) monitorCommand() *cobra.Command {
	var (
		interval time.Duration
		duration string
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Sample host, backend and service health without generating load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var d time.Duration
			if duration != "" {
				var err error
				if d, err = config.ParseDuration(duration); err != nil {
					return err
				}
			}
			res, err := a.newRunner().Monitor(cmd.Context(), harness.MonitorRequest{
				Interval:    interval,
				Duration:    d,
				HistoryPath: a.out,
			})
			if err != nil {
				return err
			}
			if a.out != "" {
				a.logger.Info("history written", zap.String("path", a.out), zap.Int("samples", len(res.Samples)))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.Summary)
		},
	}
	f := cmd.Flags()
	f.DurationVar(&interval, "interval", 0, "sampling interval (default from PERF_MONITORING_SAMPLE_INTERVAL)")
	f.StringVar(&duration, "duration", "", "stop after this long; empty runs until interrupted")
	f.StringVar(&a.out, "out", "", "export raw samples here (.json, .json.gz or .json.zst)")
	f.StringVar(&a.listen, "listen", "", "serve /metrics, /status and /healthz on this address")
	return cmd
}
