package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/perfharness/internal/mockservice"
)

func (a *app) mockServiceCommand() *cobra.Command {
	var (
		listen string
		cfg    mockservice.Config
	)
	cmd := &cobra.Command{
		Use:   "mock-service",
		Short: "Serve a local stand-in for the monitored chat/search service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := mockservice.New(cfg, a.logger)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              listen,
				Handler:           svc,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.logger.Info("mock service listening",
				zap.String("addr", listen),
				zap.Float64("rate_limit_probability", cfg.RateLimitProbability),
				zap.Duration("latency", cfg.Latency),
				zap.Duration("jitter", cfg.Jitter))

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			a.logger.Info("shutting down mock service")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&listen, "listen", ":8000", "address to listen on")
	f.DurationVar(&cfg.Latency, "latency", 20*time.Millisecond, "base latency added to API calls")
	f.DurationVar(&cfg.Jitter, "jitter", 80*time.Millisecond, "maximum extra random latency")
	f.Float64Var(&cfg.RateLimitProbability, "rate-limit-prob", 0.02, "probability an API call answers 429")
	f.Float64Var(&cfg.ErrorProbability, "error-prob", 0.01, "probability an API call answers 500")
	f.Float64Var(&cfg.RequestsPerSecond, "rps", 0, "token bucket limit for API calls (0 disables)")
	f.IntVar(&cfg.RetryAfter, "retry-after", 1, "Retry-After seconds sent with 429 responses")
	return cmd
}
