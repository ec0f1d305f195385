package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/config"
	"github.com/dyike/cortexmarket/internal/agents"
	"github.com/dyike/cortexmarket/pkg/app"
)

const statsEvery = 5 * time.Minute

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background sync scheduler until interrupted",
		Long: `Open the cache and store, start every sync job and block until SIGINT or
SIGTERM. Edits to config.json are picked up while running; the log level applies
immediately, other settings on the next start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, e)
		},
	}
}

func serve(ctx context.Context, e *env) error {
	rt, err := app.NewRuntime(ctx, e.mgr, app.WithNotifier(func(topic string, cfg config.Config) {
		logx.Infof("serve: %s log_level=%s", topic, cfg.LogLevel)
	}))
	if err != nil {
		return err
	}
	defer rt.Close()
	if e.logLevel != "" {
		app.ApplyLogLevel(e.logLevel)
	}

	cfg := rt.Config()
	if err := agents.InitDebug(ctx, &cfg); err != nil {
		logx.Errorf("serve: %v", err)
	}

	a, err := e.builder(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.CacheBackend == "memory" {
		logx.Infof("serve: cache_backend=memory is private to this process, other commands will not see synced data")
	}
	if !cfg.SyncEnabled {
		logx.Info("serve: sync disabled, waiting for shutdown")
		<-ctx.Done()
		return nil
	}

	s, err := a.NewScheduler()
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}
	logx.Infof("serve: scheduler started tasks=%d db=%s cache=%s", len(s.Stats()), cfg.DBDriver, cfg.CacheBackend)

	ticker := time.NewTicker(statsEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, st := range s.Stats() {
				logx.Infof("serve: task=%s ticks=%d failures=%d last_error=%q last_run=%s",
					st.Name, st.Ticks, st.Failures, st.LastError, st.LastRun.Format(time.RFC3339))
			}
		case <-ctx.Done():
			logx.Info("serve: shutting down")
			s.Stop()
			return nil
		}
	}
}
