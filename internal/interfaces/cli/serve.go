package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rrweller/finn-apartment-finder/internal/config"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
)

func NewServeCmd() *cobra.Command {
	var (
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the map session HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg := cliCtx.Config
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch && cliCtx.ConfigPath != "" {
				watchLogLevel(cliCtx.ConfigPath, cliCtx.Logger)
			}

			app, err := BuildApp(ctx, cfg, cliCtx.Logger)
			if err != nil {
				return err
			}
			cliCtx.Logger.Info("starting commutemap",
				logging.String("version", Version),
				logging.String("upstream", cfg.Upstream.BaseURL),
				logging.Bool("redis", cfg.Redis.Enabled),
				logging.Bool("tracing", cfg.Tracing.Enabled),
			)
			return app.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&watch, "watch-config", true, "apply log level changes from the config file without a restart")
	return cmd
}

// watchLogLevel applies log.level from every valid rewrite of path.
func watchLogLevel(path string, logger logging.Logger) {
	_, err := config.Watch(path, func(c *config.Config) {
		if c.Log.Level == logging.CurrentLevel() {
			return
		}
		logging.SetLevel(c.Log.Level)
		logger.Info("log level changed", logging.String("level", c.Log.Level))
	}, func(err error) {
		logger.Warn("ignoring invalid config change", logging.Err(err))
	})
	if err != nil {
		logger.Warn("config watch disabled", logging.Err(err))
	}
}

