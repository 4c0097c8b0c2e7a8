package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/cache/redis"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// connectRedis is replaced in tests.
var connectRedis = redis.NewClient

// PurgeResult reports how many shared routes were dropped.
type PurgeResult struct {
	Addr    string `json:"addr"`
	Prefix  string `json:"prefix"`
	Deleted int64  `json:"deleted"`
}

func (r PurgeResult) String() string {
	return fmt.Sprintf("purged %d routes from %s (prefix %q)", r.Deleted, r.Addr, r.Prefix)
}

func (r PurgeResult) TableHeaders() []string { return []string{"ADDR", "PREFIX", "DELETED"} }

func (r PurgeResult) TableRows() [][]string {
	return [][]string{{r.Addr, r.Prefix, strconv.FormatInt(r.Deleted, 10)}}
}

func NewRoutesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Manage the shared route store",
	}
	cmd.AddCommand(newRoutesPurgeCmd())
	return cmd
}

func newRoutesPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop every route cached in redis",
		Long: "purge deletes the routes every serve instance shares through redis.\n" +
			"Run it after the upstream routing data changes.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg := cliCtx.Config.Redis
			if !cfg.Enabled {
				return apperrors.InvalidState("redis is disabled, no shared routes to purge")
			}

			log := cliCtx.Logger.Named("redis")
			rc, err := connectRedis(cfg, log)
			if err != nil {
				return err
			}
			defer rc.Close()

			cache := redis.NewRedisCache(rc, log, redis.WithPrefix(cfg.KeyPrefix))
			store := redis.NewRouteStore(cache, nil, cfg.RouteTTL, log, nil)
			deleted, err := store.Purge(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge routes: %w", err)
			}
			log.Info("route store purged", logging.Int64("deleted", deleted))
			return PrintResult(cmd, PurgeResult{Addr: cfg.Addr, Prefix: cfg.KeyPrefix, Deleted: deleted})
		},
	}
}
