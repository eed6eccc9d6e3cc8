package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/synset-tree/internal/records"
	"github.com/Laisky/synset-tree/internal/web"
	"github.com/Laisky/synset-tree/library/db/sql/kv"
	"github.com/Laisky/synset-tree/library/log"
	"github.com/Laisky/synset-tree/library/throttle"
)

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `HTTP API and front-end server for the synset tree`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := runAPI(ctx); err != nil {
			log.Logger.Panic("run api", zap.Error(err))
		}
	},
}

func runAPI(ctx context.Context) error {
	store, db, err := openStore(ctx)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer db.Close() // nolint: errcheck

	svc, err := records.NewService(store, store, log.Logger.Named("records"))
	if err != nil {
		return errors.Wrap(err, "new records service")
	}

	g, gctx := errgroup.WithContext(ctx)

	settings := records.LoadSettingsFromConfig()
	var querier records.Querier = svc
	if settings.CacheTTL > 0 {
		cache, err := kv.NewKv(ctx, db, kv.WithTableName(settings.CacheTableName()))
		if err != nil {
			return errors.Wrap(err, "new records cache")
		}
		if querier, err = records.NewCachedQuerier(svc, cache, settings.CacheTTL, log.Logger.Named("records_cache")); err != nil {
			return errors.Wrap(err, "wrap records cache")
		}
		log.Logger.Info("records cache enabled", zap.Duration("ttl", settings.CacheTTL))

		g.Go(func() error {
			sweepCache(gctx, cache, settings.CacheTTL)
			return nil
		})
	}

	opt := web.LoadOptionsFromConfig()
	opt.Records = records.NewHTTPHandler(querier, settings.QueryTimeout, log.Logger.Named("records_http"))
	opt.Logger = log.Logger.Named("web")
	if cfg, ok := web.LoadThrottleConfig(); ok {
		if opt.Throttle, err = throttle.New(gctx, cfg); err != nil {
			return errors.Wrap(err, "new api throttle")
		}
		log.Logger.Info("api rate limit enabled",
			zap.Int("client_per_sec", cfg.EachKeyNPerSec),
			zap.Int("total_per_sec", cfg.TotalNPerSec))
	}

	g.Go(func() error {
		return web.RunServer(gctx, opt)
	})

	if err := g.Wait(); err != nil {
		return errors.WithStack(err)
	}

	log.Logger.Info("api server stopped")
	return nil
}

// sweepCache drops expired cache rows every interval until ctx is done.
func sweepCache(ctx context.Context, cache *kv.Kv, interval time.Duration) {
	logger := log.Logger.Named("records_cache_sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := cache.DeleteExpired(ctx)
		if err != nil {
			logger.Warn("sweep records cache", zap.Error(err))
			continue
		}
		if n > 0 {
			logger.Debug("swept records cache", zap.Int64("removed", n))
		}
	}
}

func init() {
	rootCMD.AddCommand(apiCMD)
}
