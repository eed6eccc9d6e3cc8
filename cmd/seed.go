package cmd

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/synset-tree/internal/records"
	"github.com/Laisky/synset-tree/internal/seed"
	"github.com/Laisky/synset-tree/library/db/postgres"
	"github.com/Laisky/synset-tree/library/db/sql/kv"
	"github.com/Laisky/synset-tree/library/log"
)

type seedConfig struct {
	File      string
	BatchSize int
	Truncate  bool
	// Copy uses postgres COPY instead of multi-row INSERT.
	Copy bool
}

var seedCMD = &cobra.Command{
	Use:   "seed",
	Short: "seed",
	Long:  `load an ImageNet structure_released.xml into the record table`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cfg := seedConfig{}
		var err error
		if cfg.File, err = cmd.Flags().GetString("file"); err != nil {
			log.Logger.Panic("read --file", zap.Error(err))
		}
		if cfg.BatchSize, err = cmd.Flags().GetInt("batch-size"); err != nil {
			log.Logger.Panic("read --batch-size", zap.Error(err))
		}
		if cfg.Truncate, err = cmd.Flags().GetBool("truncate"); err != nil {
			log.Logger.Panic("read --truncate", zap.Error(err))
		}
		if cfg.Copy, err = cmd.Flags().GetBool("copy"); err != nil {
			log.Logger.Panic("read --copy", zap.Error(err))
		}

		if err := runSeed(cmd.Context(), cfg); err != nil {
			log.Logger.Panic("seed", zap.Error(err))
		}
	},
}

func runSeed(ctx context.Context, cfg seedConfig) error {
	logger := log.Logger.Named("seed")
	startAt := time.Now()

	rows, err := seed.ParseFile(cfg.File)
	if err != nil {
		return errors.WithStack(err)
	}
	logger.Info("parsed ImageNet structure",
		zap.String("file", cfg.File),
		zap.Int("records", len(rows)))

	store, db, err := openStore(ctx)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer db.Close() // nolint: errcheck

	if err := store.Migrate(ctx); err != nil {
		return errors.Wrap(err, "migrate schema")
	}

	opt := seed.Options{
		BatchSize: cfg.BatchSize,
		Truncate:  cfg.Truncate,
		Logger:    logger,
	}
	if cfg.Copy && dbDriver() == driverPostgres {
		err = seedWithCopy(ctx, store.TableName(), rows, opt)
	} else {
		err = seed.Seed(ctx, store, rows, opt)
	}
	if err != nil {
		return errors.WithStack(err)
	}

	// cached query results describe the previous data set
	if settings := records.LoadSettingsFromConfig(); settings.CacheTTL > 0 {
		cache, err := kv.NewKv(ctx, db, kv.WithTableName(settings.CacheTableName()))
		if err != nil {
			return errors.Wrap(err, "open records cache")
		}
		if err := cache.Flush(ctx); err != nil {
			return errors.Wrap(err, "flush records cache")
		}
	}

	logger.Info("seed completed",
		zap.Int("records", len(rows)),
		zap.Duration("cost", time.Since(startAt)))
	return nil
}

func seedWithCopy(ctx context.Context, table string, rows []records.Record, opt seed.Options) error {
	pool, err := postgres.NewPool(ctx, postgresDialInfo())
	if err != nil {
		return errors.Wrap(err, "open pgx pool")
	}
	defer pool.Close()

	seeder, err := seed.NewCopySeeder(pool, table, opt.Logger)
	if err != nil {
		return errors.Wrap(err, "new copy seeder")
	}

	return seeder.Seed(ctx, rows, opt)
}

func init() {
	rootCMD.AddCommand(seedCMD)

	seedCMD.Flags().String("file", "", "path to structure_released.xml (required)")
	seedCMD.Flags().Int("batch-size", seed.DefaultBatchSize, "records per insert batch")
	seedCMD.Flags().Bool("truncate", false, "delete existing records before seeding")
	seedCMD.Flags().Bool("copy", true, "use COPY on postgres")
	if err := seedCMD.MarkFlagRequired("file"); err != nil {
		log.Logger.Panic("mark flag required", zap.Error(err))
	}
}
