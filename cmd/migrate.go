package cmd

import (
	"context"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/synset-tree/library/log"
)

var migrateCMD = &cobra.Command{
	Use:   "migrate",
	Short: "migrate",
	Long:  `create or drop the record table`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		down, err := cmd.Flags().GetBool("down")
		if err != nil {
			log.Logger.Panic("read --down", zap.Error(err))
		}

		if err := runMigrate(cmd.Context(), down); err != nil {
			log.Logger.Panic("migrate", zap.Error(err))
		}
	},
}

func runMigrate(ctx context.Context, down bool) error {
	store, db, err := openStore(ctx)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer db.Close() // nolint: errcheck

	if down {
		if err := store.DropSchema(ctx); err != nil {
			return errors.Wrap(err, "drop schema")
		}
		return nil
	}

	if err := store.Migrate(ctx); err != nil {
		return errors.Wrap(err, "migrate schema")
	}
	return nil
}

func init() {
	rootCMD.AddCommand(migrateCMD)
	migrateCMD.Flags().Bool("down", false, "drop the record table instead of creating it")
}
