package seed

import (
	"context"
	"database/sql"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/synset-tree/internal/records"
	"github.com/Laisky/synset-tree/library/log"
)

// DefaultBatchSize is the number of records written per INSERT statement.
const DefaultBatchSize = 1000

// Writer is the subset of records.Store the seeder needs.
type Writer interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	InsertBatch(ctx context.Context, tx *sql.Tx, batch []records.Record) error
	Truncate(ctx context.Context, tx *sql.Tx) error
}

// Options tunes a seed run.
type Options struct {
	BatchSize int
	// Truncate removes existing rows inside the same transaction before inserting.
	Truncate bool
	Logger   logSDK.Logger
}

// Seed writes rows in batches inside a single transaction.
// Nothing is persisted when any batch fails.
func Seed(ctx context.Context, w Writer, rows []records.Record, opt Options) error {
	if w == nil {
		return errors.New("writer cannot be nil")
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = DefaultBatchSize
	}
	logger := opt.Logger
	if logger == nil {
		logger = log.Logger.Named("seed")
	}

	total := len(rows)
	batches := (total + opt.BatchSize - 1) / opt.BatchSize
	logger.Info("inserting records",
		zap.Int("total", total),
		zap.Int("batch_size", opt.BatchSize),
		zap.Bool("truncate", opt.Truncate))

	return w.WithTx(ctx, func(tx *sql.Tx) error {
		if opt.Truncate {
			if err := w.Truncate(ctx, tx); err != nil {
				return errors.Wrap(err, "truncate before seed")
			}
		}

		for start := 0; start < total; start += opt.BatchSize {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "seed canceled")
			}

			end := min(start+opt.BatchSize, total)
			if err := w.InsertBatch(ctx, tx, rows[start:end]); err != nil {
				return errors.Wrapf(err, "insert batch %d/%d", start/opt.BatchSize+1, batches)
			}
			logger.Debug("inserted batch",
				zap.Int("batch", start/opt.BatchSize+1),
				zap.Int("batches", batches))
		}

		return nil
	})
}
