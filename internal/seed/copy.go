package seed

import (
	"context"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Laisky/synset-tree/internal/records"
	"github.com/Laisky/synset-tree/library/log"
)

// PgxDB is the pgx capability the COPY seeder needs.
type PgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ PgxDB = (*pgxpool.Pool)(nil)

var copyColumns = []string{"name", "size"}

// CopySeeder bulk loads records into postgres with COPY FROM STDIN.
// It is much faster than multi-row INSERT for the full ImageNet tree.
type CopySeeder struct {
	db     PgxDB
	table  string
	logger logSDK.Logger
}

// NewCopySeeder builds a CopySeeder writing to table.
func NewCopySeeder(db PgxDB, table string, logger logSDK.Logger) (*CopySeeder, error) {
	if db == nil {
		return nil, errors.New("pgx db cannot be nil")
	}
	if table == "" {
		table = records.DefaultTableName
	}
	if err := records.ValidateTableName(table); err != nil {
		return nil, errors.WithStack(err)
	}
	if logger == nil {
		logger = log.Logger.Named("seed_copy")
	}

	return &CopySeeder{db: db, table: table, logger: logger}, nil
}

// Seed copies rows in batches inside one transaction.
func (s *CopySeeder) Seed(ctx context.Context, rows []records.Record, opt Options) (err error) {
	if opt.BatchSize <= 0 {
		opt.BatchSize = DefaultBatchSize
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("rollback copy transaction", zap.Error(rbErr))
		}
	}()

	ident := pgx.Identifier{s.table}
	if opt.Truncate {
		if _, err = tx.Exec(ctx, "DELETE FROM "+ident.Sanitize()); err != nil {
			return errors.Wrap(err, "truncate before seed")
		}
	}

	total := len(rows)
	batches := (total + opt.BatchSize - 1) / opt.BatchSize
	s.logger.Info("copying records",
		zap.Int("total", total),
		zap.Int("batch_size", opt.BatchSize),
		zap.Bool("truncate", opt.Truncate))

	for start := 0; start < total; start += opt.BatchSize {
		batch := rows[start:min(start+opt.BatchSize, total)]
		var n int64
		n, err = tx.CopyFrom(ctx, ident, copyColumns,
			pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
				return []any{batch[i].Name, batch[i].Size}, nil
			}))
		if err != nil {
			return errors.Wrapf(err, "copy batch %d/%d", start/opt.BatchSize+1, batches)
		}
		s.logger.Debug("copied batch",
			zap.Int("batch", start/opt.BatchSize+1),
			zap.Int("batches", batches),
			zap.Int64("rows", n))
	}

	if err = tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit copy transaction")
	}

	return nil
}
