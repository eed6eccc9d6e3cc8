package records

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/synset-tree/library/log"
)

const (
	// DefaultTableName is the table holding path-encoded records.
	DefaultTableName = "record"

	// maxLookupParams bounds the IN list of a single size lookup statement.
	maxLookupParams = 500
)

var (
	_ RecordFetcher = new(Store)
	_ SizeLookup    = new(Store)

	regexpTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,63}$`)
)

// Store reads and writes path-encoded records through database/sql.
// It supports postgres (pgx stdlib) and sqlite (mattn/go-sqlite3).
type Store struct {
	db        *sql.DB
	useDollar bool
	sqlite    bool
	opt       *storeOption
}

type storeOption struct {
	tableName string
	logger    logSDK.Logger
}

// StoreOption configures a Store.
type StoreOption func(*storeOption) error

// ValidateTableName rejects anything but a plain SQL identifier.
func ValidateTableName(tableName string) error {
	if !regexpTableName.MatchString(tableName) {
		return errors.Wrapf(ErrInvalidTableName, "%q", tableName)
	}
	return nil
}

// WithTableName overrides the record table name.
func WithTableName(tableName string) StoreOption {
	return func(o *storeOption) error {
		if err := ValidateTableName(tableName); err != nil {
			return err
		}
		o.tableName = tableName
		return nil
	}
}

// WithStoreLogger sets the logger used for query tracing.
func WithStoreLogger(logger logSDK.Logger) StoreOption {
	return func(o *storeOption) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// NewStore wraps db. The schema is not touched; call Migrate for that.
func NewStore(db *sql.DB, opts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	opt := &storeOption{
		tableName: DefaultTableName,
		logger:    log.Logger.Named("records_store"),
	}
	for _, f := range opts {
		if err := f(opt); err != nil {
			return nil, errors.Wrap(err, "apply store option")
		}
	}

	return &Store{
		db:        db,
		useDollar: useDollarPlaceholders(db),
		sqlite:    isSQLite(db),
		opt:       opt,
	}, nil
}

// TableName returns the record table name.
func (s *Store) TableName() string {
	return s.opt.tableName
}

// Migrate creates the record table and its name index when missing.
func (s *Store) Migrate(ctx context.Context) error {
	table := s.opt.tableName
	var stmt string
	if s.sqlite {
		stmt = `
CREATE TABLE IF NOT EXISTS ` + table + ` (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  size INTEGER NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	} else {
		stmt = `
CREATE TABLE IF NOT EXISTS ` + table + ` (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  size BIGINT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	}

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "create table %s", table)
	}

	idx := `CREATE INDEX IF NOT EXISTS ` + table + `_name_idx ON ` + table + ` (name)`
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return errors.Wrapf(err, "create index on %s", table)
	}

	s.opt.logger.Info("records schema ready", zap.String("table", table))
	return nil
}

// DropSchema drops the record table.
func (s *Store) DropSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+s.opt.tableName); err != nil {
		return errors.Wrapf(err, "drop table %s", s.opt.tableName)
	}

	s.opt.logger.Info("records schema dropped", zap.String("table", s.opt.tableName))
	return nil
}

// FetchByNameSubstring returns records whose name contains term literally.
func (s *Store) FetchByNameSubstring(ctx context.Context, term string) ([]Record, error) {
	query := `SELECT id, name, size FROM ` + s.opt.tableName +
		` WHERE name LIKE ? ESCAPE '` + likeEscape + `' ORDER BY id`
	return s.selectRecords(ctx, query, "%"+escapeLike(term)+"%")
}

// FetchRootRecords returns records whose name contains no delimiter.
func (s *Store) FetchRootRecords(ctx context.Context) ([]Record, error) {
	query := `SELECT id, name, size FROM ` + s.opt.tableName +
		` WHERE name NOT LIKE '%` + Delimiter + `%' ORDER BY id`
	return s.selectRecords(ctx, query)
}

// FetchDirectChildren returns candidate children of parentPath: records whose
// name continues parentPath with at least one more segment, with parentPath
// either at the root or below another segment. Callers narrow the result to
// exactly one more segment with IsDirectChild.
func (s *Store) FetchDirectChildren(ctx context.Context, parentPath string) ([]Record, error) {
	parent := escapeLike(CanonicalPath(parentPath))
	query := `SELECT id, name, size FROM ` + s.opt.tableName +
		` WHERE name LIKE ? ESCAPE '` + likeEscape + `'` +
		` OR name LIKE ? ESCAPE '` + likeEscape + `' ORDER BY id`
	return s.selectRecords(ctx, query,
		parent+Separator+"%",
		"%"+Separator+parent+Separator+"%",
	)
}

// FetchSizesForExactNames returns name and size for every record whose name
// equals one of names. Missing names are omitted from the result.
func (s *Store) FetchSizesForExactNames(ctx context.Context, names []string) ([]PathSize, error) {
	var out []PathSize
	for start := 0; start < len(names); start += maxLookupParams {
		end := min(start+maxLookupParams, len(names))
		chunk := names[start:end]

		args := make([]any, 0, len(chunk))
		for _, name := range chunk {
			args = append(args, name)
		}

		query := `SELECT name, size FROM ` + s.opt.tableName +
			` WHERE name IN (` + placeholders(len(chunk)) + `)`
		s.trace(query, args)
		rows, err := s.queryContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Wrap(err, "query sizes by name")
		}

		for rows.Next() {
			var ps PathSize
			if err := rows.Scan(&ps.Name, &ps.Size); err != nil {
				_ = rows.Close()
				return nil, errors.Wrap(err, "scan size row")
			}
			out = append(out, ps)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "iterate size rows")
		}
		if err := rows.Close(); err != nil {
			return nil, errors.Wrap(err, "close size rows")
		}
	}

	return out, nil
}

// WithTx runs fn inside a transaction, rolling back when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.opt.logger.Error("rollback transaction", zap.Error(rbErr))
		}
		return errors.WithStack(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}

	return nil
}

// InsertBatch inserts the name and size of every record with one statement.
// Record IDs are assigned by the database.
func (s *Store) InsertBatch(ctx context.Context, tx *sql.Tx, batch []Record) error {
	if len(batch) == 0 {
		return nil
	}

	values := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*2)
	for _, r := range batch {
		values = append(values, "(?, ?)")
		args = append(args, r.Name, r.Size)
	}

	query := `INSERT INTO ` + s.opt.tableName + ` (name, size) VALUES ` + strings.Join(values, ", ")
	if _, err := tx.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return errors.Wrapf(err, "insert %d records", len(batch))
	}

	return nil
}

// Truncate removes every record.
func (s *Store) Truncate(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+s.opt.tableName); err != nil {
		return errors.Wrapf(err, "truncate %s", s.opt.tableName)
	}

	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.opt.tableName).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count records")
	}

	return n, nil
}

func (s *Store) selectRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	s.trace(query, args)
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query records")
	}
	defer rows.Close() // nolint: errcheck

	out := make([]Record, 0)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Size); err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate records")
	}

	return out, nil
}

func (s *Store) trace(query string, args []any) {
	s.opt.logger.Debug("records sql",
		zap.String("sql", s.rebind(query)),
		zap.Any("args", sanitizeLoggedParams(args)))
}
