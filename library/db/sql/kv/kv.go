// Package kv is a small TTL key-value table on top of database/sql.
package kv

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
)

const (
	defaultTableName = "kv"
	maxTTL           = 30 * 24 * time.Hour
)

var (
	_ Interface = new(Kv)

	regexpKey       = regexp.MustCompile(`^[a-zA-Z0-9_:]{1,128}$`)
	regexpTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,63}$`)

	// ErrKeyNotFound is returned for missing or expired keys.
	ErrKeyNotFound = errors.New("key not found")
)

// Item is one stored entry.
type Item struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpireAt  time.Time `json:"expire_at"`
}

// Interface is a kv interface
type Interface interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (*Item, error)
	Del(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}

// Kv stores expiring values in a SQL table. Works on postgres and sqlite.
type Kv struct {
	opt *option
	db  *sql.DB
}

type option struct {
	tableName string
	clock     func() time.Time
}

// Option is a function that configures the kv
type Option func(*option) error

func applyOpts(opts ...Option) (*option, error) {
	// fill default
	o := &option{
		tableName: defaultTableName,
		clock:     time.Now,
	}

	// apply opts
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return o, nil
}

// WithTableName sets the backing table name
func WithTableName(tableName string) Option {
	return func(o *option) error {
		if !regexpTableName.MatchString(tableName) {
			return errors.Errorf("invalid table name: %s", tableName)
		}
		o.tableName = tableName
		return nil
	}
}

// WithClock overrides the time source, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *option) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		o.clock = clock
		return nil
	}
}

// NewKv creates the table when missing and returns a ready Kv.
func NewKv(ctx context.Context, db *sql.DB, opts ...Option) (*Kv, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	opt, err := applyOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "apply opts")
	}

	kv := &Kv{
		opt: opt,
		db:  db,
	}

	if err := kv.setup(ctx); err != nil {
		return nil, errors.Wrap(err, "setup kv")
	}

	return kv, nil
}

func (kv *Kv) setup(ctx context.Context) error {
	stmt := `
CREATE TABLE IF NOT EXISTS ` + kv.opt.tableName + ` (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  expire_at TIMESTAMP NOT NULL
)`

	if _, err := kv.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "create kv table")
	}

	return nil
}

func validKey(key string) error {
	if !regexpKey.MatchString(key) {
		return errors.Errorf("invalid key: %q", key)
	}

	return nil
}

// Set upserts key with a time-to-live.
func (kv *Kv) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 || ttl > maxTTL {
		return errors.Errorf("ttl must be within (0, %s]: %s", maxTTL, ttl)
	}
	if err := validKey(key); err != nil {
		return errors.WithStack(err)
	}

	now := kv.opt.clock().UTC()
	stmt := `
INSERT INTO ` + kv.opt.tableName + ` (key, value, created_at, expire_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT(key)
DO UPDATE SET value = EXCLUDED.value, created_at = EXCLUDED.created_at, expire_at = EXCLUDED.expire_at`

	if _, err := kv.db.ExecContext(ctx, stmt, key, value, now, now.Add(ttl)); err != nil {
		return errors.Wrap(err, "upsert kv item")
	}

	return nil
}

// Get returns the live item for key. Expired items are deleted and
// reported as ErrKeyNotFound.
func (kv *Kv) Get(ctx context.Context, key string) (*Item, error) {
	if err := validKey(key); err != nil {
		return nil, errors.WithStack(err)
	}

	var doc Item
	stmt := `SELECT key, value, created_at, expire_at FROM ` + kv.opt.tableName + ` WHERE key = $1 LIMIT 1`
	err := kv.db.QueryRowContext(ctx, stmt, key).Scan(&doc.Key, &doc.Value, &doc.CreatedAt, &doc.ExpireAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrKeyNotFound, "key %s", key)
		}
		return nil, errors.Wrap(err, "get kv item")
	}

	if !kv.opt.clock().Before(doc.ExpireAt) {
		_ = kv.Del(ctx, key)
		return nil, errors.Wrapf(ErrKeyNotFound, "key %s expired", key)
	}

	return &doc, nil
}

// Del removes key.
func (kv *Kv) Del(ctx context.Context, key string) error {
	stmt := `DELETE FROM ` + kv.opt.tableName + ` WHERE key = $1`
	if _, err := kv.db.ExecContext(ctx, stmt, key); err != nil {
		return errors.Wrap(err, "delete kv item")
	}
	return nil
}

// DeleteExpired removes items whose ttl has passed and returns how many were removed.
func (kv *Kv) DeleteExpired(ctx context.Context) (int64, error) {
	stmt := `DELETE FROM ` + kv.opt.tableName + ` WHERE expire_at <= $1`
	result, err := kv.db.ExecContext(ctx, stmt, kv.opt.clock().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "delete expired kv items")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "count deleted kv items")
	}
	return n, nil
}

// Flush removes every item.
func (kv *Kv) Flush(ctx context.Context) error {
	if _, err := kv.db.ExecContext(ctx, `DELETE FROM `+kv.opt.tableName); err != nil {
		return errors.Wrap(err, "flush kv")
	}
	return nil
}

// HashKey builds a valid key from a prefix and arbitrary parts.
func HashKey(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return prefix + ":" + hex.EncodeToString(sum[:])
}
