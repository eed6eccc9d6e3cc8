package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB postgres db
type DB struct {
	DB *sql.DB
}

// DialInfo postgres dial info
type DialInfo struct {
	Addr,
	DBName,
	User,
	Pwd,
	SSLMode string
	Port         int
	MaxOpenConns int
}

// BuildDSN builds a PostgreSQL DSN for shared database clients.
func BuildDSN(dialInfo DialInfo) string {
	port := dialInfo.Port
	if port == 0 {
		port = 5432
	}
	sslMode := dialInfo.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		dialInfo.Addr, dialInfo.User, dialInfo.Pwd, dialInfo.DBName, port, sslMode)
}

func (d DialInfo) maxOpenConns() int {
	if d.MaxOpenConns <= 0 {
		return 10
	}
	return d.MaxOpenConns
}

// NewDB create a new postgres db
func NewDB(ctx context.Context, dialInfo DialInfo) (*DB, error) {
	dsn := BuildDSN(dialInfo)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	maxOpen := dialInfo.maxOpenConns()

	// config db
	db.SetMaxIdleConns(min(6, maxOpen))
	db.SetMaxOpenConns(maxOpen)
	db.SetConnMaxLifetime(time.Hour)

	return &DB{DB: db}, nil
}

// NewPool opens a native pgx pool, used where database/sql cannot reach
// pgx-only features such as COPY.
func NewPool(ctx context.Context, dialInfo DialInfo) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(BuildDSN(dialInfo))
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres dsn")
	}
	cfg.MaxConns = int32(dialInfo.maxOpenConns())

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open pgx pool")
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return pool, nil
}
