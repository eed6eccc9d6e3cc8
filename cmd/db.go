package cmd

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"

	"github.com/Laisky/synset-tree/internal/records"
	"github.com/Laisky/synset-tree/library/config"
	"github.com/Laisky/synset-tree/library/db/postgres"
	"github.com/Laisky/synset-tree/library/db/sqlite"
	"github.com/Laisky/synset-tree/library/log"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"

	defaultSQLitePath = "records.db"
)

// dbDriver returns the configured driver, defaulting to postgres.
func dbDriver() string {
	driver := strings.ToLower(strings.TrimSpace(gconfig.Shared.GetString("settings.db.driver")))
	if driver == "" {
		return driverPostgres
	}
	return driver
}

func postgresDialInfo() postgres.DialInfo {
	info := postgres.DialInfo{
		Addr:         gconfig.Shared.GetString("settings.db.postgres.addr"),
		DBName:       gconfig.Shared.GetString("settings.db.postgres.db"),
		User:         gconfig.Shared.GetString("settings.db.postgres.user"),
		Pwd:          gconfig.Shared.GetString("settings.db.postgres.pwd"),
		SSLMode:      gconfig.Shared.GetString("settings.db.postgres.sslmode"),
		Port:         gconfig.Shared.GetInt("settings.db.postgres.port"),
		MaxOpenConns: gconfig.Shared.GetInt("settings.db.postgres.max_open_conns"),
	}
	if info.Addr == "" {
		info.Addr = "localhost"
	}
	if info.DBName == "" {
		info.DBName = "records"
	}
	if info.User == "" {
		info.User = "postgres"
	}

	return info
}

// openDB connects to the configured database.
func openDB(ctx context.Context) (*sql.DB, error) {
	logger := log.Logger.Named("db")
	switch driver := dbDriver(); driver {
	case driverPostgres:
		info := postgresDialInfo()
		db, err := postgres.NewDB(ctx, info)
		if err != nil {
			return nil, errors.Wrap(err, "connect postgres")
		}
		logger.Info("connected to postgres",
			zap.String("addr", info.Addr),
			zap.String("db", info.DBName))
		return db.DB, nil
	case driverSQLite:
		path := gconfig.Shared.GetString("settings.db.sqlite.path")
		if path == "" {
			path = defaultSQLitePath
		}
		path = config.ResolvePath(path)
		db, err := sqlite.NewDB(ctx, path)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		logger.Info("opened sqlite", zap.String("path", path))
		return db.DB, nil
	default:
		return nil, errors.Errorf("unsupported db driver %q", driver)
	}
}

// openStore connects and wraps the database in a records store.
// The caller owns closing the returned *sql.DB.
func openStore(ctx context.Context) (*records.Store, *sql.DB, error) {
	db, err := openDB(ctx)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	settings := records.LoadSettingsFromConfig()
	store, err := records.NewStore(db,
		records.WithTableName(settings.TableName),
		records.WithStoreLogger(log.Logger.Named("records_store")),
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "new records store")
	}

	return store, db, nil
}
