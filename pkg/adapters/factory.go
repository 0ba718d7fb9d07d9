package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/mssql"
	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/mysql"
	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/postgres"
	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/sqlite"
)

// Compile-time check: все диалекты реализуют Dialect
var (
	_ Dialect        = (*postgres.Dialect)(nil)
	_ ServerExporter = (*postgres.Dialect)(nil)
	_ BulkLoader     = (*postgres.Dialect)(nil)
	_ Dialect        = (*sqlite.Dialect)(nil)
	_ Dialect        = (*mysql.Dialect)(nil)
	_ Dialect        = (*mssql.Dialect)(nil)
)

// ForDriver выбирает диалект по имени драйвера.
// Выбор выполняется один раз при конфигурации; глобального реестра нет.
func ForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "pgx", "postgres", "postgresql", "org.postgresql.driver":
		return postgres.New(), nil
	case "sqlite", "sqlite3", "org.sqlite.jdbc":
		return sqlite.New(), nil
	case "mysql", "com.mysql.jdbc.driver", "com.mysql.cj.jdbc.driver":
		return mysql.New(), nil
	case "sqlserver", "mssql", "com.microsoft.sqlserver.jdbc.sqlserverdriver":
		return mssql.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: pgx, sqlite, mysql, sqlserver)", ErrUnknownDriver, driver)
	}
}

// Open выбирает диалект, открывает пул подключений и проверяет доступность БД.
// Ошибки подключения возвращаются как *ConnectError.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := ForDriver(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}

	dsn, err := dialect.DataSource(cfg.URL, cfg.Username, cfg.Password)
	if err != nil {
		return nil, nil, &ConnectError{URL: RedactURL(cfg.URL), Driver: cfg.Driver, Err: err}
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, nil, &ConnectError{URL: RedactURL(cfg.URL), Driver: cfg.Driver, Err: err}
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, &ConnectError{URL: RedactURL(cfg.URL), Driver: cfg.Driver, Err: err}
	}

	log.Info().
		Str("dialect", dialect.Name()).
		Str("url", RedactURL(cfg.URL)).
		Msg("connected to database")

	return db, dialect, nil
}
