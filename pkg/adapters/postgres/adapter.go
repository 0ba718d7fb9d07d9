package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
)

// driverName - драйвер database/sql, регистрируемый pgx/v5/stdlib
const driverName = "pgx"

// Dialect - диалект PostgreSQL
type Dialect struct{}

// New создает диалект PostgreSQL
func New() *Dialect {
	return &Dialect{}
}

func (d *Dialect) Name() string       { return "postgres" }
func (d *Dialect) DriverName() string { return driverName }

// DataSource принимает URL вида postgres://host:port/db (допускается префикс jdbc:)
// и подставляет учетные данные, если их нет в URL
func (d *Dialect) DataSource(rawURL, username, password string) (string, error) {
	rawURL = base.TrimJDBC(rawURL)
	if !strings.Contains(rawURL, "://") {
		// key=value DSN передается драйверу как есть
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid postgres url: %w", err)
	}
	if u.User == nil && username != "" {
		if password != "" {
			u.User = url.UserPassword(username, password)
		} else {
			u.User = url.User(username)
		}
	}
	return u.String(), nil
}

func (d *Dialect) TimestampType() string  { return "TIMESTAMP" }
func (d *Dialect) VarcharType() string    { return "VARCHAR" }
func (d *Dialect) RowOrdinalType() string { return "BIGSERIAL" }

// QuoteIdentifier экранирует идентификатор двойными кавычками
func (d *Dialect) QuoteIdentifier(name string) string {
	return base.QuoteIdentifier(name, '"', '"')
}

func (d *Dialect) Placeholder(n int) string { return base.DollarPlaceholder(n) }

func (d *Dialect) EpochMillis(expr string) string {
	return fmt.Sprintf("CAST(ROUND(EXTRACT(EPOCH FROM %s) * 1000) AS BIGINT)", expr)
}

func (d *Dialect) CreateTableAs(table, query string) string {
	return fmt.Sprintf("CREATE TABLE %s AS %s", table, query)
}

func (d *Dialect) AddColumnClause() string { return "ADD COLUMN" }

func (d *Dialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
}

func (d *Dialect) BinaryAsText() bool       { return true }
func (d *Dialect) ConcurrentSessions() bool { return true }

// ExportStatement формирует COPY (query) TO 'path' - выгрузку на стороне сервера
// в файл с разделителем и строкой заголовка
func (d *Dialect) ExportStatement(query, path string, delimiter rune) string {
	return fmt.Sprintf("COPY (%s) TO %s WITH (DELIMITER %s, FORMAT CSV, HEADER)",
		query, base.QuoteLiteral(path), base.QuoteLiteral(string(delimiter)))
}

// CopyRows загружает строки протоколом COPY FROM через подключение pgx,
// лежащее под *sql.Conn
func (d *Dialect) CopyRows(ctx context.Context, conn *sql.Conn, table string, columns []string, rows [][]any) (int64, error) {
	var copied int64
	err := conn.Raw(func(driverConn any) error {
		stdConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		n, err := stdConn.Conn().CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		copied = n
		return err
	})
	if err != nil {
		return copied, fmt.Errorf("failed to copy rows into %s: %w", table, err)
	}
	return copied, nil
}
