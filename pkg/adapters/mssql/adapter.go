package mssql

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
)

const driverSQLServer = "sqlserver"

// Dialect - диалект MS SQL Server 2016+ (нужен DATEDIFF_BIG)
type Dialect struct{}

// New создает диалект MS SQL Server
func New() *Dialect {
	return &Dialect{}
}

func (d *Dialect) Name() string       { return "mssql" }
func (d *Dialect) DriverName() string { return driverSQLServer }

// DataSource принимает URL sqlserver://host:port?database=db или JDBC-форму
// sqlserver://host:port;databaseName=db;user=sa
func (d *Dialect) DataSource(rawURL, username, password string) (string, error) {
	rawURL = base.TrimJDBC(rawURL)
	if !strings.HasPrefix(rawURL, "sqlserver://") {
		// ADO-строка "server=...;user id=..." передается как есть
		return rawURL, nil
	}

	// JDBC-свойства после ';' переносим в query
	props := strings.Split(rawURL, ";")
	u, err := url.Parse(props[0])
	if err != nil {
		return "", fmt.Errorf("invalid sqlserver url: %w", err)
	}
	query := u.Query()
	for _, prop := range props[1:] {
		key, value, ok := strings.Cut(prop, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "databasename", "database":
			query.Set("database", value)
		case "user":
			if username == "" {
				username = value
			}
		case "password":
			if password == "" {
				password = value
			}
		default:
			query.Set(key, value)
		}
	}
	u.RawQuery = query.Encode()

	if u.User == nil && username != "" {
		u.User = url.UserPassword(username, password)
	}
	return u.String(), nil
}

func (d *Dialect) TimestampType() string  { return "DATETIME2" }
func (d *Dialect) VarcharType() string    { return "NVARCHAR(255)" }
func (d *Dialect) RowOrdinalType() string { return "BIGINT IDENTITY(1,1) PRIMARY KEY" }

// QuoteIdentifier экранирует идентификатор квадратными скобками
func (d *Dialect) QuoteIdentifier(name string) string {
	return base.QuoteIdentifier(name, '[', ']')
}

func (d *Dialect) Placeholder(n int) string { return base.NamedPlaceholder(n) }

func (d *Dialect) EpochMillis(expr string) string {
	return fmt.Sprintf("DATEDIFF_BIG(MILLISECOND, '1970-01-01', %s)", expr)
}

// CreateTableAs - в T-SQL нет CREATE TABLE AS, используется SELECT INTO
func (d *Dialect) CreateTableAs(table, query string) string {
	return fmt.Sprintf("SELECT * INTO %s FROM (%s) AS src", table, query)
}

func (d *Dialect) AddColumnClause() string { return "ADD" }

func (d *Dialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = @p1`
}

func (d *Dialect) BinaryAsText() bool       { return false }
func (d *Dialect) ConcurrentSessions() bool { return true }
