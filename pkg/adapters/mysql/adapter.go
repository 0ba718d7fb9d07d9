package mysql

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
)

const driverMySQL = "mysql"

// Dialect - диалект MySQL 8+ (нужны оконные функции)
type Dialect struct{}

// New создает диалект MySQL
func New() *Dialect {
	return &Dialect{}
}

func (d *Dialect) Name() string       { return "mysql" }
func (d *Dialect) DriverName() string { return driverMySQL }

// DataSource принимает DSN драйвера (user:pass@tcp(host:port)/db)
// или URL вида mysql://host:port/db. Всегда включает parseTime и UTC.
func (d *Dialect) DataSource(rawURL, username, password string) (string, error) {
	rawURL = base.TrimJDBC(rawURL)

	var cfg *gomysql.Config
	if strings.HasPrefix(rawURL, "mysql://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("invalid mysql url: %w", err)
		}
		cfg = gomysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
	} else {
		parsed, err := gomysql.ParseDSN(rawURL)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg = parsed
	}

	if cfg.User == "" {
		cfg.User = username
	}
	if cfg.Passwd == "" {
		cfg.Passwd = password
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	return cfg.FormatDSN(), nil
}

func (d *Dialect) TimestampType() string  { return "DATETIME(6)" }
func (d *Dialect) VarcharType() string    { return "VARCHAR(255)" }
func (d *Dialect) RowOrdinalType() string { return "BIGINT AUTO_INCREMENT PRIMARY KEY" }

// QuoteIdentifier экранирует идентификатор обратными кавычками
func (d *Dialect) QuoteIdentifier(name string) string {
	return base.QuoteIdentifier(name, '`', '`')
}

func (d *Dialect) Placeholder(n int) string { return base.QuestionPlaceholder(n) }

func (d *Dialect) EpochMillis(expr string) string {
	return fmt.Sprintf("CAST(ROUND(UNIX_TIMESTAMP(%s) * 1000) AS SIGNED)", expr)
}

func (d *Dialect) CreateTableAs(table, query string) string {
	return fmt.Sprintf("CREATE TABLE %s AS %s", table, query)
}

func (d *Dialect) AddColumnClause() string { return "ADD COLUMN" }

func (d *Dialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`
}

func (d *Dialect) BinaryAsText() bool       { return false }
func (d *Dialect) ConcurrentSessions() bool { return true }
