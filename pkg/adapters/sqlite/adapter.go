package sqlite

import (
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
)

const driverSqlite = "sqlite"

// Параметры подключения, добавляемые к пути БД:
// busy_timeout - конкурентные транзакции ждут блокировку вместо SQLITE_BUSY;
// _time_format=sqlite - time.Time пишется в формате, понятном julianday()
var dsnParams = []struct{ key, param string }{
	{"_pragma=busy_timeout", "_pragma=busy_timeout(5000)"},
	{"_time_format=", "_time_format=sqlite"},
}

// Dialect - диалект SQLite (драйвер modernc.org/sqlite)
type Dialect struct{}

// New создает диалект SQLite
func New() *Dialect {
	return &Dialect{}
}

func (d *Dialect) Name() string       { return "sqlite" }
func (d *Dialect) DriverName() string { return driverSqlite }

// DataSource принимает путь к файлу БД ("store.db", "file:store.db",
// "jdbc:sqlite:store.db"). Учетные данные SQLite не использует.
func (d *Dialect) DataSource(url, _, _ string) (string, error) {
	path := strings.TrimPrefix(base.TrimJDBC(url), "sqlite:")
	if path == "" {
		return "", fmt.Errorf("sqlite: empty database path")
	}
	for _, p := range dsnParams {
		if strings.Contains(path, p.key) {
			continue
		}
		if strings.Contains(path, "?") {
			path += "&" + p.param
		} else {
			path += "?" + p.param
		}
	}
	return path, nil
}

func (d *Dialect) TimestampType() string  { return "TIMESTAMP" }
func (d *Dialect) VarcharType() string    { return "TEXT" }
func (d *Dialect) RowOrdinalType() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

// QuoteIdentifier экранирует идентификатор двойными кавычками
func (d *Dialect) QuoteIdentifier(name string) string {
	return base.QuoteIdentifier(name, '"', '"')
}

func (d *Dialect) Placeholder(n int) string { return base.QuestionPlaceholder(n) }

// EpochMillis переводит юлианский день в миллисекунды Unix-времени.
// julianday хранит время с точностью до миллисекунды, ROUND убирает
// погрешность double.
func (d *Dialect) EpochMillis(expr string) string {
	return fmt.Sprintf("CAST(ROUND((julianday(%s) - 2440587.5) * 86400000.0) AS INTEGER)", expr)
}

func (d *Dialect) CreateTableAs(table, query string) string {
	return fmt.Sprintf("CREATE TABLE %s AS %s", table, query)
}

// AddColumnClause - SQLite допускает только одну колонку в ALTER TABLE
func (d *Dialect) AddColumnClause() string { return "ADD COLUMN" }

func (d *Dialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

func (d *Dialect) BinaryAsText() bool { return false }

// ConcurrentSessions - false: запись в SQLite сериализуется на уровне файла,
// поэтому подзапросы материализуются в одной сессии
func (d *Dialect) ConcurrentSessions() bool { return false }
