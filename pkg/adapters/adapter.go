package adapters

import (
	"context"
	"database/sql"

	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
)

// Dialect - универсальный интерфейс диалекта СУБД
// Реализуется каждым драйвером (postgres, sqlite, mysql, mssql)
type Dialect interface {
	// Name возвращает короткое имя диалекта ("postgres", "sqlite", ...)
	Name() string

	// DriverName возвращает имя драйвера database/sql
	DriverName() string

	// DataSource собирает строку подключения для драйвера из URL
	// и необязательных учетных данных
	DataSource(url, username, password string) (string, error)

	// ToSQLType возвращает тип колонки для абстрактного типа значения.
	// Для неподдерживаемого типа возвращает ошибку ErrUnmappedType.
	ToSQLType(t featureset.ValueType) (string, error)

	// TimestampType - тип колонок event_timestamp и created_timestamp
	TimestampType() string

	// VarcharType - тип колонок ingestion_id и job_id
	VarcharType() string

	// RowOrdinalType - тип автоинкрементной колонки row_number staging-таблицы
	RowOrdinalType() string

	// QuoteIdentifier экранирует имя таблицы или колонки
	QuoteIdentifier(name string) string

	// Placeholder возвращает позиционный параметр с номером n (с 1)
	Placeholder(n int) string

	// EpochMillis возвращает целочисленное выражение: миллисекунды
	// Unix-времени для выражения-timestamp. Сравнения as-of join идут
	// только по этой шкале, без плавающей точки.
	EpochMillis(expr string) string

	// CreateTableAs материализует результат запроса в новую таблицу
	CreateTableAs(table, query string) string

	// AddColumnClause - ключевые слова добавления колонки в ALTER TABLE
	AddColumnClause() string

	// TableExistsQuery - запрос к каталогу с одним параметром (имя таблицы),
	// возвращающий количество найденных таблиц
	TableExistsQuery() string

	// BinaryAsText - true если BYTES и списки хранятся в текстовых колонках
	BinaryAsText() bool

	// ConcurrentSessions - true если СУБД допускает параллельные сессии,
	// создающие таблицы (для SQLite - false)
	ConcurrentSessions() bool
}

// ServerExporter реализуется диалектами, умеющими выгружать результат
// запроса в файл на стороне сервера (COPY ... TO)
type ServerExporter interface {
	ExportStatement(query, path string, delimiter rune) string
}

// BulkLoader реализуется диалектами с быстрым протоколом массовой загрузки
type BulkLoader interface {
	CopyRows(ctx context.Context, conn *sql.Conn, table string, columns []string, rows [][]any) (int64, error)
}
