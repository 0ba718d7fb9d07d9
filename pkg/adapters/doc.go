/*
Package adapters предоставляет диалекты СУБД для хранилища фич.

# Архитектура

	┌─────────────────────────────────────────┐
	│  templater / sink / retriever           │
	└─────────────────┬───────────────────────┘
	                  │
	┌─────────────────▼───────────────────────┐
	│  Dialect interface                      │  ← pkg/adapters/adapter.go
	│    ToSQLType, QuoteIdentifier,          │
	│    EpochMillis, CreateTableAs, ...      │
	└─────────────────┬───────────────────────┘
	                  │
	   ┌──────────┬───┴──────┬──────────┐
	   │          │          │          │
	postgres   sqlite     mysql      mssql      ← реализации

Диалект выбирается один раз при конфигурации функцией ForDriver
(явный switch по имени драйвера, без глобального реестра):

	db, dialect, err := adapters.Open(ctx, adapters.Config{
		URL:    "postgres://localhost:5432/feast",
		Driver: "pgx",
	})

# Типы

	Тип        PostgreSQL        SQLite   MySQL    MS SQL
	BYTES      TEXT              BLOB     BLOB     VARBINARY(MAX)
	STRING     TEXT              TEXT     TEXT     NVARCHAR(MAX)
	INT32      INTEGER           INTEGER  INT      INT
	INT64      BIGINT            INTEGER  BIGINT   BIGINT
	FLOAT      FLOAT             FLOAT    FLOAT    REAL
	DOUBLE     DOUBLE PRECISION  FLOAT    DOUBLE   FLOAT
	BOOL       BOOLEAN           BOOLEAN  BOOLEAN  BIT
	*_LIST     TEXT              BLOB     BLOB     VARBINARY(MAX)

Списковые значения хранятся в непрозрачном сериализованном виде.

# Дополнительные возможности

ServerExporter - выгрузка результата в файл на сервере (PostgreSQL COPY TO).
BulkLoader - массовая загрузка строк (PostgreSQL COPY FROM через pgx).
*/
package adapters
