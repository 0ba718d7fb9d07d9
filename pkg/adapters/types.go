package adapters

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
)

// ErrUnmappedType - абстрактный тип не имеет SQL-аналога в диалекте
var ErrUnmappedType = base.ErrUnmappedType

// ErrUnknownDriver - драйвер не поддерживается
var ErrUnknownDriver = errors.New("unknown database driver")

// Config - конфигурация подключения к БД
type Config struct {
	// URL - строка подключения
	// Примеры:
	//   PostgreSQL: "postgres://localhost:5432/feast" или "jdbc:postgresql://localhost:5432/feast"
	//   SQLite:     "/var/lib/feast/store.db" или "jdbc:sqlite:/var/lib/feast/store.db"
	//   MySQL:      "mysql://localhost:3306/feast" или "user:pass@tcp(localhost:3306)/feast"
	//   MS SQL:     "sqlserver://localhost:1433?database=feast"
	URL string `yaml:"url"`

	// Driver - имя драйвера: pgx, sqlite, mysql, sqlserver
	// (допускаются также имена JDBC-классов: org.postgresql.Driver, org.sqlite.JDBC)
	Driver string `yaml:"driver"`

	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// MaxConns - максимальное количество открытых подключений (0 - без ограничения)
	MaxConns int `yaml:"max_conns,omitempty"`

	// ConnMaxLifetime - время жизни подключения в пуле
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty"`
}

// ConnectError - ошибка подключения к БД.
// URL хранится без пароля.
type ConnectError struct {
	URL    string
	Driver string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("could not connect to database with url %s and driver %s: %v", e.URL, e.Driver, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// RedactURL скрывает пароль в строке подключения
func RedactURL(raw string) string {
	raw = strings.TrimPrefix(raw, "jdbc:")
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.User != nil {
		return u.Redacted()
	}
	// DSN вида user:pass@tcp(host)/db
	if at := strings.LastIndex(raw, "@"); at >= 0 {
		if colon := strings.Index(raw[:at], ":"); colon >= 0 {
			return raw[:colon] + ":xxxxx" + raw[at:]
		}
	}
	return raw
}
