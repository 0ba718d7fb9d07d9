package base

import (
	"errors"
	"fmt"
	"strings"
)

// QuoteIdentifier заключает идентификатор в кавычки open/close.
// Вхождения закрывающей кавычки внутри имени удваиваются, поэтому
// любое имя колонки или таблицы остается одним идентификатором.
//
//	QuoteIdentifier(`a"b`, '"', '"') → "a""b"
//	QuoteIdentifier("a]b", '[', ']')  → [a]]b]
func QuoteIdentifier(name string, open, close byte) string {
	var b strings.Builder
	b.Grow(len(name) + 2)
	b.WriteByte(open)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == close {
			b.WriteByte(close)
		}
		b.WriteByte(c)
	}
	b.WriteByte(close)
	return b.String()
}

// QuoteLiteral возвращает строковый SQL-литерал в одинарных кавычках
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DollarPlaceholder - плейсхолдер PostgreSQL: $1, $2, ...
func DollarPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// QuestionPlaceholder - плейсхолдер SQLite/MySQL: ?
func QuestionPlaceholder(int) string {
	return "?"
}

// NamedPlaceholder - плейсхолдер MS SQL Server: @p1, @p2, ...
func NamedPlaceholder(n int) string {
	return fmt.Sprintf("@p%d", n)
}

// TrimJDBC убирает префикс "jdbc:" из строки подключения,
// чтобы конфигурации в JDBC-стиле можно было использовать без изменений
func TrimJDBC(url string) string {
	return strings.TrimPrefix(url, "jdbc:")
}

// ErrUnmappedType - абстрактный тип не имеет SQL-аналога в диалекте
var ErrUnmappedType = errors.New("unmapped value type")
