// Package base предоставляет общие хелперы для всех диалектов БД
//
// Пакет устраняет дублирование кода между диалектами (PostgreSQL, SQLite,
// MySQL, MS SQL Server):
//
//   - QuoteIdentifier / QuoteLiteral - безопасное экранирование имен и литералов
//   - DollarPlaceholder, QuestionPlaceholder, NamedPlaceholder - стили параметров
//   - BindValue - значение фичи → аргумент драйвера (списки в непрозрачном виде)
//   - ParseText - поле входного файла сущностей → аргумент драйвера
//   - FormatValue - значение из БД → поле выходного файла
//   - ParseTimestamp / TimestampFromDB - разбор timestamp в разных форматах
package base
