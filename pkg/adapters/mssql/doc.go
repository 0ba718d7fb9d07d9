// Package mssql предоставляет диалект Microsoft SQL Server для хранилища фич.
//
// Требуется SQL Server 2016 или новее (DATEDIFF_BIG, оконные функции).
// Драйвер: github.com/denisenkom/go-mssqldb (имя "sqlserver").
//
// Особенности диалекта:
//   - идентификаторы в квадратных скобках: [name]
//   - параметры @p1, @p2, ...
//   - материализация через SELECT * INTO
//   - ALTER TABLE t ADD c T (без ключевого слова COLUMN)
package mssql
