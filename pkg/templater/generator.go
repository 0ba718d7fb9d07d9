package templater

import (
	"fmt"
	"sort"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
)

// Generator - генератор SQL для одного диалекта.
// Не выполняет ввод-вывод и не имеет изменяемого состояния.
type Generator struct {
	dialect   adapters.Dialect
	templates *TemplateSet
}

// New создает генератор для диалекта с заданным набором шаблонов
func New(dialect adapters.Dialect, templates *TemplateSet) *Generator {
	return &Generator{dialect: dialect, templates: templates}
}

// Dialect возвращает диалект генератора
func (g *Generator) Dialect() adapters.Dialect {
	return g.dialect
}

func (g *Generator) q(name string) string {
	return g.dialect.QuoteIdentifier(name)
}

func (g *Generator) render(name string, data any, context map[string]any) (string, error) {
	sql, err := g.templates.execute(name, data)
	if err != nil {
		return "", &GenerationError{Template: name, Context: context, Err: err}
	}
	return sql, nil
}

// Column - колонка таблицы набора фич с SQL-типом
type Column struct {
	Name      string
	Type      string
	ValueType featureset.ValueType
}

type columnDef struct {
	Name string
	Type string
}

// RequiredColumns возвращает колонки таблицы набора в порядке:
// event_timestamp, created_timestamp, сущности (по имени), ingestion_id, job_id,
// фичи (в порядке определения)
func (g *Generator) RequiredColumns(spec featureset.Spec) ([]Column, error) {
	context := map[string]any{"feature_set": spec.Ref()}

	columns := make([]Column, 0, len(spec.Entities)+len(spec.Features)+4)
	columns = append(columns,
		Column{Name: featureset.ColumnEventTimestamp, Type: g.dialect.TimestampType()},
		Column{Name: featureset.ColumnCreatedTimestamp, Type: g.dialect.TimestampType()},
	)

	for _, e := range spec.SortedEntities() {
		sqlType, err := g.dialect.ToSQLType(e.ValueType)
		if err != nil {
			return nil, &GenerationError{Template: "required_columns", Context: context, Err: err}
		}
		columns = append(columns, Column{Name: e.Name, Type: sqlType, ValueType: e.ValueType})
	}

	columns = append(columns,
		Column{Name: featureset.ColumnIngestionID, Type: g.dialect.VarcharType()},
		Column{Name: featureset.ColumnJobID, Type: g.dialect.VarcharType()},
	)

	for _, f := range spec.Features {
		sqlType, err := g.dialect.ToSQLType(f.ValueType)
		if err != nil {
			return nil, &GenerationError{Template: "required_columns", Context: context, Err: err}
		}
		columns = append(columns, Column{Name: f.Name, Type: sqlType, ValueType: f.ValueType})
	}

	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c.Name] {
			return nil, &GenerationError{
				Template: "required_columns",
				Context:  context,
				Err:      fmt.Errorf("duplicate column %q", c.Name),
			}
		}
		seen[c.Name] = true
	}
	return columns, nil
}

// CreateTableSQL генерирует CREATE TABLE для таблицы набора фич
func (g *Generator) CreateTableSQL(spec featureset.Spec) (string, error) {
	columns, err := g.RequiredColumns(spec)
	if err != nil {
		return "", err
	}
	defs := make([]columnDef, len(columns))
	for i, c := range columns {
		defs[i] = columnDef{Name: g.q(c.Name), Type: c.Type}
	}
	return g.render(tmplCreateTable, map[string]any{
		"Table":   g.q(spec.TableName()),
		"Columns": defs,
	}, map[string]any{"feature_set": spec.Ref()})
}

// MigrationSQL генерирует ALTER TABLE для колонок, отсутствующих в существующей
// таблице. Миграция только добавляет колонки: если в таблице есть колонка, не
// требуемая определением, возвращается ошибка ErrSchemaDrift. Если добавлять
// нечего, результат пустой.
func (g *Generator) MigrationSQL(spec featureset.Spec, existing []string) ([]string, error) {
	context := map[string]any{"feature_set": spec.Ref(), "table": spec.TableName()}

	columns, err := g.RequiredColumns(spec)
	if err != nil {
		return nil, err
	}

	required := make(map[string]bool, len(columns))
	for _, c := range columns {
		required[c.Name] = true
	}

	present := make(map[string]bool, len(existing))
	unexpected := make([]string, 0)
	for _, name := range existing {
		present[name] = true
		if !required[name] {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return nil, &GenerationError{
			Template: tmplAddColumn,
			Context:  context,
			Err: fmt.Errorf("%w: found column %s in table %s that should not exist",
				ErrSchemaDrift, unexpected[0], spec.TableName()),
		}
	}

	statements := make([]string, 0)
	for _, c := range columns {
		if present[c.Name] {
			continue
		}
		stmt, err := g.render(tmplAddColumn, map[string]any{
			"Table":  g.q(spec.TableName()),
			"Clause": g.dialect.AddColumnClause(),
			"Column": g.q(c.Name),
			"Type":   c.Type,
		}, context)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, nil
}

// InsertSQL генерирует параметризованный INSERT в порядке RequiredColumns
func (g *Generator) InsertSQL(spec featureset.Spec) (string, error) {
	columns, err := g.RequiredColumns(spec)
	if err != nil {
		return "", err
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return g.insert(spec.TableName(), names, map[string]any{"feature_set": spec.Ref()})
}

func (g *Generator) insert(table string, columns []string, context map[string]any) (string, error) {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = g.q(c)
		placeholders[i] = g.dialect.Placeholder(i + 1)
	}
	return g.render(tmplInsert, map[string]any{
		"Table":        g.q(table),
		"Columns":      quoted,
		"Placeholders": placeholders,
	}, context)
}

// ProbeColumnsSQL генерирует запрос без строк, по метаданным которого
// читается список существующих колонок таблицы
func (g *Generator) ProbeColumnsSQL(table string) (string, error) {
	return g.render(tmplProbeColumns, map[string]any{"Table": g.q(table)}, map[string]any{"table": table})
}

// DropTableSQL генерирует DROP TABLE IF EXISTS
func (g *Generator) DropTableSQL(table string) (string, error) {
	return g.render(tmplDropTable, map[string]any{"Table": g.q(table)}, map[string]any{"table": table})
}
