package templater

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
)

// Служебные псевдонимы запросов выборки
const (
	aliasMinTimestamp = "min_ts"
	aliasMaxTimestamp = "max_ts"
	aliasRank         = "feature_rank"
)

// FeatureSetRequest - набор фич и запрошенные фичи.
// Пустой список Features означает все фичи набора.
type FeatureSetRequest struct {
	Spec     featureset.Spec
	Features []string
}

// QueryInfo - описание одного набора фич в запросе выборки.
// JoinedTable заполняется после материализации подзапроса.
type QueryInfo struct {
	Project       string
	Name          string
	Table         string
	Entities      []featureset.EntitySpec
	Features      []featureset.FeatureSpec
	MaxAgeMillis  int64
	JoinedTable   string
}

// Ref возвращает ссылку "project/name"
func (qi *QueryInfo) Ref() string {
	return featureset.Ref(qi.Project, qi.Name)
}

// Alias возвращает имя выходной колонки фичи: <набор>__<фича>
func (qi *QueryInfo) Alias(feature string) string {
	return qi.Name + "__" + feature
}

// NewQueryInfos строит описания наборов для запроса выборки
func NewQueryInfos(requests []FeatureSetRequest) ([]*QueryInfo, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("no feature sets requested")
	}

	infos := make([]*QueryInfo, 0, len(requests))
	aliases := make(map[string]string)

	for _, req := range requests {
		spec := req.Spec
		if err := spec.Validate(); err != nil {
			return nil, err
		}

		info := &QueryInfo{
			Project:       spec.Project,
			Name:          spec.Name,
			Table:         spec.TableName(),
			Entities:      spec.Entities,
			MaxAgeMillis:  spec.MaxAgeMillis(),
		}

		if len(req.Features) == 0 {
			info.Features = spec.Features
		} else {
			for _, name := range req.Features {
				f, ok := spec.Feature(name)
				if !ok {
					return nil, fmt.Errorf("feature %q not found in feature set %s", name, spec.Ref())
				}
				info.Features = append(info.Features, f)
			}
		}
		if len(info.Features) == 0 {
			return nil, fmt.Errorf("feature set %s has no features to retrieve", spec.Ref())
		}

		for _, f := range info.Features {
			alias := info.Alias(f.Name)
			if owner, dup := aliases[alias]; dup {
				return nil, fmt.Errorf("output column %q requested by both %s and %s", alias, owner, spec.Ref())
			}
			aliases[alias] = spec.Ref()
		}

		infos = append(infos, info)
	}
	return infos, nil
}

// StagingColumns возвращает колонки сущностей staging-таблицы: объединение
// сущностей всех наборов без повторов (при совпадении имени побеждает первое
// вхождение), отсортированное по имени
func StagingColumns(infos []*QueryInfo) []featureset.EntitySpec {
	seen := make(map[string]bool)
	columns := make([]featureset.EntitySpec, 0)
	for _, info := range infos {
		for _, e := range info.Entities {
			if seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			columns = append(columns, e)
		}
	}
	sort.SliceStable(columns, func(i, j int) bool { return columns[i].Name < columns[j].Name })
	return columns
}

// CreateStagingSQL генерирует staging-таблицу: колонки сущностей,
// event_timestamp и автоинкрементный row_number
func (g *Generator) CreateStagingSQL(table string, infos []*QueryInfo) (string, error) {
	context := map[string]any{"table": table}

	entities := StagingColumns(infos)
	defs := make([]columnDef, 0, len(entities)+2)
	for _, e := range entities {
		sqlType, err := g.dialect.ToSQLType(e.ValueType)
		if err != nil {
			return "", &GenerationError{Template: tmplCreateTable, Context: context, Err: err}
		}
		defs = append(defs, columnDef{Name: g.q(e.Name), Type: sqlType})
	}
	defs = append(defs,
		columnDef{Name: g.q(featureset.ColumnEventTimestamp), Type: g.dialect.TimestampType()},
		columnDef{Name: g.q(featureset.ColumnRowNumber), Type: g.dialect.RowOrdinalType()},
	)

	return g.render(tmplCreateTable, map[string]any{
		"Table":   g.q(table),
		"Columns": defs,
	}, context)
}

// BulkLoadSQL генерирует INSERT строк файла сущностей в staging-таблицу.
// Колонка row_number заполняется базой.
func (g *Generator) BulkLoadSQL(table string, columns []string) (string, error) {
	for _, c := range columns {
		if c == featureset.ColumnRowNumber {
			return "", &GenerationError{
				Template: tmplInsert,
				Context:  map[string]any{"table": table},
				Err:      fmt.Errorf("column %s is generated by the database", c),
			}
		}
	}
	return g.insert(table, columns, map[string]any{"table": table})
}

// Bounds - глобальный диапазон event_timestamp staging-таблицы
// в миллисекундах Unix. Valid == false для пустой таблицы.
type Bounds struct {
	Min   int64
	Max   int64
	Valid bool
}

// boundsSlackMillis - запас границ просмотра таблицы набора
const boundsSlackMillis = 1000

// TimestampBoundsSQL генерирует запрос min/max event_timestamp в миллисекундах Unix
func (g *Generator) TimestampBoundsSQL(table string) (string, error) {
	return g.render(tmplBounds, map[string]any{
		"Epoch":    g.dialect.EpochMillis(g.q(featureset.ColumnEventTimestamp)),
		"MinAlias": g.q(aliasMinTimestamp),
		"MaxAlias": g.q(aliasMaxTimestamp),
		"Table":    g.q(table),
	}, map[string]any{"table": table})
}

type featureColumn struct {
	Column string
	Alias  string
	Source string
}

// PointInTimeSQL генерирует подзапрос as-of join одного набора фич со
// staging-таблицей. Все сравнения идут в целых миллисекундах, так что
// строка ровно на max_age старше сущности остается видимой. Границы bounds
// сужают просмотр таблицы набора до [min - max_age, max]; при max_age == 0
// нижняя граница не ставится.
func (g *Generator) PointInTimeSQL(info *QueryInfo, staging string, bounds Bounds) (string, error) {
	context := map[string]any{"feature_set": info.Ref(), "staging": staging}

	entities := make([]string, len(info.Entities))
	for i, e := range info.Entities {
		entities[i] = g.q(e.Name)
	}

	features := make([]featureColumn, len(info.Features))
	for i, f := range info.Features {
		features[i] = featureColumn{Column: g.q(f.Name), Alias: g.q(info.Alias(f.Name))}
	}

	data := map[string]any{
		"RowNumber":    g.q(featureset.ColumnRowNumber),
		"Features":     features,
		"Entities":     entities,
		"Staging":      g.q(staging),
		"Table":        g.q(info.Table),
		"Rank":         g.q(aliasRank),
		"FeatureEpoch": g.dialect.EpochMillis("f." + g.q(featureset.ColumnEventTimestamp)),
		"CreatedEpoch": g.dialect.EpochMillis("f." + g.q(featureset.ColumnCreatedTimestamp)),
		"EntityEpoch":  g.dialect.EpochMillis("e." + g.q(featureset.ColumnEventTimestamp)),
		"MaxAge":       "",
		"LowerBound":   "",
		"UpperBound":   "",
	}

	if info.MaxAgeMillis > 0 {
		data["MaxAge"] = strconv.FormatInt(info.MaxAgeMillis, 10)
	}
	if bounds.Valid {
		// секунда запаса: границы только отсекают заведомо лишние строки,
		// точные условия проверяются построчно
		if info.MaxAgeMillis > 0 {
			data["LowerBound"] = strconv.FormatInt(bounds.Min-info.MaxAgeMillis-boundsSlackMillis, 10)
		}
		data["UpperBound"] = strconv.FormatInt(bounds.Max+boundsSlackMillis, 10)
	}

	return g.render(tmplPointInTime, data, context)
}

// MaterializeSQL сохраняет результат запроса в новую таблицу
func (g *Generator) MaterializeSQL(table, query string) string {
	return g.dialect.CreateTableAs(g.q(table), query)
}

// JoinSQL генерирует итоговое соединение staging-таблицы с материализованными
// подзапросами всех наборов по row_number. Каждая строка staging-таблицы дает
// ровно одну строку результата.
func (g *Generator) JoinSQL(infos []*QueryInfo, staging string) (string, error) {
	context := map[string]any{"staging": staging}

	type joinTable struct {
		Table string
		Alias string
	}

	entityColumns := make([]string, 0)
	for _, e := range StagingColumns(infos) {
		entityColumns = append(entityColumns, g.q(e.Name))
	}

	tables := make([]joinTable, 0, len(infos))
	features := make([]featureColumn, 0)
	for i, info := range infos {
		if info.JoinedTable == "" {
			return "", &GenerationError{
				Template: tmplJoin,
				Context:  context,
				Err:      fmt.Errorf("feature set %s has not been materialized", info.Ref()),
			}
		}
		alias := fmt.Sprintf("t%d", i)
		tables = append(tables, joinTable{Table: g.q(info.JoinedTable), Alias: alias})
		for _, f := range info.Features {
			features = append(features, featureColumn{Alias: g.q(info.Alias(f.Name)), Source: alias})
		}
	}

	return g.render(tmplJoin, map[string]any{
		"RowNumber":      g.q(featureset.ColumnRowNumber),
		"EntityColumns":  entityColumns,
		"EventTimestamp": g.q(featureset.ColumnEventTimestamp),
		"Features":       features,
		"Staging":        g.q(staging),
		"Tables":         tables,
	}, context)
}

// OutputColumn - колонка выходного файла
type OutputColumn struct {
	Name      string
	ValueType featureset.ValueType
	Timestamp bool
}

// OutputColumns возвращает колонки результата в порядке выгрузки:
// сущности (по имени), event_timestamp, фичи наборов в порядке запроса
func OutputColumns(infos []*QueryInfo) []OutputColumn {
	columns := make([]OutputColumn, 0)
	for _, e := range StagingColumns(infos) {
		columns = append(columns, OutputColumn{Name: e.Name, ValueType: e.ValueType})
	}
	columns = append(columns, OutputColumn{Name: featureset.ColumnEventTimestamp, Timestamp: true})
	for _, info := range infos {
		for _, f := range info.Features {
			columns = append(columns, OutputColumn{Name: info.Alias(f.Name), ValueType: f.ValueType})
		}
	}
	return columns
}

// ExportQuery генерирует выборку результата в порядке строк входного файла
func (g *Generator) ExportQuery(resultTable string, infos []*QueryInfo) (string, error) {
	columns := OutputColumns(infos)
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = g.q(c.Name)
	}
	return g.render(tmplExport, map[string]any{
		"Columns":   quoted,
		"Table":     g.q(resultTable),
		"RowNumber": g.q(featureset.ColumnRowNumber),
	}, map[string]any{"table": resultTable})
}

// ServerExportSQL генерирует выгрузку результата в файл на стороне сервера.
// Для диалектов без такой возможности возвращает ErrUnsupported.
func (g *Generator) ServerExportSQL(resultTable string, infos []*QueryInfo, path string, delimiter rune) (string, error) {
	exporter, ok := g.dialect.(adapters.ServerExporter)
	if !ok {
		return "", &GenerationError{
			Template: tmplExport,
			Context:  map[string]any{"table": resultTable, "dialect": g.dialect.Name()},
			Err:      ErrUnsupported,
		}
	}
	query, err := g.ExportQuery(resultTable, infos)
	if err != nil {
		return "", err
	}
	return exporter.ExportStatement(query, path, delimiter), nil
}
