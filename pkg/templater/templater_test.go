package templater

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/postgres"
	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/sqlite"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
)

func fsSpec() featureset.Spec {
	return featureset.Spec{
		Project:  "myproject2",
		Name:     "fs",
		Entities: []featureset.EntitySpec{{Name: "entity", ValueType: featureset.TypeInt64}},
		Features: []featureset.FeatureSpec{{Name: "feature", ValueType: featureset.TypeString}},
	}
}

func featureSetSpec() featureset.Spec {
	return featureset.Spec{
		Project: "myproject2",
		Name:    "feature_set",
		Entities: []featureset.EntitySpec{
			{Name: "entity_id_secondary", ValueType: featureset.TypeString},
			{Name: "entity_id_primary", ValueType: featureset.TypeInt32},
		},
		Features: []featureset.FeatureSpec{
			{Name: "feature_1", ValueType: featureset.TypeStringList},
			{Name: "feature_2", ValueType: featureset.TypeInt64},
		},
		MaxAge: time.Hour,
	}
}

func pgGenerator() *Generator {
	return New(postgres.New(), MustTemplateSet())
}

func sqliteGenerator() *Generator {
	return New(sqlite.New(), MustTemplateSet())
}

func TestRequiredColumnsOrder(t *testing.T) {
	columns, err := pgGenerator().RequiredColumns(featureSetSpec())
	if err != nil {
		t.Fatalf("RequiredColumns: %v", err)
	}

	want := []string{
		"event_timestamp", "created_timestamp",
		"entity_id_primary", "entity_id_secondary",
		"ingestion_id", "job_id",
		"feature_1", "feature_2",
	}
	if len(columns) != len(want) {
		t.Fatalf("получено %d колонок, ожидалось %d", len(columns), len(want))
	}
	for i, c := range columns {
		if c.Name != want[i] {
			t.Errorf("колонка %d = %s, want %s", i, c.Name, want[i])
		}
	}
	if columns[6].Type != "TEXT" || columns[2].Type != "INTEGER" {
		t.Errorf("неверные типы: %+v", columns)
	}
}

func TestCreateTableSQL(t *testing.T) {
	got, err := pgGenerator().CreateTableSQL(fsSpec())
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	want := "CREATE TABLE \"myproject2_fs\" (\n" +
		"  \"event_timestamp\" TIMESTAMP,\n" +
		"  \"created_timestamp\" TIMESTAMP,\n" +
		"  \"entity\" BIGINT,\n" +
		"  \"ingestion_id\" VARCHAR,\n" +
		"  \"job_id\" VARCHAR,\n" +
		"  \"feature\" TEXT\n" +
		")"
	if got != want {
		t.Errorf("CreateTableSQL:\n%s\nwant:\n%s", got, want)
	}
}

func TestMigrationSQL(t *testing.T) {
	g := pgGenerator()
	spec := fsSpec()

	// все колонки на месте - миграция пустая
	full := []string{"event_timestamp", "created_timestamp", "entity", "ingestion_id", "job_id", "feature"}
	stmts, err := g.MigrationSQL(spec, full)
	if err != nil {
		t.Fatalf("MigrationSQL: %v", err)
	}
	if len(stmts) != 0 {
		t.Errorf("ожидалась пустая миграция, получено %v", stmts)
	}

	// новая фича добавляется
	spec.Features = append(spec.Features, featureset.FeatureSpec{Name: "feature_2", ValueType: featureset.TypeDoubleList})
	stmts, err = g.MigrationSQL(spec, full)
	if err != nil {
		t.Fatalf("MigrationSQL: %v", err)
	}
	if len(stmts) != 1 || stmts[0] != `ALTER TABLE "myproject2_fs" ADD COLUMN "feature_2" TEXT` {
		t.Errorf("MigrationSQL = %v", stmts)
	}

	// повторное применение после миграции - пустое
	stmts, err = g.MigrationSQL(spec, append(full, "feature_2"))
	if err != nil || len(stmts) != 0 {
		t.Errorf("повторная миграция = %v, %v", stmts, err)
	}
}

func TestMigrationSQLDrift(t *testing.T) {
	existing := []string{"event_timestamp", "created_timestamp", "entity", "ingestion_id", "job_id", "feature", "dropped"}
	_, err := pgGenerator().MigrationSQL(fsSpec(), existing)
	if !errors.Is(err, ErrSchemaDrift) {
		t.Fatalf("ожидалась ErrSchemaDrift, получено %v", err)
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("ожидалась *GenerationError, получено %T", err)
	}
	if !strings.Contains(err.Error(), "dropped") || !strings.Contains(err.Error(), "myproject2_fs") {
		t.Errorf("ошибка должна называть колонку и таблицу: %v", err)
	}
}

func TestInsertSQL(t *testing.T) {
	got, err := pgGenerator().InsertSQL(fsSpec())
	if err != nil {
		t.Fatalf("InsertSQL: %v", err)
	}
	want := `INSERT INTO "myproject2_fs" ("event_timestamp", "created_timestamp", "entity", "ingestion_id", "job_id", "feature") VALUES ($1, $2, $3, $4, $5, $6)`
	if got != want {
		t.Errorf("InsertSQL:\n%s\nwant:\n%s", got, want)
	}

	got, _ = sqliteGenerator().InsertSQL(fsSpec())
	if !strings.HasSuffix(got, "VALUES (?, ?, ?, ?, ?, ?)") {
		t.Errorf("sqlite InsertSQL = %s", got)
	}
}

func TestStagingColumnsDedup(t *testing.T) {
	first := &QueryInfo{Entities: []featureset.EntitySpec{
		{Name: "user", ValueType: featureset.TypeInt64},
		{Name: "country", ValueType: featureset.TypeString},
	}}
	second := &QueryInfo{Entities: []featureset.EntitySpec{
		{Name: "user", ValueType: featureset.TypeString},
		{Name: "device", ValueType: featureset.TypeString},
	}}

	columns := StagingColumns([]*QueryInfo{first, second})
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	if strings.Join(names, ",") != "country,device,user" {
		t.Errorf("StagingColumns = %v", names)
	}
	// при совпадении имени побеждает первое вхождение
	if columns[2].ValueType != featureset.TypeInt64 {
		t.Errorf("user должен сохранить тип первого набора, получено %s", columns[2].ValueType)
	}
}

func TestCreateStagingSQL(t *testing.T) {
	infos, err := NewQueryInfos([]FeatureSetRequest{{Spec: fsSpec()}})
	if err != nil {
		t.Fatalf("NewQueryInfos: %v", err)
	}
	got, err := sqliteGenerator().CreateStagingSQL("_abc", infos)
	if err != nil {
		t.Fatalf("CreateStagingSQL: %v", err)
	}
	want := "CREATE TABLE \"_abc\" (\n" +
		"  \"entity\" INTEGER,\n" +
		"  \"event_timestamp\" TIMESTAMP,\n" +
		"  \"row_number\" INTEGER PRIMARY KEY AUTOINCREMENT\n" +
		")"
	if got != want {
		t.Errorf("CreateStagingSQL:\n%s\nwant:\n%s", got, want)
	}
}

func TestBulkLoadSQL(t *testing.T) {
	g := pgGenerator()
	got, err := g.BulkLoadSQL("_abc", []string{"entity", "event_timestamp"})
	if err != nil {
		t.Fatalf("BulkLoadSQL: %v", err)
	}
	if got != `INSERT INTO "_abc" ("entity", "event_timestamp") VALUES ($1, $2)` {
		t.Errorf("BulkLoadSQL = %s", got)
	}

	if _, err := g.BulkLoadSQL("_abc", []string{"entity", "row_number"}); err == nil {
		t.Error("row_number не должен загружаться из файла")
	}
}

func TestTimestampBoundsSQL(t *testing.T) {
	got, err := pgGenerator().TimestampBoundsSQL("_abc")
	if err != nil {
		t.Fatalf("TimestampBoundsSQL: %v", err)
	}
	want := `SELECT MIN(CAST(ROUND(EXTRACT(EPOCH FROM "event_timestamp") * 1000) AS BIGINT)) AS "min_ts", MAX(CAST(ROUND(EXTRACT(EPOCH FROM "event_timestamp") * 1000) AS BIGINT)) AS "max_ts" FROM "_abc"`
	if got != want {
		t.Errorf("TimestampBoundsSQL:\n%s\nwant:\n%s", got, want)
	}
}

func TestPointInTimeSQL(t *testing.T) {
	g := pgGenerator()
	infos, err := NewQueryInfos([]FeatureSetRequest{{Spec: featureSetSpec(), Features: []string{"feature_2"}}})
	if err != nil {
		t.Fatalf("NewQueryInfos: %v", err)
	}

	got, err := g.PointInTimeSQL(infos[0], "_staging", Bounds{Min: 1000000, Max: 5000000, Valid: true})
	if err != nil {
		t.Fatalf("PointInTimeSQL: %v", err)
	}

	mustContain := []string{
		`ROW_NUMBER() OVER (`,
		`PARTITION BY e."row_number"`,
		`ORDER BY CAST(ROUND(EXTRACT(EPOCH FROM f."event_timestamp") * 1000) AS BIGINT) DESC, CAST(ROUND(EXTRACT(EPOCH FROM f."created_timestamp") * 1000) AS BIGINT) DESC`,
		`LEFT JOIN "myproject2_feature_set" f`,
		`e."entity_id_secondary" = f."entity_id_secondary"`,
		`AND e."entity_id_primary" = f."entity_id_primary"`,
		`AND CAST(ROUND(EXTRACT(EPOCH FROM f."event_timestamp") * 1000) AS BIGINT) <= CAST(ROUND(EXTRACT(EPOCH FROM e."event_timestamp") * 1000) AS BIGINT)`,
		`AND CAST(ROUND(EXTRACT(EPOCH FROM f."event_timestamp") * 1000) AS BIGINT) >= CAST(ROUND(EXTRACT(EPOCH FROM e."event_timestamp") * 1000) AS BIGINT) - 3600000`,
		`AND CAST(ROUND(EXTRACT(EPOCH FROM f."event_timestamp") * 1000) AS BIGINT) >= -2601000`,
		`AND CAST(ROUND(EXTRACT(EPOCH FROM f."event_timestamp") * 1000) AS BIGINT) <= 5001000`,
		`f."feature_2" AS "feature_set__feature_2"`,
		`WHERE ranked."feature_rank" = 1`,
	}
	for _, s := range mustContain {
		if !strings.Contains(got, s) {
			t.Errorf("PointInTimeSQL не содержит %q:\n%s", s, got)
		}
	}
	if strings.Contains(got, "feature_1") {
		t.Errorf("незапрошенная фича в запросе:\n%s", got)
	}
}

func TestPointInTimeSQLNoMaxAge(t *testing.T) {
	infos, _ := NewQueryInfos([]FeatureSetRequest{{Spec: fsSpec()}})
	got, err := sqliteGenerator().PointInTimeSQL(infos[0], "_staging", Bounds{Min: 1000000, Max: 5000000, Valid: true})
	if err != nil {
		t.Fatalf("PointInTimeSQL: %v", err)
	}
	// без max_age нет ни построчного ограничения давности, ни нижней границы
	if strings.Contains(got, ">=") {
		t.Errorf("неожиданное ограничение давности:\n%s", got)
	}
	if !strings.Contains(got, "julianday(f.\"event_timestamp\")") {
		t.Errorf("ожидалось выражение julianday:\n%s", got)
	}
}

func TestIdentifierInjection(t *testing.T) {
	spec := fsSpec()
	spec.Features[0].Name = `x"; DROP TABLE users; --`

	got, err := pgGenerator().CreateTableSQL(spec)
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	if !strings.Contains(got, `"x""; DROP TABLE users; --" TEXT`) {
		t.Errorf("имя не экранировано:\n%s", got)
	}
}

func TestJoinSQL(t *testing.T) {
	g := pgGenerator()
	infos, err := NewQueryInfos([]FeatureSetRequest{{Spec: fsSpec()}, {Spec: featureSetSpec()}})
	if err != nil {
		t.Fatalf("NewQueryInfos: %v", err)
	}

	if _, err := g.JoinSQL(infos, "_staging"); err == nil {
		t.Fatal("ожидалась ошибка для нематериализованных наборов")
	}

	infos[0].JoinedTable = "_one"
	infos[1].JoinedTable = "_two"
	got, err := g.JoinSQL(infos, "_staging")
	if err != nil {
		t.Fatalf("JoinSQL: %v", err)
	}
	mustContain := []string{
		`FROM "_staging" e`,
		`LEFT JOIN "_one" t0 ON t0."row_number" = e."row_number"`,
		`LEFT JOIN "_two" t1 ON t1."row_number" = e."row_number"`,
		`t0."fs__feature" AS "fs__feature"`,
		`t1."feature_set__feature_1" AS "feature_set__feature_1"`,
		`e."entity_id_primary" AS "entity_id_primary"`,
	}
	for _, s := range mustContain {
		if !strings.Contains(got, s) {
			t.Errorf("JoinSQL не содержит %q:\n%s", s, got)
		}
	}
}

func TestOutputColumns(t *testing.T) {
	infos, _ := NewQueryInfos([]FeatureSetRequest{{Spec: fsSpec()}, {Spec: featureSetSpec(), Features: []string{"feature_2"}}})
	columns := OutputColumns(infos)

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	want := "entity,entity_id_primary,entity_id_secondary,event_timestamp,fs__feature,feature_set__feature_2"
	if strings.Join(names, ",") != want {
		t.Errorf("OutputColumns = %v", names)
	}
}

func TestExportSQL(t *testing.T) {
	infos, _ := NewQueryInfos([]FeatureSetRequest{{Spec: fsSpec()}})

	got, err := pgGenerator().ExportQuery("_result", infos)
	if err != nil {
		t.Fatalf("ExportQuery: %v", err)
	}
	if got != `SELECT "entity", "event_timestamp", "fs__feature" FROM "_result" ORDER BY "row_number"` {
		t.Errorf("ExportQuery = %s", got)
	}

	copySQL, err := pgGenerator().ServerExportSQL("_result", infos, "/staging/_result.csv", '\t')
	if err != nil {
		t.Fatalf("ServerExportSQL: %v", err)
	}
	if !strings.HasPrefix(copySQL, "COPY (SELECT") || !strings.Contains(copySQL, "TO '/staging/_result.csv'") {
		t.Errorf("ServerExportSQL = %s", copySQL)
	}

	if _, err := sqliteGenerator().ServerExportSQL("_result", infos, "/tmp/x", '\t'); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ожидалась ErrUnsupported для sqlite, получено %v", err)
	}
}

func TestNewQueryInfos(t *testing.T) {
	if _, err := NewQueryInfos(nil); err == nil {
		t.Error("ожидалась ошибка для пустого запроса")
	}
	if _, err := NewQueryInfos([]FeatureSetRequest{{Spec: fsSpec(), Features: []string{"missing"}}}); err == nil {
		t.Error("ожидалась ошибка для неизвестной фичи")
	}

	// одинаковое имя набора в разных проектах дает конфликт колонок
	other := fsSpec()
	other.Project = "other"
	if _, err := NewQueryInfos([]FeatureSetRequest{{Spec: fsSpec()}, {Spec: other}}); err == nil {
		t.Error("ожидалась ошибка конфликта выходных колонок")
	}

	infos, err := NewQueryInfos([]FeatureSetRequest{{Spec: featureSetSpec()}})
	if err != nil {
		t.Fatalf("NewQueryInfos: %v", err)
	}
	if len(infos[0].Features) != 2 || infos[0].MaxAgeMillis != 3600000 || infos[0].Table != "myproject2_feature_set" {
		t.Errorf("QueryInfo = %+v", infos[0])
	}
}
