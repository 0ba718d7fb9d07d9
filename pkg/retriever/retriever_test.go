package retriever

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
	"github.com/ruslano69/tdtp-featurestore/pkg/processors"
	"github.com/ruslano69/tdtp-featurestore/pkg/resultlog"
	"github.com/ruslano69/tdtp-featurestore/pkg/sink"
	"github.com/ruslano69/tdtp-featurestore/pkg/staging"
	"github.com/ruslano69/tdtp-featurestore/pkg/templater"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db    *sql.DB
	gen   *templater.Generator
	sink  *sink.Sink
	dir   string
	store *staging.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, dialect, err := adapters.Open(ctx, adapters.Config{URL: filepath.Join(dir, "store.db"), Driver: "sqlite"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gen := templater.New(dialect, templater.MustTemplateSet())
	return &testEnv{
		db:    db,
		gen:   gen,
		sink:  sink.New(db, gen, sink.Config{BatchSize: 10}),
		dir:   dir,
		store: staging.NewStore(nil),
	}
}

func (env *testEnv) retriever(t *testing.T, cfg Config) *Retriever {
	t.Helper()
	if cfg.StagingLocation == "" {
		cfg.StagingLocation = filepath.Join(env.dir, "out")
	}
	r, err := New(env.db, env.gen, env.store, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// write регистрирует набор и записывает строки через sink
func (env *testEnv) write(t *testing.T, spec featureset.Spec, rows ...featureset.FeatureRow) {
	t.Helper()
	ctx := context.Background()
	if err := env.sink.PrepareWrite(ctx, spec); err != nil {
		t.Fatalf("PrepareWrite: %v", err)
	}
	w, err := env.sink.Writer("test-job")
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	for _, res := range w.WriteBatch(ctx, rows) {
		if res.Err != nil {
			t.Fatalf("WriteBatch: %v", res.Err)
		}
	}
}

func (env *testEnv) entityFile(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(env.dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// tempTables возвращает служебные таблицы выборки, оставшиеся в БД
func (env *testEnv) tempTables(t *testing.T) []string {
	t.Helper()
	rows, err := env.db.Query("SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		t.Fatalf("sqlite_master: %v", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		rows.Scan(&name)
		if strings.HasPrefix(name, "_") {
			tables = append(tables, name)
		}
	}
	return tables
}

func readOutput(t *testing.T, uri string) [][]string {
	t.Helper()
	f, err := os.Open(uri)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = '\t'
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return records
}

func driverStats(maxAge time.Duration) featureset.Spec {
	return featureset.Spec{
		Project:  "default",
		Name:     "driver_stats",
		Entities: []featureset.EntitySpec{{Name: "driver_id", ValueType: featureset.TypeInt64}},
		Features: []featureset.FeatureSpec{{Name: "rate", ValueType: featureset.TypeString}},
		MaxAge:   maxAge,
	}
}

func driverRow(driver int64, ts time.Time, rate string) featureset.FeatureRow {
	return featureset.FeatureRow{
		FeatureSet:     "default/driver_stats",
		EventTimestamp: ts,
		Fields: []featureset.Field{
			{Name: "driver_id", Value: featureset.Int64Value(driver)},
			{Name: "rate", Value: featureset.StringValue(rate)},
		},
	}
}

func csvRequest(spec featureset.Spec, files ...string) Request {
	return Request{
		CorrelationID: "req-1",
		EntitySource:  EntitySource{Format: DataFormatCSV, FileURIs: files},
		FeatureSets:   []templater.FeatureSetRequest{{Spec: spec}},
	}
}

func column(records [][]string, name string) []string {
	idx := -1
	for i, h := range records[0] {
		if h == name {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}
	values := make([]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		values = append(values, rec[idx])
	}
	return values
}

func equal(a, b []string) bool {
	return strings.Join(a, "|") == strings.Join(b, "|")
}

// Значение в пределах max_age видно всем строкам сущностей
func TestRetrieveWithinMaxAge(t *testing.T) {
	env := newTestEnv(t)
	spec := driverStats(time.Hour)
	env.write(t, spec, driverRow(1, t0, "a"))

	file := env.entityFile(t, "entities.csv",
		"driver_id\tevent_timestamp",
		"1\t2026-03-01 12:00:00",
		"1\t2026-03-01 12:00:10",
		"1\t2026-03-01 12:00:20",
	)

	res, err := env.retriever(t, Config{}).GetHistoricalFeatures(context.Background(), csvRequest(spec, file))
	if err != nil {
		t.Fatalf("GetHistoricalFeatures: %v", err)
	}
	if res.CorrelationID != "req-1" || res.OutputFormat != DataFormatCSV || len(res.OutputFileURIs) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Rows != 3 {
		t.Errorf("Rows = %d, want 3", res.Rows)
	}

	records := readOutput(t, res.OutputFileURIs[0])
	if want := []string{"driver_id", "event_timestamp", "driver_stats__rate"}; !equal(records[0], want) {
		t.Errorf("header = %v, want %v", records[0], want)
	}
	if got := column(records, "driver_stats__rate"); !equal(got, []string{"a", "a", "a"}) {
		t.Errorf("rate = %v", got)
	}
	if got := column(records, "event_timestamp"); !equal(got, []string{
		"2026-03-01 12:00:00", "2026-03-01 12:00:10", "2026-03-01 12:00:20",
	}) {
		t.Errorf("event_timestamp = %v", got)
	}
}

// Значение старше max_age не возвращается
func TestRetrieveOutsideMaxAge(t *testing.T) {
	env := newTestEnv(t)
	spec := driverStats(5 * time.Second)
	env.write(t, spec, driverRow(1, t0, "a"))

	file := env.entityFile(t, "entities.csv",
		"driver_id\tevent_timestamp",
		"1\t2026-03-01 12:00:00",
		"1\t2026-03-01 12:00:10",
		"1\t2026-03-01 12:00:20",
	)

	res, err := env.retriever(t, Config{}).GetHistoricalFeatures(context.Background(), csvRequest(spec, file))
	if err != nil {
		t.Fatalf("GetHistoricalFeatures: %v", err)
	}
	records := readOutput(t, res.OutputFileURIs[0])
	if got := column(records, "driver_stats__rate"); !equal(got, []string{"a", "", ""}) {
		t.Errorf("rate = %v, want [a  ]", got)
	}
}

// Выбирается последнее значение не позже события; будущие значения не видны
func TestRetrievePointInTime(t *testing.T) {
	env := newTestEnv(t)
	spec := driverStats(0)
	env.write(t, spec,
		driverRow(1, t0, "old"),
		driverRow(1, t0.Add(5*time.Second), "new"),
		driverRow(2, t0, "other"),
	)

	file := env.entityFile(t, "entities.csv",
		"event_timestamp\tdriver_id\tlabel",
		"2026-03-01 11:59:59\t1\tx",
		"2026-03-01 12:00:03\t1\tx",
		"2026-03-01 12:00:05\t1\tx",
		"2026-03-02 00:00:00\t1\tx",
		"2026-03-01 12:00:00\t3\tx",
		"2026-03-01 12:00:00\t2\tx",
	)

	res, err := env.retriever(t, Config{}).GetHistoricalFeatures(context.Background(), csvRequest(spec, file))
	if err != nil {
		t.Fatalf("GetHistoricalFeatures: %v", err)
	}
	records := readOutput(t, res.OutputFileURIs[0])
	if len(records) != 7 {
		t.Fatalf("строк = %d, want 7 (заголовок + 6)", len(records))
	}
	want := []string{"", "old", "new", "new", "", "other"}
	if got := column(records, "driver_stats__rate"); !equal(got, want) {
		t.Errorf("rate = %v, want %v", got, want)
	}
	if got := column(records, "driver_id"); !equal(got, []string{"1", "1", "1", "1", "3", "2"}) {
		t.Errorf("порядок строк нарушен: %v", got)
	}
}

// При равном event_timestamp побеждает строка с поздним created_timestamp
func TestRetrieveCreatedTimestampTieBreak(t *testing.T) {
	env := newTestEnv(t)
	spec := driverStats(0)
	env.write(t, spec, driverRow(1, t0, "first"))
	time.Sleep(20 * time.Millisecond)
	env.write(t, spec, driverRow(1, t0, "second"))

	file := env.entityFile(t, "entities.csv", "driver_id\tevent_timestamp", "1\t2026-03-01 12:00:00")

	res, err := env.retriever(t, Config{}).GetHistoricalFeatures(context.Background(), csvRequest(spec, file))
	if err != nil {
		t.Fatalf("GetHistoricalFeatures: %v", err)
	}
	if got := column(readOutput(t, res.OutputFileURIs[0]), "driver_stats__rate"); !equal(got, []string{"second"}) {
		t.Errorf("rate = %v, want [second]", got)
	}
}

// Несколько наборов с разными сущностями и несколько файлов
func TestRetrieveMultipleFeatureSets(t *testing.T) {
	env := newTestEnv(t)
	drivers := driverStats(0)
	customers := featureset.Spec{
		Project: "default",
		Name:    "customer_profile",
		Entities: []featureset.EntitySpec{
			{Name: "driver_id", ValueType: featureset.TypeInt64},
			{Name: "customer_id", ValueType: featureset.TypeString},
		},
		Features: []featureset.FeatureSpec{
			{Name: "score", ValueType: featureset.TypeDouble},
			{Name: "vip", ValueType: featureset.TypeBool},
		},
	}

	env.write(t, drivers, driverRow(1, t0, "a"))
	env.write(t, customers, featureset.FeatureRow{
		FeatureSet:     customers.Ref(),
		EventTimestamp: t0,
		Fields: []featureset.Field{
			{Name: "driver_id", Value: featureset.Int64Value(1)},
			{Name: "customer_id", Value: featureset.StringValue("c-1")},
			{Name: "score", Value: featureset.DoubleValue(0.5)},
			{Name: "vip", Value: featureset.BoolValue(true)},
		},
	})

	first := env.entityFile(t, "part-0.csv",
		"driver_id\tcustomer_id\tevent_timestamp",
		"1\tc-1\t2026-03-01 12:00:01",
	)
	second := env.entityFile(t, "part-1.csv",
		"customer_id\tdriver_id\tevent_timestamp",
		"c-2\t1\t2026-03-01 12:00:02",
	)

	req := Request{
		CorrelationID: "multi",
		EntitySource:  EntitySource{Format: "csv", FileURIs: []string{first, second}},
		FeatureSets: []templater.FeatureSetRequest{
			{Spec: drivers},
			{Spec: customers, Features: []string{"vip", "score"}},
		},
	}
	res, err := env.retriever(t, Config{MaxParallelism: 1}).GetHistoricalFeatures(context.Background(), req)
	if err != nil {
		t.Fatalf("GetHistoricalFeatures: %v", err)
	}

	records := readOutput(t, res.OutputFileURIs[0])
	wantHeader := []string{
		"customer_id", "driver_id", "event_timestamp",
		"driver_stats__rate", "customer_profile__vip", "customer_profile__score",
	}
	if !equal(records[0], wantHeader) {
		t.Fatalf("header = %v, want %v", records[0], wantHeader)
	}
	if got := column(records, "driver_stats__rate"); !equal(got, []string{"a", "a"}) {
		t.Errorf("rate = %v", got)
	}
	if got := column(records, "customer_profile__vip"); !equal(got, []string{"true", ""}) {
		t.Errorf("vip = %v", got)
	}
	if got := column(records, "customer_profile__score"); !equal(got, []string{"0.5", ""}) {
		t.Errorf("score = %v", got)
	}
	if left := env.tempTables(t); len(left) != 0 {
		t.Errorf("временные таблицы не удалены: %v", left)
	}
}

func TestRetrieveRejectsUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t)
	spec := driverStats(0)
	env.write(t, spec, driverRow(1, t0, "a"))

	req := csvRequest(spec, "entities.avro")
	req.EntitySource.Format = "AVRO"

	_, err := env.retriever(t, Config{}).GetHistoricalFeatures(context.Background(), req)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("ожидалась ErrUnsupportedFormat, получено %v", err)
	}
	if left := env.tempTables(t); len(left) != 0 {
		t.Errorf("таблицы созданы до проверки формата: %v", left)
	}
}

func TestRetrieveUnknownFeature(t *testing.T) {
	env := newTestEnv(t)
	req := csvRequest(driverStats(0), "entities.csv")
	req.FeatureSets[0].Features = []string{"missing"}

	if _, err := env.retriever(t, Config{}).GetHistoricalFeatures(context.Background(), req); err == nil {
		t.Fatal("ожидалась ошибка для неизвестной фичи")
	}
}

// Ошибка загрузки называет файл, временные таблицы удаляются
func TestRetrieveLoadFailureCleansUp(t *testing.T) {
	env := newTestEnv(t)
	spec := driverStats(0)
	env.write(t, spec, driverRow(1, t0, "a"))

	good := env.entityFile(t, "good.csv", "driver_id\tevent_timestamp", "1\t2026-03-01 12:00:00")
	bad := env.entityFile(t, "bad.csv", "driver_id\tevent_timestamp", "not-a-number\t2026-03-01 12:00:00")

	_, err := env.retriever(t, Config{}).GetHistoricalFeatures(context.Background(), csvRequest(spec, good, bad))
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("ожидалась *StepError, получено %v", err)
	}
	if stepErr.Step != StepLoad || !strings.Contains(err.Error(), bad) {
		t.Errorf("ошибка должна указывать шаг load и файл: %v", err)
	}
	if left := env.tempTables(t); len(left) != 0 {
		t.Errorf("временные таблицы не удалены: %v", left)
	}
}

func TestRetrieveMissingTimestampColumn(t *testing.T) {
	env := newTestEnv(t)
	spec := driverStats(0)
	env.write(t, spec, driverRow(1, t0, "a"))

	file := env.entityFile(t, "entities.csv", "driver_id", "1")
	_, err := env.retriever(t, Config{}).GetHistoricalFeatures(context.Background(), csvRequest(spec, file))
	if err == nil || !strings.Contains(err.Error(), "event_timestamp") {
		t.Errorf("ожидалась ошибка об отсутствии event_timestamp, получено %v", err)
	}
}

// Пустой файл сущностей дает результат только с заголовком
func TestRetrieveEmptyEntities(t *testing.T) {
	env := newTestEnv(t)
	spec := driverStats(time.Minute)
	env.write(t, spec, driverRow(1, t0, "a"))

	file := env.entityFile(t, "entities.csv", "driver_id\tevent_timestamp")
	res, err := env.retriever(t, Config{}).GetHistoricalFeatures(context.Background(), csvRequest(spec, file))
	if err != nil {
		t.Fatalf("GetHistoricalFeatures: %v", err)
	}
	if records := readOutput(t, res.OutputFileURIs[0]); len(records) != 1 || res.Rows != 0 {
		t.Errorf("ожидался только заголовок, получено %d строк", len(records))
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	states []resultlog.JobStatus
}

func (p *recordingPublisher) Publish(_ context.Context, status resultlog.JobStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, status)
	return nil
}

// Сжатый выход с контрольной суммой и публикация состояния задания
func TestRetrieveCompressedOutput(t *testing.T) {
	env := newTestEnv(t)
	spec := driverStats(0)
	env.write(t, spec, driverRow(1, t0, "a"))

	file := env.entityFile(t, "entities.csv", "driver_id\tevent_timestamp", "1\t2026-03-01 12:00:00")
	pub := &recordingPublisher{}
	r := env.retriever(t, Config{Output: processors.Config{Compression: "zstd", Checksum: true}}).WithPublisher(pub)

	res, err := r.GetHistoricalFeatures(context.Background(), csvRequest(spec, file))
	if err != nil {
		t.Fatalf("GetHistoricalFeatures: %v", err)
	}
	uri := res.OutputFileURIs[0]
	if !strings.HasSuffix(uri, ".csv.zst") || res.Checksum == "" {
		t.Fatalf("result = %+v", res)
	}

	f, err := os.Open(uri)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := processors.ValidateChecksum(f, res.Checksum); err != nil {
		t.Errorf("ValidateChecksum: %v", err)
	}
	f.Close()

	rc, err := env.store.Open(context.Background(), uri)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rc, err = processors.MaybeDecompress(uri, rc)
	if err != nil {
		t.Fatalf("MaybeDecompress: %v", err)
	}
	defer rc.Close()
	cr := csv.NewReader(rc)
	cr.Comma = '\t'
	records, err := cr.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := column(records, "driver_stats__rate"); !equal(got, []string{"a"}) {
		t.Errorf("rate = %v", got)
	}

	if len(pub.states) != 2 || pub.states[0].State != resultlog.StateRunning || pub.states[1].State != resultlog.StateDone {
		t.Fatalf("states = %+v", pub.states)
	}
	if pub.states[1].Rows != 1 || pub.states[1].Checksum != res.Checksum {
		t.Errorf("final status = %+v", pub.states[1])
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Error("staging_location обязателен")
	}
	if err := (Config{StagingLocation: "/tmp", Delimiter: "::"}).Validate(); err == nil {
		t.Error("разделитель из нескольких символов должен отклоняться")
	}
	if got := (Config{Delimiter: ","}).delimiter(); got != ',' {
		t.Errorf("delimiter = %q", got)
	}
	if got := (Config{}).delimiter(); got != '\t' {
		t.Errorf("delimiter по умолчанию = %q", got)
	}
}

// Значение ровно на границе max_age видно, на миллисекунду позже уже нет.
// Метки с дробными миллисекундами проверяют отсутствие ошибок округления.
func TestRetrieveMaxAgeBoundaryInclusive(t *testing.T) {
	env := newTestEnv(t)
	maxAge := 5 * time.Second
	spec := driverStats(maxAge)

	const drivers = 200
	rows := make([]featureset.FeatureRow, 0, drivers)
	lines := []string{"driver_id\tevent_timestamp"}
	for i := int64(1); i <= drivers; i++ {
		ts := t0.Add(time.Duration(i) * time.Second)
		if i%2 == 1 {
			ts = ts.Add(time.Duration(i*37%1000) * time.Millisecond)
		}
		rows = append(rows, driverRow(i, ts, "v"))

		edge := ts.Add(maxAge)
		lines = append(lines,
			strconv.FormatInt(i, 10)+"\t"+edge.Format("2006-01-02 15:04:05.000"),
			strconv.FormatInt(i, 10)+"\t"+edge.Add(time.Millisecond).Format("2006-01-02 15:04:05.000"),
		)
	}
	env.write(t, spec, rows...)
	file := env.entityFile(t, "entities.csv", lines...)

	res, err := env.retriever(t, Config{}).GetHistoricalFeatures(context.Background(), csvRequest(spec, file))
	if err != nil {
		t.Fatalf("GetHistoricalFeatures: %v", err)
	}
	records := readOutput(t, res.OutputFileURIs[0])
	rates := column(records, "driver_stats__rate")
	ids := column(records, "driver_id")
	if len(rates) != 2*drivers {
		t.Fatalf("строк = %d, want %d", len(rates), 2*drivers)
	}
	for i := 0; i < len(rates); i += 2 {
		if rates[i] != "v" {
			t.Errorf("driver %s: значение на границе max_age потеряно", ids[i])
		}
		if rates[i+1] != "" {
			t.Errorf("driver %s: значение старше max_age на 1ms вернулось: %q", ids[i+1], rates[i+1])
		}
	}
}

// Отмена посреди выборки прерывает запрос и удаляет созданные таблицы
func TestRetrieveCancelledCleansUp(t *testing.T) {
	env := newTestEnv(t)
	spec := driverStats(time.Hour)
	env.write(t, spec, driverRow(1, t0, "a"))
	file := env.entityFile(t, "entities.csv", "driver_id\tevent_timestamp", "1\t2026-03-01 12:00:10")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := env.retriever(t, Config{})
	var steps []string
	r.stepDone = func(step string) {
		steps = append(steps, step)
		if step == StepMaterialize {
			cancel()
		}
	}

	res, err := r.GetHistoricalFeatures(ctx, csvRequest(spec, file))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидалась context.Canceled, получено %v (%+v)", err, res)
	}
	if want := []string{StepLoad, StepBounds, StepMaterialize}; !equal(steps, want) {
		t.Errorf("шаги = %v, want %v", steps, want)
	}
	if left := env.tempTables(t); len(left) != 0 {
		t.Errorf("временные таблицы не удалены после отмены: %v", left)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "out")); err == nil {
		entries, _ := os.ReadDir(filepath.Join(env.dir, "out"))
		if len(entries) != 0 {
			t.Errorf("после отмены записан результат: %v", entries)
		}
	}
}
