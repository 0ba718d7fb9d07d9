package sink

import (
	"errors"
	"fmt"
	"time"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
	"github.com/ruslano69/tdtp-featurestore/pkg/templater"
)

// ErrBind - строку нельзя привязать к INSERT набора
var ErrBind = errors.New("failed to bind feature row")

type columnKind int

const (
	kindEventTimestamp columnKind = iota
	kindCreatedTimestamp
	kindIngestionID
	kindJobID
	kindEntity
	kindFeature
)

type boundColumn struct {
	name string
	kind columnKind
	vt   featureset.ValueType
}

// Binder привязывает FeatureRow к параметризованному INSERT одного набора.
// Порядок параметров совпадает с порядком колонок INSERT: event_timestamp,
// created_timestamp (время записи), сущности, ingestion_id, job_id, фичи.
type Binder struct {
	spec         featureset.Spec
	sql          string
	columns      []boundColumn
	jobName      string
	binaryAsText bool
	now          func() time.Time
}

// NewBinder готовит привязку строк для набора фич
func NewBinder(gen *templater.Generator, spec featureset.Spec, jobName string, now func() time.Time) (*Binder, error) {
	insertSQL, err := gen.InsertSQL(spec)
	if err != nil {
		return nil, err
	}
	required, err := gen.RequiredColumns(spec)
	if err != nil {
		return nil, err
	}

	entities := make(map[string]bool, len(spec.Entities))
	for _, e := range spec.Entities {
		entities[e.Name] = true
	}

	columns := make([]boundColumn, len(required))
	for i, c := range required {
		col := boundColumn{name: c.Name, vt: c.ValueType}
		switch {
		case c.Name == featureset.ColumnEventTimestamp:
			col.kind = kindEventTimestamp
		case c.Name == featureset.ColumnCreatedTimestamp:
			col.kind = kindCreatedTimestamp
		case c.Name == featureset.ColumnIngestionID:
			col.kind = kindIngestionID
		case c.Name == featureset.ColumnJobID:
			col.kind = kindJobID
		case entities[c.Name]:
			col.kind = kindEntity
		default:
			col.kind = kindFeature
		}
		columns[i] = col
	}

	if now == nil {
		now = time.Now
	}
	return &Binder{
		spec:         spec,
		sql:          insertSQL,
		columns:      columns,
		jobName:      jobName,
		binaryAsText: gen.Dialect().BinaryAsText(),
		now:          now,
	}, nil
}

// SQL возвращает INSERT набора
func (b *Binder) SQL() string {
	return b.sql
}

// Spec возвращает определение набора
func (b *Binder) Spec() featureset.Spec {
	return b.spec
}

// Bind возвращает параметры INSERT для строки.
// Отсутствующая фича привязывается как NULL, отсутствующая сущность - ошибка.
func (b *Binder) Bind(row featureset.FeatureRow) ([]any, error) {
	if row.EventTimestamp.IsZero() {
		return nil, fmt.Errorf("%w: %s: event timestamp is not set", ErrBind, b.spec.Ref())
	}

	args := make([]any, len(b.columns))
	for i, col := range b.columns {
		switch col.kind {
		case kindEventTimestamp:
			args[i] = row.EventTimestamp.UTC()
		case kindCreatedTimestamp:
			args[i] = b.now().UTC()
		case kindIngestionID:
			args[i] = row.IngestionID
		case kindJobID:
			args[i] = b.jobName
		case kindEntity, kindFeature:
			value, ok := row.Get(col.name)
			if !ok || value.IsNull() {
				if col.kind == kindEntity {
					return nil, fmt.Errorf("%w: %s: entity %q is missing", ErrBind, b.spec.Ref(), col.name)
				}
				args[i] = nil
				continue
			}
			if err := value.CheckType(col.vt); err != nil {
				return nil, fmt.Errorf("%w: %s: column %q: %v", ErrBind, b.spec.Ref(), col.name, err)
			}
			arg, err := base.BindValue(value, b.binaryAsText)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: column %q: %v", ErrBind, b.spec.Ref(), col.name, err)
			}
			args[i] = arg
		}
	}
	return args, nil
}
