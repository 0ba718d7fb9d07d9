package featureset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Зарезервированные имена служебных колонок таблицы набора фич
const (
	ColumnEventTimestamp   = "event_timestamp"
	ColumnCreatedTimestamp = "created_timestamp"
	ColumnIngestionID      = "ingestion_id"
	ColumnJobID            = "job_id"
	ColumnRowNumber        = "row_number"
)

var reservedColumns = map[string]bool{
	ColumnEventTimestamp:   true,
	ColumnCreatedTimestamp: true,
	ColumnIngestionID:      true,
	ColumnJobID:            true,
	ColumnRowNumber:        true,
}

// ErrInvalidSpec возвращается при некорректном определении набора фич
var ErrInvalidSpec = errors.New("invalid feature set spec")

// EntitySpec - ключевая колонка набора фич
type EntitySpec struct {
	Name      string    `yaml:"name" json:"name"`
	ValueType ValueType `yaml:"type" json:"type"`
}

// FeatureSpec - колонка значения фичи
type FeatureSpec struct {
	Name      string    `yaml:"name" json:"name"`
	ValueType ValueType `yaml:"type" json:"type"`
}

// Spec - определение набора фич (FeatureSetSpec).
// Идентичность набора - пара project/name.
type Spec struct {
	Project  string        `yaml:"project" json:"project"`
	Name     string        `yaml:"name" json:"name"`
	Entities []EntitySpec  `yaml:"entities" json:"entities"`
	Features []FeatureSpec `yaml:"features" json:"features"`
	// MaxAge ограничивает давность значения относительно timestamp сущности.
	// Ноль означает отсутствие ограничения.
	MaxAge time.Duration `yaml:"max_age" json:"max_age"`
}

// Ref возвращает ссылку на набор в формате "project/name"
func (s Spec) Ref() string {
	return Ref(s.Project, s.Name)
}

// Ref собирает ссылку на набор фич
func Ref(project, name string) string {
	return project + "/" + name
}

// ParseRef разбирает ссылку "project/name"
func ParseRef(ref string) (project, name string, err error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid feature set reference %q: expected project/name", ref)
	}
	return parts[0], parts[1], nil
}

// TableName возвращает имя таблицы, хранящей набор: <project>_<name>
func (s Spec) TableName() string {
	return s.Project + "_" + s.Name
}

// MaxAgeMillis возвращает max age в целых миллисекундах
func (s Spec) MaxAgeMillis() int64 {
	return s.MaxAge.Milliseconds()
}

// Validate проверяет определение набора
func (s Spec) Validate() error {
	if s.Project == "" || s.Name == "" {
		return fmt.Errorf("%w: project and name are required", ErrInvalidSpec)
	}
	if strings.Contains(s.Project, "/") || strings.Contains(s.Name, "/") {
		return fmt.Errorf("%w: %s: project and name must not contain '/'", ErrInvalidSpec, s.Ref())
	}
	if len(s.Entities) == 0 {
		return fmt.Errorf("%w: %s: at least one entity is required", ErrInvalidSpec, s.Ref())
	}
	if s.MaxAge < 0 {
		return fmt.Errorf("%w: %s: negative max age %s", ErrInvalidSpec, s.Ref(), s.MaxAge)
	}

	seen := make(map[string]bool, len(s.Entities)+len(s.Features))
	check := func(kind, name string, vt ValueType) error {
		if name == "" {
			return fmt.Errorf("%w: %s: empty %s name", ErrInvalidSpec, s.Ref(), kind)
		}
		if reservedColumns[name] {
			return fmt.Errorf("%w: %s: %s name %q is reserved", ErrInvalidSpec, s.Ref(), kind, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: %s: duplicate column %q", ErrInvalidSpec, s.Ref(), name)
		}
		if _, ok := typeNames[vt]; !ok {
			return fmt.Errorf("%w: %s: %s %q has invalid type %s", ErrInvalidSpec, s.Ref(), kind, name, vt)
		}
		seen[name] = true
		return nil
	}

	for _, e := range s.Entities {
		if e.ValueType.IsList() {
			return fmt.Errorf("%w: %s: entity %q cannot be a list", ErrInvalidSpec, s.Ref(), e.Name)
		}
		if err := check("entity", e.Name, e.ValueType); err != nil {
			return err
		}
	}
	for _, f := range s.Features {
		if err := check("feature", f.Name, f.ValueType); err != nil {
			return err
		}
	}
	return nil
}

// EntityNames возвращает имена сущностей в порядке определения
func (s Spec) EntityNames() []string {
	names := make([]string, len(s.Entities))
	for i, e := range s.Entities {
		names[i] = e.Name
	}
	return names
}

// SortedEntities возвращает сущности, отсортированные по имени
func (s Spec) SortedEntities() []EntitySpec {
	sorted := make([]EntitySpec, len(s.Entities))
	copy(sorted, s.Entities)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}

// Feature ищет фичу по имени
func (s Spec) Feature(name string) (FeatureSpec, bool) {
	for _, f := range s.Features {
		if f.Name == name {
			return f, true
		}
	}
	return FeatureSpec{}, false
}
