package templater

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.sql.tmpl
var templateFS embed.FS

// Имена шаблонов
const (
	tmplCreateTable  = "create_table.sql.tmpl"
	tmplAddColumn    = "add_column.sql.tmpl"
	tmplInsert       = "insert.sql.tmpl"
	tmplProbeColumns = "probe_columns.sql.tmpl"
	tmplDropTable    = "drop_table.sql.tmpl"
	tmplBounds       = "bounds.sql.tmpl"
	tmplPointInTime  = "point_in_time.sql.tmpl"
	tmplJoin         = "join.sql.tmpl"
	tmplExport       = "export.sql.tmpl"
)

// TemplateSet - неизменяемый набор SQL-шаблонов.
// Разбирается один раз при старте и передается в Generator.
type TemplateSet struct {
	t *template.Template
}

// NewTemplateSet разбирает встроенные шаблоны
func NewTemplateSet() (*TemplateSet, error) {
	t, err := template.New("sql").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templateFS, "templates/*.sql.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse sql templates: %w", err)
	}
	return &TemplateSet{t: t}, nil
}

// MustTemplateSet - NewTemplateSet с panic при ошибке (шаблоны встроены в бинарь)
func MustTemplateSet() *TemplateSet {
	ts, err := NewTemplateSet()
	if err != nil {
		panic(err)
	}
	return ts
}

func (ts *TemplateSet) execute(name string, data any) (string, error) {
	var b strings.Builder
	if err := ts.t.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
