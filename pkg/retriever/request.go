package retriever

import (
	"errors"
	"fmt"

	"github.com/ruslano69/tdtp-featurestore/pkg/templater"
)

// DataFormat - формат файлов сущностей и результата
type DataFormat string

// DataFormatCSV - строковый файл с разделителем и заголовком
const DataFormatCSV DataFormat = "CSV"

// ErrUnsupportedFormat - формат источника сущностей не поддерживается
var ErrUnsupportedFormat = errors.New("unsupported entity source format")

// EntitySource - файлы сущностей с timestamp для as-of join
type EntitySource struct {
	Format   DataFormat `yaml:"format" json:"format"`
	FileURIs []string   `yaml:"file_uris" json:"file_uris"`
}

// Request - запрос выборки исторических фич
type Request struct {
	CorrelationID string
	EntitySource  EntitySource
	FeatureSets   []templater.FeatureSetRequest
}

// Result - результат выборки
type Result struct {
	CorrelationID  string
	OutputFileURIs []string
	OutputFormat   DataFormat
	Rows           int64
	Checksum       string // xxh3 выходного файла, если включен
}

// Шаги выборки
const (
	StepStage       = "stage"
	StepLoad        = "load"
	StepBounds      = "bounds"
	StepMaterialize = "materialize"
	StepJoin        = "join"
	StepExport      = "export"
)

// StepError - ошибка шага выборки с таблицей и SQL, на которых она произошла
type StepError struct {
	Step  string
	Table string
	SQL   string
	Err   error
}

func (e *StepError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("retrieval step %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("retrieval step %s failed on table %s: %v", e.Step, e.Table, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
