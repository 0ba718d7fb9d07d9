package templater

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSchemaDrift - в таблице есть колонка, которой нет в определении набора
	ErrSchemaDrift = errors.New("schema drift")

	// ErrUnsupported - диалект не поддерживает операцию
	ErrUnsupported = errors.New("operation not supported by dialect")
)

// GenerationError - ошибка генерации SQL.
// Содержит имя шаблона и контекст, на котором генерация не удалась.
type GenerationError struct {
	Template string
	Context  map[string]any
	Err      error
}

func (e *GenerationError) Error() string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
	}
	return fmt.Sprintf("failed to generate %s [%s]: %v", e.Template, strings.Join(parts, " "), e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
