package base

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
)

// TimestampLayout - формат timestamp во входных и выходных файлах
const TimestampLayout = "2006-01-02 15:04:05.999999"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp разбирает timestamp в одном из поддерживаемых форматов.
// Значения без зоны считаются UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}

// TimestampFromDB приводит значение колонки timestamp, прочитанное драйвером,
// к time.Time. Драйверы возвращают time.Time, строку или []byte.
func TimestampFromDB(v any) (time.Time, bool, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return x.UTC(), true, nil
	case string:
		t, err := ParseTimestamp(x)
		return t, err == nil, err
	case []byte:
		t, err := ParseTimestamp(string(x))
		return t, err == nil, err
	default:
		return time.Time{}, false, fmt.Errorf("unexpected timestamp value %T", v)
	}
}

// BindValue конвертирует значение фичи в аргумент драйвера.
// Списки хранятся в непрозрачном виде (EncodeList). Если СУБД хранит
// бинарные данные в TEXT (binaryAsText), байты передаются строкой base64.
func BindValue(v featureset.Value, binaryAsText bool) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if v.Type.IsList() {
		data, err := featureset.EncodeList(v)
		if err != nil {
			return nil, err
		}
		if binaryAsText {
			return string(data), nil
		}
		return data, nil
	}
	if b, ok := v.Interface().([]byte); ok && binaryAsText {
		return base64.StdEncoding.EncodeToString(b), nil
	}
	return v.Interface(), nil
}

// ParseText конвертирует текстовое поле входного файла в аргумент драйвера
// согласно типу колонки. Пустая строка означает NULL.
func ParseText(t featureset.ValueType, s string, binaryAsText bool) (any, error) {
	if s == "" {
		return nil, nil
	}
	switch t {
	case featureset.TypeString:
		return s, nil
	case featureset.TypeBytes:
		if binaryAsText {
			return s, nil
		}
		if b, err := base64.StdEncoding.DecodeString(s); err == nil {
			return b, nil
		}
		return []byte(s), nil
	case featureset.TypeInt32:
		i, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid INT32 %q: %w", s, err)
		}
		return int32(i), nil
	case featureset.TypeInt64:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid INT64 %q: %w", s, err)
		}
		return i, nil
	case featureset.TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid FLOAT %q: %w", s, err)
		}
		return float32(f), nil
	case featureset.TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DOUBLE %q: %w", s, err)
		}
		return f, nil
	case featureset.TypeBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid BOOL %q: %w", s, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("type %s cannot be read from a delimited file", t)
	}
}

// FormatValue форматирует значение, прочитанное из БД, для выходного файла
func FormatValue(v any, t featureset.ValueType, binaryAsText bool) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format(TimestampLayout)
	case []byte:
		if t == featureset.TypeBytes && !binaryAsText {
			return base64.StdEncoding.EncodeToString(x)
		}
		return string(x)
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		if t == featureset.TypeBool {
			return strconv.FormatBool(x != 0)
		}
		return strconv.FormatInt(x, 10)
	case float64:
		if t == featureset.TypeFloat {
			return strconv.FormatFloat(x, 'g', -1, 32)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}
