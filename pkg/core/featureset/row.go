package featureset

import (
	"encoding/json"
	"fmt"
	"time"
)

// Value - типизированное значение поля FeatureRow.
// Нулевое значение Value (Type == TypeInvalid) означает NULL.
type Value struct {
	Type ValueType
	v    any
}

func BytesValue(b []byte) Value         { return Value{Type: TypeBytes, v: b} }
func StringValue(s string) Value        { return Value{Type: TypeString, v: s} }
func Int32Value(i int32) Value          { return Value{Type: TypeInt32, v: i} }
func Int64Value(i int64) Value          { return Value{Type: TypeInt64, v: i} }
func FloatValue(f float32) Value        { return Value{Type: TypeFloat, v: f} }
func DoubleValue(f float64) Value       { return Value{Type: TypeDouble, v: f} }
func BoolValue(b bool) Value            { return Value{Type: TypeBool, v: b} }
func BytesListValue(l [][]byte) Value   { return Value{Type: TypeBytesList, v: l} }
func StringListValue(l []string) Value  { return Value{Type: TypeStringList, v: l} }
func Int32ListValue(l []int32) Value    { return Value{Type: TypeInt32List, v: l} }
func Int64ListValue(l []int64) Value    { return Value{Type: TypeInt64List, v: l} }
func FloatListValue(l []float32) Value  { return Value{Type: TypeFloatList, v: l} }
func DoubleListValue(l []float64) Value { return Value{Type: TypeDoubleList, v: l} }
func BoolListValue(l []bool) Value      { return Value{Type: TypeBoolList, v: l} }

// IsNull - true если значение не задано
func (v Value) IsNull() bool {
	return v.Type == TypeInvalid || v.v == nil
}

// Interface возвращает значение как Go-тип ([]byte, string, int32, int64,
// float32, float64, bool или соответствующий срез)
func (v Value) Interface() any {
	return v.v
}

func (v Value) String() string {
	if v.IsNull() {
		return "NULL"
	}
	return fmt.Sprintf("%s(%v)", v.Type, v.v)
}

type valueJSON struct {
	Type  ValueType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON кодирует значение как {"type":"INT64","value":42}
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsNull() {
		return []byte("null"), nil
	}
	raw, err := json.Marshal(v.v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s value: %w", v.Type, err)
	}
	return json.Marshal(valueJSON{Type: v.Type, Value: raw})
}

// UnmarshalJSON декодирует значение согласно полю type
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var wire valueJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	decoded, err := decodeTyped(wire.Type, wire.Value)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func decodeTyped(t ValueType, raw []byte) (Value, error) {
	var target any
	switch t {
	case TypeBytes:
		target = new([]byte)
	case TypeString:
		target = new(string)
	case TypeInt32:
		target = new(int32)
	case TypeInt64:
		target = new(int64)
	case TypeFloat:
		target = new(float32)
	case TypeDouble:
		target = new(float64)
	case TypeBool:
		target = new(bool)
	case TypeBytesList:
		target = new([][]byte)
	case TypeStringList:
		target = new([]string)
	case TypeInt32List:
		target = new([]int32)
	case TypeInt64List:
		target = new([]int64)
	case TypeFloatList:
		target = new([]float32)
	case TypeDoubleList:
		target = new([]float64)
	case TypeBoolList:
		target = new([]bool)
	default:
		return Value{}, fmt.Errorf("unsupported value type: %s", t)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return Value{}, fmt.Errorf("failed to decode %s value: %w", t, err)
	}
	// разыменовываем указатель
	var val any
	switch p := target.(type) {
	case *[]byte:
		val = *p
	case *string:
		val = *p
	case *int32:
		val = *p
	case *int64:
		val = *p
	case *float32:
		val = *p
	case *float64:
		val = *p
	case *bool:
		val = *p
	case *[][]byte:
		val = *p
	case *[]string:
		val = *p
	case *[]int32:
		val = *p
	case *[]int64:
		val = *p
	case *[]float32:
		val = *p
	case *[]float64:
		val = *p
	case *[]bool:
		val = *p
	}
	return Value{Type: t, v: val}, nil
}

// Field - именованное значение в строке
type Field struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// FeatureRow - одна запись потока фич для набора FeatureSet ("project/name")
type FeatureRow struct {
	FeatureSet     string    `json:"feature_set"`
	EventTimestamp time.Time `json:"event_timestamp"`
	IngestionID    string    `json:"ingestion_id,omitempty"`
	Fields         []Field   `json:"fields"`
}

// Get возвращает значение поля по имени
func (r FeatureRow) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// DecodeRow разбирает JSON-представление FeatureRow
func DecodeRow(data []byte) (FeatureRow, error) {
	var row FeatureRow
	if err := json.Unmarshal(data, &row); err != nil {
		return FeatureRow{}, fmt.Errorf("failed to decode feature row: %w", err)
	}
	if row.FeatureSet == "" {
		return FeatureRow{}, fmt.Errorf("failed to decode feature row: feature_set is empty")
	}
	return row, nil
}
