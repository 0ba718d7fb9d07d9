package featureset

import (
	"encoding/json"
	"fmt"
)

// EncodeList сериализует списковое значение в непрозрачное представление
// для хранения в одной колонке (JSON-массив, элементы BYTES в base64).
func EncodeList(v Value) ([]byte, error) {
	if !v.Type.IsList() {
		return nil, fmt.Errorf("value of type %s is not a list", v.Type)
	}
	data, err := json.Marshal(v.v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", v.Type, err)
	}
	return data, nil
}

// DecodeList восстанавливает списковое значение из представления EncodeList
func DecodeList(t ValueType, data []byte) (Value, error) {
	if !t.IsList() {
		return Value{}, fmt.Errorf("value type %s is not a list", t)
	}
	return decodeTyped(t, data)
}

// CheckType проверяет, что Go-значение соответствует объявленному типу
func (v Value) CheckType(expected ValueType) error {
	if v.IsNull() {
		return nil
	}
	if v.Type != expected {
		return fmt.Errorf("expected %s, got %s", expected, v.Type)
	}
	return nil
}
