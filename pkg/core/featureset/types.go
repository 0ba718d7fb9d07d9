package featureset

import (
	"fmt"
	"strings"
)

// ValueType - абстрактный тип значения фичи или сущности
type ValueType int

const (
	TypeInvalid ValueType = iota
	TypeBytes
	TypeString
	TypeInt32
	TypeInt64
	TypeFloat
	TypeDouble
	TypeBool
	TypeBytesList
	TypeStringList
	TypeInt32List
	TypeInt64List
	TypeFloatList
	TypeDoubleList
	TypeBoolList
)

var typeNames = map[ValueType]string{
	TypeBytes:      "BYTES",
	TypeString:     "STRING",
	TypeInt32:      "INT32",
	TypeInt64:      "INT64",
	TypeFloat:      "FLOAT",
	TypeDouble:     "DOUBLE",
	TypeBool:       "BOOL",
	TypeBytesList:  "BYTES_LIST",
	TypeStringList: "STRING_LIST",
	TypeInt32List:  "INT32_LIST",
	TypeInt64List:  "INT64_LIST",
	TypeFloatList:  "FLOAT_LIST",
	TypeDoubleList: "DOUBLE_LIST",
	TypeBoolList:   "BOOL_LIST",
}

// AllTypes возвращает все поддерживаемые типы в порядке объявления
func AllTypes() []ValueType {
	types := make([]ValueType, 0, len(typeNames))
	for t := TypeBytes; t <= TypeBoolList; t++ {
		types = append(types, t)
	}
	return types
}

func (t ValueType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// IsList - true для списковых типов
func (t ValueType) IsList() bool {
	return t >= TypeBytesList && t <= TypeBoolList
}

// Elem возвращает тип элемента списка (для скалярного типа - сам тип)
func (t ValueType) Elem() ValueType {
	if t.IsList() {
		return t - (TypeBytesList - TypeBytes)
	}
	return t
}

// ParseValueType разбирает имя типа: "INT64", "int64", "string_list"
func ParseValueType(s string) (ValueType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("unknown value type: %q", s)
}

// MarshalText реализует encoding.TextMarshaler (используется в JSON и YAML)
func (t ValueType) MarshalText() ([]byte, error) {
	name, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown value type: %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler
func (t *ValueType) UnmarshalText(text []byte) error {
	parsed, err := ParseValueType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
