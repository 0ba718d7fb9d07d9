package sqlite

import (
	"fmt"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
)

// sqlTypes - соответствие абстрактных типов типам SQLite
var sqlTypes = map[featureset.ValueType]string{
	featureset.TypeBytes:      "BLOB",
	featureset.TypeString:     "TEXT",
	featureset.TypeInt32:      "INTEGER",
	featureset.TypeInt64:      "INTEGER",
	featureset.TypeFloat:      "FLOAT",
	featureset.TypeDouble:     "FLOAT",
	featureset.TypeBool:       "BOOLEAN",
	featureset.TypeBytesList:  "BLOB",
	featureset.TypeStringList: "BLOB",
	featureset.TypeInt32List:  "BLOB",
	featureset.TypeInt64List:  "BLOB",
	featureset.TypeFloatList:  "BLOB",
	featureset.TypeDoubleList: "BLOB",
	featureset.TypeBoolList:   "BLOB",
}

// ToSQLType возвращает тип колонки SQLite для абстрактного типа
func (d *Dialect) ToSQLType(t featureset.ValueType) (string, error) {
	sqlType, ok := sqlTypes[t]
	if !ok {
		return "", fmt.Errorf("sqlite: %w: %s", base.ErrUnmappedType, t)
	}
	return sqlType, nil
}
