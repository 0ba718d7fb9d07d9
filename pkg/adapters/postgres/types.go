package postgres

import (
	"fmt"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
)

// sqlTypes - соответствие абстрактных типов типам PostgreSQL.
// BYTES и списки хранятся в TEXT (байты в base64, списки сериализованы).
var sqlTypes = map[featureset.ValueType]string{
	featureset.TypeBytes:      "TEXT",
	featureset.TypeString:     "TEXT",
	featureset.TypeInt32:      "INTEGER",
	featureset.TypeInt64:      "BIGINT",
	featureset.TypeFloat:      "FLOAT",
	featureset.TypeDouble:     "DOUBLE PRECISION",
	featureset.TypeBool:       "BOOLEAN",
	featureset.TypeBytesList:  "TEXT",
	featureset.TypeStringList: "TEXT",
	featureset.TypeInt32List:  "TEXT",
	featureset.TypeInt64List:  "TEXT",
	featureset.TypeFloatList:  "TEXT",
	featureset.TypeDoubleList: "TEXT",
	featureset.TypeBoolList:   "TEXT",
}

// ToSQLType возвращает тип колонки PostgreSQL для абстрактного типа
func (d *Dialect) ToSQLType(t featureset.ValueType) (string, error) {
	sqlType, ok := sqlTypes[t]
	if !ok {
		return "", fmt.Errorf("postgres: %w: %s", base.ErrUnmappedType, t)
	}
	return sqlType, nil
}
