package mssql

import (
	"fmt"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
)

var sqlTypes = map[featureset.ValueType]string{
	featureset.TypeBytes:      "VARBINARY(MAX)",
	featureset.TypeString:     "NVARCHAR(MAX)",
	featureset.TypeInt32:      "INT",
	featureset.TypeInt64:      "BIGINT",
	featureset.TypeFloat:      "REAL",
	featureset.TypeDouble:     "FLOAT",
	featureset.TypeBool:       "BIT",
	featureset.TypeBytesList:  "VARBINARY(MAX)",
	featureset.TypeStringList: "VARBINARY(MAX)",
	featureset.TypeInt32List:  "VARBINARY(MAX)",
	featureset.TypeInt64List:  "VARBINARY(MAX)",
	featureset.TypeFloatList:  "VARBINARY(MAX)",
	featureset.TypeDoubleList: "VARBINARY(MAX)",
	featureset.TypeBoolList:   "VARBINARY(MAX)",
}

// ToSQLType возвращает тип колонки MS SQL Server для абстрактного типа
func (d *Dialect) ToSQLType(t featureset.ValueType) (string, error) {
	sqlType, ok := sqlTypes[t]
	if !ok {
		return "", fmt.Errorf("mssql: %w: %s", base.ErrUnmappedType, t)
	}
	return sqlType, nil
}
