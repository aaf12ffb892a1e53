package arrowdyn

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

const (
	// PostgreSQL type OIDs for supported data types
	TypeOIDBool        = 16
	TypeOIDBytea       = 17
	TypeOIDChar        = 18
	TypeOIDName        = 19
	TypeOIDInt8        = 20
	TypeOIDInt2        = 21
	TypeOIDInt4        = 23
	TypeOIDText        = 25
	TypeOIDJSON        = 114
	TypeOIDFloat4      = 700
	TypeOIDFloat8      = 701
	TypeOIDBpchar      = 1042
	TypeOIDVarchar     = 1043
	TypeOIDDate        = 1082
	TypeOIDTime        = 1083
	TypeOIDTimestamp   = 1114
	TypeOIDTimestamptz = 1184
	TypeOIDInterval    = 1186
	TypeOIDUUID        = 2950
	TypeOIDJSONB       = 3802

	// One-dimensional array OIDs
	TypeOIDBoolArray        = 1000
	TypeOIDByteaArray       = 1001
	TypeOIDInt2Array        = 1005
	TypeOIDInt4Array        = 1007
	TypeOIDTextArray        = 1009
	TypeOIDVarcharArray     = 1015
	TypeOIDInt8Array        = 1016
	TypeOIDFloat4Array      = 1021
	TypeOIDFloat8Array      = 1022
	TypeOIDDateArray        = 1182
	TypeOIDTimestampArray   = 1115
	TypeOIDTimestamptzArray = 1185
)

// IntervalType holds PostgreSQL intervals losslessly as their three
// components.
var IntervalType = arrow.StructOf(
	arrow.Field{Name: "months", Type: arrow.PrimitiveTypes.Int32},
	arrow.Field{Name: "days", Type: arrow.PrimitiveTypes.Int32},
	arrow.Field{Name: "microseconds", Type: arrow.PrimitiveTypes.Int64},
)

var arrayElemOIDs = map[uint32]uint32{
	TypeOIDBoolArray:        TypeOIDBool,
	TypeOIDByteaArray:       TypeOIDBytea,
	TypeOIDInt2Array:        TypeOIDInt2,
	TypeOIDInt4Array:        TypeOIDInt4,
	TypeOIDTextArray:        TypeOIDText,
	TypeOIDVarcharArray:     TypeOIDVarchar,
	TypeOIDInt8Array:        TypeOIDInt8,
	TypeOIDFloat4Array:      TypeOIDFloat4,
	TypeOIDFloat8Array:      TypeOIDFloat8,
	TypeOIDDateArray:        TypeOIDDate,
	TypeOIDTimestampArray:   TypeOIDTimestamp,
	TypeOIDTimestamptzArray: TypeOIDTimestamptz,
}

// ColumnInfo represents PostgreSQL column metadata for Arrow schema generation
type ColumnInfo struct {
	Name string
	OID  uint32
}

// CreateSchema creates an Arrow schema from PostgreSQL column metadata.
// One-dimensional arrays become lists of nullable elements.
func CreateSchema(columns []ColumnInfo) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(columns))

	for i, col := range columns {
		arrowType, err := oidToArrowType(col.OID)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}

		fields[i] = arrow.Field{
			Name:     col.Name,
			Type:     arrowType,
			Nullable: true, // PostgreSQL columns are nullable by default
		}
	}

	return arrow.NewSchema(fields, nil), nil
}

// oidToArrowType maps PostgreSQL OIDs directly to Arrow types
func oidToArrowType(oid uint32) (arrow.DataType, error) {
	if elem, ok := arrayElemOIDs[oid]; ok {
		elemType, err := oidToArrowType(elem)
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elemType), nil
	}

	switch oid {
	case TypeOIDBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case TypeOIDBytea:
		return arrow.BinaryTypes.Binary, nil
	case TypeOIDInt2:
		return arrow.PrimitiveTypes.Int16, nil
	case TypeOIDInt4:
		return arrow.PrimitiveTypes.Int32, nil
	case TypeOIDInt8:
		return arrow.PrimitiveTypes.Int64, nil
	case TypeOIDFloat4:
		return arrow.PrimitiveTypes.Float32, nil
	case TypeOIDFloat8:
		return arrow.PrimitiveTypes.Float64, nil
	case TypeOIDText, TypeOIDVarchar, TypeOIDBpchar, TypeOIDName, TypeOIDChar, TypeOIDJSON, TypeOIDJSONB:
		return arrow.BinaryTypes.String, nil
	case TypeOIDUUID:
		return &arrow.FixedSizeBinaryType{ByteWidth: 16}, nil
	case TypeOIDDate:
		return arrow.PrimitiveTypes.Date32, nil
	case TypeOIDTime:
		return arrow.FixedWidthTypes.Time64us, nil
	case TypeOIDTimestamp:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: ""}, nil
	case TypeOIDTimestamptz:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, nil
	case TypeOIDInterval:
		return IntervalType, nil
	default:
		return nil, fmt.Errorf("unsupported PostgreSQL type OID: %d", oid)
	}
}
