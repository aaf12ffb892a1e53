package arrowdyn

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/float16"
)

// CellKind identifies the variant carried by a Cell.
type CellKind uint8

const (
	KindNull CellKind = iota
	KindBool
	KindI8
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF16
	KindF32
	KindF64
	KindStr
	KindBin
	KindStruct
	KindList
	KindFixedSizeList
	KindMap
	KindUnion
)

var cellKindNames = [...]string{
	KindNull:          "Null",
	KindBool:          "Bool",
	KindI8:            "I8",
	KindI16:           "I16",
	KindI32:           "I32",
	KindI64:           "I64",
	KindU8:            "U8",
	KindU16:           "U16",
	KindU32:           "U32",
	KindU64:           "U64",
	KindF16:           "F16",
	KindF32:           "F32",
	KindF64:           "F64",
	KindStr:           "Str",
	KindBin:           "Bin",
	KindStruct:        "Struct",
	KindList:          "List",
	KindFixedSizeList: "FixedSizeList",
	KindMap:           "Map",
	KindUnion:         "Union",
}

func (k CellKind) String() string {
	if int(k) < len(cellKindNames) {
		return cellKindNames[k]
	}
	return fmt.Sprintf("CellKind(%d)", uint8(k))
}

// IsContainer reports whether the kind holds nested cells.
func (k CellKind) IsContainer() bool {
	switch k {
	case KindStruct, KindList, KindFixedSizeList, KindMap, KindUnion:
		return true
	}
	return false
}

// Cell is an owned runtime value shaped like an Arrow type. A nil Cell is the
// absent (null) value.
//
// Temporal columns take I32 (Date32, Time32) or I64 (Date64, Time64,
// Timestamp, Duration) cells holding the raw unit count. Dictionary columns
// take cells of their value type.
type Cell interface {
	Kind() CellKind
}

type (
	Bool bool
	I8   int8
	I16  int16
	I32  int32
	I64  int64
	U8   uint8
	U16  uint16
	U32  uint32
	U64  uint64
	F16  float16.Num
	F32  float32
	F64  float64
	Str  string
	Bin  []byte

	// Struct holds one optional cell per struct field, in field order.
	Struct []Cell
	// List holds the items of a List or LargeList slot.
	List []Cell
	// FixedSizeList holds exactly as many items as the declared list size.
	FixedSizeList []Cell
	// Map holds the entries of one map slot.
	Map []MapEntry
)

// MapEntry is one key/value pair. Key must be non-nil; a nil Value is an
// absent value.
type MapEntry struct {
	Key   Cell
	Value Cell
}

// Union is the active variant of a union slot. A nil Value encodes a null on
// that variant.
type Union struct {
	TypeCode arrow.UnionTypeCode
	Value    Cell
}

func (Bool) Kind() CellKind          { return KindBool }
func (I8) Kind() CellKind            { return KindI8 }
func (I16) Kind() CellKind           { return KindI16 }
func (I32) Kind() CellKind           { return KindI32 }
func (I64) Kind() CellKind           { return KindI64 }
func (U8) Kind() CellKind            { return KindU8 }
func (U16) Kind() CellKind           { return KindU16 }
func (U32) Kind() CellKind           { return KindU32 }
func (U64) Kind() CellKind           { return KindU64 }
func (F16) Kind() CellKind           { return KindF16 }
func (F32) Kind() CellKind           { return KindF32 }
func (F64) Kind() CellKind           { return KindF64 }
func (Str) Kind() CellKind           { return KindStr }
func (Bin) Kind() CellKind           { return KindBin }
func (Struct) Kind() CellKind        { return KindStruct }
func (List) Kind() CellKind          { return KindList }
func (FixedSizeList) Kind() CellKind { return KindFixedSizeList }
func (Map) Kind() CellKind           { return KindMap }
func (Union) Kind() CellKind         { return KindUnion }

// KindOf returns the kind of c, treating nil as KindNull.
func KindOf(c Cell) CellKind {
	if c == nil {
		return KindNull
	}
	return c.Kind()
}

// Row is one record's worth of cells, one per top-level column.
type Row []Cell
