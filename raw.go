package arrowdyn

import (
	"fmt"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
)

// RawCell is a lifetime-erased value. Strings and bytes are held as raw
// pointers into the backing buffers and containers keep unretained array
// references.
//
// SAFETY: a RawCell produced by UnsafeErase or UnsafeEraseRow is only valid
// while the record it was read from has not been released. A RawCell
// produced by OwnedRow.AsRaw is only valid while the OwnedRow is reachable.
// Use ToOwned to obtain a value that outlives either.
type RawCell struct {
	kind   CellKind
	scalar Cell
	ptr    unsafe.Pointer
	n      int
	view   *FieldView
}

// UnsafeErase erases the lifetime of v. A nil view yields a null RawCell.
func UnsafeErase(v *FieldView) (RawCell, error) {
	if v == nil {
		return RawCell{kind: KindNull}, nil
	}
	if s, err := v.Str(); err == nil {
		return rawString(s), nil
	}
	if b, err := v.Bin(); err == nil {
		return rawBytes(b), nil
	}
	switch shapeOf(v.arr.DataType()) {
	case shapeStruct:
		return RawCell{kind: KindStruct, view: v}, nil
	case shapeList, shapeLargeList:
		return RawCell{kind: KindList, view: v}, nil
	case shapeFixedSizeList:
		return RawCell{kind: KindFixedSizeList, view: v}, nil
	case shapeMap:
		return RawCell{kind: KindMap, view: v}, nil
	case shapeUnion:
		return RawCell{kind: KindUnion, view: v}, nil
	}
	c, err := v.ToOwned()
	if err != nil {
		return RawCell{}, err
	}
	return RawCell{kind: c.Kind(), scalar: c}, nil
}

func rawString(s string) RawCell {
	return RawCell{kind: KindStr, ptr: unsafe.Pointer(unsafe.StringData(s)), n: len(s)}
}

func rawBytes(b []byte) RawCell {
	return RawCell{kind: KindBin, ptr: unsafe.Pointer(unsafe.SliceData(b)), n: len(b)}
}

// Kind returns the kind of the value; KindNull for a null.
func (c RawCell) Kind() CellKind { return c.kind }

// IsNull reports whether the value is null.
func (c RawCell) IsNull() bool { return c.kind == KindNull }

// Scalar returns the copied value of a boolean or numeric cell.
func (c RawCell) Scalar() (Cell, error) {
	if c.scalar == nil {
		return nil, &TypeMismatchError{Path: "<raw>", Expected: "scalar", Actual: c.kind.String()}
	}
	return c.scalar, nil
}

// Str returns the string without copying.
func (c RawCell) Str() (string, error) {
	if c.kind != KindStr {
		return "", &TypeMismatchError{Path: "<raw>", Expected: KindStr.String(), Actual: c.kind.String()}
	}
	if c.n == 0 {
		return "", nil
	}
	return unsafe.String((*byte)(c.ptr), c.n), nil
}

// Bin returns the bytes without copying.
func (c RawCell) Bin() ([]byte, error) {
	if c.kind != KindBin {
		return nil, &TypeMismatchError{Path: "<raw>", Expected: KindBin.String(), Actual: c.kind.String()}
	}
	if c.ptr == nil {
		return nil, nil
	}
	return unsafe.Slice((*byte)(c.ptr), c.n), nil
}

func (c RawCell) container(kind CellKind) (*FieldView, error) {
	if c.kind != kind {
		return nil, &TypeMismatchError{Path: "<raw>", Expected: kind.String(), Actual: c.kind.String()}
	}
	return c.view, nil
}

// Struct returns the borrowed struct view of a struct cell.
func (c RawCell) Struct() (StructView, error) {
	v, err := c.container(KindStruct)
	if err != nil {
		return StructView{}, err
	}
	return v.Struct()
}

// List returns the borrowed view of a list cell.
func (c RawCell) List() (ListView, error) {
	v, err := c.container(KindList)
	if err != nil {
		return ListView{}, err
	}
	return v.List()
}

// FixedSizeList returns the borrowed view of a fixed-size list cell.
func (c RawCell) FixedSizeList() (FixedSizeListView, error) {
	v, err := c.container(KindFixedSizeList)
	if err != nil {
		return FixedSizeListView{}, err
	}
	return v.FixedSizeList()
}

// Map returns the borrowed view of a map cell.
func (c RawCell) Map() (MapView, error) {
	v, err := c.container(KindMap)
	if err != nil {
		return MapView{}, err
	}
	return v.Map()
}

// Union returns the borrowed view of a union cell.
func (c RawCell) Union() (UnionView, error) {
	v, err := c.container(KindUnion)
	if err != nil {
		return UnionView{}, err
	}
	return v.Union()
}

// ToOwned deep-copies the value.
func (c RawCell) ToOwned() (Cell, error) {
	switch c.kind {
	case KindNull:
		return nil, nil
	case KindStr:
		s, _ := c.Str()
		return Str(string([]byte(s))), nil
	case KindBin:
		b, _ := c.Bin()
		if b == nil {
			return Bin(nil), nil
		}
		return Bin(append([]byte{}, b...)), nil
	}
	if c.view != nil {
		return c.view.ToOwned()
	}
	return c.scalar, nil
}

// RawRow is a lifetime-erased row. See RawCell for its validity contract.
type RawRow struct {
	fields []arrow.Field
	cells  []RawCell
}

// NewRawRow pairs fields with cells of the same width.
func NewRawRow(fields []arrow.Field, cells []RawCell) (RawRow, error) {
	if len(fields) != len(cells) {
		return RawRow{}, &ArityError{Expected: len(fields), Got: len(cells)}
	}
	return RawRow{fields: fields, cells: cells}, nil
}

// UnsafeEraseRow erases the lifetime of every column of v. The record backing
// v must outlive the returned row.
func UnsafeEraseRow(v RowView) (RawRow, error) {
	cells := make([]RawCell, v.Len())
	for i := range cells {
		fv, err := v.Get(i)
		if err != nil {
			return RawRow{}, err
		}
		if cells[i], err = UnsafeErase(fv); err != nil {
			return RawRow{}, err
		}
	}
	return RawRow{fields: v.Fields(), cells: cells}, nil
}

// Len returns the number of cells.
func (r RawRow) Len() int { return len(r.cells) }

// Fields returns the fields of the row's cells.
func (r RawRow) Fields() []arrow.Field { return r.fields }

// Cell returns column i.
func (r RawRow) Cell(i int) (RawCell, error) {
	if i < 0 || i >= len(r.cells) {
		return RawCell{}, &OutOfBoundsError{Path: "<raw row>", Index: i, Bound: len(r.cells)}
	}
	return r.cells[i], nil
}

// ToOwned deep-copies every column.
func (r RawRow) ToOwned() (Row, error) {
	row := make(Row, len(r.cells))
	for i, c := range r.cells {
		var err error
		if row[i], err = c.ToOwned(); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// OwnedRow is a row of owned cells paired with its fields.
type OwnedRow struct {
	fields []arrow.Field
	cells  Row
}

// NewOwnedRow pairs fields with cells of the same width.
func NewOwnedRow(fields []arrow.Field, cells Row) (OwnedRow, error) {
	if len(fields) != len(cells) {
		return OwnedRow{}, &ArityError{Expected: len(fields), Got: len(cells)}
	}
	return OwnedRow{fields: fields, cells: cells}, nil
}

// OwnedRowFromRaw deep-copies a raw row.
func OwnedRowFromRaw(r RawRow) (OwnedRow, error) {
	cells, err := r.ToOwned()
	if err != nil {
		return OwnedRow{}, err
	}
	return OwnedRow{fields: r.fields, cells: cells}, nil
}

// Fields returns the fields of the row's cells.
func (r OwnedRow) Fields() []arrow.Field { return r.fields }

// Row returns the owned cells.
func (r OwnedRow) Row() Row { return r.cells }

// Len returns the number of cells.
func (r OwnedRow) Len() int { return len(r.cells) }

// AsRaw borrows the row as a RawRow of scalar components, as used for
// composite keys. Container-typed components are rejected.
func (r OwnedRow) AsRaw() (RawRow, error) {
	cells := make([]RawCell, len(r.cells))
	for i, c := range r.cells {
		switch v := c.(type) {
		case nil:
			cells[i] = RawCell{kind: KindNull}
		case Str:
			cells[i] = rawString(string(v))
		case Bin:
			cells[i] = rawBytes(v)
		case Struct, List, FixedSizeList, Map, Union:
			return RawRow{}, &UnsupportedShapeError{
				Path:   r.fields[i].Name,
				Reason: fmt.Sprintf("%s key component not supported", containerLabel(c.Kind())),
			}
		default:
			cells[i] = RawCell{kind: c.Kind(), scalar: c}
		}
	}
	return RawRow{fields: r.fields, cells: cells}, nil
}

func containerLabel(k CellKind) string {
	switch k {
	case KindStruct:
		return "struct"
	case KindList:
		return "list"
	case KindFixedSizeList:
		return "fixed-size list"
	case KindMap:
		return "map"
	default:
		return "union"
	}
}
