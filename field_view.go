package arrowdyn

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/float16"
)

// FieldView borrows one non-null value of an array. Dictionary-encoded values
// are resolved to the dictionary entry. String and binary accessors return
// data aliasing the record's buffers.
type FieldView struct {
	arr   arrow.Array
	idx   int
	field arrow.Field
	path  string
	proj  FieldProjector
	col   int
}

// newFieldView returns nil for a null slot.
func newFieldView(arr arrow.Array, idx int, field arrow.Field, path string, proj FieldProjector, col int) (*FieldView, error) {
	if idx < 0 || idx >= arr.Len() {
		return nil, &OutOfBoundsError{Path: path, Index: idx, Bound: arr.Len()}
	}
	if arr.IsNull(idx) {
		return nil, nil
	}
	if d, ok := arr.(*array.Dictionary); ok {
		vi := d.GetValueIndex(idx)
		values := d.Dictionary()
		if values.IsNull(vi) {
			return nil, &NullabilityError{Column: col, Path: path, Row: idx, Message: "dictionary value is null"}
		}
		arr, idx = values, vi
		field.Type = values.DataType()
	}
	return &FieldView{arr: arr, idx: idx, field: field, path: path, proj: proj, col: col}, nil
}

// Type returns the (possibly projected) type of the value. Dictionary
// columns report their value type.
func (v *FieldView) Type() arrow.DataType { return v.field.Type }

// Field returns the (possibly projected) field of the value.
func (v *FieldView) Field() arrow.Field { return v.field }

// Path returns the rendered path of the value.
func (v *FieldView) Path() string { return v.path }

func (v *FieldView) mismatch(expected string) error {
	return &TypeMismatchError{Path: v.path, Expected: expected, Actual: v.arr.DataType().String()}
}

// Bool reads a Boolean value.
func (v *FieldView) Bool() (bool, error) {
	if a, ok := v.arr.(*array.Boolean); ok {
		return a.Value(v.idx), nil
	}
	return false, v.mismatch("bool")
}

// Int8 reads an Int8 value.
func (v *FieldView) Int8() (int8, error) {
	if a, ok := v.arr.(*array.Int8); ok {
		return a.Value(v.idx), nil
	}
	return 0, v.mismatch("int8")
}

// Int16 reads an Int16 value.
func (v *FieldView) Int16() (int16, error) {
	if a, ok := v.arr.(*array.Int16); ok {
		return a.Value(v.idx), nil
	}
	return 0, v.mismatch("int16")
}

// Int32 reads Int32 values and the raw unit counts of Date32 and Time32.
func (v *FieldView) Int32() (int32, error) {
	switch a := v.arr.(type) {
	case *array.Int32:
		return a.Value(v.idx), nil
	case *array.Date32:
		return int32(a.Value(v.idx)), nil
	case *array.Time32:
		return int32(a.Value(v.idx)), nil
	}
	return 0, v.mismatch("int32")
}

// Int64 reads Int64 values and the raw unit counts of Date64, Time64,
// Timestamp and Duration.
func (v *FieldView) Int64() (int64, error) {
	switch a := v.arr.(type) {
	case *array.Int64:
		return a.Value(v.idx), nil
	case *array.Date64:
		return int64(a.Value(v.idx)), nil
	case *array.Time64:
		return int64(a.Value(v.idx)), nil
	case *array.Timestamp:
		return int64(a.Value(v.idx)), nil
	case *array.Duration:
		return int64(a.Value(v.idx)), nil
	}
	return 0, v.mismatch("int64")
}

// Uint8 reads a Uint8 value.
func (v *FieldView) Uint8() (uint8, error) {
	if a, ok := v.arr.(*array.Uint8); ok {
		return a.Value(v.idx), nil
	}
	return 0, v.mismatch("uint8")
}

// Uint16 reads a Uint16 value.
func (v *FieldView) Uint16() (uint16, error) {
	if a, ok := v.arr.(*array.Uint16); ok {
		return a.Value(v.idx), nil
	}
	return 0, v.mismatch("uint16")
}

// Uint32 reads a Uint32 value.
func (v *FieldView) Uint32() (uint32, error) {
	if a, ok := v.arr.(*array.Uint32); ok {
		return a.Value(v.idx), nil
	}
	return 0, v.mismatch("uint32")
}

// Uint64 reads a Uint64 value.
func (v *FieldView) Uint64() (uint64, error) {
	if a, ok := v.arr.(*array.Uint64); ok {
		return a.Value(v.idx), nil
	}
	return 0, v.mismatch("uint64")
}

// Float16 reads a Float16 value.
func (v *FieldView) Float16() (float16.Num, error) {
	if a, ok := v.arr.(*array.Float16); ok {
		return a.Value(v.idx), nil
	}
	return float16.Num{}, v.mismatch("float16")
}

// Float32 reads a Float32 value.
func (v *FieldView) Float32() (float32, error) {
	if a, ok := v.arr.(*array.Float32); ok {
		return a.Value(v.idx), nil
	}
	return 0, v.mismatch("float32")
}

// Float64 reads a Float64 value.
func (v *FieldView) Float64() (float64, error) {
	if a, ok := v.arr.(*array.Float64); ok {
		return a.Value(v.idx), nil
	}
	return 0, v.mismatch("float64")
}

// Str returns a string aliasing the record's data buffer.
func (v *FieldView) Str() (string, error) {
	switch a := v.arr.(type) {
	case *array.String:
		return a.Value(v.idx), nil
	case *array.LargeString:
		return a.Value(v.idx), nil
	}
	return "", v.mismatch("utf8")
}

// Bin returns bytes aliasing the record's data buffer.
func (v *FieldView) Bin() ([]byte, error) {
	switch a := v.arr.(type) {
	case *array.Binary:
		return a.Value(v.idx), nil
	case *array.LargeBinary:
		return a.Value(v.idx), nil
	case *array.FixedSizeBinary:
		return a.Value(v.idx), nil
	}
	return nil, v.mismatch("binary")
}

// Struct returns a view of the struct's (possibly projected) fields.
func (v *FieldView) Struct() (StructView, error) {
	a, ok := v.arr.(*array.Struct)
	if !ok {
		return StructView{}, v.mismatch("struct")
	}
	st, ok := v.field.Type.(*arrow.StructType)
	if !ok {
		return StructView{}, v.mismatch("struct")
	}
	return StructView{arr: a, idx: v.idx, fields: st.Fields(), path: v.path, proj: v.proj, col: v.col}, nil
}

// List returns a view of a List or LargeList slot.
func (v *FieldView) List() (ListView, error) {
	switch v.arr.(type) {
	case *array.List, *array.LargeList:
		return ListView{v.span()}, nil
	}
	return ListView{}, v.mismatch("list")
}

// FixedSizeList returns a view of a FixedSizeList slot.
func (v *FieldView) FixedSizeList() (FixedSizeListView, error) {
	if _, ok := v.arr.(*array.FixedSizeList); ok {
		return FixedSizeListView{v.span()}, nil
	}
	return FixedSizeListView{}, v.mismatch("fixed_size_list")
}

func (v *FieldView) span() listSpan {
	ll := v.arr.(array.ListLike)
	start, end := ll.ValueOffsets(v.idx)
	s := listSpan{
		values: ll.ListValues(),
		start:  int(start),
		end:    int(end),
		elem:   v.field.Type.(arrow.ListLikeType).ElemField(),
		path:   v.path,
		col:    v.col,
	}
	if v.proj.Item != nil {
		s.proj = *v.proj.Item
	}
	return s
}

// Map returns a view of a map slot's entries.
func (v *FieldView) Map() (MapView, error) {
	a, ok := v.arr.(*array.Map)
	if !ok {
		return MapView{}, v.mismatch("map")
	}
	mt := v.field.Type.(*arrow.MapType)
	start, end := a.ValueOffsets(v.idx)
	m := MapView{
		keys:      a.Keys(),
		items:     a.Items(),
		start:     int(start),
		end:       int(end),
		keyField:  mt.KeyField(),
		itemField: mt.ItemField(),
		path:      v.path,
		col:       v.col,
	}
	if v.proj.Kind == ProjectMap {
		m.keyProj, m.itemProj = v.proj.Children[0].Projector, v.proj.Children[1].Projector
	}
	return m, nil
}

// Union returns a view of the active variant.
func (v *FieldView) Union() (UnionView, error) {
	a, ok := v.arr.(array.Union)
	if !ok {
		return UnionView{}, v.mismatch("union")
	}
	return UnionView{arr: a, idx: v.idx, fields: v.field.Type.(arrow.UnionType).Fields(), path: v.path, col: v.col}, nil
}

func (v *FieldView) String() string {
	return fmt.Sprintf("%s: %s", v.path, v.arr.ValueStr(v.idx))
}
