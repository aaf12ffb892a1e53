package arrowdyn

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/array"
)

// ToOwned deep-copies the value into a cell. A nil view yields a nil cell.
func (v *FieldView) ToOwned() (Cell, error) {
	if v == nil {
		return nil, nil
	}
	switch a := v.arr.(type) {
	case *array.Boolean:
		return Bool(a.Value(v.idx)), nil
	case *array.Int8:
		return I8(a.Value(v.idx)), nil
	case *array.Int16:
		return I16(a.Value(v.idx)), nil
	case *array.Int32, *array.Date32, *array.Time32:
		n, err := v.Int32()
		return I32(n), err
	case *array.Int64, *array.Date64, *array.Time64, *array.Timestamp, *array.Duration:
		n, err := v.Int64()
		return I64(n), err
	case *array.Uint8:
		return U8(a.Value(v.idx)), nil
	case *array.Uint16:
		return U16(a.Value(v.idx)), nil
	case *array.Uint32:
		return U32(a.Value(v.idx)), nil
	case *array.Uint64:
		return U64(a.Value(v.idx)), nil
	case *array.Float16:
		return F16(a.Value(v.idx)), nil
	case *array.Float32:
		return F32(a.Value(v.idx)), nil
	case *array.Float64:
		return F64(a.Value(v.idx)), nil
	case *array.String, *array.LargeString:
		s, err := v.Str()
		return Str(strings.Clone(s)), err
	case *array.Binary, *array.LargeBinary, *array.FixedSizeBinary:
		b, err := v.Bin()
		return Bin(bytes.Clone(b)), err
	case *array.Struct:
		sv, err := v.Struct()
		if err != nil {
			return nil, err
		}
		return sv.ToOwned()
	case *array.List, *array.LargeList:
		lv, err := v.List()
		if err != nil {
			return nil, err
		}
		items, err := lv.ownedItems()
		return List(items), err
	case *array.FixedSizeList:
		lv, err := v.FixedSizeList()
		if err != nil {
			return nil, err
		}
		items, err := lv.ownedItems()
		return FixedSizeList(items), err
	case *array.Map:
		mv, err := v.Map()
		if err != nil {
			return nil, err
		}
		return mv.ToOwned()
	case array.Union:
		uv, err := v.Union()
		if err != nil {
			return nil, err
		}
		return uv.ToOwned()
	}
	return nil, &UnsupportedShapeError{Path: v.path, Reason: fmt.Sprintf("no cell representation for %s", v.arr.DataType())}
}

// ToOwned deep-copies the visible fields.
func (s StructView) ToOwned() (Struct, error) {
	out := make(Struct, s.Len())
	for i := range out {
		fv, err := s.Get(i)
		if err != nil {
			return nil, err
		}
		if out[i], err = fv.ToOwned(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s listSpan) ownedItems() ([]Cell, error) {
	out := make([]Cell, s.Len())
	for i := range out {
		fv, err := s.Get(i)
		if err != nil {
			return nil, err
		}
		if out[i], err = fv.ToOwned(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ToOwned deep-copies the entries.
func (m MapView) ToOwned() (Map, error) {
	out := make(Map, m.Len())
	for i := range out {
		k, v, err := m.Get(i)
		if err != nil {
			return nil, err
		}
		if out[i].Key, err = k.ToOwned(); err != nil {
			return nil, err
		}
		if out[i].Value, err = v.ToOwned(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ToOwned deep-copies the active variant.
func (u UnionView) ToOwned() (Union, error) {
	fv, err := u.Value()
	if err != nil {
		return Union{}, err
	}
	val, err := fv.ToOwned()
	if err != nil {
		return Union{}, err
	}
	return Union{TypeCode: u.TypeCode(), Value: val}, nil
}
