package arrowdyn

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// StructView borrows one struct slot.
type StructView struct {
	arr    *array.Struct
	idx    int
	fields []arrow.Field
	path   string
	proj   FieldProjector
	col    int
}

// Len returns the number of visible fields.
func (s StructView) Len() int { return len(s.fields) }

// Field returns the visible field i.
func (s StructView) Field(i int) arrow.Field { return s.fields[i] }

// Get returns a view of field i, or nil when it is null.
func (s StructView) Get(i int) (*FieldView, error) {
	if i < 0 || i >= len(s.fields) {
		return nil, &OutOfBoundsError{Path: s.path, Index: i, Bound: len(s.fields)}
	}
	src, proj := i, FieldProjector{}
	if s.proj.Kind == ProjectStruct {
		src, proj = s.proj.Children[i].Source, s.proj.Children[i].Projector
	}
	f := s.fields[i]
	return newFieldView(s.arr.Field(src), s.idx, f, s.path+"."+f.Name, proj, s.col)
}

// GetByName returns a view of the first field named name.
func (s StructView) GetByName(name string) (*FieldView, error) {
	for i, f := range s.fields {
		if f.Name == name {
			return s.Get(i)
		}
	}
	return nil, &ProjectionError{Path: s.path + "." + name, Reason: "no such field"}
}

// listSpan is the item range of one list-like slot.
type listSpan struct {
	values     arrow.Array
	start, end int
	elem       arrow.Field
	proj       FieldProjector
	path       string
	col        int
}

// Len returns the number of items.
func (s listSpan) Len() int { return s.end - s.start }

// Get returns a view of item i, or nil when it is null.
func (s listSpan) Get(i int) (*FieldView, error) {
	if i < 0 || i >= s.Len() {
		return nil, &OutOfBoundsError{Path: s.path, Index: i, Bound: s.Len()}
	}
	return newFieldView(s.values, s.start+i, s.elem, fmt.Sprintf("%s[%d]", s.path, i), s.proj, s.col)
}

// ListView borrows one List or LargeList slot.
type ListView struct{ listSpan }

// FixedSizeListView borrows one FixedSizeList slot.
type FixedSizeListView struct{ listSpan }

// MapView borrows the entries of one map slot.
type MapView struct {
	keys, items         arrow.Array
	start, end          int
	keyField, itemField arrow.Field
	keyProj, itemProj   FieldProjector
	path                string
	col                 int
}

// Len returns the number of entries.
func (m MapView) Len() int { return m.end - m.start }

// Get returns entry i. The value is nil when absent; a null key is an error.
func (m MapView) Get(i int) (key, value *FieldView, err error) {
	if i < 0 || i >= m.Len() {
		return nil, nil, &OutOfBoundsError{Path: m.path, Index: i, Bound: m.Len()}
	}
	entry := fmt.Sprintf("%s[%d]", m.path, i)
	key, err = newFieldView(m.keys, m.start+i, m.keyField, entry+".<key>", m.keyProj, m.col)
	if err != nil {
		return nil, nil, err
	}
	if key == nil {
		return nil, nil, &NullabilityError{Column: m.col, Path: entry + ".<key>", Row: m.start + i, Message: "map key is null"}
	}
	value, err = newFieldView(m.items, m.start+i, m.itemField, entry+".<value>", m.itemProj, m.col)
	if err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

// UnionView borrows one union slot.
type UnionView struct {
	arr    array.Union
	idx    int
	fields []arrow.Field
	path   string
	col    int
}

// TypeCode returns the type code of the active variant.
func (u UnionView) TypeCode() arrow.UnionTypeCode { return u.arr.TypeCode(u.idx) }

// VariantName returns the field name of the active variant, or "" when the
// type code names no variant.
func (u UnionView) VariantName() string {
	child, err := u.variant()
	if err != nil {
		return ""
	}
	return u.fields[child].Name
}

// variant returns the child index of the active variant.
func (u UnionView) variant() (int, error) {
	child := u.arr.ChildID(u.idx)
	if child < 0 || child >= len(u.fields) {
		return 0, &OutOfBoundsError{Path: u.path, Index: child, Bound: len(u.fields)}
	}
	return child, nil
}

// Value returns a view of the active variant's value, or nil when it is null.
func (u UnionView) Value() (*FieldView, error) {
	child, err := u.variant()
	if err != nil {
		return nil, err
	}
	ci := u.idx
	if d, ok := u.arr.(*array.DenseUnion); ok {
		ci = int(d.ValueOffset(u.idx))
	}
	f := u.fields[child]
	path := fmt.Sprintf("%s.%s#%d", u.path, f.Name, u.TypeCode())
	return newFieldView(u.arr.Field(child), ci, f, path, FieldProjector{}, u.col)
}
