package arrowdyn

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ValidateRecord checks every column of rec against the nullability declared
// by its schema.
func ValidateRecord(rec arrow.Record, unionNulls UnionNulls) error {
	return ValidateNullability(rec.Schema(), rec.Columns(), unionNulls)
}

// ValidateNullability walks schema and columns depth-first and returns the
// first null found at a non-nullable position that is reachable through valid
// ancestors. unionNulls lists the rows where union nodes carry a union-level
// null on their null-carrying variant; it may be nil.
func ValidateNullability(schema *arrow.Schema, columns []arrow.Array, unionNulls UnionNulls) error {
	if len(columns) != schema.NumFields() {
		return &ArityError{Expected: schema.NumFields(), Got: len(columns)}
	}
	for i, f := range schema.Fields() {
		arr := columns[i]
		if !arrow.TypeEqual(arr.DataType(), f.Type) {
			return &TypeMismatchError{Path: f.Name, Expected: f.Type.String(), Actual: arr.DataType().String()}
		}
		v := &validator{col: i, nulls: unionNulls}
		loc := columnLocation(i, f.Name)
		if err := v.checkField(arr, f, loc, nil); err != nil {
			return err
		}
		if err := v.walk(arr, f, loc, nil); err != nil {
			return err
		}
	}
	return nil
}

type validator struct {
	col   int
	nulls UnionNulls
}

// rowMask marks the rows of an array that sit under valid ancestors. A nil
// mask selects every row.
type rowMask []bool

func (m rowMask) selected(i int) bool {
	return m == nil || m[i]
}

func (v *validator) violation(loc location, row int, msg string) error {
	return &NullabilityError{Column: v.col, Path: loc.name, Row: row, Message: msg}
}

// isNull treats union rows flagged as union-level nulls as null; unions have
// no validity bitmap of their own.
func (v *validator) isNull(arr arrow.Array, loc location, i int) bool {
	if shapeOf(arr.DataType()) == shapeUnion {
		return v.nulls.contains(loc.index, i)
	}
	return arr.IsNull(i)
}

// checkField reports the first selected null of a non-nullable field.
func (v *validator) checkField(arr arrow.Array, f arrow.Field, loc location, mask rowMask) error {
	if f.Nullable {
		return nil
	}
	if shapeOf(arr.DataType()) != shapeUnion && arr.NullN() == 0 {
		return nil
	}
	for i := 0; i < arr.Len(); i++ {
		if mask.selected(i) && v.isNull(arr, loc, i) {
			if shapeOf(arr.DataType()) == shapeUnion {
				return v.violation(loc, i, "union-level null in non-nullable field")
			}
			return v.violation(loc, i, "null in non-nullable field")
		}
	}
	return nil
}

// walk descends into the children of arr. Each child is checked against its
// own field under a mask derived from the parent's selected, valid rows.
func (v *validator) walk(arr arrow.Array, f arrow.Field, loc location, mask rowMask) error {
	switch shapeOf(f.Type) {
	case shapeStruct:
		st := arr.(*array.Struct)
		childMask := v.validRows(arr, loc, mask)
		fields := f.Type.(*arrow.StructType).Fields()
		for j, cf := range fields {
			child := st.Field(j)
			cloc := loc.field(j, cf.Name)
			if err := v.checkField(child, cf, cloc, childMask); err != nil {
				return err
			}
			if err := v.walk(child, cf, cloc, childMask); err != nil {
				return err
			}
		}
	case shapeList, shapeLargeList, shapeFixedSizeList:
		ll := arr.(array.ListLike)
		items := ll.ListValues()
		itemMask := v.expand(ll, loc, mask, items.Len())
		elem := f.Type.(arrow.ListLikeType).ElemField()
		cloc := loc.item()
		if err := v.checkField(items, elem, cloc, itemMask); err != nil {
			return err
		}
		return v.walk(items, elem, cloc, itemMask)
	case shapeMap:
		m := arr.(*array.Map)
		dt := f.Type.(*arrow.MapType)
		keys, items := m.Keys(), m.Items()
		entryMask := v.expand(m, loc, mask, keys.Len())
		kloc, iloc := loc.mapKeys(), loc.mapValues()
		for i := 0; i < keys.Len(); i++ {
			if entryMask.selected(i) && keys.IsNull(i) {
				return v.violation(kloc, i, "map key is null")
			}
		}
		if err := v.walk(keys, dt.KeyField(), kloc, entryMask); err != nil {
			return err
		}
		if err := v.checkField(items, dt.ItemField(), iloc, entryMask); err != nil {
			return err
		}
		return v.walk(items, dt.ItemField(), iloc, entryMask)
	case shapeUnion:
		return v.walkUnion(arr.(array.Union), f, loc, mask)
	}
	return nil
}

func (v *validator) walkUnion(u array.Union, f arrow.Field, loc location, mask rowMask) error {
	typ := f.Type.(arrow.UnionType)
	fields := typ.Fields()
	dense, _ := u.(*array.DenseUnion)

	childMasks := make([]rowMask, len(fields))
	for j := range fields {
		childMasks[j] = make(rowMask, u.Field(j).Len())
	}
	for i := 0; i < u.Len(); i++ {
		if !mask.selected(i) || v.nulls.contains(loc.index, i) {
			continue
		}
		j := u.ChildID(i)
		ci := i
		if dense != nil {
			ci = int(dense.ValueOffset(i))
		}
		child, cf := u.Field(j), fields[j]
		if !cf.Nullable && v.isNull(child, loc.field(j, cf.Name), ci) {
			return v.violation(loc.field(j, cf.Name), i, fmt.Sprintf("null in non-nullable variant (type code %d)", u.TypeCode(i)))
		}
		childMasks[j][ci] = true
	}
	for j, cf := range fields {
		if err := v.walk(u.Field(j), cf, loc.field(j, cf.Name), childMasks[j]); err != nil {
			return err
		}
	}
	return nil
}

// validRows intersects mask with the array's own validity.
func (v *validator) validRows(arr arrow.Array, loc location, mask rowMask) rowMask {
	if mask == nil && arr.NullN() == 0 {
		return nil
	}
	out := make(rowMask, arr.Len())
	for i := range out {
		out[i] = mask.selected(i) && !v.isNull(arr, loc, i)
	}
	return out
}

// expand maps each selected, valid parent slot onto its child range.
func (v *validator) expand(ll array.ListLike, loc location, mask rowMask, childLen int) rowMask {
	out := make(rowMask, childLen)
	for i := 0; i < ll.Len(); i++ {
		if !mask.selected(i) || v.isNull(ll, loc, i) {
			continue
		}
		start, end := ll.ValueOffsets(i)
		for k := start; k < end; k++ {
			out[k] = true
		}
	}
	return out
}
