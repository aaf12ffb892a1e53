package arrowdyn

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ErrAbsentMapKey is wrapped by the error returned when a map entry has no key.
var ErrAbsentMapKey = errors.New("map entry key is absent")

// ErrBuilderFinished is wrapped by errors from builders used after Finish.
var ErrBuilderFinished = errors.New("builder already finished")

// BuilderOption configures column and batch builders.
type BuilderOption func(*builderConfig)

type builderConfig struct {
	unionNulls map[string]arrow.UnionTypeCode
	capacity   int
}

// UnionNullVariant names the variant that carries union-level nulls for the
// union node at path. It overrides UnionNullVariantKey field metadata.
func UnionNullVariant(path ProjectionPath, code arrow.UnionTypeCode) BuilderOption {
	return func(c *builderConfig) {
		if c.unionNulls == nil {
			c.unionNulls = make(map[string]arrow.UnionTypeCode)
		}
		c.unionNulls[path.String()] = code
	}
}

// WithCapacity reserves room for n rows in every top-level builder.
func WithCapacity(n int) BuilderOption {
	return func(c *builderConfig) {
		c.capacity = n
	}
}

func newBuilderConfig(opts []BuilderOption) *builderConfig {
	cfg := &builderConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// node is one level of a builder tree. Every node wraps the arrow-go builder
// for its own level; children are owned by position.
type node interface {
	// check validates c against the node without mutating anything.
	check(c Cell) error
	// checkNull reports whether a null can be appended at this node.
	checkNull() error
	appendCell(c Cell) error
	appendNull() error
	// pad appends a placeholder slot under an invalid parent.
	pad()
	len() int
	// verify checks child length invariants before finishing.
	verify() error
	collectUnionNulls(acc UnionNulls)
}

// ColumnBuilder accumulates cells for one top-level field.
//
// IMPORTANT: ColumnBuilder instances are NOT thread-safe. The underlying
// arrow-go builders keep mutable state without synchronization; each instance
// must be owned by a single goroutine.
type ColumnBuilder struct {
	field    arrow.Field
	ab       array.Builder
	root     node
	finished bool
	// relaxed is set when ab was built with nullable map items and the
	// finished data must be retyped to field.Type.
	relaxed bool
}

// NewColumnBuilder creates a builder tree mirroring field.Type.
//
// Types the engine cannot append cells to (decimals, intervals, view and
// run-end-encoded types, extensions) are served by a null-only builder so row
// counts stay aligned. Each subtree arrow-go cannot build at all becomes Null
// in place, leaving its siblings and ancestors intact; Field reports the
// effective field.
func NewColumnBuilder(mem memory.Allocator, field arrow.Field, opts ...BuilderOption) (*ColumnBuilder, error) {
	return newColumnBuilder(mem, 0, field, newBuilderConfig(opts))
}

func newColumnBuilder(mem memory.Allocator, col int, field arrow.Field, cfg *builderConfig) (*ColumnBuilder, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	field.Type = rewriteType(field.Type, func(dt arrow.DataType) arrow.DataType {
		return buildableLeaf(mem, dt)
	}, false)
	// Map items are accumulated as nullable so a null under a required item
	// surfaces from validation instead of a panic in arrow-go.
	built := rewriteType(field.Type, func(dt arrow.DataType) arrow.DataType { return dt }, true)

	ab, err := newArrowBuilder(mem, built)
	if err != nil {
		field.Type, built = arrow.Null, arrow.Null
		ab = array.NewNullBuilder(mem)
	}

	root, err := newNode(ab, field, columnLocation(col, field.Name), cfg)
	if err != nil {
		ab.Release()
		return nil, err
	}
	if cfg.capacity > 0 {
		ab.Reserve(cfg.capacity)
	}

	return &ColumnBuilder{field: field, ab: ab, root: root, relaxed: built != field.Type}, nil
}

// newArrowBuilder wraps array.NewBuilder, which panics on unsupported types.
func newArrowBuilder(mem memory.Allocator, dt arrow.DataType) (b array.Builder, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("no arrow builder for %s: %v", dt, r)
		}
	}()
	return array.NewBuilder(mem, dt), nil
}

// buildableLeaf returns dt, or arrow.Null when arrow-go has no builder for it.
func buildableLeaf(mem memory.Allocator, dt arrow.DataType) arrow.DataType {
	b, err := newArrowBuilder(mem, dt)
	if err != nil {
		return arrow.Null
	}
	b.Release()
	return dt
}

// rewriteType applies leaf to every non-nested type under dt and rebuilds
// only the nested types whose children changed. With nullableItems, map items
// are made nullable as well. Field names, nullability and metadata are kept.
func rewriteType(dt arrow.DataType, leaf func(arrow.DataType) arrow.DataType, nullableItems bool) arrow.DataType {
	switch t := dt.(type) {
	case *arrow.StructType:
		if fields, changed := rewriteFields(t.Fields(), leaf, nullableItems); changed {
			return arrow.StructOf(fields...)
		}
	case *arrow.MapType:
		kv, changed := rewriteFields([]arrow.Field{t.KeyField(), t.ItemField()}, leaf, nullableItems)
		if nullableItems && !kv[1].Nullable {
			kv[1].Nullable, changed = true, true
		}
		if changed {
			return reducedMapOf(t, kv[0], kv[1])
		}
	case *arrow.ListType:
		if elem, changed := rewriteFields([]arrow.Field{t.ElemField()}, leaf, nullableItems); changed {
			return arrow.ListOfField(elem[0])
		}
	case *arrow.LargeListType:
		if elem, changed := rewriteFields([]arrow.Field{t.ElemField()}, leaf, nullableItems); changed {
			return arrow.LargeListOfField(elem[0])
		}
	case *arrow.FixedSizeListType:
		if elem, changed := rewriteFields([]arrow.Field{t.ElemField()}, leaf, nullableItems); changed {
			return arrow.FixedSizeListOfField(t.Len(), elem[0])
		}
	case *arrow.DenseUnionType:
		if fields, changed := rewriteFields(t.Fields(), leaf, nullableItems); changed {
			return arrow.DenseUnionOf(fields, t.TypeCodes())
		}
	case *arrow.SparseUnionType:
		if fields, changed := rewriteFields(t.Fields(), leaf, nullableItems); changed {
			return arrow.SparseUnionOf(fields, t.TypeCodes())
		}
	default:
		return leaf(dt)
	}
	return dt
}

func rewriteFields(fields []arrow.Field, leaf func(arrow.DataType) arrow.DataType, nullableItems bool) ([]arrow.Field, bool) {
	out := make([]arrow.Field, len(fields))
	changed := false
	for i, f := range fields {
		out[i] = f
		out[i].Type = rewriteType(f.Type, leaf, nullableItems)
		if out[i].Type != f.Type {
			changed = true
		}
	}
	return out, changed
}

// retypeData rebuilds data under dt, which differs from the data's own type
// only in field nullability. Buffers and dictionaries are shared.
func retypeData(data arrow.ArrayData, dt arrow.DataType) arrow.ArrayData {
	if arrow.TypeEqual(data.DataType(), dt) {
		data.Retain()
		return data
	}
	fields := childFields(dt)
	children := make([]arrow.ArrayData, len(data.Children()))
	for i, child := range data.Children() {
		children[i] = retypeData(child, fields[i].Type)
	}
	out := array.NewData(dt, data.Len(), data.Buffers(), children, data.NullN(), data.Offset())
	for _, child := range children {
		child.Release()
	}
	return out
}

// Field returns the effective field of the column.
func (b *ColumnBuilder) Field() arrow.Field {
	return b.field
}

// DataType returns the effective data type of the column.
func (b *ColumnBuilder) DataType() arrow.DataType {
	return b.field.Type
}

// Len returns the number of slots appended so far.
func (b *ColumnBuilder) Len() int {
	if b.finished {
		return 0
	}
	return b.root.len()
}

// AppendNull appends a null slot, padding every nested child so it stays
// index-aligned with its parent.
func (b *ColumnBuilder) AppendNull() error {
	if b.finished {
		return &BuilderError{Path: b.field.Name, Message: "append after finish", Err: ErrBuilderFinished}
	}
	if err := b.root.checkNull(); err != nil {
		return err
	}
	return b.root.appendNull()
}

// Append validates c against the column type and appends it. A nil cell
// appends a null. On error nothing has been appended.
func (b *ColumnBuilder) Append(c Cell) error {
	if c == nil {
		return b.AppendNull()
	}
	if b.finished {
		return &BuilderError{Path: b.field.Name, Message: "append after finish", Err: ErrBuilderFinished}
	}
	if err := b.root.check(c); err != nil {
		return err
	}
	return b.root.appendCell(c)
}

// Finish returns the built array. It panics if a builder invariant was
// violated; use TryFinish to receive the violation as an error.
func (b *ColumnBuilder) Finish() arrow.Array {
	arr, err := b.TryFinish()
	if err != nil {
		panic(err)
	}
	return arr
}

// TryFinish verifies every nested length invariant and returns the built
// array. The builder cannot be used afterwards.
func (b *ColumnBuilder) TryFinish() (arr arrow.Array, err error) {
	if b.finished {
		return nil, &BuilderError{Path: b.field.Name, Message: "finish called twice", Err: ErrBuilderFinished}
	}
	b.finished = true

	if err := b.root.verify(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			arr = nil
			err = &BuilderError{Path: b.field.Name, Message: fmt.Sprintf("array construction failed: %v", r)}
		}
	}()
	arr = b.ab.NewArray()
	if b.relaxed {
		built := arr
		data := retypeData(built.Data(), b.field.Type)
		arr = array.MakeFromData(data)
		data.Release()
		built.Release()
	}
	return arr, nil
}

// UnionNulls returns the rows at which union nodes in this column encode a
// union-level null. It stays valid after Finish.
func (b *ColumnBuilder) UnionNulls() UnionNulls {
	acc := make(UnionNulls)
	b.root.collectUnionNulls(acc)
	return acc
}

// Release releases the underlying arrow-go builders.
func (b *ColumnBuilder) Release() {
	if b.ab != nil {
		b.ab.Release()
		b.ab = nil
	}
	b.finished = true
}

// newNode is the single dispatch point from a field type to a builder node.
func newNode(ab array.Builder, field arrow.Field, loc location, cfg *builderConfig) (node, error) {
	switch field.Type.ID() {
	case arrow.STRUCT:
		return newStructNode(ab.(*array.StructBuilder), field, loc, cfg)
	case arrow.LIST, arrow.LARGE_LIST:
		return newListNode(ab.(listLikeBuilder), field, loc, cfg)
	case arrow.FIXED_SIZE_LIST:
		return newFixedSizeListNode(ab.(*array.FixedSizeListBuilder), field, loc, cfg)
	case arrow.MAP:
		return newMapNode(ab.(*array.MapBuilder), field, loc, cfg)
	case arrow.DENSE_UNION, arrow.SPARSE_UNION:
		return newUnionNode(ab.(array.UnionBuilder), field, loc, cfg)
	case arrow.DICTIONARY:
		return newDictionaryNode(ab, field, loc), nil
	}
	if leaf := newLeafNode(ab, field.Type, loc); leaf != nil {
		return leaf, nil
	}
	return &nullOnlyNode{loc: loc, ab: ab, dt: field.Type}, nil
}

// leafNode appends scalar cells of a single kind.
type leafNode struct {
	loc   location
	ab    array.Builder
	dt    arrow.DataType
	want  CellKind
	width int // required byte width for fixed-size binary, else -1
	put   func(Cell) error
}

func newLeafNode(ab array.Builder, dt arrow.DataType, loc location) *leafNode {
	n := &leafNode{loc: loc, ab: ab, dt: dt, width: -1}
	switch b := ab.(type) {
	case *array.BooleanBuilder:
		n.want, n.put = KindBool, func(c Cell) error { b.Append(bool(c.(Bool))); return nil }
	case *array.Int8Builder:
		n.want, n.put = KindI8, func(c Cell) error { b.Append(int8(c.(I8))); return nil }
	case *array.Int16Builder:
		n.want, n.put = KindI16, func(c Cell) error { b.Append(int16(c.(I16))); return nil }
	case *array.Int32Builder:
		n.want, n.put = KindI32, func(c Cell) error { b.Append(int32(c.(I32))); return nil }
	case *array.Int64Builder:
		n.want, n.put = KindI64, func(c Cell) error { b.Append(int64(c.(I64))); return nil }
	case *array.Uint8Builder:
		n.want, n.put = KindU8, func(c Cell) error { b.Append(uint8(c.(U8))); return nil }
	case *array.Uint16Builder:
		n.want, n.put = KindU16, func(c Cell) error { b.Append(uint16(c.(U16))); return nil }
	case *array.Uint32Builder:
		n.want, n.put = KindU32, func(c Cell) error { b.Append(uint32(c.(U32))); return nil }
	case *array.Uint64Builder:
		n.want, n.put = KindU64, func(c Cell) error { b.Append(uint64(c.(U64))); return nil }
	case *array.Float16Builder:
		n.want, n.put = KindF16, func(c Cell) error { b.Append(float16.Num(c.(F16))); return nil }
	case *array.Float32Builder:
		n.want, n.put = KindF32, func(c Cell) error { b.Append(float32(c.(F32))); return nil }
	case *array.Float64Builder:
		n.want, n.put = KindF64, func(c Cell) error { b.Append(float64(c.(F64))); return nil }
	case *array.StringBuilder:
		n.want, n.put = KindStr, func(c Cell) error { b.Append(string(c.(Str))); return nil }
	case *array.LargeStringBuilder:
		n.want, n.put = KindStr, func(c Cell) error { b.Append(string(c.(Str))); return nil }
	case *array.BinaryBuilder:
		n.want, n.put = KindBin, func(c Cell) error { b.Append([]byte(c.(Bin))); return nil }
	case *array.FixedSizeBinaryBuilder:
		n.width = dt.(*arrow.FixedSizeBinaryType).ByteWidth
		n.want, n.put = KindBin, func(c Cell) error { b.Append([]byte(c.(Bin))); return nil }
	case *array.Date32Builder:
		n.want, n.put = KindI32, func(c Cell) error { b.Append(arrow.Date32(c.(I32))); return nil }
	case *array.Date64Builder:
		n.want, n.put = KindI64, func(c Cell) error { b.Append(arrow.Date64(c.(I64))); return nil }
	case *array.Time32Builder:
		n.want, n.put = KindI32, func(c Cell) error { b.Append(arrow.Time32(c.(I32))); return nil }
	case *array.Time64Builder:
		n.want, n.put = KindI64, func(c Cell) error { b.Append(arrow.Time64(c.(I64))); return nil }
	case *array.TimestampBuilder:
		n.want, n.put = KindI64, func(c Cell) error { b.Append(arrow.Timestamp(c.(I64))); return nil }
	case *array.DurationBuilder:
		n.want, n.put = KindI64, func(c Cell) error { b.Append(arrow.Duration(c.(I64))); return nil }
	default:
		return nil
	}
	return n
}

func (n *leafNode) check(c Cell) error {
	if c == nil {
		return nil
	}
	if c.Kind() != n.want {
		return &TypeMismatchError{Path: n.loc.name, Expected: fmt.Sprintf("%s (%s)", n.want, n.dt), Actual: c.Kind().String()}
	}
	if n.width >= 0 && len(c.(Bin)) != n.width {
		return &TypeMismatchError{
			Path:     n.loc.name,
			Expected: fmt.Sprintf("%d bytes (%s)", n.width, n.dt),
			Actual:   fmt.Sprintf("%d bytes", len(c.(Bin))),
		}
	}
	return nil
}

func (n *leafNode) checkNull() error { return nil }

func (n *leafNode) appendCell(c Cell) error {
	if c == nil {
		return n.appendNull()
	}
	return n.put(c)
}

func (n *leafNode) appendNull() error {
	n.ab.AppendNull()
	return nil
}

func (n *leafNode) pad()                         { n.ab.AppendNull() }
func (n *leafNode) len() int                     { return n.ab.Len() }
func (n *leafNode) verify() error                { return nil }
func (n *leafNode) collectUnionNulls(UnionNulls) {}

// newDictionaryNode appends value cells through arrow-go's interning
// dictionary builders. Value types without a dictionary builder degrade to
// null-only.
func newDictionaryNode(ab array.Builder, field arrow.Field, loc location) node {
	dt := field.Type.(*arrow.DictionaryType)
	n := &leafNode{loc: loc, ab: ab, dt: dt, width: -1}
	switch b := ab.(type) {
	case *array.BinaryDictionaryBuilder:
		switch dt.ValueType.ID() {
		case arrow.STRING, arrow.LARGE_STRING:
			n.want, n.put = KindStr, func(c Cell) error { return b.AppendString(string(c.(Str))) }
		default:
			n.want, n.put = KindBin, func(c Cell) error { return b.Append([]byte(c.(Bin))) }
		}
	case *array.FixedSizeBinaryDictionaryBuilder:
		n.width = dt.ValueType.(*arrow.FixedSizeBinaryType).ByteWidth
		n.want, n.put = KindBin, func(c Cell) error { return b.Append([]byte(c.(Bin))) }
	case *array.Int8DictionaryBuilder:
		n.want, n.put = KindI8, func(c Cell) error { return b.Append(int8(c.(I8))) }
	case *array.Int16DictionaryBuilder:
		n.want, n.put = KindI16, func(c Cell) error { return b.Append(int16(c.(I16))) }
	case *array.Int32DictionaryBuilder:
		n.want, n.put = KindI32, func(c Cell) error { return b.Append(int32(c.(I32))) }
	case *array.Int64DictionaryBuilder:
		n.want, n.put = KindI64, func(c Cell) error { return b.Append(int64(c.(I64))) }
	case *array.Uint8DictionaryBuilder:
		n.want, n.put = KindU8, func(c Cell) error { return b.Append(uint8(c.(U8))) }
	case *array.Uint16DictionaryBuilder:
		n.want, n.put = KindU16, func(c Cell) error { return b.Append(uint16(c.(U16))) }
	case *array.Uint32DictionaryBuilder:
		n.want, n.put = KindU32, func(c Cell) error { return b.Append(uint32(c.(U32))) }
	case *array.Uint64DictionaryBuilder:
		n.want, n.put = KindU64, func(c Cell) error { return b.Append(uint64(c.(U64))) }
	case *array.Float16DictionaryBuilder:
		n.want, n.put = KindF16, func(c Cell) error { return b.Append(float16.Num(c.(F16))) }
	case *array.Float32DictionaryBuilder:
		n.want, n.put = KindF32, func(c Cell) error { return b.Append(float32(c.(F32))) }
	case *array.Float64DictionaryBuilder:
		n.want, n.put = KindF64, func(c Cell) error { return b.Append(float64(c.(F64))) }
	case *array.Date32DictionaryBuilder:
		n.want, n.put = KindI32, func(c Cell) error { return b.Append(arrow.Date32(c.(I32))) }
	case *array.Date64DictionaryBuilder:
		n.want, n.put = KindI64, func(c Cell) error { return b.Append(arrow.Date64(c.(I64))) }
	case *array.Time32DictionaryBuilder:
		n.want, n.put = KindI32, func(c Cell) error { return b.Append(arrow.Time32(c.(I32))) }
	case *array.Time64DictionaryBuilder:
		n.want, n.put = KindI64, func(c Cell) error { return b.Append(arrow.Time64(c.(I64))) }
	case *array.TimestampDictionaryBuilder:
		n.want, n.put = KindI64, func(c Cell) error { return b.Append(arrow.Timestamp(c.(I64))) }
	case *array.DurationDictionaryBuilder:
		n.want, n.put = KindI64, func(c Cell) error { return b.Append(arrow.Duration(c.(I64))) }
	default:
		return &nullOnlyNode{loc: loc, ab: ab, dt: dt}
	}
	return n
}

// nullOnlyNode keeps row counts aligned for types cells cannot express.
type nullOnlyNode struct {
	loc location
	ab  array.Builder
	dt  arrow.DataType
}

func (n *nullOnlyNode) check(c Cell) error {
	if c == nil {
		return nil
	}
	return &TypeMismatchError{Path: n.loc.name, Expected: fmt.Sprintf("null (%s accepts nulls only)", n.dt), Actual: c.Kind().String()}
}

func (n *nullOnlyNode) checkNull() error { return nil }

func (n *nullOnlyNode) appendCell(c Cell) error {
	if err := n.check(c); err != nil {
		return err
	}
	n.ab.AppendNull()
	return nil
}

func (n *nullOnlyNode) appendNull() error {
	n.ab.AppendNull()
	return nil
}

func (n *nullOnlyNode) pad()                         { n.ab.AppendNull() }
func (n *nullOnlyNode) len() int                     { return n.ab.Len() }
func (n *nullOnlyNode) verify() error                { return nil }
func (n *nullOnlyNode) collectUnionNulls(UnionNulls) {}
