package arrowdyn

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// listLikeBuilder is satisfied by arrow-go's List and LargeList builders.
type listLikeBuilder interface {
	array.Builder
	Append(bool)
	ValueBuilder() array.Builder
}

type structNode struct {
	loc      location
	b        *array.StructBuilder
	fields   []arrow.Field
	children []node
}

func newStructNode(b *array.StructBuilder, field arrow.Field, loc location, cfg *builderConfig) (node, error) {
	fields := field.Type.(*arrow.StructType).Fields()
	n := &structNode{loc: loc, b: b, fields: fields, children: make([]node, len(fields))}
	for i, f := range fields {
		child, err := newNode(b.FieldBuilder(i), f, loc.field(i, f.Name), cfg)
		if err != nil {
			return nil, err
		}
		n.children[i] = child
	}
	return n, nil
}

func (n *structNode) check(c Cell) error {
	st, ok := c.(Struct)
	if !ok {
		return &TypeMismatchError{Path: n.loc.name, Expected: "Struct", Actual: KindOf(c).String()}
	}
	if len(st) != len(n.children) {
		return &TypeMismatchError{
			Path:     n.loc.name,
			Expected: fmt.Sprintf("Struct with %d fields", len(n.children)),
			Actual:   fmt.Sprintf("Struct with %d fields", len(st)),
		}
	}
	for i, child := range n.children {
		if err := checkChild(child, st[i]); err != nil {
			return err
		}
	}
	return nil
}

func (n *structNode) checkNull() error { return nil }

func (n *structNode) appendCell(c Cell) error {
	st := c.(Struct)
	n.b.Append(true)
	for i, child := range n.children {
		if err := appendChild(child, st[i]); err != nil {
			return err
		}
	}
	return nil
}

func (n *structNode) appendNull() error {
	n.pad()
	return nil
}

// pad appends an invalid struct slot and brings every child to the struct's
// length, whether or not arrow-go already propagated the null.
func (n *structNode) pad() {
	n.b.AppendNull()
	n.align()
}

func (n *structNode) align() {
	want := n.b.Len()
	for _, child := range n.children {
		for child.len() < want {
			child.pad()
		}
	}
}

func (n *structNode) len() int { return n.b.Len() }

func (n *structNode) verify() error {
	for i, child := range n.children {
		if child.len() != n.b.Len() {
			return &BuilderError{
				Path:    n.loc.field(i, n.fields[i].Name).name,
				Message: fmt.Sprintf("struct child has %d slots, parent has %d", child.len(), n.b.Len()),
			}
		}
		if err := child.verify(); err != nil {
			return err
		}
	}
	return nil
}

func (n *structNode) collectUnionNulls(acc UnionNulls) {
	for _, child := range n.children {
		child.collectUnionNulls(acc)
	}
}

// listNode serves List and LargeList; items share one child builder and the
// offsets are maintained by arrow-go.
type listNode struct {
	loc  location
	b    listLikeBuilder
	item node
}

func newListNode(b listLikeBuilder, field arrow.Field, loc location, cfg *builderConfig) (node, error) {
	elem := field.Type.(arrow.ListLikeType).ElemField()
	item, err := newNode(b.ValueBuilder(), elem, loc.item(), cfg)
	if err != nil {
		return nil, err
	}
	return &listNode{loc: loc, b: b, item: item}, nil
}

func (n *listNode) check(c Cell) error {
	items, ok := c.(List)
	if !ok {
		return &TypeMismatchError{Path: n.loc.name, Expected: "List", Actual: KindOf(c).String()}
	}
	for _, it := range items {
		if err := checkChild(n.item, it); err != nil {
			return err
		}
	}
	return nil
}

func (n *listNode) checkNull() error { return nil }

func (n *listNode) appendCell(c Cell) error {
	n.b.Append(true)
	for _, it := range c.(List) {
		if err := appendChild(n.item, it); err != nil {
			return err
		}
	}
	return nil
}

func (n *listNode) appendNull() error {
	n.b.AppendNull()
	return nil
}

func (n *listNode) pad()          { n.b.AppendNull() }
func (n *listNode) len() int      { return n.b.Len() }
func (n *listNode) verify() error { return n.item.verify() }

func (n *listNode) collectUnionNulls(acc UnionNulls) {
	n.item.collectUnionNulls(acc)
}

// fixedSizeListNode appends exactly size items per slot, including null
// slots, so the item builder advances by a fixed stride.
type fixedSizeListNode struct {
	loc  location
	b    *array.FixedSizeListBuilder
	size int
	item node
}

func newFixedSizeListNode(b *array.FixedSizeListBuilder, field arrow.Field, loc location, cfg *builderConfig) (node, error) {
	dt := field.Type.(*arrow.FixedSizeListType)
	item, err := newNode(b.ValueBuilder(), dt.ElemField(), loc.item(), cfg)
	if err != nil {
		return nil, err
	}
	return &fixedSizeListNode{loc: loc, b: b, size: int(dt.Len()), item: item}, nil
}

func (n *fixedSizeListNode) check(c Cell) error {
	items, ok := c.(FixedSizeList)
	if !ok {
		return &TypeMismatchError{Path: n.loc.name, Expected: "FixedSizeList", Actual: KindOf(c).String()}
	}
	if len(items) != n.size {
		return &TypeMismatchError{
			Path:     n.loc.name,
			Expected: fmt.Sprintf("FixedSizeList of %d items", n.size),
			Actual:   fmt.Sprintf("FixedSizeList of %d items", len(items)),
		}
	}
	for _, it := range items {
		if err := checkChild(n.item, it); err != nil {
			return err
		}
	}
	return nil
}

func (n *fixedSizeListNode) checkNull() error { return nil }

func (n *fixedSizeListNode) appendCell(c Cell) error {
	n.b.Append(true)
	for _, it := range c.(FixedSizeList) {
		if err := appendChild(n.item, it); err != nil {
			return err
		}
	}
	return nil
}

func (n *fixedSizeListNode) appendNull() error {
	n.pad()
	return nil
}

func (n *fixedSizeListNode) pad() {
	n.b.AppendNull()
	want := n.b.Len() * n.size
	for n.item.len() < want {
		n.item.pad()
	}
}

func (n *fixedSizeListNode) len() int { return n.b.Len() }

func (n *fixedSizeListNode) verify() error {
	if want := n.b.Len() * n.size; n.item.len() != want {
		return &BuilderError{
			Path:    n.loc.item().name,
			Message: fmt.Sprintf("fixed-size list items have %d slots, expected %d", n.item.len(), want),
		}
	}
	return n.item.verify()
}

func (n *fixedSizeListNode) collectUnionNulls(acc UnionNulls) {
	n.item.collectUnionNulls(acc)
}

// mapNode appends one key and one value-or-null per entry behind list
// offsets.
type mapNode struct {
	loc  location
	b    *array.MapBuilder
	key  node
	item node
}

func newMapNode(b *array.MapBuilder, field arrow.Field, loc location, cfg *builderConfig) (node, error) {
	dt := field.Type.(*arrow.MapType)
	key, err := newNode(b.KeyBuilder(), dt.KeyField(), loc.mapKeys(), cfg)
	if err != nil {
		return nil, err
	}
	item, err := newNode(b.ItemBuilder(), dt.ItemField(), loc.mapValues(), cfg)
	if err != nil {
		return nil, err
	}
	return &mapNode{loc: loc, b: b, key: key, item: item}, nil
}

func (n *mapNode) check(c Cell) error {
	entries, ok := c.(Map)
	if !ok {
		return &TypeMismatchError{Path: n.loc.name, Expected: "Map", Actual: KindOf(c).String()}
	}
	for i, e := range entries {
		if e.Key == nil {
			return &BuilderError{Path: n.loc.mapKeys().name, Message: fmt.Sprintf("entry %d", i), Err: ErrAbsentMapKey}
		}
		if err := n.key.check(e.Key); err != nil {
			return err
		}
		if err := checkChild(n.item, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func (n *mapNode) checkNull() error { return nil }

func (n *mapNode) appendCell(c Cell) error {
	n.b.Append(true)
	for _, e := range c.(Map) {
		if err := n.key.appendCell(e.Key); err != nil {
			return err
		}
		if err := appendChild(n.item, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func (n *mapNode) appendNull() error {
	n.b.AppendNull()
	return nil
}

func (n *mapNode) pad()     { n.b.AppendNull() }
func (n *mapNode) len() int { return n.b.Len() }

func (n *mapNode) verify() error {
	if n.key.len() != n.item.len() {
		return &BuilderError{
			Path:    n.loc.name,
			Message: fmt.Sprintf("map has %d keys but %d values", n.key.len(), n.item.len()),
		}
	}
	if err := n.key.verify(); err != nil {
		return err
	}
	return n.item.verify()
}

func (n *mapNode) collectUnionNulls(acc UnionNulls) {
	n.key.collectUnionNulls(acc)
	n.item.collectUnionNulls(acc)
}

func checkChild(child node, c Cell) error {
	if c == nil {
		return child.checkNull()
	}
	return child.check(c)
}

func appendChild(child node, c Cell) error {
	if c == nil {
		return child.appendNull()
	}
	return child.appendCell(c)
}
