package arrowdyn

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// UnionNulls records, per union node, the rows (in that union array's own
// index space) where a union-level null was encoded on the null-carrying
// variant. Keys are ProjectionPath strings of the union node.
type UnionNulls map[string][]int

// Rows returns the flagged rows of the union node at path.
func (u UnionNulls) Rows(path ProjectionPath) []int {
	return u[path.String()]
}

func (u UnionNulls) contains(path ProjectionPath, row int) bool {
	rows := u[path.String()]
	i := sort.SearchInts(rows, row)
	return i < len(rows) && rows[i] == row
}

// merge copies other into u.
func (u UnionNulls) merge(other UnionNulls) {
	for k, rows := range other {
		u[k] = append(u[k], rows...)
		sort.Ints(u[k])
	}
}

// unionNode routes each appended cell to one variant. Dense unions advance
// only the active variant; sparse unions pad every other variant so all
// children keep the union's length.
type unionNode struct {
	loc      location
	b        array.UnionBuilder
	typ      arrow.UnionType
	fields   []arrow.Field
	children []node

	nullCode arrow.UnionTypeCode
	hasNull  bool
	nullRows []int
}

func newUnionNode(b array.UnionBuilder, field arrow.Field, loc location, cfg *builderConfig) (node, error) {
	typ := field.Type.(arrow.UnionType)
	fields := typ.Fields()
	n := &unionNode{loc: loc, b: b, typ: typ, fields: fields, children: make([]node, len(fields))}

	for i, f := range fields {
		child, err := newNode(b.Child(i), f, loc.field(i, f.Name), cfg)
		if err != nil {
			return nil, err
		}
		n.children[i] = child
	}

	code, ok, err := unionNullVariant(field)
	if err != nil {
		return nil, &BuilderError{Path: loc.name, Message: "union null variant", Err: err}
	}
	if override, found := cfg.unionNulls[loc.index.String()]; found {
		code, ok = override, true
	}
	if ok {
		if n.childIndex(code) < 0 {
			return nil, &BuilderError{Path: loc.name, Message: fmt.Sprintf("null-carrying variant %d is not a union type code", code)}
		}
		n.nullCode, n.hasNull = code, true
	}
	return n, nil
}

func (n *unionNode) childIndex(code arrow.UnionTypeCode) int {
	ids := n.typ.ChildIDs()
	if int(code) < 0 || int(code) >= len(ids) {
		return -1
	}
	return ids[code]
}

func (n *unionNode) check(c Cell) error {
	u, ok := c.(Union)
	if !ok {
		return &TypeMismatchError{Path: n.loc.name, Expected: "Union", Actual: KindOf(c).String()}
	}
	idx := n.childIndex(u.TypeCode)
	if idx < 0 {
		return &TypeMismatchError{
			Path:     n.loc.name,
			Expected: fmt.Sprintf("union type code in %v", n.typ.TypeCodes()),
			Actual:   fmt.Sprintf("type code %d", u.TypeCode),
		}
	}
	return checkChild(n.children[idx], u.Value)
}

func (n *unionNode) checkNull() error {
	if !n.hasNull {
		return &BuilderError{
			Path:    n.loc.name,
			Message: "union-level null requires a null-carrying variant; set " + UnionNullVariantKey + " metadata or the UnionNullVariant option",
		}
	}
	idx := n.childIndex(n.nullCode)
	return n.children[idx].checkNull()
}

func (n *unionNode) appendCell(c Cell) error {
	u := c.(Union)
	idx := n.childIndex(u.TypeCode)
	n.b.Append(u.TypeCode)
	if err := appendChild(n.children[idx], u.Value); err != nil {
		return err
	}
	n.fillSparse(idx)
	return nil
}

func (n *unionNode) appendNull() error {
	if err := n.checkNull(); err != nil {
		return err
	}
	idx := n.childIndex(n.nullCode)
	n.nullRows = append(n.nullRows, n.b.Len())
	n.b.Append(n.nullCode)
	if err := n.children[idx].appendNull(); err != nil {
		return err
	}
	n.fillSparse(idx)
	return nil
}

// fillSparse pads every inactive variant of a sparse union. The padded slots
// are never read through the union, so they are neither checked nor recorded
// as union-level nulls.
func (n *unionNode) fillSparse(active int) {
	if n.typ.Mode() != arrow.SparseMode {
		return
	}
	for i, child := range n.children {
		if i != active {
			child.pad()
		}
	}
}

// pad appends a placeholder on the null-carrying variant, or on the first
// variant when none is configured. Padded rows sit under an invalid parent
// and are not recorded as union-level nulls.
func (n *unionNode) pad() {
	if len(n.children) == 0 {
		n.b.AppendNull()
		return
	}
	code := n.typ.TypeCodes()[0]
	if n.hasNull {
		code = n.nullCode
	}
	idx := n.childIndex(code)
	n.b.Append(code)
	n.children[idx].pad()
	if n.typ.Mode() == arrow.SparseMode {
		for i, child := range n.children {
			if i != idx {
				child.pad()
			}
		}
	}
}

func (n *unionNode) len() int { return n.b.Len() }

func (n *unionNode) verify() error {
	for i, child := range n.children {
		if n.typ.Mode() == arrow.SparseMode && child.len() != n.b.Len() {
			return &BuilderError{
				Path:    n.loc.field(i, n.fields[i].Name).name,
				Message: fmt.Sprintf("sparse union variant has %d slots, union has %d", child.len(), n.b.Len()),
			}
		}
		if err := child.verify(); err != nil {
			return err
		}
	}
	return nil
}

func (n *unionNode) collectUnionNulls(acc UnionNulls) {
	if len(n.nullRows) > 0 {
		rows := make([]int, len(n.nullRows))
		copy(rows, n.nullRows)
		acc[n.loc.index.String()] = rows
	}
	for _, child := range n.children {
		child.collectUnionNulls(acc)
	}
}
