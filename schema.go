package arrowdyn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// UnionNullVariantKey is the field metadata key naming the type code of the
// variant that carries union-level nulls for a union-typed field.
const UnionNullVariantKey = "arrowdyn.union.null_variant"

// shape is the structural class of a data type shared by the builder,
// validator, projection and view walks.
type shape uint8

const (
	shapeLeaf shape = iota
	shapeStruct
	shapeList
	shapeLargeList
	shapeFixedSizeList
	shapeMap
	shapeUnion
)

func shapeOf(dt arrow.DataType) shape {
	switch dt.ID() {
	case arrow.STRUCT:
		return shapeStruct
	case arrow.LIST:
		return shapeList
	case arrow.LARGE_LIST:
		return shapeLargeList
	case arrow.FIXED_SIZE_LIST:
		return shapeFixedSizeList
	case arrow.MAP:
		return shapeMap
	case arrow.DENSE_UNION, arrow.SPARSE_UNION:
		return shapeUnion
	default:
		return shapeLeaf
	}
}

func (s shape) listLike() bool {
	return s == shapeList || s == shapeLargeList || s == shapeFixedSizeList
}

// childFields returns the nested fields of dt in structural order. List-like
// types and maps have a single child (the item or the entries struct).
func childFields(dt arrow.DataType) []arrow.Field {
	switch t := dt.(type) {
	case *arrow.StructType:
		return t.Fields()
	case *arrow.MapType:
		return []arrow.Field{t.ElemField()}
	case arrow.ListLikeType:
		return []arrow.Field{t.ElemField()}
	case arrow.UnionType:
		return t.Fields()
	default:
		return nil
	}
}

// ProjectionPath is a child-index sequence from the batch root to a node:
// the first element is the column index; struct and union children are
// addressed by position; list-like items and map entries are always child 0;
// a map's key and value are children 0 and 1 of its entries.
type ProjectionPath []int

func (p ProjectionPath) String() string {
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ".")
}

// ParseProjectionPath parses the dotted form produced by ProjectionPath.String.
func ParseProjectionPath(s string) (ProjectionPath, error) {
	if s == "" {
		return nil, fmt.Errorf("empty projection path")
	}
	parts := strings.Split(s, ".")
	path := make(ProjectionPath, len(parts))
	for i, part := range parts {
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("invalid projection path component %q in %q", part, s)
		}
		path[i] = idx
	}
	return path, nil
}

func (p ProjectionPath) child(i int) ProjectionPath {
	out := make(ProjectionPath, len(p)+1)
	copy(out, p)
	out[len(p)] = i
	return out
}

func (p ProjectionPath) hasPrefix(prefix ProjectionPath) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// location tracks a node's rendered path and structural index path.
type location struct {
	name  string
	index ProjectionPath
}

func columnLocation(col int, name string) location {
	return location{name: name, index: ProjectionPath{col}}
}

func (l location) field(i int, name string) location {
	return location{name: l.name + "." + name, index: l.index.child(i)}
}

func (l location) item() location {
	return location{name: l.name + "[]", index: l.index.child(0)}
}

func (l location) mapKeys() location {
	return location{name: l.name + ".keys", index: l.index.child(0).child(0)}
}

func (l location) mapValues() location {
	return location{name: l.name + ".values", index: l.index.child(0).child(1)}
}

// WithUnionNullVariant returns a copy of a union-typed field whose metadata
// names code as the variant carrying union-level nulls.
func WithUnionNullVariant(f arrow.Field, code arrow.UnionTypeCode) arrow.Field {
	keys := []string{UnionNullVariantKey}
	vals := []string{strconv.Itoa(int(code))}
	for i, k := range f.Metadata.Keys() {
		if k == UnionNullVariantKey {
			continue
		}
		keys = append(keys, k)
		vals = append(vals, f.Metadata.Values()[i])
	}
	f.Metadata = arrow.NewMetadata(keys, vals)
	return f
}

// unionNullVariant reads the null-carrying variant configured on f.
func unionNullVariant(f arrow.Field) (arrow.UnionTypeCode, bool, error) {
	idx := f.Metadata.FindKey(UnionNullVariantKey)
	if idx < 0 {
		return 0, false, nil
	}
	v, err := strconv.Atoi(f.Metadata.Values()[idx])
	if err != nil || v < 0 || v > int(arrow.MaxUnionTypeCode) {
		return 0, false, fmt.Errorf("invalid %s metadata %q", UnionNullVariantKey, f.Metadata.Values()[idx])
	}
	return arrow.UnionTypeCode(v), true, nil
}

// fieldsEqualShape reports whether two schemas have the same field names,
// types and nullability.
func fieldsEqualShape(a, b []arrow.Field) error {
	if len(a) != len(b) {
		return fmt.Errorf("field count %d does not match %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return fmt.Errorf("field %d: name %q does not match %q", i, a[i].Name, b[i].Name)
		}
		if !arrow.TypeEqual(a[i].Type, b[i].Type) {
			return &TypeMismatchError{Path: a[i].Name, Expected: a[i].Type.String(), Actual: b[i].Type.String()}
		}
		if a[i].Nullable != b[i].Nullable {
			return fmt.Errorf("field %q: nullability %t does not match %t", a[i].Name, a[i].Nullable, b[i].Nullable)
		}
	}
	return nil
}
