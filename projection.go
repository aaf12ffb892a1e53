package arrowdyn

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ProjectorKind says how reads through a projected field are reshaped.
type ProjectorKind uint8

const (
	// ProjectIdentity passes the source field through unchanged.
	ProjectIdentity ProjectorKind = iota
	ProjectStruct
	ProjectList
	ProjectLargeList
	ProjectFixedSizeList
	ProjectMap
)

func (k ProjectorKind) String() string {
	switch k {
	case ProjectIdentity:
		return "identity"
	case ProjectStruct:
		return "struct"
	case ProjectList:
		return "list"
	case ProjectLargeList:
		return "large_list"
	case ProjectFixedSizeList:
		return "fixed_size_list"
	case ProjectMap:
		return "map"
	default:
		return fmt.Sprintf("ProjectorKind(%d)", uint8(k))
	}
}

// FieldProjector is the reshaping rule of one projected field. Struct and Map
// projectors list the kept source children in reduced order (a map keeps its
// key at source 0 and its value at source 1); list-like projectors reshape
// their item.
type FieldProjector struct {
	Kind     ProjectorKind
	Children []ChildProjector
	Item     *FieldProjector
}

// ChildProjector maps a reduced child onto its source child index.
type ChildProjector struct {
	Source    int
	Projector FieldProjector
}

// IsIdentity reports whether reads pass through unchanged.
func (p FieldProjector) IsIdentity() bool {
	return p.Kind == ProjectIdentity
}

// LeafMask selects leaf columns in the depth-first flattened leaf order of a
// source schema (see LeafPaths).
type LeafMask struct {
	leaves []bool
	all    bool
}

// All reports whether every leaf is selected.
func (m LeafMask) All() bool { return m.all }

// Len returns the number of source leaves.
func (m LeafMask) Len() int { return len(m.leaves) }

// Selected reports whether leaf i is selected.
func (m LeafMask) Selected(i int) bool {
	return i >= 0 && i < len(m.leaves) && m.leaves[i]
}

// Indices returns the selected leaf indices in ascending order.
func (m LeafMask) Indices() []int {
	out := make([]int, 0, len(m.leaves))
	for i, ok := range m.leaves {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// Projection maps a source schema onto a reduced, ancestor-preserving schema.
// It is immutable and can be reused for every record of the source schema.
type Projection struct {
	source     *arrow.Schema
	schema     *arrow.Schema
	mapping    []int
	projectors []FieldProjector
	mask       LeafMask
}

// Schema returns the reduced schema.
func (p *Projection) Schema() *arrow.Schema { return p.schema }

// SourceSchema returns the schema the projection was derived from.
func (p *Projection) SourceSchema() *arrow.Schema { return p.source }

// SourceWidth returns the number of source columns.
func (p *Projection) SourceWidth() int { return p.source.NumFields() }

// Mapping returns, per reduced column, the source column index.
func (p *Projection) Mapping() []int {
	out := make([]int, len(p.mapping))
	copy(out, p.mapping)
	return out
}

// Projector returns the reshaping rule of reduced column i.
func (p *Projection) Projector(i int) FieldProjector { return p.projectors[i] }

// LeafMask returns the selection over the source schema's leaf columns.
func (p *Projection) LeafMask() LeafMask { return p.mask }

// LeafPaths flattens schema into the index paths of its leaves, depth-first in
// field order. Map leaves pass through the entries struct (child 0) to the key
// (0) and value (1); list-like items are child 0.
func LeafPaths(schema *arrow.Schema) []ProjectionPath {
	var out []ProjectionPath
	for i, f := range schema.Fields() {
		out = appendLeafPaths(out, f.Type, ProjectionPath{i})
	}
	return out
}

func appendLeafPaths(out []ProjectionPath, dt arrow.DataType, path ProjectionPath) []ProjectionPath {
	if shapeOf(dt) == shapeLeaf {
		return append(out, path)
	}
	for i, cf := range childFields(dt) {
		out = appendLeafPaths(out, cf.Type, path.child(i))
	}
	return out
}

// selection is a prefix tree of selected paths. A node marked all selects its
// whole subtree.
type selection struct {
	all      bool
	children map[int]*selection
}

func (s *selection) add(path ProjectionPath) {
	node := s
	for _, idx := range path {
		if node.all {
			return
		}
		if node.children == nil {
			node.children = make(map[int]*selection)
		}
		child, ok := node.children[idx]
		if !ok {
			child = &selection{}
			node.children[idx] = child
		}
		node = child
	}
	node.all = true
	node.children = nil
}

func (s *selection) covers(path ProjectionPath) bool {
	node := s
	for _, idx := range path {
		if node.all {
			return true
		}
		node = node.children[idx]
		if node == nil {
			return false
		}
	}
	return node.all
}

func (s *selection) keys() []int {
	out := make([]int, 0, len(s.children))
	for k := range s.children {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func newLeafMask(source *arrow.Schema, sel *selection) LeafMask {
	leaves := LeafPaths(source)
	m := LeafMask{leaves: make([]bool, len(leaves)), all: true}
	for i, lp := range leaves {
		m.leaves[i] = sel.covers(lp)
		m.all = m.all && m.leaves[i]
	}
	return m
}

// checkPath verifies that every step of path addresses an existing child.
func checkPath(schema *arrow.Schema, path ProjectionPath) error {
	if len(path) == 0 {
		return &ProjectionError{Path: "<empty>", Reason: "empty projection path"}
	}
	if path[0] < 0 || path[0] >= schema.NumFields() {
		return &ProjectionError{
			Path:   path.String(),
			Reason: fmt.Sprintf("column index %d out of range (%d columns)", path[0], schema.NumFields()),
		}
	}
	f := schema.Field(path[0])
	for depth, idx := range path[1:] {
		children := childFields(f.Type)
		prefix := path[:depth+1].String()
		switch s := shapeOf(f.Type); {
		case s == shapeStruct && idx >= len(children):
			return &ProjectionError{Path: prefix, Reason: fmt.Sprintf("child index %d beyond %d struct fields", idx, len(children))}
		case s == shapeUnion && idx >= len(children):
			return &ProjectionError{Path: prefix, Reason: fmt.Sprintf("child index %d beyond %d union variants", idx, len(children))}
		case (s.listLike() || s == shapeMap) && idx != 0:
			return &ProjectionError{Path: prefix, Reason: fmt.Sprintf("child index %d on %s; only child 0 exists", idx, f.Type)}
		case s == shapeLeaf:
			return &ProjectionError{Path: prefix, Reason: fmt.Sprintf("path continues below leaf of type %s", f.Type)}
		case idx < 0:
			return &ProjectionError{Path: prefix, Reason: fmt.Sprintf("negative child index %d", idx)}
		}
		f = children[idx]
	}
	return nil
}

// ProjectPaths derives a projection keeping exactly the subtrees named by
// paths. Overlapping and duplicate paths are merged; kept columns and struct
// children stay in source order.
func ProjectPaths(source *arrow.Schema, paths []ProjectionPath) (*Projection, error) {
	if len(paths) == 0 {
		return nil, &ProjectionError{Path: "<root>", Reason: "no paths selected"}
	}
	root := &selection{}
	for _, path := range paths {
		if err := checkPath(source, path); err != nil {
			return nil, err
		}
		root.add(path)
	}

	cols := root.keys()
	p := &Projection{
		source:     source,
		mapping:    cols,
		projectors: make([]FieldProjector, len(cols)),
		mask:       newLeafMask(source, root),
	}
	fields := make([]arrow.Field, len(cols))
	for k, col := range cols {
		f, proj, err := reduceField(source.Field(col), root.children[col], ProjectionPath{col})
		if err != nil {
			return nil, err
		}
		fields[k] = f
		p.projectors[k] = proj
	}
	md := source.Metadata()
	p.schema = arrow.NewSchema(fields, &md)
	return p, nil
}

// reduceField prunes f to the selected subtree.
func reduceField(f arrow.Field, sel *selection, path ProjectionPath) (arrow.Field, FieldProjector, error) {
	if sel.all {
		return f, FieldProjector{}, nil
	}

	out := f
	switch shapeOf(f.Type) {
	case shapeStruct:
		st := f.Type.(*arrow.StructType)
		keys := sel.keys()
		fields := make([]arrow.Field, 0, len(keys))
		children := make([]ChildProjector, 0, len(keys))
		identity := len(keys) == st.NumFields()
		for _, i := range keys {
			cf, cp, err := reduceField(st.Field(i), sel.children[i], path.child(i))
			if err != nil {
				return f, FieldProjector{}, err
			}
			fields = append(fields, cf)
			children = append(children, ChildProjector{Source: i, Projector: cp})
			identity = identity && cp.IsIdentity()
		}
		if identity {
			return f, FieldProjector{}, nil
		}
		out.Type = arrow.StructOf(fields...)
		return out, FieldProjector{Kind: ProjectStruct, Children: children}, nil

	case shapeList, shapeLargeList, shapeFixedSizeList:
		elem := f.Type.(arrow.ListLikeType).ElemField()
		ef, ep, err := reduceField(elem, sel.children[0], path.child(0))
		if err != nil {
			return f, FieldProjector{}, err
		}
		if ep.IsIdentity() {
			return f, FieldProjector{}, nil
		}
		var kind ProjectorKind
		switch dt := f.Type.(type) {
		case *arrow.ListType:
			out.Type, kind = arrow.ListOfField(ef), ProjectList
		case *arrow.LargeListType:
			out.Type, kind = arrow.LargeListOfField(ef), ProjectLargeList
		case *arrow.FixedSizeListType:
			out.Type, kind = arrow.FixedSizeListOfField(dt.Len(), ef), ProjectFixedSizeList
		}
		return out, FieldProjector{Kind: kind, Item: &ep}, nil

	case shapeMap:
		dt := f.Type.(*arrow.MapType)
		entries := sel.children[0]
		if entries.all {
			return f, FieldProjector{}, nil
		}
		if entries.children[0] == nil || entries.children[1] == nil {
			return f, FieldProjector{}, &ProjectionError{Path: path.child(0).String(), Reason: "map projection must keep both key and value"}
		}
		kf, kp, err := reduceField(dt.KeyField(), entries.children[0], path.child(0).child(0))
		if err != nil {
			return f, FieldProjector{}, err
		}
		vf, vp, err := reduceField(dt.ItemField(), entries.children[1], path.child(0).child(1))
		if err != nil {
			return f, FieldProjector{}, err
		}
		if kp.IsIdentity() && vp.IsIdentity() {
			return f, FieldProjector{}, nil
		}
		out.Type = reducedMapOf(dt, kf, vf)
		return out, FieldProjector{Kind: ProjectMap, Children: []ChildProjector{{Source: 0, Projector: kp}, {Source: 1, Projector: vp}}}, nil
	}

	// Unions and leaves are kept whole; the mask still marks only the
	// selected leaves below a union.
	return f, FieldProjector{}, nil
}

func reducedMapOf(src *arrow.MapType, key, item arrow.Field) *arrow.MapType {
	mt := arrow.MapOfWithMetadata(key.Type, key.Metadata, item.Type, item.Metadata)
	mt.KeysSorted = src.KeysSorted
	mt.SetItemNullable(item.Nullable)
	return mt
}

// ProjectIndices keeps whole top-level columns, in the given order.
func ProjectIndices(source *arrow.Schema, cols []int) (*Projection, error) {
	if len(cols) == 0 {
		return nil, &ProjectionError{Path: "<root>", Reason: "no columns selected"}
	}
	root := &selection{}
	fields := make([]arrow.Field, len(cols))
	seen := make(map[int]bool, len(cols))
	for k, col := range cols {
		path := ProjectionPath{col}
		if err := checkPath(source, path); err != nil {
			return nil, err
		}
		if seen[col] {
			return nil, &ProjectionError{Path: path.String(), Reason: "column selected twice"}
		}
		seen[col] = true
		root.add(path)
		fields[k] = source.Field(col)
	}

	mapping := make([]int, len(cols))
	copy(mapping, cols)
	md := source.Metadata()
	return &Projection{
		source:     source,
		schema:     arrow.NewSchema(fields, &md),
		mapping:    mapping,
		projectors: make([]FieldProjector, len(cols)),
		mask:       newLeafMask(source, root),
	}, nil
}

// ProjectSchema matches reduced against source field by field, by name. Leaf
// types and nullability must agree exactly; containers may only narrow to a
// container of the same shape. Reduced struct children may appear in any
// order.
func ProjectSchema(source, reduced *arrow.Schema) (*Projection, error) {
	if reduced.NumFields() == 0 {
		return nil, &ProjectionError{Path: "<root>", Reason: "reduced schema has no fields"}
	}
	m := &schemaMatcher{sel: &selection{}}
	p := &Projection{
		source:     source,
		schema:     reduced,
		mapping:    make([]int, reduced.NumFields()),
		projectors: make([]FieldProjector, reduced.NumFields()),
	}
	seen := make(map[string]bool, reduced.NumFields())
	for k, rf := range reduced.Fields() {
		if seen[rf.Name] {
			return nil, &ProjectionError{Path: rf.Name, Reason: "field selected twice"}
		}
		seen[rf.Name] = true
		idx := source.FieldIndices(rf.Name)
		if len(idx) == 0 {
			return nil, &ProjectionError{Path: rf.Name, Reason: "no such field in source schema"}
		}
		proj, err := m.match(source.Field(idx[0]), rf, ProjectionPath{idx[0]}, rf.Name)
		if err != nil {
			return nil, err
		}
		p.mapping[k] = idx[0]
		p.projectors[k] = proj
	}
	p.mask = newLeafMask(source, m.sel)
	return p, nil
}

type schemaMatcher struct {
	sel *selection
}

func (m *schemaMatcher) match(src, red arrow.Field, path ProjectionPath, name string) (FieldProjector, error) {
	if src.Nullable != red.Nullable {
		return FieldProjector{}, &ProjectionError{
			Path:   name,
			Reason: fmt.Sprintf("nullable=%t does not match source nullable=%t", red.Nullable, src.Nullable),
		}
	}
	ss := shapeOf(src.Type)
	if ss != shapeOf(red.Type) || (ss != shapeLeaf && src.Type.ID() != red.Type.ID()) {
		return FieldProjector{}, &ProjectionError{
			Path:   name,
			Reason: fmt.Sprintf("type %s cannot narrow source type %s", red.Type, src.Type),
		}
	}

	switch ss {
	case shapeStruct:
		return m.matchStruct(src.Type.(*arrow.StructType), red.Type.(*arrow.StructType), path, name)

	case shapeList, shapeLargeList, shapeFixedSizeList:
		if sf, ok := src.Type.(*arrow.FixedSizeListType); ok {
			if rl := red.Type.(*arrow.FixedSizeListType).Len(); rl != sf.Len() {
				return FieldProjector{}, &ProjectionError{
					Path:   name,
					Reason: fmt.Sprintf("fixed-size list length %d does not match source length %d", rl, sf.Len()),
				}
			}
		}
		ip, err := m.match(src.Type.(arrow.ListLikeType).ElemField(), red.Type.(arrow.ListLikeType).ElemField(), path.child(0), name+"[]")
		if err != nil || ip.IsIdentity() {
			return FieldProjector{}, err
		}
		kind := map[shape]ProjectorKind{shapeList: ProjectList, shapeLargeList: ProjectLargeList, shapeFixedSizeList: ProjectFixedSizeList}[ss]
		return FieldProjector{Kind: kind, Item: &ip}, nil

	case shapeMap:
		sm, rm := src.Type.(*arrow.MapType), red.Type.(*arrow.MapType)
		if sm.KeysSorted != rm.KeysSorted {
			return FieldProjector{}, &ProjectionError{Path: name, Reason: "keys_sorted does not match source"}
		}
		if rm.KeyField().Name != sm.KeyField().Name || rm.ItemField().Name != sm.ItemField().Name {
			return FieldProjector{}, &ProjectionError{
				Path: name,
				Reason: fmt.Sprintf("map entries must keep (%s, %s) in order, got (%s, %s)",
					sm.KeyField().Name, sm.ItemField().Name, rm.KeyField().Name, rm.ItemField().Name),
			}
		}
		entries := path.child(0)
		kp, err := m.match(sm.KeyField(), rm.KeyField(), entries.child(0), name+".keys")
		if err != nil {
			return FieldProjector{}, err
		}
		vp, err := m.match(sm.ItemField(), rm.ItemField(), entries.child(1), name+".values")
		if err != nil {
			return FieldProjector{}, err
		}
		if kp.IsIdentity() && vp.IsIdentity() {
			return FieldProjector{}, nil
		}
		return FieldProjector{Kind: ProjectMap, Children: []ChildProjector{{Source: 0, Projector: kp}, {Source: 1, Projector: vp}}}, nil
	}

	if !arrow.TypeEqual(src.Type, red.Type) {
		return FieldProjector{}, &ProjectionError{
			Path:   name,
			Reason: fmt.Sprintf("type %s does not match source type %s", red.Type, src.Type),
		}
	}
	m.sel.add(path)
	return FieldProjector{}, nil
}

func (m *schemaMatcher) matchStruct(src, red *arrow.StructType, path ProjectionPath, name string) (FieldProjector, error) {
	if red.NumFields() == 0 && src.NumFields() > 0 {
		return FieldProjector{}, &ProjectionError{Path: name, Reason: "struct keeps no fields"}
	}
	children := make([]ChildProjector, 0, red.NumFields())
	identity := red.NumFields() == src.NumFields()
	seen := make(map[string]bool, red.NumFields())
	for k, rf := range red.Fields() {
		cname := name + "." + rf.Name
		if seen[rf.Name] {
			return FieldProjector{}, &ProjectionError{Path: cname, Reason: "field selected twice"}
		}
		seen[rf.Name] = true
		i, ok := src.FieldIdx(rf.Name)
		if !ok {
			return FieldProjector{}, &ProjectionError{Path: cname, Reason: "no such field in source struct"}
		}
		cp, err := m.match(src.Field(i), rf, path.child(i), cname)
		if err != nil {
			return FieldProjector{}, err
		}
		children = append(children, ChildProjector{Source: i, Projector: cp})
		identity = identity && i == k && cp.IsIdentity()
	}
	if identity {
		return FieldProjector{}, nil
	}
	return FieldProjector{Kind: ProjectStruct, Children: children}, nil
}

// ProjectRecord materializes the projection as a record sharing rec's
// buffers. The caller must release the result.
func (p *Projection) ProjectRecord(rec arrow.Record) (arrow.Record, error) {
	if err := fieldsEqualShape(p.source.Fields(), rec.Schema().Fields()); err != nil {
		return nil, &ProjectionError{Path: "<root>", Reason: fmt.Sprintf("record does not match source schema: %v", err)}
	}
	cols := make([]arrow.Array, len(p.mapping))
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()
	for k, src := range p.mapping {
		data := projectData(rec.Column(src).Data(), p.projectors[k], p.schema.Field(k).Type)
		cols[k] = array.MakeFromData(data)
		data.Release()
	}
	return array.NewRecord(p.schema, cols, rec.NumRows()), nil
}

// projectData returns a new reference to data reshaped to dt.
func projectData(data arrow.ArrayData, proj FieldProjector, dt arrow.DataType) arrow.ArrayData {
	if proj.IsIdentity() {
		data.Retain()
		return data
	}

	var children []arrow.ArrayData
	switch proj.Kind {
	case ProjectStruct:
		st := dt.(*arrow.StructType)
		for k, cp := range proj.Children {
			children = append(children, projectData(data.Children()[cp.Source], cp.Projector, st.Field(k).Type))
		}
	case ProjectList, ProjectLargeList, ProjectFixedSizeList:
		elem := dt.(arrow.ListLikeType).ElemField()
		children = []arrow.ArrayData{projectData(data.Children()[0], *proj.Item, elem.Type)}
	case ProjectMap:
		mt := dt.(*arrow.MapType)
		ed := data.Children()[0]
		kd := projectData(ed.Children()[0], proj.Children[0].Projector, mt.KeyType())
		vd := projectData(ed.Children()[1], proj.Children[1].Projector, mt.ItemType())
		entries := array.NewData(mt.Elem(), ed.Len(), ed.Buffers(), []arrow.ArrayData{kd, vd}, ed.NullN(), ed.Offset())
		kd.Release()
		vd.Release()
		children = []arrow.ArrayData{entries}
	}

	out := array.NewData(dt, data.Len(), data.Buffers(), children, data.NullN(), data.Offset())
	for _, c := range children {
		c.Release()
	}
	return out
}
