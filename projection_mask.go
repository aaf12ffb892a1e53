package arrowdyn

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
)

// ProjectionMask is a canonical set of projection paths. The zero value keeps
// every column.
type ProjectionMask struct {
	paths []ProjectionPath
}

// NewProjectionMask sorts and deduplicates paths. No paths yields AllColumns.
func NewProjectionMask(paths ...ProjectionPath) ProjectionMask {
	if len(paths) == 0 {
		return AllColumns()
	}
	sorted := make([]ProjectionPath, len(paths))
	for i, p := range paths {
		sorted[i] = append(ProjectionPath(nil), p...)
	}
	sort.Slice(sorted, func(i, j int) bool { return comparePaths(sorted[i], sorted[j]) < 0 })

	out := sorted[:1]
	for _, p := range sorted[1:] {
		if comparePaths(p, out[len(out)-1]) != 0 {
			out = append(out, p)
		}
	}
	return ProjectionMask{paths: out}
}

// AllColumns returns the identity mask.
func AllColumns() ProjectionMask {
	return ProjectionMask{}
}

// IsAll reports whether the mask keeps every column.
func (m ProjectionMask) IsAll() bool {
	return len(m.paths) == 0
}

// Paths returns the canonical paths, or nil for the identity mask.
func (m ProjectionMask) Paths() []ProjectionPath {
	return m.paths
}

// Validate checks that every path addresses a column or nested child of
// schema.
func (m ProjectionMask) Validate(schema *arrow.Schema) error {
	for _, p := range m.paths {
		if err := checkPath(schema, p); err != nil {
			return err
		}
	}
	return nil
}

// Projection derives the projection the mask describes over schema.
func (m ProjectionMask) Projection(schema *arrow.Schema) (*Projection, error) {
	if m.IsAll() {
		cols := make([]int, schema.NumFields())
		for i := range cols {
			cols[i] = i
		}
		return ProjectIndices(schema, cols)
	}
	return ProjectPaths(schema, m.paths)
}

// ToSchema returns the reduced schema keeping only the selected paths and
// their ancestors.
func (m ProjectionMask) ToSchema(schema *arrow.Schema) (*arrow.Schema, error) {
	if m.IsAll() {
		return schema, nil
	}
	p, err := ProjectPaths(schema, m.paths)
	if err != nil {
		return nil, err
	}
	return p.Schema(), nil
}

// LeafIndices returns the selected positions in schema's flattened leaf
// order, the column indices a Parquet reader expects. It returns nil when
// every leaf is selected.
func (m ProjectionMask) LeafIndices(schema *arrow.Schema) ([]int, error) {
	if m.IsAll() {
		return nil, nil
	}
	p, err := ProjectPaths(schema, m.paths)
	if err != nil {
		return nil, err
	}
	if p.LeafMask().All() {
		return nil, nil
	}
	return p.LeafMask().Indices(), nil
}

func comparePaths(a, b ProjectionPath) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
