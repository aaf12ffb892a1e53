package arrowdyn

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// RowViews iterates the rows of a record, optionally through a projection.
// It retains the record until Release. Row views it produces borrow the
// record and must not be used after Release.
type RowViews struct {
	rec    arrow.Record
	layout viewLayout
	next   int
}

// viewLayout describes the columns a row view exposes: the visible fields and,
// for projected views, the source column and reshaping rule of each.
type viewLayout struct {
	fields     []arrow.Field
	mapping    []int
	projectors []FieldProjector
}

func identityLayout(schema *arrow.Schema) viewLayout {
	return viewLayout{fields: schema.Fields()}
}

func (l viewLayout) source(col int) (int, FieldProjector) {
	if l.mapping == nil {
		return col, FieldProjector{}
	}
	return l.mapping[col], l.projectors[col]
}

// NewRowViews returns an iterator over every row of rec.
func NewRowViews(rec arrow.Record) *RowViews {
	rec.Retain()
	return &RowViews{rec: rec, layout: identityLayout(rec.Schema())}
}

// NewRowViewsWithSchema checks that rec has exactly schema's field names,
// types and nullability before viewing it.
func NewRowViewsWithSchema(schema *arrow.Schema, rec arrow.Record) (*RowViews, error) {
	if err := fieldsEqualShape(schema.Fields(), rec.Schema().Fields()); err != nil {
		return nil, fmt.Errorf("record does not match schema: %w", err)
	}
	return NewRowViews(rec), nil
}

// RowViews returns an iterator over rec reading through the projection.
// Nothing is copied; reshaping happens as fields are accessed.
func (p *Projection) RowViews(rec arrow.Record) (*RowViews, error) {
	if err := fieldsEqualShape(p.source.Fields(), rec.Schema().Fields()); err != nil {
		return nil, &ProjectionError{Path: "<root>", Reason: fmt.Sprintf("record does not match source schema: %v", err)}
	}
	rec.Retain()
	return &RowViews{rec: rec, layout: p.layout()}, nil
}

func (p *Projection) layout() viewLayout {
	return viewLayout{fields: p.schema.Fields(), mapping: p.mapping, projectors: p.projectors}
}

// Len returns the number of rows.
func (r *RowViews) Len() int { return int(r.rec.NumRows()) }

// Fields returns the visible fields.
func (r *RowViews) Fields() []arrow.Field { return r.layout.fields }

// Next advances to the next row.
func (r *RowViews) Next() bool {
	if r.next >= r.Len() {
		return false
	}
	r.next++
	return true
}

// Row returns the current row. It is only valid after Next returned true.
func (r *RowViews) Row() RowView {
	return RowView{rec: r.rec, layout: r.layout, row: r.next - 1}
}

// At returns row i.
func (r *RowViews) At(i int) (RowView, error) {
	if i < 0 || i >= r.Len() {
		return RowView{}, &OutOfBoundsError{Path: "<rows>", Index: i, Bound: r.Len()}
	}
	return RowView{rec: r.rec, layout: r.layout, row: i}, nil
}

// Release releases the record.
func (r *RowViews) Release() {
	if r.rec != nil {
		r.rec.Release()
		r.rec = nil
	}
}

// RowView borrows one row of a record.
type RowView struct {
	rec    arrow.Record
	layout viewLayout
	row    int
}

// Len returns the number of visible columns.
func (v RowView) Len() int { return len(v.layout.fields) }

// RowIndex returns the row's index in the record.
func (v RowView) RowIndex() int { return v.row }

// Fields returns the visible fields.
func (v RowView) Fields() []arrow.Field { return v.layout.fields }

// Get returns a view of column col, or nil when the value is null.
func (v RowView) Get(col int) (*FieldView, error) {
	if col < 0 || col >= v.Len() {
		return nil, &OutOfBoundsError{Path: fmt.Sprintf("<row %d>", v.row), Index: col, Bound: v.Len()}
	}
	src, proj := v.layout.source(col)
	f := v.layout.fields[col]
	return newFieldView(v.rec.Column(src), v.row, f, f.Name, proj, src)
}

// GetByName returns a view of the first column named name.
func (v RowView) GetByName(name string) (*FieldView, error) {
	for i, f := range v.layout.fields {
		if f.Name == name {
			return v.Get(i)
		}
	}
	return nil, &ProjectionError{Path: name, Reason: "no such column"}
}

// ToOwned deep-copies the row into cells.
func (v RowView) ToOwned() (Row, error) {
	row := make(Row, v.Len())
	for i := range row {
		fv, err := v.Get(i)
		if err != nil {
			return nil, err
		}
		if row[i], err = fv.ToOwned(); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// Project applies p to the row. The row's visible columns must match p's
// source schema. Projecting an already projected row composes the two
// projections as long as no column is reshaped twice.
func (v RowView) Project(p *Projection) (RowView, error) {
	if v.Len() != p.SourceWidth() {
		return RowView{}, &ProjectionError{
			Path:   "<root>",
			Reason: fmt.Sprintf("projection expects %d source columns, row has %d", p.SourceWidth(), v.Len()),
		}
	}
	if err := fieldsEqualShape(p.source.Fields(), v.layout.fields); err != nil {
		return RowView{}, &ProjectionError{Path: "<root>", Reason: fmt.Sprintf("row does not match source schema: %v", err)}
	}
	if v.layout.mapping == nil {
		return RowView{rec: v.rec, layout: p.layout(), row: v.row}, nil
	}

	next := viewLayout{
		fields:     p.schema.Fields(),
		mapping:    make([]int, len(p.mapping)),
		projectors: make([]FieldProjector, len(p.mapping)),
	}
	for k, col := range p.mapping {
		src, outer := v.layout.source(col)
		inner := p.projectors[k]
		if !outer.IsIdentity() && !inner.IsIdentity() {
			return RowView{}, &ProjectionError{Path: p.schema.Field(k).Name, Reason: "column is already reshaped by another projection"}
		}
		next.mapping[k] = src
		next.projectors[k] = inner
		if inner.IsIdentity() {
			next.projectors[k] = outer
		}
	}
	return RowView{rec: v.rec, layout: next, row: v.row}, nil
}
