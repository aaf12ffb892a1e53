package arrowdyn

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// BatchBuilder appends rows of cells against a runtime schema and assembles
// them into a Batch.
//
// IMPORTANT: BatchBuilder instances are NOT thread-safe. Each instance should
// be used by a single goroutine only; create one builder per goroutine for
// concurrent ingestion.
type BatchBuilder struct {
	schema   *arrow.Schema
	columns  []*ColumnBuilder
	rows     int
	released bool
}

// NewBatchBuilder creates one column builder per schema field.
func NewBatchBuilder(schema *arrow.Schema, mem memory.Allocator, opts ...BuilderOption) (*BatchBuilder, error) {
	cfg := newBuilderConfig(opts)
	columns := make([]*ColumnBuilder, schema.NumFields())
	fields := make([]arrow.Field, schema.NumFields())
	for i, f := range schema.Fields() {
		col, err := newColumnBuilder(mem, i, f, cfg)
		if err != nil {
			// Clean up any builders created so far
			for j := 0; j < i; j++ {
				columns[j].Release()
			}
			return nil, fmt.Errorf("failed to create builder for field %d (%s): %w", i, f.Name, err)
		}
		columns[i] = col
		fields[i] = col.Field()
	}

	md := schema.Metadata()
	return &BatchBuilder{
		schema:  arrow.NewSchema(fields, &md),
		columns: columns,
	}, nil
}

// Schema returns the schema of the batches this builder produces.
func (bb *BatchBuilder) Schema() *arrow.Schema {
	return bb.schema
}

// NumRows returns the number of rows appended since the last finish.
func (bb *BatchBuilder) NumRows() int {
	return bb.rows
}

// AppendRow appends one row. A nil row appends a null to every column. The
// whole row is validated before any column is touched, so a failed append
// leaves the builder unchanged.
func (bb *BatchBuilder) AppendRow(row Row) error {
	if bb.released {
		return &BuilderError{Path: "<batch>", Message: "append after finish", Err: ErrBuilderFinished}
	}
	if row == nil {
		return bb.AppendNullRow()
	}
	if len(row) != len(bb.columns) {
		return &ArityError{Expected: len(bb.columns), Got: len(row)}
	}

	for i, col := range bb.columns {
		if err := checkChild(col.root, row[i]); err != nil {
			return err
		}
	}
	for i, col := range bb.columns {
		if err := appendChild(col.root, row[i]); err != nil {
			return fmt.Errorf("failed to append column %d: %w", i, err)
		}
	}
	bb.rows++
	return nil
}

// AppendNullRow appends a null to every column.
func (bb *BatchBuilder) AppendNullRow() error {
	if bb.released {
		return &BuilderError{Path: "<batch>", Message: "append after finish", Err: ErrBuilderFinished}
	}
	for _, col := range bb.columns {
		if err := col.root.checkNull(); err != nil {
			return err
		}
	}
	for _, col := range bb.columns {
		if err := col.root.appendNull(); err != nil {
			return err
		}
	}
	bb.rows++
	return nil
}

// Finish assembles the batch without nullability validation. It panics if a
// builder invariant was violated.
func (bb *BatchBuilder) Finish() *Batch {
	batch, err := bb.finish()
	if err != nil {
		panic(err)
	}
	return batch
}

// TryFinish assembles the batch and validates it against the schema's
// nullability constraints, returning the first violation.
func (bb *BatchBuilder) TryFinish() (*Batch, error) {
	batch, err := bb.finish()
	if err != nil {
		return nil, err
	}
	if err := batch.Validate(); err != nil {
		batch.Release()
		return nil, err
	}
	return batch, nil
}

func (bb *BatchBuilder) finish() (*Batch, error) {
	if bb.released {
		return nil, &BuilderError{Path: "<batch>", Message: "finish called twice", Err: ErrBuilderFinished}
	}
	defer bb.Release()

	nulls := make(UnionNulls)
	arrays := make([]arrow.Array, 0, len(bb.columns))
	release := func() {
		for _, arr := range arrays {
			arr.Release()
		}
	}
	for _, col := range bb.columns {
		nulls.merge(col.UnionNulls())
		arr, err := col.TryFinish()
		if err != nil {
			release()
			return nil, err
		}
		arrays = append(arrays, arr)
	}

	rec := array.NewRecord(bb.schema, arrays, int64(bb.rows))
	// Release arrays (record has retained them)
	release()

	return &Batch{rec: rec, unionNulls: nulls}, nil
}

// Release releases all column builders. It is called by Finish and TryFinish.
func (bb *BatchBuilder) Release() {
	if bb.released {
		return
	}
	for _, col := range bb.columns {
		col.Release()
	}
	bb.released = true
}

// Batch is an immutable record plus the union-level null rows recorded while
// building it.
type Batch struct {
	rec        arrow.Record
	unionNulls UnionNulls
}

// NewBatch wraps an existing record. unionNulls may be nil.
func NewBatch(rec arrow.Record, unionNulls UnionNulls) *Batch {
	rec.Retain()
	if unionNulls == nil {
		unionNulls = make(UnionNulls)
	}
	return &Batch{rec: rec, unionNulls: unionNulls}
}

// Record returns the underlying record. It is not retained.
func (b *Batch) Record() arrow.Record { return b.rec }

// Schema returns the record's schema.
func (b *Batch) Schema() *arrow.Schema { return b.rec.Schema() }

// NumRows returns the number of rows.
func (b *Batch) NumRows() int64 { return b.rec.NumRows() }

// Column returns column i of the record.
func (b *Batch) Column(i int) arrow.Array { return b.rec.Column(i) }

// UnionNulls returns the union-level null rows of the batch.
func (b *Batch) UnionNulls() UnionNulls { return b.unionNulls }

// Validate checks the batch against its schema's nullability constraints.
func (b *Batch) Validate() error {
	return ValidateRecord(b.rec, b.unionNulls)
}

// RowViews returns a checked row iterator over the batch.
func (b *Batch) RowViews() *RowViews {
	return NewRowViews(b.rec)
}

// Retain increases the record's reference count.
func (b *Batch) Retain() { b.rec.Retain() }

// Release decreases the record's reference count.
func (b *Batch) Release() { b.rec.Release() }

// WriteIPC writes the batch as an Arrow IPC stream.
func (b *Batch) WriteIPC(w io.Writer, mem memory.Allocator) error {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	writer := ipc.NewWriter(w, ipc.WithSchema(b.rec.Schema()), ipc.WithAllocator(mem))
	if err := writer.Write(b.rec); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close IPC writer: %w", err)
	}
	return nil
}

// ReadIPC reads every record of an Arrow IPC stream. The caller owns the
// returned records and must release them.
func ReadIPC(r io.Reader, mem memory.Allocator) ([]arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	reader, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("failed to create IPC reader: %w", err)
	}
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		records = append(records, rec)
	}
	if err := reader.Err(); err != nil {
		for _, rec := range records {
			rec.Release()
		}
		return nil, fmt.Errorf("failed to read IPC stream: %w", err)
	}
	return records, nil
}
