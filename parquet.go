package arrowdyn

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// DefaultParquetBatchSize is the number of rows per record read from Parquet.
const DefaultParquetBatchSize = 64 * 1024

// ParquetReader streams records from a Parquet file, reading only the leaf
// columns selected by a projection.
type ParquetReader struct {
	pf     *file.Reader
	rr     pqarrow.RecordReader
	schema *arrow.Schema

	// post reshapes each decoded record to the projected schema.
	post *Projection
	rec  arrow.Record
	err  error
}

// ReadParquet opens a Parquet file for reading. A nil projection reads every
// column; otherwise the file schema must match the projection's source schema
// and records are produced in the projection's schema.
//
// Columns with no selected leaf are not decoded. pqarrow cannot decode part of
// a nested column, so a column with only some leaves selected is decoded whole
// and narrowed afterwards.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker, p *Projection, mem memory.Allocator) (*ParquetReader, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	pf, err := file.NewParquetReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: DefaultParquetBatchSize}, mem)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	var leaves []int
	if p != nil {
		fileSchema, err := fr.Schema()
		if err != nil {
			pf.Close()
			return nil, fmt.Errorf("failed to read parquet schema: %w", err)
		}
		if err := matchFieldNames(p.SourceSchema(), fileSchema); err != nil {
			pf.Close()
			return nil, err
		}
		if !p.LeafMask().All() {
			leaves = columnLeaves(p.SourceSchema(), p.LeafMask())
		}
	}

	rr, err := fr.GetRecordReader(ctx, leaves, nil)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("failed to create record reader: %w", err)
	}

	pr := &ParquetReader{pf: pf, rr: rr, schema: rr.Schema()}
	if p != nil && !rr.Schema().Equal(p.Schema()) {
		post, err := ProjectSchema(rr.Schema(), p.Schema())
		if err != nil {
			pr.Release()
			return nil, fmt.Errorf("parquet schema does not match projection: %w", err)
		}
		pr.post, pr.schema = post, p.Schema()
	}
	return pr, nil
}

// columnLeaves widens mask to whole top-level columns: every leaf of a column
// with at least one selected leaf, in file order.
func columnLeaves(schema *arrow.Schema, mask LeafMask) []int {
	paths := LeafPaths(schema)
	touched := make([]bool, schema.NumFields())
	for i, path := range paths {
		if mask.Selected(i) {
			touched[path[0]] = true
		}
	}
	leaves := make([]int, 0, len(paths))
	for i, path := range paths {
		if touched[path[0]] {
			leaves = append(leaves, i)
		}
	}
	return leaves
}

func matchFieldNames(want, got *arrow.Schema) error {
	if want.NumFields() != got.NumFields() {
		return &ProjectionError{
			Path:   "<root>",
			Reason: fmt.Sprintf("parquet file has %d columns, projection source has %d", got.NumFields(), want.NumFields()),
		}
	}
	for i := range want.Fields() {
		if want.Field(i).Name != got.Field(i).Name {
			return &ProjectionError{
				Path:   want.Field(i).Name,
				Reason: fmt.Sprintf("parquet column %d is named %q", i, got.Field(i).Name),
			}
		}
	}
	return nil
}

// Schema returns the schema of the records produced by the reader.
func (r *ParquetReader) Schema() *arrow.Schema { return r.schema }

// Next advances to the next record.
func (r *ParquetReader) Next() bool {
	if r.rec != nil {
		r.rec.Release()
		r.rec = nil
	}
	if r.err != nil || !r.rr.Next() {
		return false
	}
	if r.post == nil {
		return true
	}
	r.rec, r.err = r.post.ProjectRecord(r.rr.Record())
	return r.err == nil
}

// Record returns the current record. It is valid until the next call to Next.
func (r *ParquetReader) Record() arrow.Record {
	if r.post == nil {
		return r.rr.Record()
	}
	return r.rec
}

// Err returns the first error encountered while reading.
func (r *ParquetReader) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rr.Err()
}

// Release releases the record reader and closes the file.
func (r *ParquetReader) Release() {
	if r.rec != nil {
		r.rec.Release()
		r.rec = nil
	}
	r.rr.Release()
	r.pf.Close()
}

// WriteParquet writes batches sharing one schema as a Parquet file. The Arrow
// schema is stored in the file metadata so reads restore the original types.
func WriteParquet(w io.Writer, schema *arrow.Schema, batches ...*Batch) error {
	writer, err := pqarrow.NewFileWriter(
		schema,
		w,
		parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy)),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()),
	)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	for i, b := range batches {
		if err := writer.Write(b.Record()); err != nil {
			_ = writer.Close()
			return fmt.Errorf("failed to write batch %d: %w", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
