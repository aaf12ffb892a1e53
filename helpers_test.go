package arrowdyn_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fwojciec/arrowdyn"
	"github.com/stretchr/testify/require"
)

// newAllocator returns a checked allocator that must be empty when the test
// ends. Register it before anything allocating from it so cleanups run first.
func newAllocator(t *testing.T) *memory.CheckedAllocator {
	t.Helper()
	alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { alloc.AssertSize(t, 0) })
	return alloc
}

// buildBatch appends rows and finishes with nullability validation.
func buildBatch(t *testing.T, alloc memory.Allocator, schema *arrow.Schema, rows []arrowdyn.Row, opts ...arrowdyn.BuilderOption) *arrowdyn.Batch {
	t.Helper()
	bb, err := arrowdyn.NewBatchBuilder(schema, alloc, opts...)
	require.NoError(t, err)
	for i, row := range rows {
		require.NoError(t, bb.AppendRow(row), "row %d", i)
	}
	batch, err := bb.TryFinish()
	require.NoError(t, err)
	t.Cleanup(batch.Release)
	return batch
}

// ownedRows reads every row of rec back into cells.
func ownedRows(t *testing.T, rec arrow.Record) []arrowdyn.Row {
	t.Helper()
	rows := arrowdyn.NewRowViews(rec)
	defer rows.Release()

	var out []arrowdyn.Row
	for rows.Next() {
		row, err := rows.Row().ToOwned()
		require.NoError(t, err)
		out = append(out, row)
	}
	return out
}

func nullable(name string, dt arrow.DataType) arrow.Field {
	return arrow.Field{Name: name, Type: dt, Nullable: true}
}

func required(name string, dt arrow.DataType) arrow.Field {
	return arrow.Field{Name: name, Type: dt}
}
