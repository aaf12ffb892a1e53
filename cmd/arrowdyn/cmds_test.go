package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fwojciec/arrowdyn"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "user", Type: arrow.StructOf(
			arrow.Field{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
			arrow.Field{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
		), Nullable: true},
	}, nil)
}

// writeFiles writes the same rows as an IPC stream and, when asked, a Parquet
// file.
func writeFiles(t *testing.T, rows []arrowdyn.Row, withParquet bool) (ipcPath, parquetPath string) {
	t.Helper()
	alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer alloc.AssertSize(t, 0)

	bb, err := arrowdyn.NewBatchBuilder(testSchema(), alloc)
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, bb.AppendRow(row))
	}
	batch := bb.Finish()
	defer batch.Release()

	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, batch.WriteIPC(&buf, alloc))
	ipcPath = filepath.Join(dir, "rows.arrow")
	require.NoError(t, os.WriteFile(ipcPath, buf.Bytes(), 0o644))

	if !withParquet {
		return ipcPath, ""
	}
	buf.Reset()
	require.NoError(t, arrowdyn.WriteParquet(&buf, batch.Schema(), batch))
	parquetPath = filepath.Join(dir, "rows.parquet")
	require.NoError(t, os.WriteFile(parquetPath, buf.Bytes(), 0o644))
	return ipcPath, parquetPath
}

func validRows() []arrowdyn.Row {
	return []arrowdyn.Row{
		{arrowdyn.I64(1), arrowdyn.Struct{arrowdyn.Str("ann"), arrowdyn.List{arrowdyn.Str("a")}}},
		{arrowdyn.I64(2), nil},
	}
}

func TestPrintRows(t *testing.T) {
	t.Parallel()

	ipcPath, parquetPath := writeFiles(t, validRows(), true)

	for name, path := range map[string]string{"ipc": ipcPath, "parquet": parquetPath} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			require.NoError(t, printRows(context.Background(), &out, path, nil, 0, memory.NewGoAllocator()))
			assert.Equal(t,
				`{"id":1,"user":{"name":"ann","tags":["a"]}}`+"\n"+`{"id":2,"user":null}`+"\n",
				out.String())

			out.Reset()
			require.NoError(t, printRows(context.Background(), &out, path, []string{"1.1"}, 1, memory.NewGoAllocator()))
			assert.Equal(t, `{"user":{"tags":["a"]}}`+"\n", out.String())
		})
	}
}

func TestValidateFiles(t *testing.T) {
	t.Parallel()

	good, _ := writeFiles(t, validRows(), false)
	bad, _ := writeFiles(t, []arrowdyn.Row{{nil, nil}}, false)

	var out bytes.Buffer
	err := validateFiles(context.Background(), &out, []string{good, bad}, 2, memory.NewGoAllocator())
	require.Error(t, err)
	assert.Equal(t, "1 of 2 files failed validation", err.Error())
	assert.Contains(t, out.String(), good+": ok\n")
	assert.Contains(t, out.String(), bad+": nullability violation in column 0 at id (row 0)")
}

func TestPrintProjection(t *testing.T) {
	t.Parallel()

	_, parquetPath := writeFiles(t, validRows(), true)

	var out bytes.Buffer
	require.NoError(t, printProjection(context.Background(), &out, parquetPath, []string{"1.0"}, memory.NewGoAllocator()))
	assert.Contains(t, out.String(), "leaves: [1] of 3\n")

	err := printProjection(context.Background(), &out, parquetPath, []string{"1.x"}, memory.NewGoAllocator())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid projection")
}

func TestRenderCell(t *testing.T) {
	t.Parallel()

	dense := arrow.DenseUnionOf([]arrow.Field{
		{Name: "n", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
	}, []arrow.UnionTypeCode{3, 7})

	fields := []arrow.Field{
		{Name: "half", Type: arrow.FixedWidthTypes.Float16},
		{Name: "raw", Type: arrow.BinaryTypes.Binary},
		{Name: "attrs", Type: arrow.MapOf(arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int32)},
		{Name: "choice", Type: dense},
	}
	row := arrowdyn.Row{
		arrowdyn.F16(float16.New(1.5)),
		arrowdyn.Bin{1, 2},
		arrowdyn.Map{{Key: arrowdyn.Str("k"), Value: nil}},
		arrowdyn.Union{TypeCode: 7, Value: arrowdyn.Str("x")},
	}

	got, err := json.Marshal(renderRow(fields, row))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"half":1.5,"raw":"AQI=","attrs":[{"key":"k","value":null}],"choice":{"type_code":7,"variant":"s","value":"x"}}`,
		string(got))
}

func TestPrintSchema(t *testing.T) {
	t.Parallel()

	ipcPath, _ := writeFiles(t, validRows(), false)

	var out bytes.Buffer
	require.NoError(t, printSchema(context.Background(), &out, ipcPath, memory.NewGoAllocator()))
	assert.Contains(t, out.String(), "leaves:\n  0\t0\n  1\t1.0\n  2\t1.1.0\n")

	err := printSchema(context.Background(), &out, filepath.Join(t.TempDir(), "missing.arrow"), memory.NewGoAllocator())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read schema of")
}
