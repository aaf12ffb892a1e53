package arrowdyn_test

import (
	"errors"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/fwojciec/arrowdyn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellFromValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		dt    arrow.DataType
		value any
		want  arrowdyn.Cell
	}{
		{"nil", arrow.PrimitiveTypes.Int32, nil, nil},
		{"bool", arrow.FixedWidthTypes.Boolean, true, arrowdyn.Bool(true)},
		{"int16_to_int8", arrow.PrimitiveTypes.Int8, int16(-5), arrowdyn.I8(-5)},
		{"int32", arrow.PrimitiveTypes.Int32, int32(42), arrowdyn.I32(42)},
		{"int64", arrow.PrimitiveTypes.Int64, int64(-7), arrowdyn.I64(-7)},
		{"json_number_as_int", arrow.PrimitiveTypes.Int64, float64(12), arrowdyn.I64(12)},
		{"uint16", arrow.PrimitiveTypes.Uint16, 300, arrowdyn.U16(300)},
		{"float32", arrow.PrimitiveTypes.Float32, float32(1.5), arrowdyn.F32(1.5)},
		{"float64", arrow.PrimitiveTypes.Float64, 2.25, arrowdyn.F64(2.25)},
		{"string", arrow.BinaryTypes.String, "hi", arrowdyn.Str("hi")},
		{"large_string_from_bytes", arrow.BinaryTypes.LargeString, []byte("raw"), arrowdyn.Str("raw")},
		{"json_object_as_text", arrow.BinaryTypes.String, map[string]any{"a": float64(1)}, arrowdyn.Str(`{"a":1}`)},
		{"bytea", arrow.BinaryTypes.Binary, []byte{1, 2}, arrowdyn.Bin{1, 2}},
		{"uuid", &arrow.FixedSizeBinaryType{ByteWidth: 16}, [16]byte{15: 1}, arrowdyn.Bin{15: 1}},
		{"date", arrow.FixedWidthTypes.Date32, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), arrowdyn.I32(19724)},
		{"timestamp", arrow.FixedWidthTypes.Timestamp_us, time.Unix(1700000000, 0).UTC(), arrowdyn.I64(1700000000000000)},
		{"time", arrow.FixedWidthTypes.Time64us, pgtype.Time{Microseconds: 3_600_000_000, Valid: true}, arrowdyn.I64(3_600_000_000)},
		{"duration", arrow.FixedWidthTypes.Duration_ms, time.Second, arrowdyn.I64(1000)},
		{"dictionary", &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int8, ValueType: arrow.BinaryTypes.String}, "x", arrowdyn.Str("x")},
		{"list", arrow.ListOf(arrow.PrimitiveTypes.Int32), []any{int32(1), nil}, arrowdyn.List{arrowdyn.I32(1), nil}},
		{"typed_slice", arrow.ListOf(arrow.BinaryTypes.String), []string{"a", "b"}, arrowdyn.List{arrowdyn.Str("a"), arrowdyn.Str("b")}},
		{"fixed_size_list", arrow.FixedSizeListOf(2, arrow.PrimitiveTypes.Float64), [2]float64{1, 2}, arrowdyn.FixedSizeList{arrowdyn.F64(1), arrowdyn.F64(2)}},
		{
			"struct_from_object",
			arrow.StructOf(nullable("a", arrow.PrimitiveTypes.Int32), nullable("b", arrow.BinaryTypes.String)),
			map[string]any{"a": float64(1)},
			arrowdyn.Struct{arrowdyn.I32(1), nil},
		},
		{
			"map_sorted_by_key",
			arrow.MapOf(arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int64),
			map[string]any{"b": float64(2), "a": float64(1)},
			arrowdyn.Map{
				{Key: arrowdyn.Str("a"), Value: arrowdyn.I64(1)},
				{Key: arrowdyn.Str("b"), Value: arrowdyn.I64(2)},
			},
		},
		{
			"interval",
			arrowdyn.IntervalType,
			pgtype.Interval{Months: 1, Days: 2, Microseconds: 3, Valid: true},
			arrowdyn.Struct{arrowdyn.I32(1), arrowdyn.I32(2), arrowdyn.I64(3)},
		},
		{"invalid_interval", arrowdyn.IntervalType, pgtype.Interval{}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := arrowdyn.CellFromValue(tc.dt, tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCellFromValueErrors(t *testing.T) {
	t.Parallel()

	t.Run("out_of_range", func(t *testing.T) {
		t.Parallel()

		_, err := arrowdyn.CellFromValue(arrow.PrimitiveTypes.Int8, int32(300))
		var mismatch *arrowdyn.TypeMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, "300 (out of range)", mismatch.Actual)

		_, err = arrowdyn.CellFromValue(arrow.PrimitiveTypes.Uint8, -1)
		require.True(t, errors.As(err, &mismatch))

		// 2^31 seconds does not fit a time32.
		_, err = arrowdyn.CellFromValue(arrow.FixedWidthTypes.Time32s, time.Duration(1<<31)*time.Second)
		require.True(t, errors.As(err, &mismatch), "got %T: %v", err, err)
		assert.Equal(t, "2147483648 (out of range)", mismatch.Actual)

		got, err := arrowdyn.CellFromValue(arrow.FixedWidthTypes.Time32s, time.Duration(1<<31-1)*time.Second)
		require.NoError(t, err)
		assert.Equal(t, arrowdyn.I32(1<<31-1), got)
	})

	t.Run("fractional_json_number", func(t *testing.T) {
		t.Parallel()

		_, err := arrowdyn.CellFromValue(arrow.PrimitiveTypes.Int64, 1.5)
		var mismatch *arrowdyn.TypeMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, "float64", mismatch.Actual)
	})

	t.Run("wrong_go_type", func(t *testing.T) {
		t.Parallel()

		_, err := arrowdyn.CellFromValue(arrow.FixedWidthTypes.Boolean, "yes")
		var mismatch *arrowdyn.TypeMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, "<value>", mismatch.Path)
		assert.Equal(t, "string", mismatch.Actual)
	})

	t.Run("nested_path", func(t *testing.T) {
		t.Parallel()

		dt := arrow.StructOf(nullable("tags", arrow.ListOf(arrow.PrimitiveTypes.Int32)))
		_, err := arrowdyn.CellFromValue(dt, map[string]any{"tags": []any{int32(1), "two"}})
		var mismatch *arrowdyn.TypeMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, "<value>.tags[1]", mismatch.Path)
	})

	t.Run("interval_into_other_struct", func(t *testing.T) {
		t.Parallel()

		dt := arrow.StructOf(nullable("months", arrow.PrimitiveTypes.Int32))
		_, err := arrowdyn.CellFromValue(dt, pgtype.Interval{Months: 1, Valid: true})
		var mismatch *arrowdyn.TypeMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, "pgtype.Interval", mismatch.Actual)
	})

	t.Run("unsupported_target", func(t *testing.T) {
		t.Parallel()

		_, err := arrowdyn.CellFromValue(&arrow.Decimal128Type{Precision: 10, Scale: 2}, "1.50")
		var unsupported *arrowdyn.UnsupportedShapeError
		require.True(t, errors.As(err, &unsupported))
		assert.Equal(t, "<value>", unsupported.Path)
	})
}

func TestCellFromValueFeedsBuilder(t *testing.T) {
	t.Parallel()
	alloc := newAllocator(t)

	schema := arrow.NewSchema([]arrow.Field{
		required("id", arrow.PrimitiveTypes.Int32),
		nullable("payload", arrow.StructOf(
			nullable("kind", arrow.BinaryTypes.String),
			nullable("scores", arrow.ListOf(arrow.PrimitiveTypes.Int64)),
		)),
	}, nil)

	decoded := [][]any{
		{int32(1), map[string]any{"kind": "a", "scores": []any{float64(1), float64(2)}}},
		{int32(2), nil},
	}

	bb, err := arrowdyn.NewBatchBuilder(schema, alloc)
	require.NoError(t, err)
	for _, values := range decoded {
		row := make(arrowdyn.Row, len(values))
		for i, v := range values {
			row[i], err = arrowdyn.CellFromValue(schema.Field(i).Type, v)
			require.NoError(t, err)
		}
		require.NoError(t, bb.AppendRow(row))
	}
	batch, err := bb.TryFinish()
	require.NoError(t, err)
	defer batch.Release()

	assert.Equal(t, []arrowdyn.Row{
		{arrowdyn.I32(1), arrowdyn.Struct{arrowdyn.Str("a"), arrowdyn.List{arrowdyn.I64(1), arrowdyn.I64(2)}}},
		{arrowdyn.I32(2), nil},
	}, ownedRows(t, batch.Record()))
}

func TestCreateSchema(t *testing.T) {
	t.Parallel()

	schema, err := arrowdyn.CreateSchema([]arrowdyn.ColumnInfo{
		{Name: "id", OID: arrowdyn.TypeOIDInt4},
		{Name: "uid", OID: arrowdyn.TypeOIDUUID},
		{Name: "doc", OID: arrowdyn.TypeOIDJSONB},
		{Name: "ids", OID: arrowdyn.TypeOIDInt4Array},
		{Name: "at", OID: arrowdyn.TypeOIDTimestamptz},
		{Name: "span", OID: arrowdyn.TypeOIDInterval},
	})
	require.NoError(t, err)

	want := []arrow.DataType{
		arrow.PrimitiveTypes.Int32,
		&arrow.FixedSizeBinaryType{ByteWidth: 16},
		arrow.BinaryTypes.String,
		arrow.ListOf(arrow.PrimitiveTypes.Int32),
		&arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"},
		arrowdyn.IntervalType,
	}
	require.Equal(t, len(want), schema.NumFields())
	for i, dt := range want {
		f := schema.Field(i)
		assert.True(t, arrow.TypeEqual(dt, f.Type), "field %s: got %s", f.Name, f.Type)
		assert.True(t, f.Nullable)
	}

	_, err = arrowdyn.CreateSchema([]arrowdyn.ColumnInfo{{Name: "amount", OID: 1700}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "amount"`)
	assert.Contains(t, err.Error(), "unsupported PostgreSQL type OID: 1700")
}
