package arrowdyn_test

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/fwojciec/arrowdyn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNullability(t *testing.T) {
	t.Parallel()

	requiredValues := arrow.MapOf(arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int64)
	requiredValues.SetItemNullable(false)

	denseRequiredVariant := arrow.DenseUnionOf([]arrow.Field{
		required("i", arrow.PrimitiveTypes.Int32),
		nullable("s", arrow.BinaryTypes.String),
	}, []arrow.UnionTypeCode{0, 1})

	tests := []struct {
		name    string
		field   arrow.Field
		rows    []arrowdyn.Row
		wantErr bool
		path    string
		row     int
		message string
	}{
		{
			name:    "top_level_column",
			field:   required("id", arrow.PrimitiveTypes.Int64),
			rows:    []arrowdyn.Row{{arrowdyn.I64(1)}, {arrowdyn.I64(2)}, {nil}},
			wantErr: true,
			path:    "id",
			row:     2,
			message: "null in non-nullable field",
		},
		{
			name:  "struct_child_under_null_parent",
			field: nullable("s", arrow.StructOf(required("a", arrow.PrimitiveTypes.Int32))),
			rows:  []arrowdyn.Row{{arrowdyn.Struct{arrowdyn.I32(1)}}, {nil}},
		},
		{
			name:    "struct_child_under_valid_parent",
			field:   nullable("s", arrow.StructOf(required("a", arrow.PrimitiveTypes.Int32))),
			rows:    []arrowdyn.Row{{arrowdyn.Struct{arrowdyn.I32(1)}}, {nil}, {arrowdyn.Struct{nil}}},
			wantErr: true,
			path:    "s.a",
			row:     2,
		},
		{
			name:    "list_item",
			field:   nullable("l", arrow.ListOfNonNullable(arrow.PrimitiveTypes.Int32)),
			rows:    []arrowdyn.Row{{arrowdyn.List{arrowdyn.I32(1), arrowdyn.I32(2)}}, {nil}, {arrowdyn.List{arrowdyn.I32(3), nil}}},
			wantErr: true,
			path:    "l[]",
			row:     3,
		},
		{
			name: "struct_in_list",
			field: nullable("devices", arrow.ListOf(arrow.StructOf(
				required("id", arrow.PrimitiveTypes.Int64),
				nullable("last_seen", arrow.FixedWidthTypes.Timestamp_us),
			))),
			rows: []arrowdyn.Row{
				{arrowdyn.List{arrowdyn.Struct{arrowdyn.I64(1), nil}, nil}},
				{arrowdyn.List{arrowdyn.Struct{nil, arrowdyn.I64(5)}}},
			},
			wantErr: true,
			path:    "devices[].id",
			row:     2,
		},
		{
			name:  "fixed_size_list_under_null_slot",
			field: nullable("v", arrow.FixedSizeListOfNonNullable(2, arrow.PrimitiveTypes.Float32)),
			rows:  []arrowdyn.Row{{arrowdyn.FixedSizeList{arrowdyn.F32(1), arrowdyn.F32(2)}}, {nil}},
		},
		{
			name:    "map_value",
			field:   nullable("m", requiredValues),
			rows:    []arrowdyn.Row{{arrowdyn.Map{{Key: arrowdyn.Str("a"), Value: arrowdyn.I64(1)}}}, {arrowdyn.Map{{Key: arrowdyn.Str("b"), Value: nil}}}},
			wantErr: true,
			path:    "m.values",
			row:     1,
		},
		{
			name:    "union_variant",
			field:   nullable("u", denseRequiredVariant),
			rows:    []arrowdyn.Row{{arrowdyn.Union{TypeCode: 0, Value: arrowdyn.I32(1)}}, {arrowdyn.Union{TypeCode: 1, Value: arrowdyn.Str("x")}}, {arrowdyn.Union{TypeCode: 0, Value: nil}}},
			wantErr: true,
			path:    "u.i",
			row:     2,
			message: "null in non-nullable variant (type code 0)",
		},
		{
			name:  "union_null_on_required_carrier",
			field: arrowdyn.WithUnionNullVariant(nullable("u", denseRequiredVariant), 0),
			rows:  []arrowdyn.Row{{nil}, {arrowdyn.Union{TypeCode: 1, Value: nil}}},
		},
		{
			name:    "union_level_null_in_required_field",
			field:   arrowdyn.WithUnionNullVariant(required("u", denseRequiredVariant), 1),
			rows:    []arrowdyn.Row{{arrowdyn.Union{TypeCode: 0, Value: arrowdyn.I32(1)}}, {nil}},
			wantErr: true,
			path:    "u",
			row:     1,
			message: "union-level null in non-nullable field",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			alloc := newAllocator(t)

			bb, err := arrowdyn.NewBatchBuilder(arrow.NewSchema([]arrow.Field{tc.field}, nil), alloc)
			require.NoError(t, err)
			for _, row := range tc.rows {
				require.NoError(t, bb.AppendRow(row))
			}
			batch := bb.Finish()
			defer batch.Release()

			err = batch.Validate()
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}

			var nullErr *arrowdyn.NullabilityError
			require.True(t, errors.As(err, &nullErr), "got %T: %v", err, err)
			assert.Equal(t, 0, nullErr.Column)
			assert.Equal(t, tc.path, nullErr.Path)
			assert.Equal(t, tc.row, nullErr.Row)
			if tc.message != "" {
				assert.Equal(t, tc.message, nullErr.Message)
			}
		})
	}
}

func TestValidateNullabilityReportsColumn(t *testing.T) {
	t.Parallel()
	alloc := newAllocator(t)

	schema := arrow.NewSchema([]arrow.Field{
		nullable("a", arrow.PrimitiveTypes.Int32),
		required("b", arrow.BinaryTypes.String),
	}, nil)
	bb, err := arrowdyn.NewBatchBuilder(schema, alloc)
	require.NoError(t, err)
	require.NoError(t, bb.AppendRow(arrowdyn.Row{nil, arrowdyn.Str("x")}))
	require.NoError(t, bb.AppendRow(arrowdyn.Row{arrowdyn.I32(1), nil}))
	batch := bb.Finish()
	defer batch.Release()

	err = arrowdyn.ValidateRecord(batch.Record(), nil)
	var nullErr *arrowdyn.NullabilityError
	require.True(t, errors.As(err, &nullErr))
	assert.Equal(t, 1, nullErr.Column)
	assert.Equal(t, 1, nullErr.Row)
	assert.Equal(t, "nullability violation in column 1 at b (row 1): null in non-nullable field", err.Error())
}

func TestValidateNullabilityShapeErrors(t *testing.T) {
	t.Parallel()
	alloc := newAllocator(t)

	b := array.NewInt32Builder(alloc)
	defer b.Release()
	b.Append(1)
	arr := b.NewArray()
	defer arr.Release()

	schema := arrow.NewSchema([]arrow.Field{required("n", arrow.PrimitiveTypes.Int64)}, nil)

	var arity *arrowdyn.ArityError
	require.True(t, errors.As(arrowdyn.ValidateNullability(schema, nil, nil), &arity))

	var mismatch *arrowdyn.TypeMismatchError
	require.True(t, errors.As(arrowdyn.ValidateNullability(schema, []arrow.Array{arr}, nil), &mismatch))
	assert.Equal(t, "n", mismatch.Path)
}
