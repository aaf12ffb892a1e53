package arrowdyn_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/fwojciec/arrowdyn"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "type_mismatch",
			err:  &arrowdyn.TypeMismatchError{Path: "user.name", Expected: "utf8", Actual: "int64"},
			want: "type mismatch at user.name: expected utf8, got int64",
		},
		{
			name: "nullability",
			err:  &arrowdyn.NullabilityError{Column: 2, Path: "l[]", Row: 5, Message: "null in non-nullable field"},
			want: "nullability violation in column 2 at l[] (row 5): null in non-nullable field",
		},
		{
			name: "out_of_bounds",
			err:  &arrowdyn.OutOfBoundsError{Path: "tags", Index: 3, Bound: 2},
			want: "index 3 out of bounds at tags (length 2)",
		},
		{
			name: "projection",
			err:  &arrowdyn.ProjectionError{Path: "m", Reason: "map projection must keep both key and value"},
			want: "invalid projection at m: map projection must keep both key and value",
		},
		{
			name: "unsupported_shape",
			err:  &arrowdyn.UnsupportedShapeError{Path: "tags", Reason: "list key component not supported"},
			want: "unsupported shape at tags: list key component not supported",
		},
		{
			name: "arity",
			err:  &arrowdyn.ArityError{Expected: 3, Got: 1},
			want: "row arity mismatch: expected 3 columns, got 1",
		},
		{
			name: "builder",
			err:  &arrowdyn.BuilderError{Path: "u", Message: "union null without a null variant"},
			want: "builder error at u: union null without a null variant",
		},
		{
			name: "builder_wrapped",
			err:  &arrowdyn.BuilderError{Path: "m.keys", Message: "invalid entry", Err: arrowdyn.ErrAbsentMapKey},
			want: "builder error at m.keys: invalid entry: " + arrowdyn.ErrAbsentMapKey.Error(),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestQueryError(t *testing.T) {
	t.Parallel()

	cause := &arrowdyn.ArityError{Expected: 2, Got: 1}
	err := &arrowdyn.QueryError{SQL: "SELECT 1", Operation: "schema_discovery", Err: cause}
	assert.Equal(t, "query failed during schema_discovery: row arity mismatch: expected 2 columns, got 1 (SQL: SELECT 1)", err.Error())

	var arity *arrowdyn.ArityError
	assert.True(t, errors.As(err, &arity))

	long := &arrowdyn.QueryError{SQL: strings.Repeat("x", 150), Operation: "query", Err: errors.New("boom")}
	assert.Contains(t, long.Error(), strings.Repeat("x", 100)+"...")
	assert.NotContains(t, long.Error(), strings.Repeat("x", 101))
}

func TestBuilderErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := &arrowdyn.BuilderError{Path: "m.keys", Message: "invalid entry", Err: arrowdyn.ErrAbsentMapKey}
	assert.True(t, errors.Is(err, arrowdyn.ErrAbsentMapKey))
	assert.False(t, errors.Is(&arrowdyn.BuilderError{Path: "u"}, arrowdyn.ErrAbsentMapKey))
}
