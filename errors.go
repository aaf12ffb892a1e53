package arrowdyn

import "fmt"

// TypeMismatchError reports a value or array whose shape disagrees with the
// expected Arrow type at some path.
type TypeMismatchError struct {
	Path     string // Dotted/bracketed path of the offending node
	Expected string // Expected shape (Arrow type or cell kind)
	Actual   string // Observed shape
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch at %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// NullabilityError reports a null observed at a non-nullable position.
type NullabilityError struct {
	Column  int    // Top-level column index
	Path    string // Path of the non-nullable node
	Row     int    // Row index in the node's own array
	Message string
}

func (e *NullabilityError) Error() string {
	return fmt.Sprintf("nullability violation in column %d at %s (row %d): %s", e.Column, e.Path, e.Row, e.Message)
}

// OutOfBoundsError reports an index beyond a container's length.
type OutOfBoundsError struct {
	Path  string
	Index int
	Bound int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("index %d out of bounds at %s (length %d)", e.Index, e.Path, e.Bound)
}

// ProjectionError reports a path or reduced schema that cannot be mapped onto a
// source schema.
type ProjectionError struct {
	Path   string
	Reason string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("invalid projection at %s: %s", e.Path, e.Reason)
}

// UnsupportedShapeError reports a value shape a conversion cannot express.
type UnsupportedShapeError struct {
	Path   string
	Reason string
}

func (e *UnsupportedShapeError) Error() string {
	return fmt.Sprintf("unsupported shape at %s: %s", e.Path, e.Reason)
}

// ArityError reports a row whose width differs from the schema.
type ArityError struct {
	Expected int
	Got      int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("row arity mismatch: expected %d columns, got %d", e.Expected, e.Got)
}

// BuilderError reports a builder invariant violation detected while appending
// or finishing.
type BuilderError struct {
	Path    string
	Message string
	Err     error // Optional underlying error
}

func (e *BuilderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("builder error at %s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("builder error at %s: %s", e.Path, e.Message)
}

func (e *BuilderError) Unwrap() error {
	return e.Err
}

// QueryError provides detailed context about query execution failures
type QueryError struct {
	SQL       string // The SQL query that failed
	Operation string // Which operation failed (e.g., "schema_discovery", "row_conversion")
	Err       error  // The underlying error
}

func (e *QueryError) Error() string {
	sql := e.SQL
	if len(sql) > 100 {
		sql = sql[:100] + "..."
	}
	return fmt.Sprintf("query failed during %s: %v (SQL: %s)", e.Operation, e.Err, sql)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
