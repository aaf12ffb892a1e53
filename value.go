package arrowdyn

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"
)

// CellFromValue converts a decoded Go value, such as one returned by
// pgx.Rows.Values, into a cell shaped for dt. nil converts to a nil cell.
//
// Strings accept any JSON-marshalable value; lists accept slices and arrays;
// structs and maps accept map[string]any. Temporal types accept time.Time,
// time.Duration and pgtype.Time, encoded in the type's unit.
func CellFromValue(dt arrow.DataType, v any) (Cell, error) {
	return cellFromValue(dt, v, "<value>")
}

func cellFromValue(dt arrow.DataType, v any, path string) (Cell, error) {
	if v == nil {
		return nil, nil
	}
	mismatch := func() error {
		return &TypeMismatchError{Path: path, Expected: dt.String(), Actual: fmt.Sprintf("%T", v)}
	}

	switch dt.ID() {
	case arrow.DICTIONARY:
		return cellFromValue(dt.(*arrow.DictionaryType).ValueType, v, path)

	case arrow.BOOL:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch()
		}
		return Bool(b), nil

	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		n, ok := toInt64(v)
		if !ok {
			return nil, mismatch()
		}
		return intCell(dt, n, path)

	case arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		n, ok := toUint64(v)
		if !ok {
			return nil, mismatch()
		}
		return uintCell(dt, n, path)

	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		var f float64
		switch x := v.(type) {
		case float32:
			f = float64(x)
		case float64:
			f = x
		default:
			return nil, mismatch()
		}
		switch dt.ID() {
		case arrow.FLOAT16:
			return F16(float16.New(float32(f))), nil
		case arrow.FLOAT32:
			return F32(float32(f)), nil
		}
		return F64(f), nil

	case arrow.STRING, arrow.LARGE_STRING:
		switch x := v.(type) {
		case string:
			return Str(x), nil
		case []byte:
			return Str(string(x)), nil
		}
		// json and jsonb values arrive decoded; store their JSON text.
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T as JSON at %s: %w", v, path, err)
		}
		return Str(b), nil

	case arrow.BINARY, arrow.LARGE_BINARY, arrow.FIXED_SIZE_BINARY:
		switch x := v.(type) {
		case []byte:
			return Bin(x), nil
		case [16]byte:
			return Bin(x[:]), nil
		case string:
			return Bin(x), nil
		}
		return nil, mismatch()

	case arrow.DATE32:
		t, ok := v.(time.Time)
		if !ok {
			return nil, mismatch()
		}
		return I32(arrow.Date32FromTime(t)), nil

	case arrow.DATE64:
		t, ok := v.(time.Time)
		if !ok {
			return nil, mismatch()
		}
		return I64(arrow.Date64FromTime(t)), nil

	case arrow.TIMESTAMP:
		t, ok := v.(time.Time)
		if !ok {
			return nil, mismatch()
		}
		ts, err := arrow.TimestampFromTime(t, dt.(*arrow.TimestampType).Unit)
		if err != nil {
			return nil, fmt.Errorf("timestamp out of range at %s: %w", path, err)
		}
		return I64(ts), nil

	case arrow.TIME32, arrow.TIME64, arrow.DURATION:
		var d time.Duration
		switch x := v.(type) {
		case time.Duration:
			d = x
		case pgtype.Time:
			d = time.Duration(x.Microseconds) * time.Microsecond
		default:
			return nil, mismatch()
		}
		unit := dt.(arrow.TemporalWithUnit).TimeUnit()
		n := int64(d / unit.Multiplier())
		if dt.ID() == arrow.TIME32 {
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, &TypeMismatchError{Path: path, Expected: dt.String(), Actual: fmt.Sprintf("%d (out of range)", n)}
			}
			return I32(n), nil
		}
		return I64(n), nil

	case arrow.LIST, arrow.LARGE_LIST, arrow.FIXED_SIZE_LIST:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, mismatch()
		}
		elem := dt.(arrow.ListLikeType).Elem()
		items := make([]Cell, rv.Len())
		for i := range items {
			c, err := cellFromValue(elem, rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			items[i] = c
		}
		if dt.ID() == arrow.FIXED_SIZE_LIST {
			return FixedSizeList(items), nil
		}
		return List(items), nil

	case arrow.STRUCT:
		if iv, ok := v.(pgtype.Interval); ok {
			return intervalCell(dt, iv, path)
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch()
		}
		st := dt.(*arrow.StructType)
		out := make(Struct, st.NumFields())
		for i, f := range st.Fields() {
			c, err := cellFromValue(f.Type, m[f.Name], path+"."+f.Name)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil

	case arrow.MAP:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch()
		}
		mt := dt.(*arrow.MapType)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Map, len(keys))
		for i, k := range keys {
			kc, err := cellFromValue(mt.KeyType(), k, path+".<key>")
			if err != nil {
				return nil, err
			}
			vc, err := cellFromValue(mt.ItemType(), m[k], path+".<value>")
			if err != nil {
				return nil, err
			}
			out[i] = MapEntry{Key: kc, Value: vc}
		}
		return out, nil
	}

	return nil, &UnsupportedShapeError{Path: path, Reason: fmt.Sprintf("no conversion from %T to %s", v, dt)}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float64:
		// JSON numbers decode as float64; accept integral values only.
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	}
	if n, ok := toInt64(v); ok && n >= 0 {
		return uint64(n), true
	}
	return 0, false
}

func intCell(dt arrow.DataType, n int64, path string) (Cell, error) {
	var lo, hi int64
	switch dt.ID() {
	case arrow.INT8:
		lo, hi = math.MinInt8, math.MaxInt8
	case arrow.INT16:
		lo, hi = math.MinInt16, math.MaxInt16
	case arrow.INT32:
		lo, hi = math.MinInt32, math.MaxInt32
	default:
		return I64(n), nil
	}
	if n < lo || n > hi {
		return nil, &TypeMismatchError{Path: path, Expected: dt.String(), Actual: fmt.Sprintf("%d (out of range)", n)}
	}
	switch dt.ID() {
	case arrow.INT8:
		return I8(n), nil
	case arrow.INT16:
		return I16(n), nil
	}
	return I32(n), nil
}

func uintCell(dt arrow.DataType, n uint64, path string) (Cell, error) {
	var hi uint64
	switch dt.ID() {
	case arrow.UINT8:
		hi = math.MaxUint8
	case arrow.UINT16:
		hi = math.MaxUint16
	case arrow.UINT32:
		hi = math.MaxUint32
	default:
		return U64(n), nil
	}
	if n > hi {
		return nil, &TypeMismatchError{Path: path, Expected: dt.String(), Actual: fmt.Sprintf("%d (out of range)", n)}
	}
	switch dt.ID() {
	case arrow.UINT8:
		return U8(n), nil
	case arrow.UINT16:
		return U16(n), nil
	}
	return U32(n), nil
}

// intervalCell fills the months/days/microseconds struct produced for
// PostgreSQL interval columns.
func intervalCell(dt arrow.DataType, iv pgtype.Interval, path string) (Cell, error) {
	if !arrow.TypeEqual(dt, IntervalType) {
		return nil, &TypeMismatchError{Path: path, Expected: dt.String(), Actual: "pgtype.Interval"}
	}
	if !iv.Valid {
		return nil, nil
	}
	return Struct{I32(iv.Months), I32(iv.Days), I64(iv.Microseconds)}, nil
}
