package main

import (
	"bytes"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/fwojciec/arrowdyn"
	"github.com/goccy/go-json"
)

// object is a JSON object that keeps its keys in schema order.
type object []member

type member struct {
	Key   string
	Value any
}

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// renderRow converts an owned row into a JSON-encodable object keyed by
// field name.
func renderRow(fields []arrow.Field, row arrowdyn.Row) object {
	out := make(object, len(fields))
	for i, f := range fields {
		out[i] = member{Key: f.Name, Value: renderCell(f.Type, row[i])}
	}
	return out
}

func renderCell(dt arrow.DataType, c arrowdyn.Cell) any {
	if c == nil {
		return nil
	}
	if dict, ok := dt.(*arrow.DictionaryType); ok {
		dt = dict.ValueType
	}

	switch x := c.(type) {
	case arrowdyn.F16:
		return float16.Num(x).Float32()
	case arrowdyn.Str:
		return string(x)
	case arrowdyn.Bin:
		// Encoded as base64.
		return []byte(x)
	case arrowdyn.Struct:
		return renderRow(dt.(*arrow.StructType).Fields(), arrowdyn.Row(x))
	case arrowdyn.List:
		return renderItems(dt.(arrow.ListLikeType).Elem(), x)
	case arrowdyn.FixedSizeList:
		return renderItems(dt.(arrow.ListLikeType).Elem(), x)
	case arrowdyn.Map:
		mt := dt.(*arrow.MapType)
		entries := make([]object, len(x))
		for i, e := range x {
			entries[i] = object{
				{Key: "key", Value: renderCell(mt.KeyType(), e.Key)},
				{Key: "value", Value: renderCell(mt.ItemType(), e.Value)},
			}
		}
		return entries
	case arrowdyn.Union:
		ut := dt.(arrow.UnionType)
		variant := ut.Fields()[ut.ChildIDs()[x.TypeCode]]
		return object{
			{Key: "type_code", Value: x.TypeCode},
			{Key: "variant", Value: variant.Name},
			{Key: "value", Value: renderCell(variant.Type, x.Value)},
		}
	}
	return c
}

func renderItems(elem arrow.DataType, items []arrowdyn.Cell) []any {
	out := make([]any, len(items))
	for i, c := range items {
		out[i] = renderCell(elem, c)
	}
	return out
}
