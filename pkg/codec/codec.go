// Package codec decodes wire values into native Go values using the
// column types declared in result set metadata.
//
// Scalar encoding on the wire follows the service conventions: BOOL is
// a protobuf bool, FLOAT64 a protobuf number (with "NaN", "Infinity"
// and "-Infinity" spelled as strings), and INT64, NUMERIC, TIMESTAMP,
// DATE and BYTES are strings (BYTES base64, TIMESTAMP RFC 3339).
package codec

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/corvusdb/corvusdb-go/pkg/wire"
)

// Decode converts v into a native Go value according to t. A wire NULL
// decodes to nil regardless of type. Arrays decode to []any with nil
// entries for NULL elements; structs decode to map[string]any keyed by
// field name.
func Decode(t *wire.Type, v *structpb.Value) (any, error) {
	if t == nil {
		return nil, fmt.Errorf("missing type information")
	}
	if _, ok := v.GetKind().(*structpb.Value_NullValue); ok || v == nil {
		return nil, nil
	}

	switch t.Code {
	case wire.TypeCodeBool:
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return nil, decodeErr(t, v)
		}
		return b.BoolValue, nil

	case wire.TypeCodeInt64:
		s, ok := stringValue(v)
		if !ok {
			return nil, decodeErr(t, v)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot decode %q as INT64: %w", s, err)
		}
		return n, nil

	case wire.TypeCodeFloat64:
		switch k := v.GetKind().(type) {
		case *structpb.Value_NumberValue:
			return k.NumberValue, nil
		case *structpb.Value_StringValue:
			switch k.StringValue {
			case "NaN":
				return math.NaN(), nil
			case "Infinity":
				return math.Inf(1), nil
			case "-Infinity":
				return math.Inf(-1), nil
			}
			return nil, fmt.Errorf("cannot decode %q as FLOAT64", k.StringValue)
		default:
			return nil, decodeErr(t, v)
		}

	case wire.TypeCodeString, wire.TypeCodeNumeric, wire.TypeCodeJSON, wire.TypeCodeDate:
		s, ok := stringValue(v)
		if !ok {
			return nil, decodeErr(t, v)
		}
		return s, nil

	case wire.TypeCodeTimestamp:
		s, ok := stringValue(v)
		if !ok {
			return nil, decodeErr(t, v)
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("cannot decode %q as TIMESTAMP: %w", s, err)
		}
		return ts, nil

	case wire.TypeCodeBytes:
		s, ok := stringValue(v)
		if !ok {
			return nil, decodeErr(t, v)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("cannot decode BYTES: %w", err)
		}
		return b, nil

	case wire.TypeCodeArray:
		list, ok := v.GetKind().(*structpb.Value_ListValue)
		if !ok {
			return nil, decodeErr(t, v)
		}
		elems := list.ListValue.GetValues()
		out := make([]any, 0, len(elems))
		for i, e := range elems {
			d, err := Decode(t.ArrayElementType, e)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			out = append(out, d)
		}
		return out, nil

	case wire.TypeCodeStruct:
		list, ok := v.GetKind().(*structpb.Value_ListValue)
		if !ok {
			return nil, decodeErr(t, v)
		}
		if t.StructType == nil {
			return nil, fmt.Errorf("STRUCT type is missing field information")
		}
		elems := list.ListValue.GetValues()
		if len(elems) != len(t.StructType.Fields) {
			return nil, fmt.Errorf("STRUCT has %d values for %d fields", len(elems), len(t.StructType.Fields))
		}
		out := make(map[string]any, len(elems))
		for i, f := range t.StructType.Fields {
			d, err := Decode(f.Type, elems[i])
			if err != nil {
				return nil, fmt.Errorf("struct field %q: %w", f.Name, err)
			}
			out[f.Name] = d
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported type %s", t)
	}
}

func stringValue(v *structpb.Value) (string, bool) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false
	}
	return s.StringValue, true
}

func decodeErr(t *wire.Type, v *structpb.Value) error {
	return fmt.Errorf("cannot decode %s value as %s", valueKind(v), t)
}

func valueKind(v *structpb.Value) string {
	switch v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return "null"
	case *structpb.Value_BoolValue:
		return "bool"
	case *structpb.Value_NumberValue:
		return "number"
	case *structpb.Value_StringValue:
		return "string"
	case *structpb.Value_ListValue:
		return "list"
	case *structpb.Value_StructValue:
		return "struct"
	default:
		return "unknown"
	}
}
