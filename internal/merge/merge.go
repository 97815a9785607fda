// Package merge joins partial values that were split across
// PartialResultSet boundaries.
package merge

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Values merges chunk onto the end of value and returns the combined
// value. Only strings and lists can be chunked by the protocol; lists
// merge recursively, joining the last element of value with the first
// element of chunk at every nesting depth.
//
// The input values may be mutated and must not be used after the call.
func Values(value, chunk *structpb.Value) (*structpb.Value, error) {
	switch v := value.GetKind().(type) {
	case *structpb.Value_StringValue:
		c, ok := chunk.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, mismatchErr(value, chunk)
		}
		return structpb.NewStringValue(v.StringValue + c.StringValue), nil

	case *structpb.Value_ListValue:
		c, ok := chunk.GetKind().(*structpb.Value_ListValue)
		if !ok {
			return nil, mismatchErr(value, chunk)
		}
		head := v.ListValue.GetValues()
		tail := c.ListValue.GetValues()
		if len(head) == 0 {
			return chunk, nil
		}
		if len(tail) == 0 {
			return value, nil
		}
		switch head[len(head)-1].GetKind().(type) {
		case *structpb.Value_StringValue, *structpb.Value_ListValue:
			merged, err := Values(head[len(head)-1], tail[0])
			if err != nil {
				return nil, err
			}
			head[len(head)-1] = merged
			tail = tail[1:]
		}
		v.ListValue.Values = append(head, tail...)
		return value, nil

	default:
		return nil, fmt.Errorf("invalid type %s: only string and list values can be chunked", kindName(value))
	}
}

func mismatchErr(value, chunk *structpb.Value) error {
	return fmt.Errorf("mismatched types: cannot merge %s chunk into %s value", kindName(chunk), kindName(value))
}

func kindName(v *structpb.Value) string {
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
