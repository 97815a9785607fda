package codec

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/corvusdb/corvusdb-go/pkg/wire"
)

// DecodeInto decodes v according to t and stores the result in dest,
// which must be a non-nil pointer. Nullable columns scan into a
// pointer-to-pointer destination (for example **int64), where NULL
// stores nil. Scanning NULL into a non-pointer destination is an
// error, except *any which receives nil.
func DecodeInto(t *wire.Type, v *structpb.Value, dest any) error {
	val, err := Decode(t, v)
	if err != nil {
		return err
	}

	switch d := dest.(type) {
	case *any:
		*d = val
		return nil
	case *bool:
		return assign(d, val, t)
	case **bool:
		return assignPtr(d, val, t)
	case *int64:
		return assign(d, val, t)
	case **int64:
		return assignPtr(d, val, t)
	case *float64:
		return assign(d, val, t)
	case **float64:
		return assignPtr(d, val, t)
	case *string:
		return assign(d, val, t)
	case **string:
		return assignPtr(d, val, t)
	case *time.Time:
		return assign(d, val, t)
	case **time.Time:
		return assignPtr(d, val, t)
	case *[]byte:
		if val == nil {
			*d = nil
			return nil
		}
		return assign(d, val, t)
	case *[]any:
		return assign(d, val, t)
	case *map[string]any:
		return assign(d, val, t)
	default:
		return fmt.Errorf("unsupported destination type %T", dest)
	}
}

func assign[T any](dest *T, val any, t *wire.Type) error {
	if val == nil {
		return fmt.Errorf("cannot scan NULL %s into %T; use a pointer destination", t, dest)
	}
	typed, ok := val.(T)
	if !ok {
		return fmt.Errorf("cannot scan %s into %T", t, dest)
	}
	*dest = typed
	return nil
}

func assignPtr[T any](dest **T, val any, t *wire.Type) error {
	if val == nil {
		*dest = nil
		return nil
	}
	typed, ok := val.(T)
	if !ok {
		return fmt.Errorf("cannot scan %s into %T", t, dest)
	}
	*dest = &typed
	return nil
}
