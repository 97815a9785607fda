package result

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/corvusdb/corvusdb-go/pkg/codec"
	"github.com/corvusdb/corvusdb-go/pkg/wire"
)

// Row is one row of a result set. Rows from the same stream share one
// read-only column list; the values belong exclusively to the row.
//
// Column values decode lazily: a value that does not match its declared
// type fails the accessing call, not the stream, and other columns and
// rows stay readable.
type Row struct {
	names  []string
	fields []*wire.Field
	values []*structpb.Value
}

// Size returns the number of columns.
func (r *Row) Size() int {
	return len(r.values)
}

// ColumnNames returns the column names in positional order.
func (r *Row) ColumnNames() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// ColumnIndex returns the position of the named column.
func (r *Row) ColumnIndex(name string) (int, error) {
	for i, n := range r.names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no column named %q", name)
}

// ColumnType returns the declared type of column i.
func (r *Row) ColumnType(i int) (*wire.Type, error) {
	if err := r.checkIndex(i); err != nil {
		return nil, err
	}
	return r.fields[i].Type, nil
}

// ColumnValue returns the raw wire value of column i, undecoded.
func (r *Row) ColumnValue(i int) (*structpb.Value, error) {
	if err := r.checkIndex(i); err != nil {
		return nil, err
	}
	return r.values[i], nil
}

// Column decodes column i into dest. See codec.DecodeInto for the
// supported destination types.
func (r *Row) Column(i int, dest any) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	if err := codec.DecodeInto(r.fields[i].Type, r.values[i], dest); err != nil {
		return fmt.Errorf("column %d (%s): %w", i, r.names[i], err)
	}
	return nil
}

// ColumnByName decodes the named column into dest.
func (r *Row) ColumnByName(name string, dest any) error {
	i, err := r.ColumnIndex(name)
	if err != nil {
		return err
	}
	return r.Column(i, dest)
}

// Value decodes column i into a native Go value.
func (r *Row) Value(i int) (any, error) {
	if err := r.checkIndex(i); err != nil {
		return nil, err
	}
	v, err := codec.Decode(r.fields[i].Type, r.values[i])
	if err != nil {
		return nil, fmt.Errorf("column %d (%s): %w", i, r.names[i], err)
	}
	return v, nil
}

// Values decodes every column in positional order.
func (r *Row) Values() ([]any, error) {
	out := make([]any, len(r.values))
	for i := range r.values {
		v, err := r.Value(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *Row) checkIndex(i int) error {
	if i < 0 || i >= len(r.values) {
		return fmt.Errorf("column index %d out of range [0, %d)", i, len(r.values))
	}
	return nil
}
