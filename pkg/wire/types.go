package wire

import "fmt"

// TypeCode identifies the kind of a column value as declared by the
// server in result set metadata.
type TypeCode int32

const (
	TypeCodeUnspecified TypeCode = iota
	TypeCodeBool
	TypeCodeInt64
	TypeCodeFloat64
	TypeCodeString
	TypeCodeBytes
	TypeCodeTimestamp
	TypeCodeDate
	TypeCodeNumeric
	TypeCodeJSON
	TypeCodeArray
	TypeCodeStruct
)

var typeCodeNames = map[TypeCode]string{
	TypeCodeUnspecified: "UNSPECIFIED",
	TypeCodeBool:        "BOOL",
	TypeCodeInt64:       "INT64",
	TypeCodeFloat64:     "FLOAT64",
	TypeCodeString:      "STRING",
	TypeCodeBytes:       "BYTES",
	TypeCodeTimestamp:   "TIMESTAMP",
	TypeCodeDate:        "DATE",
	TypeCodeNumeric:     "NUMERIC",
	TypeCodeJSON:        "JSON",
	TypeCodeArray:       "ARRAY",
	TypeCodeStruct:      "STRUCT",
}

func (c TypeCode) String() string {
	if name, ok := typeCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("TypeCode(%d)", int32(c))
}

// Type describes the type of a column or value. ArrayElementType is set
// only when Code is TypeCodeArray, StructType only when Code is
// TypeCodeStruct.
type Type struct {
	Code             TypeCode
	ArrayElementType *Type
	StructType       *StructType
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Code {
	case TypeCodeArray:
		return fmt.Sprintf("ARRAY<%s>", t.ArrayElementType)
	case TypeCodeStruct:
		return "STRUCT"
	default:
		return t.Code.String()
	}
}

// StructType is an ordered list of named, typed fields. A result set's
// row type is a StructType with one field per column.
type StructType struct {
	Fields []*Field
}

type Field struct {
	Name string
	Type *Type
}

// Convenience constructors, mostly useful when building schemas by hand.

func BoolType() *Type      { return &Type{Code: TypeCodeBool} }
func Int64Type() *Type     { return &Type{Code: TypeCodeInt64} }
func Float64Type() *Type   { return &Type{Code: TypeCodeFloat64} }
func StringType() *Type    { return &Type{Code: TypeCodeString} }
func BytesType() *Type     { return &Type{Code: TypeCodeBytes} }
func TimestampType() *Type { return &Type{Code: TypeCodeTimestamp} }
func DateType() *Type      { return &Type{Code: TypeCodeDate} }
func NumericType() *Type   { return &Type{Code: TypeCodeNumeric} }
func JSONType() *Type      { return &Type{Code: TypeCodeJSON} }

func ArrayType(elem *Type) *Type {
	return &Type{Code: TypeCodeArray, ArrayElementType: elem}
}

func StructTypeOf(fields ...*Field) *StructType {
	return &StructType{Fields: fields}
}

func NewField(name string, t *Type) *Field {
	return &Field{Name: name, Type: t}
}
