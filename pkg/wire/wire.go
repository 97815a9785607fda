// Package wire defines the message types exchanged with the CorvusDB
// streaming read/query API. Values ride the wire as protobuf Value
// unions (structpb); large values may arrive split across consecutive
// PartialResultSet messages.
package wire

import (
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// PartialResultSet is one message of a server-side streaming read or
// query response. A single logical result set is the concatenation of
// every PartialResultSet received on the stream, in order.
type PartialResultSet struct {
	// Metadata carries the row schema and, for read-only work, the
	// transaction descriptor. The server sends it at most once, on the
	// first message of the stream.
	Metadata *ResultSetMetadata

	// Values holds zero or more column values in row-major order. Rows
	// are not aligned to message boundaries.
	Values []*structpb.Value

	// ChunkedValue reports that the last entry of Values is incomplete
	// and must be merged with the first value of the next message.
	ChunkedValue bool

	// ResumeToken, when non-empty, marks a safe restart point: a new
	// stream opened with this token continues immediately after the
	// data delivered up to and including this message.
	ResumeToken []byte

	// Stats carries execution statistics, typically on the final
	// message. When sent more than once the last occurrence wins.
	Stats *ResultSetStats
}

func (p *PartialResultSet) GetMetadata() *ResultSetMetadata {
	if p == nil {
		return nil
	}
	return p.Metadata
}

func (p *PartialResultSet) GetStats() *ResultSetStats {
	if p == nil {
		return nil
	}
	return p.Stats
}

// ResultSetMetadata describes the shape of the rows in a result set.
type ResultSetMetadata struct {
	RowType     *StructType
	Transaction *Transaction
}

// RowTypeFields returns the column fields, or nil when no row type was
// provided.
func (m *ResultSetMetadata) RowTypeFields() []*Field {
	if m == nil || m.RowType == nil {
		return nil
	}
	return m.RowType.Fields
}

// Transaction describes the transaction a read-only stream ran under.
type Transaction struct {
	ID            []byte
	ReadTimestamp *timestamppb.Timestamp
}

// ResultSetStats carries query execution statistics and, for profiled
// queries, the query plan.
type ResultSetStats struct {
	QueryPlan  *structpb.Struct
	QueryStats *structpb.Struct
	RowCount   int64
}
