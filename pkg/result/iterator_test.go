package result

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/corvusdb/corvusdb-go/pkg/stream"
	"github.com/corvusdb/corvusdb-go/pkg/wire"
)

type fakeReader struct {
	sets      []*wire.PartialResultSet
	status    *status.Status
	idx       int
	cancelled bool
}

func (r *fakeReader) Read() (*wire.PartialResultSet, error) {
	if r.idx >= len(r.sets) {
		return nil, io.EOF
	}
	set := r.sets[r.idx]
	r.idx++
	return set, nil
}

func (r *fakeReader) Finish() *status.Status { return r.status }

func (r *fakeReader) Cancel() { r.cancelled = true }

type fakeFactory struct {
	attempts []*fakeReader
	calls    int
}

func (f *fakeFactory) new(_ context.Context, _ []byte) (stream.Reader, error) {
	r := f.attempts[f.calls]
	f.calls++
	return r, nil
}

func okReader(sets ...*wire.PartialResultSet) *fakeReader {
	return &fakeReader{sets: sets, status: status.New(codes.OK, "")}
}

func failingReader(code codes.Code, sets ...*wire.PartialResultSet) *fakeReader {
	return &fakeReader{sets: sets, status: status.New(code, code.String())}
}

func stringMetadata(cols ...string) *wire.ResultSetMetadata {
	st := &wire.StructType{}
	for _, c := range cols {
		st.Fields = append(st.Fields, wire.NewField(c, wire.StringType()))
	}
	return &wire.ResultSetMetadata{RowType: st}
}

func strVals(vals ...string) []*structpb.Value {
	out := make([]*structpb.Value, len(vals))
	for i, v := range vals {
		out[i] = structpb.NewStringValue(v)
	}
	return out
}

func testStream(t *testing.T, opts Options, attempts ...*fakeReader) (*RowIterator, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{attempts: attempts}
	if opts.Backoff == nil {
		opts.Backoff = &stream.ExponentialBackoff{Initial: time.Microsecond, Max: time.Microsecond, Multiplier: 1}
	}
	it, err := Stream(context.Background(), factory.new, opts)
	require.NoError(t, err)
	return it, factory
}

func collectStrings(t *testing.T, it *RowIterator) [][]string {
	t.Helper()
	var rows [][]string
	err := it.Do(func(r *Row) error {
		row := make([]string, r.Size())
		for i := range row {
			require.NoError(t, r.Column(i, &row[i]))
		}
		rows = append(rows, row)
		return nil
	})
	require.NoError(t, err)
	return rows
}

func TestRowIterator_RoundTrip(t *testing.T) {
	it, _ := testStream(t, Options{Idempotent: true}, okReader(
		&wire.PartialResultSet{
			Metadata: stringMetadata("id", "name"),
			Values:   strVals("1", "alice", "2"),
		},
		&wire.PartialResultSet{
			Values:      strVals("bob"),
			ResumeToken: []byte("t1"),
		},
	))

	rows := collectStrings(t, it)
	assert.Equal(t, [][]string{{"1", "alice"}, {"2", "bob"}}, rows)
}

func TestRowIterator_DoneIsSticky(t *testing.T) {
	it, _ := testStream(t, Options{}, okReader(
		&wire.PartialResultSet{
			Metadata:    stringMetadata("v"),
			Values:      strVals("only"),
			ResumeToken: []byte("t1"),
		},
	))

	_, err := it.Next()
	require.NoError(t, err)
	_, err = it.Next()
	assert.ErrorIs(t, err, Done)
	_, err = it.Next()
	assert.ErrorIs(t, err, Done)
}

func TestRowIterator_EmptyResultSet(t *testing.T) {
	it, _ := testStream(t, Options{}, okReader(
		&wire.PartialResultSet{Metadata: stringMetadata("v")},
	))

	_, err := it.Next()
	assert.ErrorIs(t, err, Done)
	assert.NotNil(t, it.Metadata())
}

func TestRowIterator_StringChunkedAcrossThreeChunks(t *testing.T) {
	it, _ := testStream(t, Options{}, okReader(
		&wire.PartialResultSet{
			Metadata:     stringMetadata("v"),
			Values:       strVals("par"),
			ChunkedValue: true,
		},
		&wire.PartialResultSet{
			Values:       strVals("tial resu"),
			ChunkedValue: true,
		},
		&wire.PartialResultSet{
			Values:      strVals("lt"),
			ResumeToken: []byte("t1"),
		},
	))

	rows := collectStrings(t, it)
	assert.Equal(t, [][]string{{"partial result"}}, rows)
}

func TestRowIterator_ListChunkedAcrossChunks(t *testing.T) {
	mustList := func(elems ...any) *structpb.Value {
		v, err := structpb.NewValue(elems)
		require.NoError(t, err)
		return v
	}

	md := &wire.ResultSetMetadata{RowType: wire.StructTypeOf(
		wire.NewField("tags", wire.ArrayType(wire.StringType())),
	)}
	it, _ := testStream(t, Options{}, okReader(
		&wire.PartialResultSet{
			Metadata:     md,
			Values:       []*structpb.Value{mustList("a", "b")},
			ChunkedValue: true,
		},
		&wire.PartialResultSet{
			Values:      []*structpb.Value{mustList("c", "d")},
			ResumeToken: []byte("t1"),
		},
	))

	row, err := it.Next()
	require.NoError(t, err)
	var tags []any
	require.NoError(t, row.Column(0, &tags))
	assert.Equal(t, []any{"a", "bc", "d"}, tags)
}

func TestRowIterator_ResumesAtTokenBoundary(t *testing.T) {
	it, factory := testStream(t, Options{Idempotent: true},
		failingReader(codes.Unavailable,
			&wire.PartialResultSet{
				Metadata:    stringMetadata("v"),
				Values:      strVals("row1", "row2"),
				ResumeToken: []byte("t1"),
			},
			// Buffered but never covered by a token; the restarted
			// stream replays it.
			&wire.PartialResultSet{Values: strVals("row3")},
		),
		okReader(
			&wire.PartialResultSet{
				Metadata:    stringMetadata("v"),
				Values:      strVals("row3", "row4"),
				ResumeToken: []byte("t2"),
			},
		),
	)

	rows := collectStrings(t, it)
	assert.Equal(t, [][]string{{"row1"}, {"row2"}, {"row3"}, {"row4"}}, rows)
	assert.Equal(t, 2, factory.calls)
}

func TestRowIterator_ResumesFromBeginning(t *testing.T) {
	it, factory := testStream(t, Options{Idempotent: true},
		failingReader(codes.Unavailable,
			&wire.PartialResultSet{
				Metadata: stringMetadata("v"),
				Values:   strVals("row1"),
			},
		),
		okReader(
			&wire.PartialResultSet{
				Metadata:    stringMetadata("v"),
				Values:      strVals("row1", "row2"),
				ResumeToken: []byte("t1"),
			},
		),
	)

	rows := collectStrings(t, it)
	assert.Equal(t, [][]string{{"row1"}, {"row2"}}, rows)
	assert.Equal(t, 2, factory.calls)
}

func TestRowIterator_TransientErrorAfterResumabilityDisabled(t *testing.T) {
	it, factory := testStream(t, Options{Idempotent: true, BufferSizeLimit: -1},
		failingReader(codes.Unavailable,
			&wire.PartialResultSet{
				Metadata: stringMetadata("v"),
				Values:   strVals("row1"),
			},
		),
	)

	// The buffer limit forces row1 out before any token arrived, so
	// the stream is no longer resumable and the failure surfaces.
	row, err := it.Next()
	require.NoError(t, err)
	var v string
	require.NoError(t, row.Column(0, &v))
	assert.Equal(t, "row1", v)

	_, err = it.Next()
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Convert(err).Code())
	assert.Equal(t, 1, factory.calls)

	// The error is sticky.
	_, err = it.Next()
	assert.Equal(t, codes.Unavailable, status.Convert(err).Code())
}

func TestRowIterator_FlushesBufferedRowsAtEndOfStream(t *testing.T) {
	// No resume token ever arrives; everything is delivered by the
	// end-of-stream flush.
	it, _ := testStream(t, Options{}, okReader(
		&wire.PartialResultSet{
			Metadata: stringMetadata("a", "b"),
			Values:   strVals("1", "2", "3"),
		},
		&wire.PartialResultSet{Values: strVals("4")},
	))

	rows := collectStrings(t, it)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, rows)
}

func TestRowIterator_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name    string
		sets    []*wire.PartialResultSet
		wantErr string
	}{
		{
			name: "chunked_value without values",
			sets: []*wire.PartialResultSet{
				{Metadata: stringMetadata("v"), ChunkedValue: true},
			},
			wantErr: "chunked_value set but contained no values",
		},
		{
			name: "no values to merge with prior chunked_value",
			sets: []*wire.PartialResultSet{
				{Metadata: stringMetadata("v"), Values: strVals("a"), ChunkedValue: true},
				{ResumeToken: []byte("t1")},
			},
			wantErr: "contained no values to merge with prior chunked_value",
		},
		{
			name: "incomplete chunked_value at end of stream",
			sets: []*wire.PartialResultSet{
				{Metadata: stringMetadata("v"), Values: strVals("a"), ChunkedValue: true},
			},
			wantErr: "incomplete chunked_value at end of stream",
		},
		{
			name: "values without row type",
			sets: []*wire.PartialResultSet{
				{Values: strVals("a")},
			},
			wantErr: "missing row type information",
		},
		{
			name: "zero-column metadata with values",
			sets: []*wire.PartialResultSet{
				{Metadata: &wire.ResultSetMetadata{RowType: &wire.StructType{}}, Values: strVals("a")},
			},
			wantErr: "missing row type information",
		},
		{
			name: "resume token off a row boundary",
			sets: []*wire.PartialResultSet{
				{Metadata: stringMetadata("a", "b"), Values: strVals("1", "2", "3"), ResumeToken: []byte("t1")},
			},
			wantErr: "resume token not at a row boundary",
		},
		{
			name: "incomplete row at end of stream",
			sets: []*wire.PartialResultSet{
				{Metadata: stringMetadata("a", "b"), Values: strVals("1", "2", "3")},
			},
			wantErr: "incomplete row at end of stream",
		},
		{
			name: "mismatched merge types",
			sets: []*wire.PartialResultSet{
				{Metadata: stringMetadata("v"), Values: []*structpb.Value{structpb.NewBoolValue(true)}, ChunkedValue: true},
				{Values: strVals("x"), ResumeToken: []byte("t1")},
			},
			wantErr: "invalid type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, _ := testStream(t, Options{}, okReader(tt.sets...))
			_, err := it.Next()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)

			// Protocol errors are terminal and sticky.
			_, err2 := it.Next()
			assert.Equal(t, err, err2)
		})
	}
}

func TestRowIterator_DuplicateMetadataAndStats(t *testing.T) {
	firstMD := stringMetadata("v")
	it, _ := testStream(t, Options{}, okReader(
		&wire.PartialResultSet{
			Metadata: firstMD,
			Values:   strVals("a"),
			Stats:    &wire.ResultSetStats{RowCount: 0},
		},
		&wire.PartialResultSet{
			Metadata:    stringMetadata("other"),
			Values:      strVals("b"),
			ResumeToken: []byte("t1"),
			Stats:       &wire.ResultSetStats{RowCount: 2},
		},
	))

	rows := collectStrings(t, it)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, rows)
	assert.Same(t, firstMD, it.Metadata())
	assert.Equal(t, int64(2), it.Stats().RowCount)
}

func TestRowIterator_StopCancelsActiveStream(t *testing.T) {
	attempt := okReader(
		&wire.PartialResultSet{
			Metadata:    stringMetadata("v"),
			Values:      strVals("a"),
			ResumeToken: []byte("t1"),
		},
		&wire.PartialResultSet{
			Values:      strVals("b"),
			ResumeToken: []byte("t2"),
		},
	)
	it, _ := testStream(t, Options{}, attempt)

	_, err := it.Next()
	require.NoError(t, err)

	it.Stop()
	assert.True(t, attempt.cancelled)

	_, err = it.Next()
	assert.ErrorIs(t, err, Done)
}

func TestRowIterator_TerminalErrorAfterRetriesExhausted(t *testing.T) {
	it, factory := testStream(t,
		Options{Idempotent: true, Retry: stream.NewTransientRetryPolicy(1)},
		failingReader(codes.Unavailable,
			&wire.PartialResultSet{
				Metadata:    stringMetadata("v"),
				Values:      strVals("row1"),
				ResumeToken: []byte("t1"),
			},
		),
		failingReader(codes.Unavailable),
	)

	row, err := it.Next()
	require.NoError(t, err)
	var v string
	require.NoError(t, row.Column(0, &v))
	assert.Equal(t, "row1", v)

	_, err = it.Next()
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Convert(err).Code())
	assert.Equal(t, 2, factory.calls)
}

func TestRowIterator_DecodeErrorDoesNotAbortStream(t *testing.T) {
	md := &wire.ResultSetMetadata{RowType: wire.StructTypeOf(
		wire.NewField("n", wire.Int64Type()),
	)}
	it, _ := testStream(t, Options{}, okReader(
		&wire.PartialResultSet{
			Metadata:    md,
			Values:      strVals("not-a-number", "42"),
			ResumeToken: []byte("t1"),
		},
	))

	bad, err := it.Next()
	require.NoError(t, err)
	var n int64
	assert.ErrorContains(t, bad.Column(0, &n), "INT64")

	good, err := it.Next()
	require.NoError(t, err)
	require.NoError(t, good.Column(0, &n))
	assert.Equal(t, int64(42), n)

	_, err = it.Next()
	assert.ErrorIs(t, err, Done)
}
