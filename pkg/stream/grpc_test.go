package stream

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/corvusdb/corvusdb-go/pkg/wire"
)

// rawResult stands in for a generated response message type.
type rawResult struct {
	values []string
	token  string
	bad    bool
}

type fakeServerStream struct {
	grpc.ClientStream
	msgs []*rawResult
	err  error
	idx  int
}

func (s *fakeServerStream) Recv() (*rawResult, error) {
	if s.idx >= len(s.msgs) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	msg := s.msgs[s.idx]
	s.idx++
	return msg, nil
}

func convertRaw(m *rawResult) (*wire.PartialResultSet, error) {
	if m.bad {
		return nil, errors.New("unknown field")
	}
	set := &wire.PartialResultSet{ResumeToken: []byte(m.token)}
	for _, v := range m.values {
		set.Values = append(set.Values, structpb.NewStringValue(v))
	}
	return set, nil
}

func TestGRPCReader_ReadsUntilEOF(t *testing.T) {
	cancelled := false
	r := NewGRPCReader(
		&fakeServerStream{msgs: []*rawResult{{values: []string{"a"}, token: "t1"}, {values: []string{"b"}}}},
		func() { cancelled = true },
		convertRaw,
	)

	set, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("t1"), set.ResumeToken)

	_, err = r.Read()
	require.NoError(t, err)

	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, codes.OK, r.Finish().Code())
	assert.False(t, cancelled)
}

func TestGRPCReader_TerminalStatusFromRecv(t *testing.T) {
	r := NewGRPCReader(
		&fakeServerStream{err: status.Error(codes.Unavailable, "connection reset")},
		func() {},
		convertRaw,
	)

	_, err := r.Read()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, codes.Unavailable, r.Finish().Code())
}

func TestGRPCReader_ConvertFailureCancelsStream(t *testing.T) {
	cancelled := false
	r := NewGRPCReader(
		&fakeServerStream{msgs: []*rawResult{{bad: true}}},
		func() { cancelled = true },
		convertRaw,
	)

	_, err := r.Read()
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, cancelled)
	assert.Equal(t, codes.Internal, r.Finish().Code())
	assert.Contains(t, r.Finish().Message(), "malformed response")
}

func TestGRPCReader_FinishDrainsUnconsumedStream(t *testing.T) {
	r := NewGRPCReader(
		&fakeServerStream{
			msgs: []*rawResult{{values: []string{"a"}}, {values: []string{"b"}}},
			err:  status.Error(codes.Canceled, "client cancelled"),
		},
		func() {},
		convertRaw,
	)

	st := r.Finish()
	assert.Equal(t, codes.Canceled, st.Code())
}
