package stream

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/corvusdb/corvusdb-go/pkg/wire"
)

// GRPCReader adapts one server-streaming RPC to the Reader interface.
// M is the generated response message type of the RPC; convert maps it
// to the wire model.
type GRPCReader[M any] struct {
	stream  grpc.ServerStreamingClient[M]
	convert func(*M) (*wire.PartialResultSet, error)
	cancel  context.CancelFunc
	final   *status.Status
}

// NewGRPCReader wraps an open server stream. cancel must cancel the
// context the stream was opened with.
func NewGRPCReader[M any](
	s grpc.ServerStreamingClient[M],
	cancel context.CancelFunc,
	convert func(*M) (*wire.PartialResultSet, error),
) *GRPCReader[M] {
	return &GRPCReader[M]{stream: s, convert: convert, cancel: cancel}
}

func (r *GRPCReader[M]) Read() (*wire.PartialResultSet, error) {
	if r.final != nil {
		return nil, io.EOF
	}
	msg, err := r.stream.Recv()
	if err != nil {
		r.final = recvStatus(err)
		return nil, io.EOF
	}
	set, err := r.convert(msg)
	if err != nil {
		r.cancel()
		r.final = status.New(codes.Internal, "malformed response: "+err.Error())
		return nil, io.EOF
	}
	return set, nil
}

func (r *GRPCReader[M]) Finish() *status.Status {
	if r.final != nil {
		return r.final
	}
	// The attempt has not terminated yet; drain it so the transport
	// releases its buffers and surfaces the real terminal status.
	for {
		if _, err := r.stream.Recv(); err != nil {
			r.final = recvStatus(err)
			return r.final
		}
	}
}

func (r *GRPCReader[M]) Cancel() {
	r.cancel()
}

func recvStatus(err error) *status.Status {
	if errors.Is(err, io.EOF) {
		return status.New(codes.OK, "")
	}
	return status.Convert(err)
}
