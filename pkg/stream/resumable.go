// Package stream presents a single logical result stream over possibly
// many underlying RPC attempts, resuming after transient failures from
// the last received resume token.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/corvusdb/corvusdb-go/pkg/wire"
)

// Chunk is one message of the logical stream. Resumption marks the
// first message read after the underlying stream was recreated from a
// resume token; the consumer must discard any buffered state that the
// restarted stream will replay.
type Chunk struct {
	Set        *wire.PartialResultSet
	Resumption bool
}

// ResumableReaderOptions configures a ResumableReader. Zero-value
// fields fall back to the package defaults.
type ResumableReaderOptions struct {
	Retry   RetryPolicy
	Backoff BackoffPolicy

	// Idempotent must be set for the reader to ever retry; resuming a
	// non-idempotent operation is never safe.
	Idempotent bool

	Logger *slog.Logger
}

// ResumableReader reads a logical stream across RPC attempts. It is
// not safe for concurrent use; one goroutine owns the whole stream.
type ResumableReader struct {
	ctx        context.Context
	factory    ReaderFactory
	retry      RetryPolicy
	backoff    BackoffPolicy
	idempotent bool
	logger     *slog.Logger
	streamID   uuid.UUID

	cur       Reader
	lastToken []byte
	resumable bool
	resumed   bool
	final     *status.Status
}

// NewResumableReader opens the first attempt via factory and returns a
// reader for the logical stream.
func NewResumableReader(ctx context.Context, factory ReaderFactory, opts ResumableReaderOptions) (*ResumableReader, error) {
	if opts.Retry == nil {
		opts.Retry = NewTransientRetryPolicy(DefaultMaxAttempts)
	}
	if opts.Backoff == nil {
		opts.Backoff = NewExponentialBackoff()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cur, err := factory(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &ResumableReader{
		ctx:        ctx,
		factory:    factory,
		retry:      opts.Retry,
		backoff:    opts.Backoff,
		idempotent: opts.Idempotent,
		logger:     opts.Logger,
		streamID:   uuid.New(),
		cur:        cur,
		resumable:  true,
	}, nil
}

// Read returns the next chunk of the logical stream, transparently
// recreating the underlying attempt after transient failures. It
// returns io.EOF once the logical stream has ended; Finish reports
// whether it ended cleanly.
func (r *ResumableReader) Read() (*Chunk, error) {
	if r.final != nil {
		return nil, io.EOF
	}
	for {
		set, err := r.cur.Read()
		if err == nil {
			if len(set.ResumeToken) > 0 {
				r.lastToken = set.ResumeToken
				r.resumable = true
			}
			chunk := &Chunk{Set: set, Resumption: r.resumed}
			r.resumed = false
			return chunk, nil
		}
		if !errors.Is(err, io.EOF) {
			r.final = status.New(codes.Internal, err.Error())
			return nil, io.EOF
		}

		st := r.cur.Finish()
		if st.Code() == codes.OK {
			r.final = st
			return nil, io.EOF
		}
		if !r.idempotent || !r.resumable || !r.retry.OnFailure(st) {
			r.final = st
			return nil, io.EOF
		}

		delay := r.backoff.OnCompletion()
		r.logger.Warn("stream attempt failed, resuming",
			"stream_id", r.streamID,
			"code", st.Code(),
			"backoff", delay,
			"has_resume_token", len(r.lastToken) > 0)
		select {
		case <-r.ctx.Done():
			r.final = status.FromContextError(r.ctx.Err())
			return nil, io.EOF
		case <-time.After(delay):
		}

		next, ferr := r.factory(r.ctx, r.lastToken)
		if ferr != nil {
			r.final = status.Convert(ferr)
			return nil, io.EOF
		}
		r.cur = next
		r.resumed = true
	}
}

// Finish returns the terminal status of the logical stream. The first
// call computes the status; subsequent calls return the same value.
func (r *ResumableReader) Finish() *status.Status {
	if r.final == nil {
		r.final = r.cur.Finish()
	}
	return r.final
}

// Cancel tears down the current attempt. Callers abandoning the stream
// mid-read must cancel before calling Finish, or Finish may block on a
// transport still holding buffered data.
func (r *ResumableReader) Cancel() {
	r.cur.Cancel()
}

// DisableResumption marks the stream non-resumable: data has been
// handed to the caller that no resume token covers, so a restart would
// duplicate or lose rows. Transient failures become terminal until a
// new resume token arrives.
func (r *ResumableReader) DisableResumption() {
	r.resumable = false
	r.lastToken = nil
}

// StreamID identifies this logical stream across all of its attempts
// in log output.
func (r *ResumableReader) StreamID() uuid.UUID {
	return r.streamID
}
