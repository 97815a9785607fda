// Package result turns the chunked streaming read/query responses of
// the CorvusDB wire protocol into an ordered, lazily assembled row
// stream, resuming transparently after transient stream failures.
package result

import (
	"context"
	"errors"
	"log/slog"

	"github.com/corvusdb/corvusdb-go/pkg/stream"
	"github.com/corvusdb/corvusdb-go/pkg/wire"
)

// Done is returned by RowIterator.Next when the stream has delivered
// every row.
var Done = errors.New("corvusdb: no more rows")

// DefaultBufferSizeLimit is the default cap on unacknowledged value
// data buffered in favor of resumability: twice the maximum permitted
// size of a single row.
const DefaultBufferSizeLimit int64 = 200 << 20

// Options configures a row stream.
type Options struct {
	// BufferSizeLimit caps the bytes of value data buffered while
	// waiting for a resume token. Once exceeded, complete rows are
	// delivered anyway and the stream stops being resumable until a
	// new token arrives. Zero means DefaultBufferSizeLimit; a negative
	// limit delivers rows as soon as they are complete.
	BufferSizeLimit int64

	// Retry, Backoff and Idempotent configure stream resumption; see
	// stream.ResumableReaderOptions.
	Retry      stream.RetryPolicy
	Backoff    stream.BackoffPolicy
	Idempotent bool

	Logger *slog.Logger
}

// RowIterator is a single-pass, non-restartable iterator over the rows
// of one streaming read or query. It is not safe for concurrent use.
type RowIterator struct {
	src     *source
	stopped bool
}

// Stream opens a logical result stream via factory and returns an
// iterator over its rows. The caller must either drain the iterator or
// call Stop.
func Stream(ctx context.Context, factory stream.ReaderFactory, opts Options) (*RowIterator, error) {
	if opts.BufferSizeLimit == 0 {
		opts.BufferSizeLimit = DefaultBufferSizeLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	reader, err := stream.NewResumableReader(ctx, factory, stream.ResumableReaderOptions{
		Retry:      opts.Retry,
		Backoff:    opts.Backoff,
		Idempotent: opts.Idempotent,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &RowIterator{src: newSource(reader, opts.BufferSizeLimit, opts.Logger)}, nil
}

// Next returns the next row, blocking while chunks are fetched and
// assembled. It returns Done after the final row, or the terminal
// stream error. Rows already returned stay valid after an error.
func (it *RowIterator) Next() (*Row, error) {
	if it.stopped {
		return nil, Done
	}
	return it.src.nextRow()
}

// Do calls f for every remaining row, then stops the iterator. It
// returns the first error from f or from the stream; Done is not an
// error.
func (it *RowIterator) Do(f func(*Row) error) error {
	defer it.Stop()
	for {
		row, err := it.Next()
		if errors.Is(err, Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := f(row); err != nil {
			return err
		}
	}
}

// Stop releases the stream. It must be called when the iterator is
// abandoned before Done; it is a no-op afterwards.
func (it *RowIterator) Stop() {
	if it.stopped {
		return
	}
	it.stopped = true
	it.src.close()
}

// Metadata returns the result set metadata, or nil until the stream
// has progressed far enough to receive it.
func (it *RowIterator) Metadata() *wire.ResultSetMetadata {
	return it.src.metadata
}

// Stats returns the execution statistics, or nil until the server has
// sent them (typically with the final response).
func (it *RowIterator) Stats() *wire.ResultSetStats {
	return it.src.stats
}
