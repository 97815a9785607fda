package stream

import (
	"context"
	"time"

	"google.golang.org/grpc/status"

	"github.com/corvusdb/corvusdb-go/pkg/wire"
)

// Reader is one attempt of a streaming read or query RPC.
type Reader interface {
	// Read returns the next message of the attempt, or io.EOF once the
	// attempt has terminated for any reason. The cause of termination
	// is reported by Finish.
	Read() (*wire.PartialResultSet, error)

	// Finish returns the terminal status of the attempt. It must only
	// be called after Read has returned io.EOF, or after Cancel.
	Finish() *status.Status

	// Cancel tears down the attempt, releasing any transport buffers.
	// A cancelled attempt still answers Finish.
	Cancel()
}

// ReaderFactory opens a new stream attempt. A nil or empty resumeToken
// starts the stream from the beginning; otherwise the stream continues
// immediately after the data the token covers.
type ReaderFactory func(ctx context.Context, resumeToken []byte) (Reader, error)

// RetryPolicy decides whether a failed attempt should be retried.
type RetryPolicy interface {
	// OnFailure records one failure and reports whether the stream
	// should be retried.
	OnFailure(st *status.Status) bool

	// IsExhausted reports whether the policy has given up.
	IsExhausted() bool

	// Clone returns a fresh policy with the same configuration and no
	// accumulated failures.
	Clone() RetryPolicy
}

// BackoffPolicy produces the delay to sleep before the next attempt.
type BackoffPolicy interface {
	OnCompletion() time.Duration
	Clone() BackoffPolicy
}
