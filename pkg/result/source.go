package result

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/corvusdb/corvusdb-go/internal/merge"
	"github.com/corvusdb/corvusdb-go/pkg/stream"
	"github.com/corvusdb/corvusdb-go/pkg/wire"
)

type sourceState int

const (
	stateReading sourceState = iota
	stateEndOfStream
	stateFinished
)

// source assembles the chunked value stream into complete rows. It
// owns the resumability policy: values are buffered until a resume
// token covers them, so that a restarted stream can replay them without
// the caller ever observing a duplicate, up to bufferLimit bytes.
type source struct {
	reader *stream.ResumableReader
	logger *slog.Logger

	// bufferLimit is the most unacknowledged value data, in bytes,
	// buffered in favor of resumability before rows are delivered
	// without a covering token. Negative delivers eagerly.
	bufferLimit int64

	state    sourceState
	metadata *wire.ResultSetMetadata
	stats    *wire.ResultSetStats

	// names and fields are fixed by the first metadata and shared,
	// read-only, by every row this source emits.
	names  []string
	fields []*wire.Field

	pending        []*structpb.Value
	pendingBytes   int64
	backIncomplete bool

	// resumptionAllowed is cleared once rows leave without a covering
	// resume token and restored when a new token is recorded. A
	// resumption signal from the reader while it is cleared means the
	// stream restarted when it was not safe to, which would silently
	// duplicate or lose data.
	resumptionAllowed bool

	ready []*Row
	err   error
}

func newSource(reader *stream.ResumableReader, bufferLimit int64, logger *slog.Logger) *source {
	return &source{
		reader:            reader,
		logger:            logger,
		bufferLimit:       bufferLimit,
		resumptionAllowed: true,
	}
}

// nextRow returns the next assembled row, Done at the end of the
// stream, or the terminal error. Errors are sticky.
func (s *source) nextRow() (*Row, error) {
	if s.err != nil {
		return nil, s.err
	}
	for len(s.ready) == 0 && s.state != stateFinished {
		switch s.state {
		case stateReading:
			chunk, err := s.reader.Read()
			if err != nil {
				// io.EOF is the only error the reader returns; the
				// cause of termination comes from Finish.
				s.state = stateEndOfStream
				continue
			}
			if err := s.process(chunk); err != nil {
				return nil, s.fail(err)
			}
		case stateEndOfStream:
			if err := s.flushRemainder(); err != nil {
				return nil, s.fail(err)
			}
			s.state = stateFinished
		}
	}

	if len(s.ready) > 0 {
		row := s.ready[0]
		s.ready[0] = nil
		s.ready = s.ready[1:]
		return row, nil
	}

	if st := s.reader.Finish(); st.Err() != nil {
		return nil, s.fail(st.Err())
	}
	s.err = Done
	return nil, Done
}

// process absorbs one chunk of the stream, buffering its values and
// moving complete rows to the ready queue when a resume token or the
// buffer limit says to.
func (s *source) process(chunk *stream.Chunk) error {
	set := chunk.Set

	if md := set.GetMetadata(); md != nil {
		if s.metadata == nil {
			s.metadata = md
			s.fields = md.RowTypeFields()
			s.names = lo.Map(s.fields, func(f *wire.Field, _ int) string { return f.Name })
		} else {
			s.logger.Warn("duplicate metadata received, keeping the first",
				"stream_id", s.reader.StreamID())
		}
	}
	if st := set.GetStats(); st != nil {
		if s.stats != nil {
			s.logger.Warn("duplicate stats received, keeping the last",
				"stream_id", s.reader.StreamID())
		}
		s.stats = st
	}

	if chunk.Resumption {
		if !s.resumptionAllowed {
			return errors.New("internal error: stream resumed after resumability was disabled")
		}
		// The restarted stream replays everything after the token, so
		// any unacknowledged buffered state is stale.
		s.pending = s.pending[:0]
		s.pendingBytes = 0
		s.backIncomplete = false
	}

	if set.ChunkedValue && len(set.Values) == 0 {
		return errors.New("response had chunked_value set but contained no values")
	}
	if s.backIncomplete && len(set.Values) == 0 {
		return errors.New("response contained no values to merge with prior chunked_value")
	}

	if len(set.Values) > 0 {
		values := set.Values
		if s.backIncomplete {
			last := s.pending[len(s.pending)-1]
			lastSize := int64(proto.Size(last))
			merged, err := merge.Values(last, values[0])
			if err != nil {
				return err
			}
			s.pending[len(s.pending)-1] = merged
			s.pendingBytes += int64(proto.Size(merged)) - lastSize
			values = values[1:]
		}
		for _, v := range values {
			s.pending = append(s.pending, v)
			s.pendingBytes += int64(proto.Size(v))
		}
		s.backIncomplete = set.ChunkedValue
	}

	complete := len(s.pending)
	if s.backIncomplete {
		complete--
	}
	numCols := len(s.names)
	if numCols == 0 {
		if len(s.pending) > 0 {
			return errors.New("internal error: missing row type information")
		}
		return nil
	}
	deliverable := complete / numCols

	if len(set.ResumeToken) == 0 && s.pendingBytes < s.bufferLimit {
		// No token yet and the buffer is still affordable: keep
		// reading so a transient failure stays recoverable.
		return nil
	}

	if len(set.ResumeToken) > 0 {
		if deliverable*numCols != complete {
			return errors.New("internal error: resume token not at a row boundary")
		}
		s.resumptionAllowed = true
	} else if deliverable > 0 {
		// Rows are about to leave that no token covers; a restart from
		// any earlier point would hand them out twice.
		s.resumptionAllowed = false
		s.reader.DisableResumption()
		s.logger.Warn("resumability disabled: buffer limit reached before a resume token arrived",
			"stream_id", s.reader.StreamID(),
			"buffered", humanize.Bytes(uint64(s.pendingBytes)))
	}

	s.deliver(deliverable)
	return nil
}

// deliver moves n complete rows from the pending buffer to the ready
// queue, leaving any remainder buffered.
func (s *source) deliver(n int) {
	numCols := len(s.names)
	used := n * numCols
	for i := 0; i < used; i += numCols {
		values := make([]*structpb.Value, numCols)
		copy(values, s.pending[i:i+numCols])
		for _, v := range values {
			s.pendingBytes -= int64(proto.Size(v))
		}
		s.ready = append(s.ready, &Row{names: s.names, fields: s.fields, values: values})
	}
	remaining := copy(s.pending, s.pending[used:])
	for i := remaining; i < len(s.pending); i++ {
		s.pending[i] = nil
	}
	s.pending = s.pending[:remaining]
}

// flushRemainder delivers whatever complete rows are still buffered
// once the stream has ended. The final response does not always carry
// a resume token, so this flush ignores resumability.
func (s *source) flushRemainder() error {
	if s.backIncomplete {
		return errors.New("incomplete chunked_value at end of stream")
	}
	if len(s.pending) == 0 {
		return nil
	}
	numCols := len(s.names)
	if numCols == 0 {
		return errors.New("internal error: missing row type information")
	}
	if len(s.pending)%numCols != 0 {
		return fmt.Errorf("incomplete row at end of stream: %d values for %d columns", len(s.pending), numCols)
	}
	s.deliver(len(s.pending) / numCols)
	return nil
}

// fail records err as the terminal state of the source, cancelling the
// underlying stream if it is still active.
func (s *source) fail(err error) error {
	if s.state == stateReading {
		s.reader.Cancel()
	}
	s.err = err
	s.state = stateFinished
	return err
}

// close abandons the source. A source still reading cancels the
// underlying stream before finishing it; a stream with buffered
// transport data can otherwise block Finish forever.
func (s *source) close() {
	if s.state == stateReading {
		s.reader.Cancel()
	}
	st := s.reader.Finish()
	s.logger.Debug("stream closed",
		"stream_id", s.reader.StreamID(),
		"code", st.Code())
	s.state = stateFinished
}
