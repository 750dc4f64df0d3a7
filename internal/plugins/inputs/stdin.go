// Package inputs implements the built-in input plugins: stdin (one
// message per line from the process's standard input, associated with
// a single synthetic stream) and file (one message per line, read to
// end of file, with optional on-disk offset persistence committed on
// ack). Both end their stream with EndOfStream at EOF; stdin's acks are
// no-ops.
package inputs

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/message"
)

// Stdin reads newline-delimited messages from an io.Reader (the
// process's os.Stdin in production, anything else in tests). Every
// message read in one Stdin lifetime shares a single synthetic
// stream_id so a run's end is observable via EndOfStream once the
// reader hits EOF.
type Stdin struct {
	r        *bufio.Scanner
	source   io.Reader
	streamID string
	mu       sync.Mutex
	eof      bool
}

// NewStdin is a component.Constructor for the "stdin" tag. cfg is
// unused: stdin takes no options.
func NewStdin(_ any, _ component.Dependencies) (any, error) {
	return &Stdin{source: os.Stdin}, nil
}

// NewStdinFromReader builds a Stdin over an arbitrary reader, for
// tests and for the `test` CLI harness's fixture-driven substitution.
func NewStdinFromReader(r io.Reader) *Stdin {
	return &Stdin{source: r}
}

func (s *Stdin) Open(ctx context.Context) error {
	if s.source == nil {
		return &component.ConnectError{Component: "stdin", Cause: errNoSource}
	}
	s.r = bufio.NewScanner(s.source)
	s.r.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	s.streamID = uuid.NewString()
	return nil
}

func (s *Stdin) Read(ctx context.Context) (*message.Message, message.AckFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eof {
		return nil, nil, context.Canceled
	}
	if !s.r.Scan() {
		if err := s.r.Err(); err != nil {
			return nil, nil, &component.FatalError{Cause: err}
		}
		s.eof = true
		eos := message.NewEndOfStream(s.streamID)
		return eos, noopAck, nil
	}
	line := append([]byte(nil), s.r.Bytes()...)
	msg := message.New(line)
	msg.SetStreamID(s.streamID)
	return msg, noopAck, nil
}

func (s *Stdin) Close(ctx context.Context) error { return nil }

func noopAck(ctx context.Context, err error) error { return nil }
