// Package outputs implements the built-in output plugins: stdout,
// drop (a discard sink used for smoke tests and the `test` CLI
// harness's dry runs) and switch (JMESPath-conditioned routing across
// sinks, mirroring the processor switch at the output boundary), each
// a thin wrapper over an io.Writer or a nested output set.
package outputs

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/message"
)

// Stdout writes each message's payload, newline-terminated, to an
// io.Writer (os.Stdout in production).
type Stdout struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdout is a component.Constructor for the "stdout" tag.
func NewStdout(_ any, _ component.Dependencies) (any, error) {
	return &Stdout{w: os.Stdout}, nil
}

// NewStdoutTo builds a Stdout over an arbitrary writer, for tests.
func NewStdoutTo(w io.Writer) *Stdout {
	return &Stdout{w: w}
}

func (s *Stdout) Write(_ context.Context, msg *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(msg.Bytes()); err != nil {
		return err
	}
	_, err := s.w.Write([]byte("\n"))
	return err
}

func (s *Stdout) WriteBatch(ctx context.Context, msgs []*message.Message) error {
	for _, msg := range msgs {
		if err := s.Write(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stdout) Flush(ctx context.Context) error { return nil }
func (s *Stdout) Close(ctx context.Context) error { return nil }
