package component

import (
	"context"

	"github.com/rc1405/fiddler/internal/message"
)

// Input is the capability contract satisfied by every input plugin.
// It is deliberately narrow: open a resource, read messages one at a
// time, resolve their ack tokens, and release the resource.
// Concurrency: an Input is owned by exactly one input-reader task, so
// implementations do not need to guard Read/Ack/Nack against
// concurrent callers, only Close against being called from a
// different goroutine during shutdown.
type Input interface {
	// Open initialises resources. May fail with a *ConfigError or
	// *ConnectError.
	Open(ctx context.Context) error

	// Read produces the next Message (which may be an EndOfStream
	// marker) along with an AckFunc the caller must invoke exactly
	// once. Read may block. A *TransientError indicates the caller
	// should back off and retry; a *FatalError indicates the input
	// should be closed and the pipeline shut down.
	Read(ctx context.Context) (*message.Message, message.AckFunc, error)

	// Close releases resources. Must be idempotent.
	Close(ctx context.Context) error
}

// Constructor builds a configured Input, Processor or Output instance
// from a decoded configuration value. The registry uses one
// Constructor per capability per plugin tag.
type Constructor func(config any, deps Dependencies) (any, error)
