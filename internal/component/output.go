package component

import (
	"context"
	"time"

	"github.com/rc1405/fiddler/internal/message"
)

// Output is the capability contract satisfied by every output plugin.
// Outputs shared across workers must document their own
// concurrency; the executor makes every Write (or WriteBatch, when the
// plugin declares a BatchPolicy) call from its single output goroutine.
type Output interface {
	// Write emits a single message downstream.
	Write(ctx context.Context, msg *message.Message) error

	// Flush forces any buffered state out. Called once on shutdown;
	// the executor's batching timer delivers batches via WriteBatch.
	Flush(ctx context.Context) error

	// Close releases resources. Must be idempotent.
	Close(ctx context.Context) error
}

// BatchWriter is implemented by outputs that declare a batching
// policy: the executor coalesces successive messages and delivers
// them together instead of one at a time.
type BatchWriter interface {
	Output
	WriteBatch(ctx context.Context, msgs []*message.Message) error
}

// BatchPolicy configures output-side coalescing: a batch is flushed
// when it reaches Count messages or Period has elapsed since the
// oldest buffered message, whichever comes first.
type BatchPolicy struct {
	Count  int
	Period time.Duration
}
