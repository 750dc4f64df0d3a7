package component

import (
	"github.com/rc1405/fiddler/internal/message"
)

// Processor is the capability contract satisfied by every processor
// plugin. Process is a pure function of msg: implementations
// may hold internal state (e.g. a compiled script AST) but must be
// safe for concurrent invocation from multiple workers, since a
// single processor instance is shared by the whole worker pool unless
// it implements PerWorkerFactory (see below).
type Processor interface {
	// Process returns zero or more derived messages, or an error.
	// Returning zero messages filters the input message (a
	// successful completion for ack purposes). Returning
	// ErrConditionalCheckFailed is only meaningful inside `switch`/
	// `try` containers, which use it to move to the next branch.
	Process(msg *message.Message) ([]*message.Message, error)

	// Close releases any resources held by the processor.
	Close() error
}

// PerWorkerFactory is implemented by processors whose internal state
// (most notably fiddlerscript's interpreter) is not safe for
// concurrent use. The executor calls NewPerWorker once per worker instead of
// sharing a single Processor instance.
type PerWorkerFactory interface {
	NewPerWorker() (Processor, error)
}
