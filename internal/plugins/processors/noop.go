// Package processors implements the fixed set of built-in processor
// plugins: the pass-through/reshaping processors (noop, lines,
// compress/decompress/decode), the JMESPath-driven control processors
// (filter, transform, switch, try) and the embedded-language processor
// (fiddlerscript), mixing trivial stdlib-only stages with ones
// wrapping a third-party codec or query library.
package processors

import (
	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/message"
)

// Noop passes every message through unchanged. Useful as a config
// placeholder and in tests.
type Noop struct{}

// NewNoop is a component.Constructor for the "noop" tag.
func NewNoop(_ any, _ component.Dependencies) (any, error) {
	return &Noop{}, nil
}

func (Noop) Process(msg *message.Message) ([]*message.Message, error) {
	return []*message.Message{msg}, nil
}

func (Noop) Close() error { return nil }
