package outputs

import (
	"context"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/message"
)

// Drop discards every message it receives, acking them without
// producing any observable output. It is registered under the `drop`
// tag only, and is the behaviour the `file` input's `drop` codec
// conceptually matches.
type Drop struct{}

// NewDrop is a component.Constructor for the "drop" tag.
func NewDrop(_ any, _ component.Dependencies) (any, error) {
	return &Drop{}, nil
}

func (Drop) Write(context.Context, *message.Message) error { return nil }
func (Drop) Flush(context.Context) error                   { return nil }
func (Drop) Close(context.Context) error                   { return nil }
