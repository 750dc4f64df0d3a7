package processors

import (
	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/message"
)

// Try runs Chain against a message; any processor error re-runs the
// original, unmodified message through Catch instead, except
// ErrConditionalCheckFailed, which propagates uncaught so a `check`
// nested inside Chain can still veto the message the way it would
// outside a Try. A Try with an empty Catch simply drops the message on
// failure, counted as a process error like any uncaught one.
type Try struct {
	Chain []component.Processor
	Catch []component.Processor
}

// NewTry builds a Try from already-constructed chains, mirroring
// NewSwitch: nested construction needs the plugin registry and is done
// by the register package.
func NewTry(chain, catch []component.Processor) *Try {
	return &Try{Chain: chain, Catch: catch}
}

func (t *Try) Process(msg *message.Message) ([]*message.Message, error) {
	out, err := runNestedChain(msg.Clone(), t.Chain)
	if err == nil {
		return out, nil
	}
	if component.IsConditionalCheckFailed(err) {
		return nil, err
	}
	if len(t.Catch) == 0 {
		return nil, err
	}
	return runNestedChain(msg, t.Catch)
}

func (t *Try) Close() error {
	var firstErr error
	for _, p := range append(append([]component.Processor{}, t.Chain...), t.Catch...) {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
