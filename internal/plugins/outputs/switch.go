package outputs

import (
	"context"

	"github.com/jmespath/go-jmespath"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/message"
	"github.com/rc1405/fiddler/internal/value"
)

// SwitchBranch is one JMESPath-conditioned route: when Query evaluates
// truthy against a message's JSON payload, the message is written to
// Output. Only the anonymous list-of-branches form is accepted at the
// config layer (enforced by the "switch" output's JSON-Schema
// requiring an array, not an object with a `cases` key); Switch
// itself is agnostic to that distinction and just holds branches in
// order.
type SwitchBranch struct {
	Query  string
	Output component.Output
}

// Switch routes each message to the first branch whose Query matches,
// same first-match semantics as the processor switch, just applied at
// the output boundary: the message goes to exactly one sink branch.
type Switch struct {
	branches []SwitchBranch
}

// NewSwitch builds a Switch from already-constructed branch outputs.
// Like the processors package's switch, nested output construction
// needs the plugin registry and is done by the register package.
func NewSwitch(branches []SwitchBranch) *Switch {
	return &Switch{branches: branches}
}

func (s *Switch) Write(ctx context.Context, msg *message.Message) error {
	doc := jsonDoc(msg.Bytes())
	for _, b := range s.branches {
		result, err := jmespath.Search(b.Query, value.ToInterface(doc))
		if err != nil {
			return component.NewProcessingError("switch", err)
		}
		if result == nil || !value.FromInterface(result).Truthy() {
			continue
		}
		return b.Output.Write(ctx, msg)
	}
	return nil
}

func (s *Switch) Flush(ctx context.Context) error {
	for _, b := range s.branches {
		if err := b.Output.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Switch) Close(ctx context.Context) error {
	var firstErr error
	for _, b := range s.branches {
		if err := b.Output.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func jsonDoc(payload []byte) value.Value {
	v, err := value.ParseJSON(payload)
	if err != nil {
		return value.EmptyDict()
	}
	return v
}
