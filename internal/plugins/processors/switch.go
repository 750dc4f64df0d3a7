package processors

import (
	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/message"
)

// SwitchBranch is one JMESPath-conditioned case: when Query evaluates
// truthy against a message's JSON payload, the message runs through
// Chain instead of any later branch.
type SwitchBranch struct {
	Query string
	Chain []component.Processor
}

// Switch evaluates its branches in order and routes the message
// through the first whose Query matches. A branch chain may
// signal ErrConditionalCheckFailed to defer to the next branch instead
// of committing to this one. A message matching no branch passes
// through unchanged.
type Switch struct {
	branches []SwitchBranch
}

// NewSwitch builds a Switch from already-constructed branch chains.
// Nested processor construction requires the plugin registry, so this
// is called directly by the register package's "switch" constructor
// rather than being registered as a component.Constructor itself.
func NewSwitch(branches []SwitchBranch) *Switch {
	return &Switch{branches: branches}
}

func (s *Switch) Process(msg *message.Message) ([]*message.Message, error) {
	for _, b := range s.branches {
		matched, err := evalQuery(b.Query, jsonDoc(msg.Bytes()))
		if err != nil {
			return nil, err
		}
		if !matched.Truthy() {
			continue
		}
		out, err := runNestedChain(msg, b.Chain)
		if err != nil {
			if component.IsConditionalCheckFailed(err) {
				continue
			}
			return nil, err
		}
		return out, nil
	}
	return []*message.Message{msg}, nil
}

func (s *Switch) Close() error {
	var firstErr error
	for _, b := range s.branches {
		for _, p := range b.Chain {
			if err := p.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// runNestedChain applies a processor chain to msg the same way the
// executor does but without ack-token bookkeeping, since the
// enclosing switch/try's own Process return value is what the
// executor forks on.
func runNestedChain(msg *message.Message, chain []component.Processor) ([]*message.Message, error) {
	cur := []*message.Message{msg}
	for _, proc := range chain {
		var next []*message.Message
		for _, m := range cur {
			out, err := proc.Process(m)
			if err != nil {
				return nil, err
			}
			next = append(next, out...)
		}
		cur = next
		if len(cur) == 0 {
			break
		}
	}
	return cur, nil
}
