package processors

import (
	"bytes"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/config"
	"github.com/rc1405/fiddler/internal/message"
)

// LinesConfig configures the "lines" processor.
type LinesConfig struct {
	// OmitEmpty drops zero-length lines from the fan-out instead of
	// emitting an empty-payload message for them.
	OmitEmpty bool `yaml:"omit_empty"`
}

// Lines splits a message's payload on '\n' and fans out one child
// message per line, each carrying the parent's stream id and a clone
// of its metadata: fan-out shares the ack token, and the executor
// forks it based on how many messages Process returns.
type Lines struct {
	omitEmpty bool
}

// NewLines is a component.Constructor for the "lines" tag.
func NewLines(cfg any, _ component.Dependencies) (any, error) {
	var lc LinesConfig
	if err := config.DecodeInto(cfg, &lc); err != nil {
		return nil, &component.ConfigError{Component: "lines", Cause: err}
	}
	return &Lines{omitEmpty: lc.OmitEmpty}, nil
}

func (l *Lines) Process(msg *message.Message) ([]*message.Message, error) {
	raw := bytes.TrimSuffix(msg.Bytes(), []byte("\n"))
	if len(raw) == 0 {
		if l.omitEmpty {
			return nil, nil
		}
		return []*message.Message{msg}, nil
	}
	parts := bytes.Split(raw, []byte("\n"))
	out := make([]*message.Message, 0, len(parts))
	for _, part := range parts {
		if l.omitEmpty && len(part) == 0 {
			continue
		}
		child := msg.Clone()
		child.SetBytes(append([]byte(nil), part...))
		out = append(out, child)
	}
	return out, nil
}

func (l *Lines) Close() error { return nil }
