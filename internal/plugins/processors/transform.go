package processors

import (
	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/config"
	"github.com/rc1405/fiddler/internal/message"
	"github.com/rc1405/fiddler/internal/value"
)

// TransformConfig configures the "transform" processor: an ordered
// set of destination fields, each sourced from a JMESPath expression
// evaluated against the incoming JSON payload.
type TransformConfig struct {
	Mapping []TransformField `yaml:"mapping"`
}

// TransformField is one destination-field/source-expression pair.
// A slice (rather than a map) preserves the field order so a
// transform with an identity field mapping equals the identity
// transform.
type TransformField struct {
	Field string `yaml:"field"`
	Query string `yaml:"query"`
}

// Transform builds a brand-new JSON document from JMESPath-sourced
// fields, replacing the message payload.
type Transform struct {
	fields []TransformField
}

// NewTransform is a component.Constructor for the "transform" tag.
func NewTransform(cfg any, _ component.Dependencies) (any, error) {
	var tc TransformConfig
	if err := config.DecodeInto(cfg, &tc); err != nil {
		return nil, &component.ConfigError{Component: "transform", Cause: err}
	}
	if len(tc.Mapping) == 0 {
		return nil, &component.ConfigError{Component: "transform", Cause: errMissingQuery}
	}
	return &Transform{fields: tc.Mapping}, nil
}

func (t *Transform) Process(msg *message.Message) ([]*message.Message, error) {
	src := jsonDoc(msg.Bytes())
	out := value.NewDict()
	for _, f := range t.fields {
		v, err := evalQuery(f.Query, src)
		if err != nil {
			return nil, err
		}
		out.Set(f.Field, v)
	}
	encoded, err := value.MarshalJSON(value.DictVal(out))
	if err != nil {
		return nil, component.NewProcessingError("transform", err)
	}
	msg.SetBytes(encoded)
	return []*message.Message{msg}, nil
}

func (t *Transform) Close() error { return nil }
