package processors

import (
	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/config"
	"github.com/rc1405/fiddler/internal/message"
)

// FilterConfig configures the "filter" processor.
type FilterConfig struct {
	// Query is a JMESPath expression evaluated against the message's
	// JSON payload; a truthy result keeps the message, otherwise it is
	// dropped (counted as total_filtered, acked successfully).
	Query string `yaml:"query"`
}

// Filter drops messages whose JMESPath predicate is falsy.
type Filter struct {
	query string
}

// NewFilter is a component.Constructor for the "filter" tag.
func NewFilter(cfg any, _ component.Dependencies) (any, error) {
	var fc FilterConfig
	if err := config.DecodeInto(cfg, &fc); err != nil {
		return nil, &component.ConfigError{Component: "filter", Cause: err}
	}
	if fc.Query == "" {
		return nil, &component.ConfigError{Component: "filter", Cause: errMissingQuery}
	}
	return &Filter{query: fc.Query}, nil
}

func (f *Filter) Process(msg *message.Message) ([]*message.Message, error) {
	result, err := evalQuery(f.query, jsonDoc(msg.Bytes()))
	if err != nil {
		return nil, err
	}
	if !result.Truthy() {
		return nil, nil
	}
	return []*message.Message{msg}, nil
}

func (f *Filter) Close() error { return nil }
