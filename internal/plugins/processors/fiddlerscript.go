package processors

import (
	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/config"
	"github.com/rc1405/fiddler/internal/message"
	"github.com/rc1405/fiddler/internal/script"
	"github.com/rc1405/fiddler/internal/value"
)

// FiddlerScriptConfig configures the "fiddlerscript" processor.
type FiddlerScriptConfig struct {
	Source string `yaml:"source"`
}

// FiddlerScript runs an embedded script against every message,
// binding `this` to the payload bytes and `metadata` to the message's
// metadata dict, then applying the this-value read-back coercion
// rules documented on Interpreter.Eval. The interpreter is not safe
// for concurrent use, so this type implements PerWorkerFactory instead
// of being shared across the worker pool.
type FiddlerScript struct {
	source string
	prog   *script.Program
	interp *script.Interpreter
}

// NewFiddlerScript is a component.Constructor for the "fiddlerscript"
// tag. It compiles the source once at construction time so a syntax
// error surfaces during config validation (`lint`) rather than on the
// first message.
func NewFiddlerScript(cfg any, _ component.Dependencies) (any, error) {
	var fc FiddlerScriptConfig
	if err := config.DecodeInto(cfg, &fc); err != nil {
		return nil, &component.ConfigError{Component: "fiddlerscript", Cause: err}
	}
	prog, err := script.Compile(fc.Source)
	if err != nil {
		return nil, &component.ConfigError{Component: "fiddlerscript", Cause: err}
	}
	return &FiddlerScript{source: fc.Source, prog: prog}, nil
}

// NewPerWorker builds a worker-local instance sharing the pre-compiled
// program but with a fresh Interpreter (and therefore fresh global
// scope) per worker.
func (f *FiddlerScript) NewPerWorker() (component.Processor, error) {
	return &FiddlerScript{source: f.source, prog: f.prog, interp: script.New()}, nil
}

func (f *FiddlerScript) Process(msg *message.Message) ([]*message.Message, error) {
	interp := f.interp
	if interp == nil {
		// Constructed but never routed through NewPerWorker: fall back
		// to a private interpreter rather than panic on a nil pointer.
		interp = script.New()
	}
	this := value.Bytes(msg.Bytes())
	metadata := value.DictVal(msg.Metadata().AsDict())

	result, err := interp.Eval(f.prog, this, metadata)
	if err != nil {
		return nil, component.NewProcessingError("fiddlerscript", err)
	}
	return coerceResult(msg, result)
}

func coerceResult(msg *message.Message, result value.Value) ([]*message.Message, error) {
	switch result.Kind() {
	case value.KindNull:
		msg.MarkFiltered()
		return nil, nil
	case value.KindBytes:
		msg.SetBytes(result.BytesVal())
		return []*message.Message{msg}, nil
	case value.KindString:
		msg.SetBytes([]byte(result.String()))
		return []*message.Message{msg}, nil
	case value.KindArray:
		return fanOutArray(msg, result)
	default:
		msg.SetBytes(value.ToBytes(result))
		return []*message.Message{msg}, nil
	}
}

func fanOutArray(msg *message.Message, arr value.Value) ([]*message.Message, error) {
	items := arr.ArrayVal()
	out := make([]*message.Message, 0, len(items))
	for _, item := range items {
		child := msg.Clone()
		switch item.Kind() {
		case value.KindBytes:
			child.SetBytes(item.BytesVal())
		case value.KindString:
			child.SetBytes([]byte(item.String()))
		default:
			child.SetBytes(value.ToBytes(item))
		}
		out = append(out, child)
	}
	return out, nil
}

func (f *FiddlerScript) Close() error { return nil }
