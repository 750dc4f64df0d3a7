package script

import "github.com/rc1405/fiddler/internal/value"

// Compile lexes and parses source once. The `fiddlerscript` processor
// keeps the resulting Program for the lifetime of its worker and
// re-runs it against a fresh scope for every message, rather than
// re-lexing and re-parsing per message.
func Compile(source string) (*Program, error) {
	p, err := NewParser(source)
	if err != nil {
		return nil, err
	}
	return p.ParseProgram()
}

// Eval runs prog against a fresh scope nested under the interpreter's
// global scope, with `this` and `metadata` bound as the pipeline
// binding requires, and returns the final value bound to `this`. The
// caller (the fiddlerscript processor) is responsible for the
// this-value read-back coercion rules: Bytes replaces the payload,
// String is re-encoded as UTF-8 bytes, an Array of Bytes/String fans
// out, Null filters the message, anything else coerces via bytes().
func (i *Interpreter) Eval(prog *Program, this, metadata value.Value) (value.Value, error) {
	env := newEnvironment(i.global)
	env.bind("this", this)
	env.bind("metadata", metadata)
	if _, _, err := i.evalBlockStmts(prog.Stmts, env); err != nil {
		return value.Value{}, err
	}
	result, _ := env.get("this")
	return result, nil
}
