package script

import "github.com/rc1405/fiddler/internal/value"

// environment is a stack of lexical scopes mapping name -> Value. A
// block introduces a new scope; `let` always binds in the
// current scope (shadowing an enclosing binding), while a bare
// assignment writes to the nearest enclosing scope where the name is
// already bound.
type environment struct {
	vars   map[string]value.Value
	fns    map[string]*FnDecl
	parent *environment
}

func newEnvironment(parent *environment) *environment {
	return &environment{vars: map[string]value.Value{}, fns: map[string]*FnDecl{}, parent: parent}
}

func (e *environment) bind(name string, v value.Value) {
	e.vars[name] = v
}

func (e *environment) get(name string) (value.Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars[name]; ok {
			return v, true
		}
	}
	return value.Value{}, false
}

// assign writes to the nearest enclosing scope where name is already
// bound. Returns false if name is unbound anywhere in the chain.
func (e *environment) assign(name string, v value.Value) bool {
	for env := e; env != nil; env = env.parent {
		if _, ok := env.vars[name]; ok {
			env.vars[name] = v
			return true
		}
	}
	return false
}

func (e *environment) bindFn(name string, decl *FnDecl) {
	for env := e; env != nil; env = env.parent {
		if env.parent == nil { // register on the root scope so recursion resolves
			env.fns[name] = decl
			return
		}
	}
	e.fns[name] = decl
}

func (e *environment) getFn(name string) (*FnDecl, bool) {
	for env := e; env != nil; env = env.parent {
		if decl, ok := env.fns[name]; ok {
			return decl, true
		}
	}
	return nil, false
}
