// Package runtime implements the oida evaluator and program driver.
package runtime

import (
	"sort"

	"github.com/lemonberrylabs/oida/pkg/ast"
	"github.com/lemonberrylabs/oida/pkg/types"
)

// Function is a user-defined function stored in an Environment.
type Function struct {
	Name   string
	Params []string
	Body   []ast.Node
}

// Environment manages variable and function storage with parent chaining.
// Lookups start in the current environment and walk up the parent chain.
// Definitions always land in the current environment.
//
// Variables and functions live in separate namespaces. An Environment is
// owned by the single evaluation that created it and needs no locking.
type Environment struct {
	parent *Environment
	vars   map[string]types.Value
	funcs  map[string]*Function
}

// NewEnvironment creates a new root environment.
func NewEnvironment() *Environment {
	return &Environment{
		vars:  make(map[string]types.Value),
		funcs: make(map[string]*Function),
	}
}

// NewChild creates an environment whose parent is e. Function calls use it
// with the caller's environment, which gives call-time (dynamic) scoping.
func (e *Environment) NewChild() *Environment {
	child := NewEnvironment()
	child.parent = e
	return child
}

// SetParent relinks e under parent.
func (e *Environment) SetParent(parent *Environment) {
	e.parent = parent
}

// Parent returns the parent environment, or nil for a root.
func (e *Environment) Parent() *Environment {
	return e.parent
}

// DefineVariable inserts or overwrites name in this environment only.
func (e *Environment) DefineVariable(name string, value types.Value) {
	e.vars[name] = value
}

// LookupVariable searches the chain for name without failing.
func (e *Environment) LookupVariable(name string) (types.Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars[name]; ok {
			return v, true
		}
	}
	return types.Null, false
}

// GetVariable searches the chain for name and fails with UnknownIdentifier
// when no environment defines it.
func (e *Environment) GetVariable(name string) (types.Value, error) {
	if v, ok := e.LookupVariable(name); ok {
		return v, nil
	}
	return types.Null, types.NewUnknownIdentifierError(name)
}

// DefineFunction stores a function in this environment's function namespace.
func (e *Environment) DefineFunction(name string, body []ast.Node, params []string) {
	e.funcs[name] = &Function{Name: name, Params: params, Body: body}
}

// LookupFunction searches the chain for a function without failing.
func (e *Environment) LookupFunction(name string) (*Function, bool) {
	for env := e; env != nil; env = env.parent {
		if fn, ok := env.funcs[name]; ok {
			return fn, true
		}
	}
	return nil, false
}

// GetFunction searches the chain for a function and fails with
// UnknownIdentifier when none is found.
func (e *Environment) GetFunction(name string) (*Function, error) {
	if fn, ok := e.LookupFunction(name); ok {
		return fn, nil
	}
	return nil, types.NewUnknownFunctionError(name)
}

// Snapshot returns the variables visible from e, inner definitions
// shadowing outer ones.
func (e *Environment) Snapshot() map[string]types.Value {
	out := make(map[string]types.Value)
	var chain []*Environment
	for env := e; env != nil; env = env.parent {
		chain = append(chain, env)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vars {
			out[k] = v
		}
	}
	return out
}

// FunctionNames returns the sorted names of the functions visible from e.
func (e *Environment) FunctionNames() []string {
	seen := make(map[string]bool)
	for env := e; env != nil; env = env.parent {
		for name := range env.funcs {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
