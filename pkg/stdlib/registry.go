// Package stdlib implements the oida property methods (`xs.umfang`,
// `xs.ane(4)`, ...) and the fetch capability behind `holma`.
package stdlib

import (
	"math/rand/v2"
	"sort"

	"github.com/lemonberrylabs/oida/pkg/types"
)

// MethodFunc is a property method implementation. For methods that store
// back, the returned value replaces the receiver variable.
type MethodFunc func(call *Call) (types.Value, error)

// Call carries the receiver and argument of one property access.
type Call struct {
	Name     string
	Receiver types.Value
	Arg      types.Value
	HasArg   bool
	Rand     *rand.Rand
}

// Method describes one registered property method.
type Method struct {
	Name string
	// TakesArg is true for methods that require exactly one argument.
	TakesArg bool
	// StoreBack marks methods whose result is written back to the receiver
	// variable; the property access itself then yields nothing.
	StoreBack bool
	Fn        MethodFunc
}

// Registry holds the property methods by name.
type Registry struct {
	methods map[string]Method
}

// NewRegistry creates a registry with all built-in property methods registered.
func NewRegistry() *Registry {
	r := &Registry{
		methods: make(map[string]Method),
	}
	r.registerInspection()
	r.registerCollection()
	r.registerConversion()
	return r
}

// Register adds a method to the registry.
func (r *Registry) Register(m Method) {
	r.methods[m.Name] = m
}

// Lookup returns the method registered under name.
func (r *Registry) Lookup(name string) (Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Names returns the registered method names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke checks the argument count and runs the method.
func (r *Registry) Invoke(call *Call) (Method, types.Value, error) {
	m, ok := r.methods[call.Name]
	if !ok {
		return Method{}, types.Null, types.NewUnknownPropertyError(call.Name)
	}
	if err := requireArg(m, call); err != nil {
		return m, types.Null, err
	}
	v, err := m.Fn(call)
	return m, v, err
}

// requireArg checks that an argument is present exactly when the method takes one.
func requireArg(m Method, call *Call) error {
	want, got := 0, 0
	if m.TakesArg {
		want = 1
	}
	if call.HasArg {
		got = 1
	}
	if want != got {
		return types.NewArityError("."+m.Name, want, got)
	}
	return nil
}
