package api

import "fmt"

// Binding describes how a node's input is derived from the data accumulated
// by earlier nodes. Deps lists the node names (or InputKey) the binding
// reads; the graph builder rejects bindings whose deps are never produced.
//
// The zero Binding resolves to a snapshot of all accumulated data.
type Binding struct {
	Deps    []string
	Resolve func(d Data) (any, error)
}

// IsZero reports whether b is the zero Binding.
func (b Binding) IsZero() bool {
	return b.Resolve == nil && len(b.Deps) == 0
}

// Eval resolves b against d.
func (b Binding) Eval(d Data) (any, error) {
	if b.Resolve == nil {
		return d.Clone(), nil
	}
	return b.Resolve(d)
}

// Ref binds the output of a single upstream node.
func Ref(name string) Binding {
	return Binding{
		Deps: []string{name},
		Resolve: func(d Data) (any, error) {
			v, ok := d[name]
			if !ok {
				return nil, fmt.Errorf("binding: %q has not been produced", name)
			}
			return v, nil
		},
	}
}

// Input binds the workflow input.
func Input() Binding {
	return Ref(InputKey)
}

// Pick binds a Data map holding only the named outputs.
func Pick(names ...string) Binding {
	deps := append([]string(nil), names...)
	return Binding{
		Deps: deps,
		Resolve: func(d Data) (any, error) {
			out := make(Data, len(deps))
			for _, n := range deps {
				v, ok := d[n]
				if !ok {
					return nil, fmt.Errorf("binding: %q has not been produced", n)
				}
				out[n] = v
			}
			return out, nil
		},
	}
}

// Bind derives a node's input with fn. deps must list every key fn reads.
func Bind(fn func(d Data) (any, error), deps ...string) Binding {
	return Binding{
		Deps:    append([]string(nil), deps...),
		Resolve: fn,
	}
}

// Value binds a constant.
func Value(v any) Binding {
	return Binding{
		Resolve: func(Data) (any, error) { return v, nil },
	}
}
