package graph

import "sort"

// Binding is a concrete assignment of a value to each parameter needed to
// instantiate a template.
type Binding map[string]string

// ParameterSpace maps each declared parameter name to its ordered list of
// candidate values. Its Cartesian product enumerates Bindings.
type ParameterSpace map[string][]string

// Bindings returns the Cartesian product of the ParameterSpace's value
// lists. A parameter with an empty value list is suppressed: it does not
// appear in any returned Binding, rather than contributing the empty
// string.
//
// Order is deterministic: parameter names are visited in lexicographic
// order, and for each parameter its values are visited in the order given,
// so that repeated calls on an equal ParameterSpace produce identical
// output order.
func (ps ParameterSpace) Bindings() []Binding {
	names := make([]string, 0, len(ps))
	for name, values := range ps {
		if len(values) == 0 {
			continue // suppressed parameter
		}
		names = append(names, name)
	}
	sort.Strings(names)

	bindings := []Binding{{}}
	for _, name := range names {
		values := ps[name]
		next := make([]Binding, 0, len(bindings)*len(values))
		for _, b := range bindings {
			for _, v := range values {
				nb := make(Binding, len(b)+1)
				for k, bv := range b {
					nb[k] = bv
				}
				nb[name] = v
				next = append(next, nb)
			}
		}
		bindings = next
	}
	return bindings
}
