// Package graph implements the Model Graph: a named, insertion-ordered set
// of typed operator layers connected by name.
//
// A Graph is built by a single goroutine (usually an importer) and is
// read-only once runtime modules are bound to it.
package graph

import (
	"errors"
	"fmt"
)

// ErrCycle is returned by Sorted when the graph is not a DAG.
var ErrCycle = errors.New("graph contains a cycle")

// Graph is a directed acyclic graph of layers.
type Graph struct {
	name   string
	layers map[string]*Layer
	order  []string
	attrs  map[string]any
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		name:   name,
		layers: make(map[string]*Layer),
		attrs:  make(map[string]any),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// SetName renames the graph.
func (g *Graph) SetName(name string) { g.name = name }

// Reset empties the graph in place and renames it.
// Importers use it to populate a container allocated by the caller.
func (g *Graph) Reset(name string) {
	g.name = name
	g.layers = make(map[string]*Layer)
	g.order = nil
	g.attrs = make(map[string]any)
}

// Add appends a layer. Names must be unique.
func (g *Graph) Add(l *Layer) error {
	if l == nil {
		return fmt.Errorf("graph %q: nil layer", g.name)
	}
	if l.Name == "" {
		return fmt.Errorf("graph %q: layer of type %q has no name", g.name, l.Type)
	}
	if _, ok := g.layers[l.Name]; ok {
		return fmt.Errorf("graph %q: duplicate layer %q", g.name, l.Name)
	}
	g.layers[l.Name] = l
	g.order = append(g.order, l.Name)
	return nil
}

// Get returns the layer with the given name.
func (g *Graph) Get(name string) (*Layer, bool) {
	l, ok := g.layers[name]
	return l, ok
}

// Has reports whether a layer with the given name exists.
func (g *Graph) Has(name string) bool {
	_, ok := g.layers[name]
	return ok
}

// Len returns the number of layers.
func (g *Graph) Len() int { return len(g.order) }

// Layers returns the layers in insertion order.
func (g *Graph) Layers() []*Layer {
	out := make([]*Layer, len(g.order))
	for i, name := range g.order {
		out[i] = g.layers[name]
	}
	return out
}

// Inputs returns the Input layers in insertion order.
func (g *Graph) Inputs() []*Layer { return g.ofType(OpInput) }

// Outputs returns the Output layers in insertion order.
func (g *Graph) Outputs() []*Layer { return g.ofType(OpOutput) }

func (g *Graph) ofType(op string) []*Layer {
	var out []*Layer
	for _, name := range g.order {
		if l := g.layers[name]; l.Type == op {
			out = append(out, l)
		}
	}
	return out
}

// Consumers returns the names of layers reading name, in insertion order.
func (g *Graph) Consumers(name string) []string {
	var out []string
	for _, n := range g.order {
		for _, in := range g.layers[n].Inputs {
			if in == name {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// SetAttr stores model-level metadata.
func (g *Graph) SetAttr(key string, value any) { g.attrs[key] = value }

// Attr returns model-level metadata.
func (g *Graph) Attr(key string) (any, bool) {
	v, ok := g.attrs[key]
	return v, ok
}

// Sorted returns the layers in topological order. Among independent layers
// insertion order is kept, so the result is deterministic.
func (g *Graph) Sorted() ([]*Layer, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.order))
	out := make([]*Layer, 0, len(g.order))

	var visit func(name, from string) error
	visit = func(name, from string) error {
		l, ok := g.layers[name]
		if !ok {
			return fmt.Errorf("graph %q: layer %q reads unknown input %q", g.name, from, name)
		}
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("graph %q: %w through %q", g.name, ErrCycle, name)
		}
		state[name] = visiting
		for _, in := range l.Inputs {
			if err := visit(in, name); err != nil {
				return err
			}
		}
		state[name] = done
		out = append(out, l)
		return nil
	}

	for _, name := range g.order {
		if err := visit(name, ""); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Clone returns a copy of g with cloned layers.
func (g *Graph) Clone() *Graph {
	c := New(g.name)
	for _, name := range g.order {
		l := g.layers[name].Clone()
		c.layers[name] = l
		c.order = append(c.order, name)
	}
	for k, v := range g.attrs {
		c.attrs[k] = v
	}
	return c
}
