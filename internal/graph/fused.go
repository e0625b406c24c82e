package graph

import (
	"fmt"
)

// Attributes set on fused layers.
const (
	AttrTarget  = "target"
	AttrOutputs = "outputs"
	AttrIndex   = "index"
)

// BuildFused returns a copy of g in which the member layers are replaced by
// a single layer of type opType whose Subgraph holds them.
//
// Constants consumed only by members move into the subgraph. Every member
// whose value is visible outside the region becomes one output of the fused
// layer and is re-exposed under its original name by a TupleGetItem layer
// (attr "index"), so downstream layers are unchanged. Members named in keep
// are exposed the same way even when only other members consume them, so
// callers can still request them as outputs. g itself is not modified.
func BuildFused(g *Graph, name, opType, target string, members []string, keep ...string) (*Graph, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("BuildFused: no member layers")
	}
	if g.Has(name) {
		return nil, fmt.Errorf("BuildFused: fused layer name %q already used", name)
	}

	in := make(map[string]bool, len(members))
	for _, m := range members {
		l, ok := g.Get(m)
		if !ok {
			return nil, fmt.Errorf("BuildFused: unknown layer %q", m)
		}
		if l.Type == OpInput || l.Type == OpOutput {
			return nil, fmt.Errorf("BuildFused: %s layer %q cannot be fused", l.Type, m)
		}
		in[m] = true
	}
	for _, l := range g.Layers() {
		if l.Type != OpConstant || in[l.Name] {
			continue
		}
		consumers := g.Consumers(l.Name)
		if len(consumers) > 0 && allIn(consumers, in) {
			in[l.Name] = true
		}
	}

	sorted, err := g.Sorted()
	if err != nil {
		return nil, fmt.Errorf("BuildFused: %w", err)
	}
	visible := make(map[string]bool, len(keep))
	for _, k := range keep {
		visible[k] = true
	}

	var externals, outputs []string
	seen := make(map[string]bool)
	for _, l := range sorted {
		if !in[l.Name] {
			continue
		}
		for _, p := range l.Inputs {
			if !in[p] && !seen[p] {
				seen[p] = true
				externals = append(externals, p)
			}
		}
		if l.Type == OpConstant {
			continue
		}
		consumers := g.Consumers(l.Name)
		if len(consumers) == 0 || !allIn(consumers, in) || visible[l.Name] {
			outputs = append(outputs, l.Name)
		}
	}

	sub := New(name)
	for _, p := range externals {
		src, _ := g.Get(p)
		if err := sub.Add(&Layer{Name: p, Type: OpInput, Shape: src.Shape.Clone(), DType: src.DType}); err != nil {
			return nil, fmt.Errorf("BuildFused: %w", err)
		}
	}
	for _, l := range sorted {
		if in[l.Name] {
			if err := sub.Add(l.Clone()); err != nil {
				return nil, fmt.Errorf("BuildFused: %w", err)
			}
		}
	}

	fused := &Layer{
		Name:     name,
		Type:     opType,
		Inputs:   externals,
		Subgraph: sub,
	}
	fused.SetAttr(AttrTarget, target)
	fused.SetAttr(AttrOutputs, append([]string(nil), outputs...))

	out := New(g.Name())
	for k, v := range g.attrs {
		out.attrs[k] = v
	}
	emitted := false
	for _, l := range g.Layers() {
		if !in[l.Name] {
			if err := out.Add(l.Clone()); err != nil {
				return nil, fmt.Errorf("BuildFused: %w", err)
			}
			continue
		}
		if emitted {
			continue
		}
		emitted = true
		if err := out.Add(fused); err != nil {
			return nil, fmt.Errorf("BuildFused: %w", err)
		}
		for i, o := range outputs {
			src, _ := g.Get(o)
			item := &Layer{
				Name:   o,
				Type:   OpTupleGetItem,
				Inputs: []string{name},
				Shape:  src.Shape.Clone(),
				DType:  src.DType,
			}
			item.SetAttr(AttrIndex, int64(i))
			if err := out.Add(item); err != nil {
				return nil, fmt.Errorf("BuildFused: %w", err)
			}
		}
	}

	if _, err := out.Sorted(); err != nil {
		return nil, fmt.Errorf("BuildFused: region %v is not convex: %w", members, err)
	}
	return out, nil
}

// Partition fuses every layer whose type satisfies supported (Input, Output
// and Constant layers excepted) into one layer named name, keeping the
// layers named in keep visible (see BuildFused). It returns a clone of g
// when nothing is supported.
func Partition(g *Graph, name, opType, target string, supported func(op string) bool, keep ...string) (*Graph, error) {
	var members []string
	for _, l := range g.Layers() {
		switch l.Type {
		case OpInput, OpOutput, OpConstant:
			continue
		}
		if supported(l.Type) {
			members = append(members, l.Name)
		}
	}
	if len(members) == 0 {
		return g.Clone(), nil
	}
	return BuildFused(g, name, opType, target, members, keep...)
}

func allIn(names []string, set map[string]bool) bool {
	for _, n := range names {
		if !set[n] {
			return false
		}
	}
	return true
}
