// Package interp executes a graph layer by layer on CPU kernels.
//
// A Program is compiled once for a fixed set of fed and requested layer
// names and may then be run any number of times, concurrently if needed.
// Compilation prunes the graph to the layers the requested outputs depend
// on, stopping at fed layers, and rejects operators the kernel registry
// cannot execute.
package interp

import (
	"fmt"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/ops"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Config selects the kernels and names the runtime used in errors.
type Config struct {
	Runtime string
	Kernels *ops.Registry
}

type feed struct {
	name  string
	shape tensor.Shape
	dtype tensor.DataType
	typed bool
}

// Program is a compiled, pruned execution plan.
type Program struct {
	runtime string
	kernels *ops.Registry
	feeds   []feed
	fed     map[string]int
	steps   []*graph.Layer
	outputs []string
}

// Compile plans the execution of g from inNames to outNames.
func Compile(g *graph.Graph, inNames, outNames []string, cfg Config) (*Program, error) {
	if g == nil {
		return nil, fmt.Errorf("%s: nil graph", cfg.Runtime)
	}
	kernels := cfg.Kernels
	if kernels == nil {
		kernels = ops.Builtin()
	}
	scope := "graph " + g.Name()

	p := &Program{
		runtime: cfg.Runtime,
		kernels: kernels,
		fed:     make(map[string]int, len(inNames)),
		outputs: append([]string(nil), outNames...),
	}
	for i, name := range inNames {
		l, ok := g.Get(name)
		if !ok {
			return nil, errdefs.NotFound(errdefs.OpConstruction, scope, name)
		}
		if _, dup := p.fed[name]; dup {
			return nil, fmt.Errorf("%s: input %q listed twice", cfg.Runtime, name)
		}
		p.fed[name] = i
		p.feeds = append(p.feeds, feed{
			name:  name,
			shape: l.Shape,
			dtype: l.DType,
			// Layers without a declared shape carry no usable dtype either.
			typed: l.Type == graph.OpInput && l.Shape != nil,
		})
	}
	for _, name := range outNames {
		if !g.Has(name) {
			return nil, errdefs.NotFound(errdefs.OpConstruction, scope, name)
		}
	}

	sorted, err := g.Sorted()
	if err != nil {
		return nil, err
	}

	needed := make(map[string]bool)
	var mark func(name string)
	mark = func(name string) {
		if needed[name] {
			return
		}
		needed[name] = true
		if _, ok := p.fed[name]; ok {
			return
		}
		l, _ := g.Get(name)
		for _, in := range l.Inputs {
			mark(in)
		}
	}
	for _, name := range outNames {
		mark(name)
	}

	for _, l := range sorted {
		if !needed[l.Name] {
			continue
		}
		if _, ok := p.fed[l.Name]; ok {
			continue
		}
		switch {
		case l.Type == graph.OpInput:
			return nil, fmt.Errorf("%s: graph input %q is needed but not fed", cfg.Runtime, l.Name)
		case l.Type == graph.OpTupleGetItem:
			if len(l.Inputs) != 1 {
				return nil, fmt.Errorf("%s: %s %q needs one input", cfg.Runtime, l.Type, l.Name)
			}
		case !kernels.Supports(l.Type):
			return nil, &errdefs.UnsupportedOperatorError{OpType: l.Type, Layer: l.Name, Runtime: cfg.Runtime}
		}
		p.steps = append(p.steps, l)
	}
	return p, nil
}

// Layers returns the layers the program executes, in order.
func (p *Program) Layers() []*graph.Layer {
	return append([]*graph.Layer(nil), p.steps...)
}

// Run feeds in (one tensor per input name) and returns the requested
// outputs in order. Returned tensors may alias inputs or constants.
func (p *Program) Run(in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(in) != len(p.feeds) {
		return nil, errdefs.Arity(errdefs.OpExecution, "inputs", len(p.feeds), len(in))
	}

	values := make(map[string][]*tensor.RawTensor, len(p.steps)+len(in))
	for i, f := range p.feeds {
		t := in[i]
		if t == nil {
			return nil, errdefs.Arity(errdefs.OpExecution, fmt.Sprintf("buffers for %q", f.name), 1, 0)
		}
		if f.typed && t.DType() != f.dtype {
			return nil, errdefs.Type(errdefs.OpExecution, f.name, f.dtype, t.DType())
		}
		if f.shape != nil && !f.shape.Matches(t.Shape()) {
			return nil, errdefs.Shape(errdefs.OpExecution, f.name, []int(f.shape), []int(t.Shape()))
		}
		values[f.name] = []*tensor.RawTensor{t}
	}

	for _, l := range p.steps {
		if l.Type == graph.OpTupleGetItem {
			tuple := values[l.Inputs[0]]
			idx := int(l.AttrInt(graph.AttrIndex, 0))
			if idx < 0 || idx >= len(tuple) {
				return nil, fmt.Errorf("%s: %s %q index %d out of range for %d values", p.runtime, l.Type, l.Name, idx, len(tuple))
			}
			values[l.Name] = tuple[idx : idx+1]
			continue
		}

		operands := make([]*tensor.RawTensor, len(l.Inputs))
		for i, name := range l.Inputs {
			v, err := single(values[name], name)
			if err != nil {
				return nil, fmt.Errorf("%s: layer %q: %w", p.runtime, l.Name, err)
			}
			operands[i] = v
		}
		out, err := p.kernels.Execute(l, operands)
		if err != nil {
			return nil, err
		}
		values[l.Name] = out
	}

	results := make([]*tensor.RawTensor, len(p.outputs))
	for i, name := range p.outputs {
		v, err := single(values[name], name)
		if err != nil {
			return nil, fmt.Errorf("%s: output: %w", p.runtime, err)
		}
		results[i] = v
	}
	return results, nil
}

// Execute runs the program and copies each output into the caller's
// buffer at the same position.
func (p *Program) Execute(in, out []*tensor.RawTensor) error {
	if len(out) != len(p.outputs) {
		return errdefs.Arity(errdefs.OpExecution, "outputs", len(p.outputs), len(out))
	}
	results, err := p.Run(in)
	if err != nil {
		return err
	}
	for i, r := range results {
		if err := tensor.CopyInto(out[i], r, p.outputs[i]); err != nil {
			return err
		}
	}
	return nil
}

func single(v []*tensor.RawTensor, name string) (*tensor.RawTensor, error) {
	switch len(v) {
	case 1:
		return v[0], nil
	case 0:
		return nil, fmt.Errorf("value %q was not produced", name)
	default:
		return nil, fmt.Errorf("value %q is a tuple of %d; select one with %s", name, len(v), graph.OpTupleGetItem)
	}
}
