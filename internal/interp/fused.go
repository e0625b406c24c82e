package interp

import (
	"fmt"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/ops"
	"github.com/born-ml/graphrt/internal/tensor"
)

// FusedPrograms holds the compiled subgraph of each fused layer of one
// graph, keyed by layer name.
type FusedPrograms map[string]*Program

// CompileFused compiles the Subgraph of every layer of g of type opType
// with cfg. A fused layer's inputs feed the subgraph inputs of the same
// names and its "outputs" attribute lists the tuple it produces.
// Unsupported operators inside a region surface here.
func CompileFused(g *graph.Graph, opType string, cfg Config) (FusedPrograms, error) {
	progs := make(FusedPrograms)
	for _, l := range g.Layers() {
		if l.Type != opType {
			continue
		}
		if l.Subgraph == nil {
			return nil, fmt.Errorf("fused layer %q has no subgraph", l.Name)
		}
		outs := l.AttrStrings(graph.AttrOutputs)
		if len(outs) == 0 {
			return nil, fmt.Errorf("fused layer %q declares no outputs", l.Name)
		}
		p, err := Compile(l.Subgraph, l.Inputs, outs, cfg)
		if err != nil {
			return nil, fmt.Errorf("fused layer %q: %w", l.Name, err)
		}
		progs[l.Name] = p
	}
	return progs, nil
}

// Kernel returns a kernel running the program compiled for each fused
// layer. Layers that were not compiled fail.
func (fp FusedPrograms) Kernel() ops.Kernel {
	return func(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		p, ok := fp[l.Name]
		if !ok {
			return nil, fmt.Errorf("fused layer %q was not compiled", l.Name)
		}
		return p.Run(inputs)
	}
}

// BindFused compiles the fused layers of g with inner and returns a copy
// of kernels in which opType runs them. The programs live exactly as long
// as the returned registry.
func BindFused(kernels *ops.Registry, g *graph.Graph, opType string, inner Config) (*ops.Registry, error) {
	progs, err := CompileFused(g, opType, inner)
	if err != nil {
		return nil, err
	}
	k := kernels.Clone()
	k.Register(opType, progs.Kernel())
	return k, nil
}
