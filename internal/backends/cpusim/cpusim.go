// Package cpusim registers the "cpu-sim" runtime, a reference simulator
// that interprets graphs on the host with the CPU kernels.
//
// Both registry layers are bound: the compute function factory builds an
// interpreter program per (graph, target, names) and the module factory
// wraps it in a generic runtime module.
package cpusim

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/interp"
	"github.com/born-ml/graphrt/internal/ops"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/runtime"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Runtime is the registered runtime name.
const Runtime = "cpu-sim"

// Target is the only target cpu-sim accepts; an empty target means it.
const Target = "cpu"

// Kernels returns the CPU kernels cpu-sim executes directly. Fused layers
// are bound per compute function, running their subgraphs on the same
// kernels.
func Kernels() *ops.Registry {
	return ops.Builtin()
}

// Register binds cpu-sim into mods, replacing any earlier binding.
//
// Settings: "workers" caps the goroutines used by elementwise kernels
// (1 disables fan-out). It applies to this binding's kernels only.
func Register(mods *runtime.ModuleFactories, settings runtime.Settings) error {
	if mods == nil {
		return errors.New("cpusim: nil module registry")
	}
	par := parallel.DefaultConfig()
	if n := settings.Int("workers", 0); n > 0 {
		par.NumWorkers = n
		par.Enabled = n > 1
	}

	f := &computeFactory{kernels: ops.BuiltinWith(par), logger: mods.Logger()}
	mods.RegisterImpl(Runtime).
		SetComputeImpl(f).
		SetImpl(runtime.NewComputeModuleFactory(mods.ComputeFuncs(), Runtime))
	mods.Logger().Debug("runtime registered", "runtime", Runtime, "ops", len(f.kernels.SupportedOps()))
	return nil
}

type computeFactory struct {
	kernels *ops.Registry
	logger  *slog.Logger
}

func (f *computeFactory) NewComputeFunc(g *graph.Graph, target string, inNames, outNames []string) (runtime.ComputeFunc, error) {
	if target != "" && target != Target {
		return nil, errors.Errorf("cpusim: unsupported target %q, want %q", target, Target)
	}
	kernels, err := interp.BindFused(f.kernels, g, graph.OpFused, interp.Config{Runtime: Runtime, Kernels: f.kernels})
	if err != nil {
		return nil, err
	}
	p, err := interp.Compile(g, inNames, outNames, interp.Config{Runtime: Runtime, Kernels: kernels})
	if err != nil {
		return nil, err
	}
	f.logger.Debug("compute function compiled", "runtime", Runtime, "graph", g.Name(), "layers", len(p.Layers()))
	return &computeFunc{prog: p, kernels: kernels}, nil
}

type computeFunc struct {
	prog    *interp.Program
	kernels *ops.Registry
}

func (c *computeFunc) Execute(in, out []*tensor.RawTensor) error {
	return c.prog.Execute(in, out)
}

func (c *computeFunc) IsOpSupported(op string) bool {
	switch op {
	case graph.OpInput, graph.OpTupleGetItem:
		return true
	}
	return c.kernels.Supports(op)
}
