// Package dpusim registers the "dpu-sim" runtime, a simulated DPU
// accelerator.
//
// Like the hardware it models, dpu-sim only executes graphs whose compute
// layers were fused into FusedOp layers (see graph.Partition); a graph
// carrying any other operator outside a fused region is rejected at
// construction. Fused subgraphs run on the CPU kernels. Each module holds
// one device session from a shared pool for its whole lifetime, and
// exchanges tensors in device-natural order: sorted by name.
package dpusim

import (
	"log/slog"
	"slices"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/interp"
	"github.com/born-ml/graphrt/internal/ops"
	"github.com/born-ml/graphrt/internal/runtime"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Runtime is the registered runtime name.
const Runtime = "dpu-sim"

// DefaultDevices is the pool size used when no "devices" setting is given.
const DefaultDevices = 2

var supportedOps = map[string]bool{
	graph.OpInput:        true,
	graph.OpOutput:       true,
	graph.OpFused:        true,
	graph.OpTupleGetItem: true,
}

// Supported reports whether dpu-sim executes op outside a fused region.
func Supported(op string) bool { return supportedOps[op] }

// Register binds dpu-sim into mods with a fresh device pool, replacing any
// earlier binding.
//
// Settings: "devices" sets the pool size.
func Register(mods *runtime.ModuleFactories, settings runtime.Settings) error {
	_, err := RegisterWithPool(mods, settings)
	return err
}

// RegisterWithPool is Register returning the device pool backing the
// registered modules.
func RegisterWithPool(mods *runtime.ModuleFactories, settings runtime.Settings) (*DevicePool, error) {
	if mods == nil {
		return nil, errors.New("dpusim: nil module registry")
	}
	pool := NewDevicePool(settings.Int("devices", DefaultDevices))
	logger := mods.Logger()

	inner := interp.Config{Runtime: Runtime, Kernels: ops.Builtin()}
	kernels := ops.New()
	kernels.Register(graph.OpOutput, func(_ *graph.Layer, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if len(in) != 1 || in[0] == nil {
			return nil, errors.Errorf("%s requires one input", graph.OpOutput)
		}
		return in, nil
	})

	cf := &computeFactory{kernels: kernels, inner: inner, logger: logger}
	mf := &moduleFactory{computes: mods.ComputeFuncs(), pool: pool, logger: logger}
	mods.RegisterImpl(Runtime).SetComputeImpl(cf).SetImpl(mf)

	logger.Debug("runtime registered", "runtime", Runtime, "devices", pool.Size(), "targets", Targets())
	return pool, nil
}

type computeFactory struct {
	kernels *ops.Registry
	inner   interp.Config
	logger  *slog.Logger
}

func (f *computeFactory) NewComputeFunc(g *graph.Graph, target string, inNames, outNames []string) (runtime.ComputeFunc, error) {
	if _, ok := LookupTarget(target); !ok {
		return nil, errors.Errorf("dpusim: unknown target %q (supported: %v)", target, Targets())
	}
	for _, l := range g.Layers() {
		if !Supported(l.Type) {
			return nil, &errdefs.UnsupportedOperatorError{OpType: l.Type, Layer: l.Name, Runtime: Runtime}
		}
	}
	kernels, err := interp.BindFused(f.kernels, g, graph.OpFused, f.inner)
	if err != nil {
		return nil, err
	}
	p, err := interp.Compile(g, inNames, outNames, interp.Config{Runtime: Runtime, Kernels: kernels})
	if err != nil {
		return nil, err
	}
	f.logger.Debug("compute function compiled", "runtime", Runtime, "graph", g.Name(), "target", target, "layers", len(p.Layers()))
	return &computeFunc{prog: p}, nil
}

type computeFunc struct {
	prog *interp.Program
}

func (c *computeFunc) Execute(in, out []*tensor.RawTensor) error {
	return c.prog.Execute(in, out)
}

func (c *computeFunc) IsOpSupported(op string) bool { return Supported(op) }

type moduleFactory struct {
	computes *runtime.ComputeFuncFactories
	pool     *DevicePool
	logger   *slog.Logger
}

func (f *moduleFactory) NewRuntimeModule(g *graph.Graph, target string, inNames, outNames []string, opts *runtime.RunOptions) (runtime.RuntimeModule, error) {
	devIn, devOut := sorted(inNames), sorted(outNames)
	inOrder, err := runtime.Reorder(inNames, devIn)
	if err != nil {
		return nil, errors.Wrap(err, "input names")
	}
	outOrder, err := runtime.Reorder(outNames, devOut)
	if err != nil {
		return nil, errors.Wrap(err, "output names")
	}

	b := &backend{
		open: func() (runtime.ComputeFunc, error) {
			return f.computes.GetComputeFunc(g, target, devIn, devOut, Runtime)
		},
		pool:   f.pool,
		target: target,
		logger: f.logger,
	}
	if enabled, n := opts.Quantization(); enabled {
		b.quant = newQuantizer(len(devIn), n)
	}

	return runtime.NewModule(runtime.ModuleConfig{
		Runtime:     Runtime,
		Target:      target,
		Graph:       g,
		InputNames:  inNames,
		OutputNames: outNames,
		Options:     opts,
		InputOrder:  inOrder,
		OutputOrder: outOrder,
		Logger:      f.logger,
	}, b)
}

type backend struct {
	open    func() (runtime.ComputeFunc, error)
	pool    *DevicePool
	target  string
	session *Session
	cf      runtime.ComputeFunc
	quant   *quantizer
	logger  *slog.Logger
}

func (b *backend) Open() error {
	cf, err := b.open()
	if err != nil {
		return err
	}
	s, err := b.pool.Acquire(b.target)
	if err != nil {
		return err
	}
	b.cf, b.session = cf, s
	b.logger.Debug("device session opened", "runtime", Runtime, "session", s.ID, "device", s.Device, "target", s.Target)
	return nil
}

func (b *backend) Execute(in, out []*tensor.RawTensor) error {
	if b.quant != nil {
		in = b.quant.apply(in)
	}
	return b.cf.Execute(in, out)
}

func (b *backend) Close() error {
	if b.session == nil {
		return nil
	}
	s := b.session
	b.session = nil
	b.logger.Debug("device session closed", "runtime", Runtime, "session", s.ID)
	return b.pool.Release(s)
}

func sorted(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return out
}
