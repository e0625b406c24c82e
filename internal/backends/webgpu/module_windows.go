//go:build windows

package webgpu

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/interp"
	"github.com/born-ml/graphrt/internal/ops"
	"github.com/born-ml/graphrt/internal/runtime"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Available reports whether this build can execute webgpu modules.
const Available = true

// Settings: "power_preference" is "high-performance" (default) or
// "low-power"; a module's RunOptions may override it.
func register(mods *runtime.ModuleFactories, settings runtime.Settings) error {
	if mods == nil {
		return errors.New("webgpu: nil module registry")
	}
	f := &moduleFactory{
		lowPower: settings.String("power_preference", "high-performance") == "low-power",
		logger:   mods.Logger(),
	}
	mods.RegisterImpl(Runtime).SetImpl(f)
	mods.Logger().Debug("runtime registered", "runtime", Runtime, "ops", len(supportedOps))
	return nil
}

type moduleFactory struct {
	lowPower bool
	logger   *slog.Logger
}

func (f *moduleFactory) NewRuntimeModule(g *graph.Graph, target string, inNames, outNames []string, opts *runtime.RunOptions) (runtime.RuntimeModule, error) {
	if err := checkGraph(g); err != nil {
		return nil, err
	}
	lowPower := f.lowPower
	if v := opts.String("power_preference", ""); v != "" {
		lowPower = v == "low-power"
	}
	b := &backend{g: g, inNames: inNames, outNames: outNames, lowPower: lowPower, logger: f.logger}
	return runtime.NewModule(runtime.ModuleConfig{
		Runtime:     Runtime,
		Target:      target,
		Graph:       g,
		InputNames:  inNames,
		OutputNames: outNames,
		Options:     opts,
		Logger:      f.logger,
	}, b)
}

type backend struct {
	g        *graph.Graph
	inNames  []string
	outNames []string
	lowPower bool
	logger   *slog.Logger

	dev  *device
	prog *interp.Program
}

func (b *backend) Open() error {
	dev, err := openDevice(b.lowPower)
	if err != nil {
		return err
	}
	b.dev = dev

	prog, err := interp.Compile(b.g, b.inNames, b.outNames, interp.Config{Runtime: Runtime, Kernels: kernels(dev)})
	if err != nil {
		return err
	}
	b.prog = prog
	b.logger.Debug("webgpu device acquired", "runtime", Runtime, "graph", b.g.Name(), "layers", len(prog.Layers()))
	return nil
}

func (b *backend) Execute(in, out []*tensor.RawTensor) error {
	return b.prog.Execute(in, out)
}

func (b *backend) Close() error {
	if b.dev != nil {
		b.dev.release()
		b.dev = nil
	}
	return nil
}

// kernels binds every supported operator to a dispatch on d. Host-side
// operators reuse the CPU kernels.
func kernels(d *device) *ops.Registry {
	r := ops.New()
	cpu := ops.Builtin()
	for _, op := range []string{graph.OpOutput, graph.OpConstant, "Identity"} {
		k, _ := cpu.Get(op)
		r.Register(op, k)
	}
	for op, code := range binaryShaders {
		r.Register(op, func(_ *graph.Layer, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
			if len(in) != 2 {
				return nil, errors.Errorf("%s requires 2 inputs, got %d", op, len(in))
			}
			t, err := d.dispatch(op, code, in[0], in[1])
			if err != nil {
				return nil, err
			}
			return []*tensor.RawTensor{t}, nil
		})
	}
	for op, code := range unaryShaders {
		r.Register(op, func(_ *graph.Layer, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
			if len(in) != 1 {
				return nil, errors.Errorf("%s requires 1 input, got %d", op, len(in))
			}
			t, err := d.dispatch(op, code, in[0])
			if err != nil {
				return nil, err
			}
			return []*tensor.RawTensor{t}, nil
		})
	}
	return r
}
