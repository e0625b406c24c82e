package runtime

import (
	"io"
	"log/slog"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/tensor"
)

// NewComputeModuleFactory returns a ModuleFactoryImpl whose modules wrap the
// compute function registered in computes for runtime. It suits backends
// that need no lifecycle handling beyond the compute function itself.
func NewComputeModuleFactory(computes *ComputeFuncFactories, runtime string) ModuleFactoryImpl {
	return &computeModuleFactory{computes: computes, runtime: runtime, logger: computes.logger}
}

type computeModuleFactory struct {
	computes *ComputeFuncFactories
	runtime  string
	logger   *slog.Logger
}

func (f *computeModuleFactory) NewRuntimeModule(g *graph.Graph, target string, inNames, outNames []string, opts *RunOptions) (RuntimeModule, error) {
	b := &computeBackend{
		open: func() (ComputeFunc, error) {
			return f.computes.GetComputeFunc(g, target, inNames, outNames, f.runtime)
		},
	}
	return NewModule(ModuleConfig{
		Runtime:     f.runtime,
		Target:      target,
		Graph:       g,
		InputNames:  inNames,
		OutputNames: outNames,
		Options:     opts,
		Logger:      f.logger,
	}, b)
}

type computeBackend struct {
	open func() (ComputeFunc, error)
	cf   ComputeFunc
}

func (b *computeBackend) Open() error {
	cf, err := b.open()
	if err != nil {
		return err
	}
	b.cf = cf
	return nil
}

func (b *computeBackend) Execute(in, out []*tensor.RawTensor) error {
	return b.cf.Execute(in, out)
}

func (b *computeBackend) Close() error {
	if c, ok := b.cf.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
