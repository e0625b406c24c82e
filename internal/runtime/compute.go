package runtime

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/tensor"
)

// ComputeRegistryName identifies the compute function factory in errors.
const ComputeRegistryName = "compute function factory"

// ComputeFunc is one graph's forward-pass execution unit.
//
// Execute reads ordered input buffers and writes the ordered,
// caller-allocated output buffers. It must be deterministic with respect to
// the bound graph and must not mutate it. A ComputeFunc that holds
// resources may also implement io.Closer.
type ComputeFunc interface {
	Execute(in, out []*tensor.RawTensor) error

	// IsOpSupported reports whether the backend can execute op, so that
	// partitioning can decide before any construction is attempted.
	IsOpSupported(op string) bool
}

// ComputeFuncFactoryImpl builds compute functions for one runtime.
//
// Implementations must reject a graph that lacks any requested input or
// output name and must report operators outside their supported set with
// *errdefs.UnsupportedOperatorError.
type ComputeFuncFactoryImpl interface {
	NewComputeFunc(g *graph.Graph, target string, inNames, outNames []string) (ComputeFunc, error)
}

// ComputeFuncFactoryImplFunc adapts a function to ComputeFuncFactoryImpl.
type ComputeFuncFactoryImplFunc func(g *graph.Graph, target string, inNames, outNames []string) (ComputeFunc, error)

// NewComputeFunc calls f.
func (f ComputeFuncFactoryImplFunc) NewComputeFunc(g *graph.Graph, target string, inNames, outNames []string) (ComputeFunc, error) {
	return f(g, target, inNames, outNames)
}

// ComputeFuncFactory is the registration record of one runtime.
type ComputeFuncFactory struct {
	runtime string
	owner   *ComputeFuncFactories
	impl    ComputeFuncFactoryImpl
}

// Runtime returns the runtime name of the record.
func (f *ComputeFuncFactory) Runtime() string { return f.runtime }

// SetImpl binds impl to the runtime, replacing any previous implementation
// (last registration wins). A nil impl unbinds the runtime.
func (f *ComputeFuncFactory) SetImpl(impl ComputeFuncFactoryImpl) *ComputeFuncFactory {
	f.owner.mu.Lock()
	replaced := f.impl != nil
	f.impl = impl
	f.owner.mu.Unlock()

	f.owner.logger.Debug("compute function factory bound", "runtime", f.runtime, "replaced", replaced)
	return f
}

// Impl returns the bound implementation, or nil.
func (f *ComputeFuncFactory) Impl() ComputeFuncFactoryImpl {
	f.owner.mu.RLock()
	defer f.owner.mu.RUnlock()
	return f.impl
}

// ComputeFuncFactories maps runtime names to compute function factories.
type ComputeFuncFactories struct {
	mu        sync.RWMutex
	factories map[string]*ComputeFuncFactory
	logger    *slog.Logger
}

// NewComputeFuncFactories creates an empty registry.
func NewComputeFuncFactories(opts ...Option) *ComputeFuncFactories {
	o := newOptions(opts)
	return &ComputeFuncFactories{
		factories: make(map[string]*ComputeFuncFactory),
		logger:    o.logger,
	}
}

// RegisterImpl returns the registration record for runtime, creating it if
// absent. Attach an implementation with SetImpl.
func (r *ComputeFuncFactories) RegisterImpl(runtime string) *ComputeFuncFactory {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factories[runtime]
	if !ok {
		f = &ComputeFuncFactory{runtime: runtime, owner: r}
		r.factories[runtime] = f
	}
	return f
}

// Exists reports whether an implementation is bound to runtime.
func (r *ComputeFuncFactories) Exists(runtime string) bool {
	return r.impl(runtime) != nil
}

// Runtimes returns the runtimes with a bound implementation, sorted.
func (r *ComputeFuncFactories) Runtimes() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.factories))
	for name, f := range r.factories {
		if f.impl != nil {
			out = append(out, name)
		}
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *ComputeFuncFactories) impl(runtime string) ComputeFuncFactoryImpl {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.factories[runtime]; ok {
		return f.impl
	}
	return nil
}

// GetComputeFunc builds a compute function for g on runtime/target.
// It fails with an unknown-runtime error, before any backend code runs,
// when no implementation is bound to runtime. Errors from the
// implementation are returned with runtime and target context added.
func (r *ComputeFuncFactories) GetComputeFunc(g *graph.Graph, target string, inNames, outNames []string, runtime string) (ComputeFunc, error) {
	impl := r.impl(runtime)
	if impl == nil {
		return nil, errdefs.UnknownRuntime(errdefs.OpConstruction, ComputeRegistryName, runtime)
	}
	if g == nil {
		return nil, errdefs.Construction(runtime, errors.New("nil graph"))
	}

	cf, err := impl.NewComputeFunc(g, target, cloneNames(inNames), cloneNames(outNames))
	if err != nil {
		if !errdefs.Classified(err) {
			err = errdefs.Construction(runtime, err)
		}
		return nil, errors.WithMessagef(err, "compute function for runtime %q target %q", runtime, target)
	}
	if cf == nil {
		return nil, errdefs.Construction(runtime, errors.Errorf("factory for target %q returned no compute function", target))
	}
	return cf, nil
}

func cloneNames(names []string) []string {
	return append([]string(nil), names...)
}
