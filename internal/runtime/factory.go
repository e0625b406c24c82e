package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
)

// ModuleRegistryName identifies the runtime module factory in errors.
const ModuleRegistryName = "runtime module factory"

// Option configures a registry.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for registration and construction events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ModuleFactoryImpl builds runtime modules for one runtime.
// The returned module is owned by the caller.
type ModuleFactoryImpl interface {
	NewRuntimeModule(g *graph.Graph, target string, inNames, outNames []string, opts *RunOptions) (RuntimeModule, error)
}

// ModuleFactoryImplFunc adapts a function to ModuleFactoryImpl.
type ModuleFactoryImplFunc func(g *graph.Graph, target string, inNames, outNames []string, opts *RunOptions) (RuntimeModule, error)

// NewRuntimeModule calls f.
func (f ModuleFactoryImplFunc) NewRuntimeModule(g *graph.Graph, target string, inNames, outNames []string, opts *RunOptions) (RuntimeModule, error) {
	return f(g, target, inNames, outNames, opts)
}

// ModuleFactory is the registration record of one runtime.
type ModuleFactory struct {
	runtime string
	owner   *ModuleFactories
	impl    ModuleFactoryImpl
}

// Runtime returns the runtime name of the record.
func (f *ModuleFactory) Runtime() string { return f.runtime }

// SetImpl binds impl to the runtime, replacing any previous implementation
// (last registration wins). A nil impl unbinds the runtime.
func (f *ModuleFactory) SetImpl(impl ModuleFactoryImpl) *ModuleFactory {
	f.owner.mu.Lock()
	replaced := f.impl != nil
	f.impl = impl
	f.owner.mu.Unlock()

	level := slog.LevelDebug
	if replaced {
		level = slog.LevelInfo
	}
	f.owner.logger.Log(context.Background(), level, "runtime module factory bound", "runtime", f.runtime, "replaced", replaced)
	return f
}

// SetComputeImpl binds impl in the compute function factory under the same
// runtime name, keeping both layers of a backend in step.
func (f *ModuleFactory) SetComputeImpl(impl ComputeFuncFactoryImpl) *ModuleFactory {
	f.owner.computes.RegisterImpl(f.runtime).SetImpl(impl)
	return f
}

// Impl returns the bound implementation, or nil.
func (f *ModuleFactory) Impl() ModuleFactoryImpl {
	f.owner.mu.RLock()
	defer f.owner.mu.RUnlock()
	return f.impl
}

// HasComputeImpl reports whether a compute implementation is bound under
// the same runtime name.
func (f *ModuleFactory) HasComputeImpl() bool {
	return f.owner.computes.Exists(f.runtime)
}

// ModuleFactories maps runtime names to runtime module factories.
//
// Registration is expected during an explicit plugin-load phase; lookups and
// constructions may then run concurrently. All methods are safe for
// concurrent use. The registry keeps no reference to the modules it builds.
type ModuleFactories struct {
	mu        sync.RWMutex
	factories map[string]*ModuleFactory
	computes  *ComputeFuncFactories
	logger    *slog.Logger
}

// NewModuleFactories creates an empty registry bound to computes.
// A nil computes gets a fresh compute registry.
func NewModuleFactories(computes *ComputeFuncFactories, opts ...Option) *ModuleFactories {
	o := newOptions(opts)
	if computes == nil {
		computes = NewComputeFuncFactories(opts...)
	}
	return &ModuleFactories{
		factories: make(map[string]*ModuleFactory),
		computes:  computes,
		logger:    o.logger,
	}
}

// ComputeFuncs returns the compute function registry bound to r.
func (r *ModuleFactories) ComputeFuncs() *ComputeFuncFactories { return r.computes }

// Logger returns the logger plugins registering into r should use.
func (r *ModuleFactories) Logger() *slog.Logger { return r.logger }

// RegisterImpl returns the registration record for runtime, creating it if
// absent. Attach implementations with SetImpl and SetComputeImpl.
func (r *ModuleFactories) RegisterImpl(runtime string) *ModuleFactory {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factories[runtime]
	if !ok {
		f = &ModuleFactory{runtime: runtime, owner: r}
		r.factories[runtime] = f
	}
	return f
}

// Exists reports whether a module implementation is bound to runtime.
func (r *ModuleFactories) Exists(runtime string) bool {
	return r.impl(runtime) != nil
}

// Lookup returns the registration record of runtime, if one was created.
func (r *ModuleFactories) Lookup(runtime string) (*ModuleFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[runtime]
	return f, ok
}

// Runtimes returns the runtimes with a bound module implementation, sorted.
func (r *ModuleFactories) Runtimes() []string {
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

func (r *ModuleFactories) impl(runtime string) ModuleFactoryImpl {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.factories[runtime]; ok {
		return f.impl
	}
	return nil
}

// GetRuntimeModule builds a runtime module executing g on runtime/target
// with the given calling convention. opts is passed to the implementation
// unchanged; nil means runtime defaults.
//
// It fails with an unknown-runtime error, before any backend code runs, when
// no implementation is bound to runtime. Implementation errors are never
// swallowed: they keep their classification and gain runtime and target
// context. The returned module is owned by the caller.
func (r *ModuleFactories) GetRuntimeModule(g *graph.Graph, target string, inNames, outNames []string, runtime string, opts *RunOptions) (RuntimeModule, error) {
	impl := r.impl(runtime)
	if impl == nil {
		return nil, errdefs.UnknownRuntime(errdefs.OpConstruction, ModuleRegistryName, runtime)
	}
	if g == nil {
		return nil, errdefs.Construction(runtime, errors.New("nil graph"))
	}

	m, err := impl.NewRuntimeModule(g, target, cloneNames(inNames), cloneNames(outNames), opts)
	if err != nil {
		if !errdefs.Classified(err) {
			err = errdefs.Construction(runtime, err)
		}
		return nil, errors.WithMessagef(err, "runtime module for runtime %q target %q", runtime, target)
	}
	if m == nil {
		return nil, errdefs.Construction(runtime, errors.Errorf("factory for target %q returned no module", target))
	}

	r.logger.Debug("runtime module constructed",
		"runtime", runtime, "target", target, "graph", g.Name(),
		"inputs", inNames, "outputs", outNames)
	return m, nil
}
