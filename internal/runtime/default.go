package runtime

import (
	"github.com/born-ml/graphrt/internal/graph"
)

var (
	defaultComputes = NewComputeFuncFactories()
	defaultModules  = NewModuleFactories(defaultComputes)
)

// DefaultComputeFuncs returns the process-wide compute function registry.
func DefaultComputeFuncs() *ComputeFuncFactories { return defaultComputes }

// DefaultModuleFactories returns the process-wide runtime module registry,
// bound to DefaultComputeFuncs.
func DefaultModuleFactories() *ModuleFactories { return defaultModules }

// RegisterImpl returns the default registration record for runtime.
func RegisterImpl(runtime string) *ModuleFactory { return defaultModules.RegisterImpl(runtime) }

// Exists reports whether a module implementation is bound to runtime in the
// default registry.
func Exists(runtime string) bool { return defaultModules.Exists(runtime) }

// GetRuntimeModule builds a module from the default registry.
func GetRuntimeModule(g *graph.Graph, target string, inNames, outNames []string, runtime string, opts *RunOptions) (RuntimeModule, error) {
	return defaultModules.GetRuntimeModule(g, target, inNames, outNames, runtime, opts)
}

// GetComputeFunc builds a compute function from the default registry.
func GetComputeFunc(g *graph.Graph, target string, inNames, outNames []string, runtime string) (ComputeFunc, error) {
	return defaultComputes.GetComputeFunc(g, target, inNames, outNames, runtime)
}
