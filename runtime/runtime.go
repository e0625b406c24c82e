// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package runtime dispatches computation graphs to pluggable runtimes.
//
// Runtimes are registered by name in a [ModuleFactories] registry. A
// runtime module built from it is bound to one graph, one target and a
// fixed ordering of input and output names; the caller owns it and must
// Release it.
//
// Example:
//
//	if _, err := runtime.LoadPlugins(""); err != nil {
//	    log.Fatal(err)
//	}
//	m, err := runtime.GetRuntimeModule(g, "cpu", []string{"x", "y"}, []string{"z"}, "cpu-sim", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Release()
//
//	err = m.Run([]*tensor.RawTensor{x, y}, []*tensor.RawTensor{z})
package runtime

import (
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/plugins"
	"github.com/born-ml/graphrt/internal/runtime"
)

type (
	// ModuleFactories maps runtime names to runtime module factories.
	ModuleFactories = runtime.ModuleFactories
	// ModuleFactory is the registration record of one runtime.
	ModuleFactory = runtime.ModuleFactory
	// ModuleFactoryImpl builds runtime modules for one runtime.
	ModuleFactoryImpl = runtime.ModuleFactoryImpl
	// ComputeFuncFactories maps runtime names to compute function factories.
	ComputeFuncFactories = runtime.ComputeFuncFactories
	// ComputeFuncFactoryImpl builds compute functions for one runtime.
	ComputeFuncFactoryImpl = runtime.ComputeFuncFactoryImpl
	// ComputeFunc executes a graph on tensors in backend order.
	ComputeFunc = runtime.ComputeFunc
	// RuntimeModule is an executable graph bound to a runtime and target.
	RuntimeModule = runtime.RuntimeModule
	// Module is the generic RuntimeModule used by backends.
	Module = runtime.Module
	// ModuleConfig configures NewModule.
	ModuleConfig = runtime.ModuleConfig
	// Backend is the runtime-specific part of a Module.
	Backend = runtime.Backend
	// RunOptions is passed unchanged to the selected backend.
	RunOptions = runtime.RunOptions
	// Settings holds typed backend settings.
	Settings = runtime.Settings
	// State is the lifecycle state of a Module.
	State = runtime.State
	// Option configures a registry.
	Option = runtime.Option
)

// Module states.
const (
	StateConstructed = runtime.StateConstructed
	StateReady       = runtime.StateReady
	StateExecuting   = runtime.StateExecuting
	StateReleased    = runtime.StateReleased
)

// WithLogger sets the logger of a registry.
var WithLogger = runtime.WithLogger

// NewComputeFuncFactories creates an empty compute function registry.
func NewComputeFuncFactories(opts ...Option) *ComputeFuncFactories {
	return runtime.NewComputeFuncFactories(opts...)
}

// NewModuleFactories creates an empty module registry bound to computes.
func NewModuleFactories(computes *ComputeFuncFactories, opts ...Option) *ModuleFactories {
	return runtime.NewModuleFactories(computes, opts...)
}

// NewModule wraps backend in a lifecycle-checked runtime module.
func NewModule(cfg ModuleConfig, backend Backend) (*Module, error) {
	return runtime.NewModule(cfg, backend)
}

// SettingsFromMap converts decoded configuration into Settings.
func SettingsFromMap(m map[string]any) (Settings, error) {
	return runtime.SettingsFromMap(m)
}

// DefaultModuleFactories returns the process-wide module registry.
func DefaultModuleFactories() *ModuleFactories {
	return runtime.DefaultModuleFactories()
}

// RegisterImpl returns the default registration record for name.
func RegisterImpl(name string) *ModuleFactory {
	return runtime.RegisterImpl(name)
}

// Exists reports whether a runtime is bound in the default registry.
func Exists(name string) bool {
	return runtime.Exists(name)
}

// GetRuntimeModule builds a runtime module from the default registry.
func GetRuntimeModule(g *graph.Graph, target string, inNames, outNames []string, name string, opts *RunOptions) (RuntimeModule, error) {
	return runtime.GetRuntimeModule(g, target, inNames, outNames, name, opts)
}

// GetComputeFunc builds a compute function from the default registry.
func GetComputeFunc(g *graph.Graph, target string, inNames, outNames []string, name string) (ComputeFunc, error) {
	return runtime.GetComputeFunc(g, target, inNames, outNames, name)
}

// LoadPlugins registers the built-in runtimes into the default registries
// and installs the built-in opaque functions. An empty manifestPath loads
// every runtime; otherwise the TOML manifest selects them. It returns the
// runtime names registered.
func LoadPlugins(manifestPath string) ([]string, error) {
	loaded, err := plugins.Load(plugins.LoadOptions{ManifestPath: manifestPath})
	if err != nil {
		return nil, err
	}
	return loaded.Runtimes, nil
}
