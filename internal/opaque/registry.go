// Package opaque implements the process-wide registry of named, type-erased
// functions used for calls across component boundaries (model importers,
// tokenizers and other plugins the caller cannot link against directly).
package opaque

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/errdefs"
)

// RegistryName identifies this registry in errors.
const RegistryName = "opaque function registry"

// Func is a type-erased callable. Results are written back through the
// container arguments.
type Func func(args ...*Value) error

// Registry maps names to opaque functions.
//
// Registration replaces any function already bound to the same name
// (last registration wins), so a plugin loaded later can override a more
// generic one. Lookups and registrations are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	funcs  map[string]Func
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		funcs:  make(map[string]Func),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds fn to name, replacing any previous binding.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return errors.Errorf("%s: empty function name", RegistryName)
	}
	if fn == nil {
		return errors.Errorf("%s: nil function for %q", RegistryName, name)
	}

	r.mu.Lock()
	_, replaced := r.funcs[name]
	r.funcs[name] = fn
	r.mu.Unlock()

	level := slog.LevelDebug
	if replaced {
		level = slog.LevelInfo
	}
	r.logger.Log(context.Background(), level, "opaque function registered", "name", name, "replaced", replaced)
	return nil
}

// Exists reports whether a function is bound to name.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// Get returns the function bound to name.
func (r *Registry) Get(name string) (Func, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errdefs.NotFound(errdefs.OpLookup, RegistryName, name)
	}
	return fn, nil
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Call invokes the function bound to name on behalf of feature (for
// example "ONNX model import"). A missing function fails before anything is
// invoked, with an error naming both the function and the feature.
func (r *Registry) Call(name, feature string, args ...*Value) error {
	fn, err := r.Get(name)
	if err != nil {
		var e *errdefs.Error
		if errors.As(err, &e) {
			e.Op = feature
			e.Detail = "no function registered for " + feature
		}
		return err
	}
	if err := fn(args...); err != nil {
		return errors.WithMessagef(err, "%s: opaque function %q", feature, name)
	}
	return nil
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register binds fn to name in the default registry.
func Register(name string, fn Func) error { return defaultRegistry.Register(name, fn) }

// Exists reports whether name is bound in the default registry.
func Exists(name string) bool { return defaultRegistry.Exists(name) }

// Get returns the function bound to name in the default registry.
func Get(name string) (Func, error) { return defaultRegistry.Get(name) }

// Call invokes name in the default registry on behalf of feature.
func Call(name, feature string, args ...*Value) error {
	return defaultRegistry.Call(name, feature, args...)
}
