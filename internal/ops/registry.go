// Package ops provides CPU operator kernels and the registry mapping
// operator types to them.
package ops

import (
	"fmt"
	"sort"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Kernel computes the outputs of one layer from its operand values.
// Kernels never modify their inputs. A kernel returning more than one
// tensor produces a tuple.
type Kernel func(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error)

// Registry maps operator types to kernels.
type Registry struct {
	kernels map[string]Kernel
	par     parallel.Config
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{kernels: make(map[string]Kernel), par: parallel.DefaultConfig()}
}

// Builtin creates a registry holding every CPU kernel of this package,
// with the default fan-out.
func Builtin() *Registry {
	return BuiltinWith(parallel.DefaultConfig())
}

// BuiltinWith is Builtin with the fan-out used by its elementwise and
// matrix kernels. The config is fixed for the registry's lifetime.
func BuiltinWith(cfg parallel.Config) *Registry {
	r := New()
	r.par = cfg
	r.registerMath()
	r.registerActivations()
	r.registerShape()
	r.registerUtility()
	return r
}

// Register adds or replaces the kernel for opType.
func (r *Registry) Register(opType string, k Kernel) {
	r.kernels[opType] = k
}

// Clone returns a registry with the same kernels and fan-out.
func (r *Registry) Clone() *Registry {
	c := &Registry{kernels: make(map[string]Kernel, len(r.kernels)), par: r.par}
	for op, k := range r.kernels {
		c.kernels[op] = k
	}
	return c
}

// Get returns the kernel for an operator type.
func (r *Registry) Get(opType string) (Kernel, bool) {
	k, ok := r.kernels[opType]
	return k, ok
}

// Supports reports whether a kernel is registered for opType.
func (r *Registry) Supports(opType string) bool {
	_, ok := r.kernels[opType]
	return ok
}

// Execute runs the kernel for l.Type.
func (r *Registry) Execute(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	k, ok := r.kernels[l.Type]
	if !ok {
		return nil, &errdefs.UnsupportedOperatorError{OpType: l.Type, Layer: l.Name, Runtime: "cpu kernels"}
	}
	out, err := k(l, inputs)
	if err != nil {
		return nil, fmt.Errorf("layer %q (%s): %w", l.Name, l.Type, err)
	}
	return out, nil
}

// SupportedOps returns the registered operator types, sorted.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.kernels))
	for op := range r.kernels {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Parallel returns the fan-out the registry's kernels were built with.
func (r *Registry) Parallel() parallel.Config { return r.par }

func one(t *tensor.RawTensor) []*tensor.RawTensor { return []*tensor.RawTensor{t} }

func arity(op string, inputs []*tensor.RawTensor, want int) error {
	if len(inputs) != want {
		return fmt.Errorf("%s requires %d inputs, got %d", op, want, len(inputs))
	}
	for i, in := range inputs {
		if in == nil {
			return fmt.Errorf("%s: input %d is nil", op, i)
		}
	}
	return nil
}
