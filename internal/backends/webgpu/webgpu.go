// Package webgpu registers the "webgpu" runtime, which runs elementwise
// graphs as WGSL compute shaders through go-webgpu.
//
// Every module acquires its own instance, adapter, device and queue when
// it is built and releases them when it is released. Layers run one
// dispatch each; tensors round-trip through host memory between layers.
// The native wgpu bindings are only wired on windows; elsewhere Register
// leaves the runtime unbound.
package webgpu

import (
	"sort"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/runtime"
)

// Runtime is the registered runtime name.
const Runtime = "webgpu"

var supportedOps = map[string]bool{
	graph.OpInput:    true,
	graph.OpOutput:   true,
	graph.OpConstant: true,
	"Identity":       true,
	"Add":            true,
	"Sub":            true,
	"Mul":            true,
	"Div":            true,
	"Relu":           true,
	"Sigmoid":        true,
	"Tanh":           true,
	"Exp":            true,
	"Sqrt":           true,
}

// Supported reports whether op has a WebGPU implementation.
func Supported(op string) bool { return supportedOps[op] }

// SupportedOps returns the supported operator types, sorted.
func SupportedOps() []string {
	out := make([]string, 0, len(supportedOps))
	for op := range supportedOps {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Register binds webgpu into mods where the platform supports it.
func Register(mods *runtime.ModuleFactories, settings runtime.Settings) error {
	return register(mods, settings)
}

// checkGraph rejects graphs with layers the shaders cannot run.
func checkGraph(g *graph.Graph) error {
	for _, l := range g.Layers() {
		if !Supported(l.Type) {
			return &errdefs.UnsupportedOperatorError{OpType: l.Type, Layer: l.Name, Runtime: Runtime}
		}
	}
	return nil
}
