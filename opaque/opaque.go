// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package opaque provides the registry of named functions that model
// importers and other pluggable features are installed into.
//
// Functions take a list of typed arguments (graph, string, bytes, tensors)
// and report failure through their error. Container arguments are
// populated in place:
//
//	g := graph.New("empty_onnx_model")
//	err := opaque.Call("onnx.from_onnx", "ONNX model import",
//	    opaque.GraphArg(g), opaque.StringArg("model.onnx"))
package opaque

import (
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/opaque"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Registry maps names to functions. Later registrations replace earlier
// ones.
type Registry = opaque.Registry

// Func is an opaque function.
type Func = opaque.Func

// Value is one function argument.
type Value = opaque.Value

// Kind is the type of a Value.
type Kind = opaque.Kind

// Argument kinds.
const (
	KindGraph   = opaque.KindGraph
	KindString  = opaque.KindString
	KindBytes   = opaque.KindBytes
	KindTensors = opaque.KindTensors
)

// Option configures a Registry.
type Option = opaque.Option

// WithLogger sets the logger of a Registry.
var WithLogger = opaque.WithLogger

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	return opaque.NewRegistry(opts...)
}

// Default returns the process-wide registry.
func Default() *Registry {
	return opaque.Default()
}

// Register binds fn to name in the default registry.
func Register(name string, fn Func) error {
	return opaque.Register(name, fn)
}

// Exists reports whether name is bound in the default registry.
func Exists(name string) bool {
	return opaque.Exists(name)
}

// Call invokes name from the default registry. feature names the caller in
// a not-found error.
func Call(name, feature string, args ...*Value) error {
	return opaque.Call(name, feature, args...)
}

// GraphArg wraps a graph container.
func GraphArg(g *graph.Graph) *Value { return opaque.GraphArg(g) }

// StringArg wraps a string.
func StringArg(s string) *Value { return opaque.StringArg(s) }

// BytesArg wraps a byte slice.
func BytesArg(b []byte) *Value { return opaque.BytesArg(b) }

// TensorsArg wraps a tensor list; functions may replace its contents.
func TensorsArg(ts ...*tensor.RawTensor) *Value { return opaque.TensorsArg(ts...) }

// Expect checks args against kinds.
func Expect(args []*Value, kinds ...Kind) error {
	return opaque.Expect(args, kinds...)
}
