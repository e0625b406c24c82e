// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package onnx imports ONNX models into graphs.
//
// The importers are opaque functions. [Register] installs them into a
// registry; [Load] and [LoadBytes] call them through the default registry
// and fail with a not-found error when they are not installed:
//
//	if err := onnx.Register(opaque.Default()); err != nil {
//	    log.Fatal(err)
//	}
//	g, err := onnx.Load("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Layers are named after the tensors they produce, so the model's own
// input and output names are the names passed to a runtime.
package onnx

import (
	"github.com/born-ml/graphrt/internal/frontend"
	"github.com/born-ml/graphrt/internal/graph"
	internalonnx "github.com/born-ml/graphrt/internal/onnx"
	"github.com/born-ml/graphrt/internal/opaque"
)

// Opaque function names installed by Register.
const (
	FuncFromONNX      = internalonnx.FuncFromONNX
	FuncFromONNXBytes = internalonnx.FuncFromONNXBytes
)

// Register installs the ONNX importers into reg.
func Register(reg *opaque.Registry) error {
	return internalonnx.Register(reg)
}

// Load imports the model at path through the default registry.
func Load(path string) (*graph.Graph, error) {
	return frontend.ImportONNX(opaque.Default(), path)
}

// LoadBytes imports an in-memory model through the default registry.
func LoadBytes(data []byte) (*graph.Graph, error) {
	return frontend.ImportONNXBytes(opaque.Default(), data)
}
