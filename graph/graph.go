// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph provides the model graph handed to runtimes.
//
// A [Graph] is a named, insertion-ordered set of [Layer] values. Each layer
// is named after the tensor it produces, so the input and output names a
// caller passes to a runtime are layer names.
//
// Example:
//
//	g := graph.New("sum")
//	_ = g.Add(&graph.Layer{Name: "x", Type: graph.OpInput, Shape: tensor.Shape{3}, DType: tensor.Float32})
//	_ = g.Add(&graph.Layer{Name: "y", Type: graph.OpInput, Shape: tensor.Shape{3}, DType: tensor.Float32})
//	_ = g.Add(&graph.Layer{Name: "z", Type: "Add", Inputs: []string{"x", "y"}})
package graph

import (
	"github.com/born-ml/graphrt/internal/graph"
)

// Graph is a named set of layers.
type Graph = graph.Graph

// Layer is one operator application.
type Layer = graph.Layer

// Reserved layer types.
const (
	OpInput        = graph.OpInput
	OpOutput       = graph.OpOutput
	OpConstant     = graph.OpConstant
	OpFused        = graph.OpFused
	OpTupleGetItem = graph.OpTupleGetItem
)

// New creates an empty graph.
func New(name string) *Graph {
	return graph.New(name)
}

// BuildFused returns a copy of g whose member layers are replaced by one
// layer of type opType holding them as a subgraph. Names visible outside
// the region, and those listed in keep, are preserved.
func BuildFused(g *Graph, name, opType, target string, members []string, keep ...string) (*Graph, error) {
	return graph.BuildFused(g, name, opType, target, members, keep...)
}

// Partition fuses every layer whose type satisfies supported into one
// layer named name. Layers listed in keep stay addressable.
func Partition(g *Graph, name, opType, target string, supported func(op string) bool, keep ...string) (*Graph, error) {
	return graph.Partition(g, name, opType, target, supported, keep...)
}
