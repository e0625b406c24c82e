// Package frontend turns model files into graphs by calling the importers
// registered in an opaque function registry.
package frontend

import (
	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/onnx"
	"github.com/born-ml/graphrt/internal/opaque"
)

// Feature names the import for error messages.
const Feature = "ONNX model import"

// EmptyGraphName is the name of the container graph handed to importers.
// Importers rename it after the model.
const EmptyGraphName = "empty_onnx_model"

// ImportONNX imports the ONNX model at path through the
// "onnx.from_onnx" function of reg.
func ImportONNX(reg *opaque.Registry, path string) (*graph.Graph, error) {
	return importWith(reg, onnx.FuncFromONNX, opaque.StringArg(path))
}

// ImportONNXBytes imports an in-memory ONNX model through the
// "onnx.from_onnx_bytes" function of reg.
func ImportONNXBytes(reg *opaque.Registry, data []byte) (*graph.Graph, error) {
	return importWith(reg, onnx.FuncFromONNXBytes, opaque.BytesArg(data))
}

func importWith(reg *opaque.Registry, fn string, src *opaque.Value) (*graph.Graph, error) {
	if reg == nil {
		reg = opaque.Default()
	}
	if !reg.Exists(fn) {
		e := errdefs.NotFound(Feature, opaque.RegistryName, fn)
		e.Detail = "no function registered for " + Feature
		return nil, e
	}

	g := graph.New(EmptyGraphName)
	if err := reg.Call(fn, Feature, opaque.GraphArg(g), src); err != nil {
		return nil, err
	}
	return g, nil
}
