package onnx

import (
	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/opaque"
)

// Opaque function names installed by Register.
const (
	FuncFromONNX      = "onnx.from_onnx"
	FuncFromONNXBytes = "onnx.from_onnx_bytes"
)

// Graph attributes recording where an imported model came from. Runtimes
// that execute ONNX directly read their source from these.
const (
	AttrPath  = "onnx.path"
	AttrBytes = "onnx.bytes"
)

// Register installs the ONNX importers into reg:
//
//	onnx.from_onnx(graph, path)
//	onnx.from_onnx_bytes(graph, bytes)
//
// Both populate the graph argument in place.
func Register(reg *opaque.Registry) error {
	if err := reg.Register(FuncFromONNX, fromONNX); err != nil {
		return err
	}
	return reg.Register(FuncFromONNXBytes, fromONNXBytes)
}

func fromONNX(args ...*opaque.Value) error {
	if err := opaque.Expect(args, opaque.KindGraph, opaque.KindString); err != nil {
		return err
	}
	g, _ := args[0].AsGraph()
	path, _ := args[1].AsString()
	return Import(g, path)
}

func fromONNXBytes(args ...*opaque.Value) error {
	if err := opaque.Expect(args, opaque.KindGraph, opaque.KindBytes); err != nil {
		return err
	}
	g, _ := args[0].AsGraph()
	data, _ := args[1].AsBytes()
	return ImportBytes(g, data)
}

// Import parses the model at path into g.
func Import(g *graph.Graph, path string) error {
	if g == nil {
		return errors.New("onnx: nil graph")
	}
	m, err := ParseFile(path)
	if err != nil {
		return errors.Wrapf(err, "onnx: import %s", path)
	}
	if err := ToGraph(m, g); err != nil {
		return errors.Wrapf(err, "onnx: import %s", path)
	}
	g.SetAttr(AttrPath, path)
	return nil
}

// ImportBytes parses an in-memory model into g. The graph keeps its own
// copy of data.
func ImportBytes(g *graph.Graph, data []byte) error {
	if g == nil {
		return errors.New("onnx: nil graph")
	}
	data = append([]byte(nil), data...)
	m, err := Parse(data)
	if err != nil {
		return errors.Wrap(err, "onnx: import bytes")
	}
	if err := ToGraph(m, g); err != nil {
		return errors.Wrap(err, "onnx: import bytes")
	}
	g.SetAttr(AttrBytes, data)
	return nil
}
