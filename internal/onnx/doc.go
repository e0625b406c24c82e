// Package onnx imports ONNX models into graph.Graph.
//
// The .onnx protobuf is decoded field by field with protowire; only the
// messages and fields the importer needs are kept (see proto.go).
// ToGraph then maps nodes onto layers named after the tensors they
// produce, so the names a caller passes to a runtime module are the
// model's own tensor names.
//
// Register installs the importers as opaque functions:
//
//	reg := opaque.NewRegistry()
//	if err := onnx.Register(reg); err != nil {
//	    log.Fatal(err)
//	}
//	g := graph.New("empty_onnx_model")
//	err := reg.Call(onnx.FuncFromONNX, "ONNX model import",
//	    opaque.GraphArg(g), opaque.StringArg("model.onnx"))
package onnx
