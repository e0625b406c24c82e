// Package onnxtest builds small ONNX models in memory for tests.
package onnxtest

import (
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/born-ml/graphrt/internal/onnx"
)

// Model describes an ONNX model with a single graph.
type Model struct {
	Name         string
	Producer     string
	Opset        int64
	Inputs       []Value
	Outputs      []Value
	Initializers []Tensor
	ValueInfo    []Value
	Nodes        []Node
}

// Value is a typed graph value. A negative dim is written as a symbolic
// dimension; nil Dims leaves the shape out.
type Value struct {
	Name     string
	ElemType int32
	Dims     []int64
}

// Tensor is an initializer or tensor attribute. Float32 data is written as
// raw_data when Raw is set, otherwise as packed float_data.
type Tensor struct {
	Name    string
	Dims    []int64
	Float32 []float32
	Int64   []int64
	Raw     bool
}

// Node is one operator.
type Node struct {
	Name    string
	OpType  string
	Domain  string
	Inputs  []string
	Outputs []string
	Attrs   []Attr
}

// Attr is a node attribute; Type selects the populated field.
type Attr struct {
	Name   string
	Type   int32
	F      float32
	I      int64
	S      string
	Floats []float32
	Ints   []int64
	T      *Tensor
}

// Float32Value is a float32 value of the given shape.
func Float32Value(name string, dims ...int64) Value {
	return Value{Name: name, ElemType: onnx.TensorProtoFloat, Dims: dims}
}

// IntAttr is an integer attribute.
func IntAttr(name string, v int64) Attr {
	return Attr{Name: name, Type: onnx.AttributeProtoInt, I: v}
}

// IntsAttr is an integer list attribute.
func IntsAttr(name string, v ...int64) Attr {
	return Attr{Name: name, Type: onnx.AttributeProtoInts, Ints: v}
}

// FloatAttr is a float attribute.
func FloatAttr(name string, v float32) Attr {
	return Attr{Name: name, Type: onnx.AttributeProtoFloat, F: v}
}

// StringAttr is a string attribute.
func StringAttr(name, v string) Attr {
	return Attr{Name: name, Type: onnx.AttributeProtoString, S: v}
}

// TensorAttr is a tensor attribute.
func TensorAttr(name string, t Tensor) Attr {
	return Attr{Name: name, Type: onnx.AttributeProtoTensor, T: &t}
}

// Bytes encodes m as an ONNX ModelProto.
func (m Model) Bytes() []byte {
	opset := m.Opset
	if opset == 0 {
		opset = 17
	}

	var b []byte
	b = appendVarint(b, 1, 8) // ir_version
	if m.Producer != "" {
		b = appendString(b, 2, m.Producer)
	}
	b = appendMessage(b, 7, m.graph())
	b = appendMessage(b, 8, appendVarint(nil, 2, uint64(opset)))
	return b
}

// WriteFile writes the encoded model to path.
func (m Model) WriteFile(path string) error {
	return os.WriteFile(path, m.Bytes(), 0o600)
}

func (m Model) graph() []byte {
	var b []byte
	for _, n := range m.Nodes {
		b = appendMessage(b, 1, n.bytes())
	}
	b = appendString(b, 2, m.Name)
	for _, t := range m.Initializers {
		b = appendMessage(b, 5, t.bytes())
	}
	for _, v := range m.Inputs {
		b = appendMessage(b, 11, v.bytes())
	}
	for _, v := range m.Outputs {
		b = appendMessage(b, 12, v.bytes())
	}
	for _, v := range m.ValueInfo {
		b = appendMessage(b, 13, v.bytes())
	}
	return b
}

func (n Node) bytes() []byte {
	var b []byte
	for _, in := range n.Inputs {
		b = appendString(b, 1, in)
	}
	for _, out := range n.Outputs {
		b = appendString(b, 2, out)
	}
	if n.Name != "" {
		b = appendString(b, 3, n.Name)
	}
	b = appendString(b, 4, n.OpType)
	for _, a := range n.Attrs {
		b = appendMessage(b, 5, a.bytes())
	}
	if n.Domain != "" {
		b = appendString(b, 7, n.Domain)
	}
	return b
}

func (a Attr) bytes() []byte {
	b := appendString(nil, 1, a.Name)
	switch a.Type {
	case onnx.AttributeProtoFloat:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case onnx.AttributeProtoInt:
		b = appendVarint(b, 3, uint64(a.I))
	case onnx.AttributeProtoString:
		b = appendString(b, 4, a.S)
	case onnx.AttributeProtoTensor:
		b = appendMessage(b, 5, a.T.bytes())
	case onnx.AttributeProtoFloats:
		for _, f := range a.Floats {
			b = protowire.AppendTag(b, 7, protowire.Fixed32Type)
			b = protowire.AppendFixed32(b, math.Float32bits(f))
		}
	case onnx.AttributeProtoInts:
		// Unpacked, as proto2 writers emit repeated scalars.
		for _, i := range a.Ints {
			b = appendVarint(b, 8, uint64(i))
		}
	}
	return appendVarint(b, 20, uint64(a.Type))
}

func (t Tensor) bytes() []byte {
	var b []byte
	for _, d := range t.Dims {
		b = appendVarint(b, 1, uint64(d))
	}

	switch {
	case t.Int64 != nil:
		b = appendVarint(b, 2, onnx.TensorProtoInt64)
		var packed []byte
		for _, v := range t.Int64 {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		b = appendMessage(b, 7, packed)
	case t.Raw:
		b = appendVarint(b, 2, onnx.TensorProtoFloat)
		var raw []byte
		for _, f := range t.Float32 {
			raw = protowire.AppendFixed32(raw, math.Float32bits(f))
		}
		b = appendMessage(b, 9, raw)
	default:
		b = appendVarint(b, 2, onnx.TensorProtoFloat)
		var packed []byte
		for _, f := range t.Float32 {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}
		b = appendMessage(b, 4, packed)
	}

	if t.Name != "" {
		b = appendString(b, 8, t.Name)
	}
	return b
}

func (v Value) bytes() []byte {
	tt := appendVarint(nil, 1, uint64(v.ElemType))
	if v.Dims != nil {
		var shape []byte
		for _, d := range v.Dims {
			var dim []byte
			if d < 0 {
				dim = appendString(nil, 2, "N")
			} else {
				dim = appendVarint(nil, 1, uint64(d))
			}
			shape = appendMessage(shape, 1, dim)
		}
		tt = appendMessage(tt, 2, shape)
	}
	typ := appendMessage(nil, 1, tt)

	b := appendString(nil, 1, v.Name)
	return appendMessage(b, 2, typ)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// AddRelu is the model z = x + y, w = Relu(z) over float32[2] inputs.
func AddRelu() Model {
	return Model{
		Name:     "add_relu",
		Producer: "onnxtest",
		Inputs:   []Value{Float32Value("x", 2), Float32Value("y", 2)},
		Outputs:  []Value{Float32Value("z", 2), Float32Value("w", 2)},
		Nodes: []Node{
			{Name: "add", OpType: "Add", Inputs: []string{"x", "y"}, Outputs: []string{"z"}},
			{Name: "relu", OpType: "Relu", Inputs: []string{"z"}, Outputs: []string{"w"}},
		},
	}
}
