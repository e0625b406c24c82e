package onnx

import (
	"fmt"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Graph-level metadata set by ToGraph.
const (
	AttrOpset    = "onnx.opset"
	AttrProducer = "onnx.producer"
	AttrInputs   = "onnx.inputs"
	AttrOutputs  = "onnx.outputs"
)

// DefaultGraphName names graphs whose GraphProto carries no name.
const DefaultGraphName = "onnx_model"

// ToGraph converts m into g, replacing g's contents.
//
// Every layer is named after the tensor it produces, so ONNX tensor names
// are the names callers pass to runtime modules. Initializers become
// Constant layers and the remaining graph inputs become Input layers. A
// node with several outputs becomes one tuple-producing layer followed by
// a TupleGetItem layer per output tensor.
func ToGraph(m *ModelProto, g *graph.Graph) error {
	if m == nil || m.Graph == nil {
		return fmt.Errorf("model has no graph")
	}
	gp := m.Graph

	name := gp.Name
	if name == "" {
		name = DefaultGraphName
	}
	g.Reset(name)

	info := valueInfo(gp)
	initNames := make(map[string]bool, len(gp.Initializers))

	for i := range gp.Initializers {
		init := &gp.Initializers[i]
		t, err := tensorFromProto(init)
		if err != nil {
			return fmt.Errorf("initializer %q: %w", init.Name, err)
		}
		initNames[init.Name] = true
		if err := g.Add(&graph.Layer{
			Name:  init.Name,
			Type:  graph.OpConstant,
			Shape: t.Shape(),
			DType: t.DType(),
			Data:  []*tensor.RawTensor{t},
		}); err != nil {
			return err
		}
	}

	var inputs []string
	for i := range gp.Inputs {
		in := &gp.Inputs[i]
		if initNames[in.Name] {
			continue
		}
		shape, dtype, err := typeOf(in)
		if err != nil {
			return fmt.Errorf("graph input %q: %w", in.Name, err)
		}
		if err := g.Add(&graph.Layer{Name: in.Name, Type: graph.OpInput, Shape: shape, DType: dtype}); err != nil {
			return err
		}
		inputs = append(inputs, in.Name)
	}

	for i := range gp.Nodes {
		if err := addNode(g, &gp.Nodes[i], i, info); err != nil {
			return err
		}
	}

	outputs := make([]string, len(gp.Outputs))
	for i := range gp.Outputs {
		outputs[i] = gp.Outputs[i].Name
	}

	g.SetAttr(AttrInputs, inputs)
	g.SetAttr(AttrOutputs, outputs)
	g.SetAttr(AttrOpset, opsetVersion(m))
	if m.ProducerName != "" {
		g.SetAttr(AttrProducer, m.ProducerName)
	}
	return nil
}

func addNode(g *graph.Graph, n *NodeProto, idx int, info map[string]*ValueInfoProto) error {
	if len(n.Outputs) == 0 {
		return fmt.Errorf("node %d (%s) has no outputs", idx, n.OpType)
	}

	l := &graph.Layer{Type: n.OpType}
	for _, in := range n.Inputs {
		// Omitted optional inputs are encoded as empty names.
		if in != "" {
			l.Inputs = append(l.Inputs, in)
		}
	}
	if n.Domain != "" && n.Domain != "ai.onnx" {
		l.SetAttr("onnx.domain", n.Domain)
	}
	if err := convertAttrs(n, l); err != nil {
		return fmt.Errorf("node %q (%s): %w", n.Name, n.OpType, err)
	}

	if len(n.Outputs) == 1 {
		l.Name = n.Outputs[0]
		annotate(l, info[l.Name])
		return g.Add(l)
	}

	l.Name = n.Name
	if l.Name == "" {
		l.Name = fmt.Sprintf("%s_%d", n.OpType, idx)
	}
	if err := g.Add(l); err != nil {
		return err
	}
	for i, out := range n.Outputs {
		if out == "" {
			continue
		}
		item := &graph.Layer{
			Name:   out,
			Type:   graph.OpTupleGetItem,
			Inputs: []string{l.Name},
			Attrs:  map[string]any{"index": int64(i)},
		}
		annotate(item, info[out])
		if err := g.Add(item); err != nil {
			return err
		}
	}
	return nil
}

func convertAttrs(n *NodeProto, l *graph.Layer) error {
	for i := range n.Attributes {
		a := &n.Attributes[i]

		if n.OpType == graph.OpConstant {
			t, err := constantValue(a)
			if err != nil {
				return err
			}
			if t != nil {
				l.Data = []*tensor.RawTensor{t}
				l.Shape, l.DType = t.Shape(), t.DType()
				continue
			}
		}
		if n.OpType == "Cast" && a.Name == "to" {
			dt, err := dataType(int32(a.I))
			if err != nil {
				return fmt.Errorf("Cast to: %w", err)
			}
			l.SetAttr("to", dt)
			l.DType = dt
			continue
		}

		switch attrType(a) {
		case AttributeProtoFloat:
			l.SetAttr(a.Name, a.F)
		case AttributeProtoInt:
			l.SetAttr(a.Name, a.I)
		case AttributeProtoString:
			l.SetAttr(a.Name, string(a.S))
		case AttributeProtoFloats:
			l.SetAttr(a.Name, a.Floats)
		case AttributeProtoInts:
			l.SetAttr(a.Name, a.Ints)
		case AttributeProtoStrings:
			ss := make([]string, len(a.Strings))
			for j, s := range a.Strings {
				ss[j] = string(s)
			}
			l.SetAttr(a.Name, ss)
		case AttributeProtoTensor:
			t, err := tensorFromProto(a.T)
			if err != nil {
				return fmt.Errorf("attribute %q: %w", a.Name, err)
			}
			l.SetAttr(a.Name, t)
		default:
			return fmt.Errorf("attribute %q: unsupported attribute type %d", a.Name, a.Type)
		}
	}
	return nil
}

// attrType returns the declared type, inferring it from the populated
// field for producers that leave the type unset.
func attrType(a *AttributeProto) int32 {
	if a.Type != AttributeProtoUndefined {
		return a.Type
	}
	switch {
	case a.T != nil:
		return AttributeProtoTensor
	case a.G != nil:
		return AttributeProtoGraph
	case len(a.Floats) > 0:
		return AttributeProtoFloats
	case len(a.Ints) > 0:
		return AttributeProtoInts
	case len(a.Strings) > 0:
		return AttributeProtoStrings
	case len(a.S) > 0:
		return AttributeProtoString
	case a.F != 0:
		return AttributeProtoFloat
	default:
		return AttributeProtoInt
	}
}

// constantValue decodes the value attributes of a Constant node, or
// returns nil for any other attribute.
func constantValue(a *AttributeProto) (*tensor.RawTensor, error) {
	switch a.Name {
	case "value":
		if a.T == nil {
			return nil, fmt.Errorf("Constant value has no tensor")
		}
		return tensorFromProto(a.T)
	case "value_float":
		return tensor.FromFloat32([]float32{a.F}, tensor.Shape{})
	case "value_floats":
		return tensor.FromFloat32(append([]float32(nil), a.Floats...), tensor.Shape{len(a.Floats)})
	case "value_int":
		return tensor.FromInt64([]int64{a.I}, tensor.Shape{})
	case "value_ints":
		return tensor.FromInt64(append([]int64(nil), a.Ints...), tensor.Shape{len(a.Ints)})
	default:
		return nil, nil
	}
}

func valueInfo(gp *GraphProto) map[string]*ValueInfoProto {
	info := make(map[string]*ValueInfoProto, len(gp.ValueInfo)+len(gp.Outputs))
	for i := range gp.ValueInfo {
		info[gp.ValueInfo[i].Name] = &gp.ValueInfo[i]
	}
	for i := range gp.Outputs {
		info[gp.Outputs[i].Name] = &gp.Outputs[i]
	}
	return info
}

// annotate copies declared shape and dtype onto l when known.
func annotate(l *graph.Layer, vi *ValueInfoProto) {
	if vi == nil {
		return
	}
	shape, dtype, err := typeOf(vi)
	if err != nil {
		return
	}
	if l.Shape == nil {
		l.Shape = shape
	}
	if vi.Type != nil && vi.Type.TensorType != nil && vi.Type.TensorType.ElemType != TensorProtoUndefined {
		l.DType = dtype
	}
}

// typeOf returns the declared shape (nil when unknown, -1 for symbolic
// dimensions) and element type of a value.
func typeOf(vi *ValueInfoProto) (tensor.Shape, tensor.DataType, error) {
	if vi.Type == nil || vi.Type.TensorType == nil {
		return nil, tensor.Float32, nil
	}
	tt := vi.Type.TensorType
	dtype := tensor.Float32
	if tt.ElemType != TensorProtoUndefined {
		dt, err := dataType(tt.ElemType)
		if err != nil {
			return nil, 0, err
		}
		dtype = dt
	}
	if tt.Shape == nil {
		return nil, dtype, nil
	}
	shape := make(tensor.Shape, len(tt.Shape.Dims))
	for i, d := range tt.Shape.Dims {
		if d.DimValue > 0 {
			shape[i] = int(d.DimValue)
		} else {
			shape[i] = -1
		}
	}
	return shape, dtype, nil
}

func opsetVersion(m *ModelProto) int64 {
	for _, op := range m.OpsetImport {
		if op.Domain == "" || op.Domain == "ai.onnx" {
			return op.Version
		}
	}
	return 0
}

// tensorFromProto converts a TensorProto to a RawTensor. RawData is
// interpreted as little-endian, matching every supported host.
func tensorFromProto(p *TensorProto) (*tensor.RawTensor, error) {
	shape := make(tensor.Shape, len(p.Dims))
	for i, dim := range p.Dims {
		shape[i] = int(dim)
	}
	dtype, err := dataType(p.DataType)
	if err != nil {
		return nil, err
	}

	t, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}

	n := t.NumElements()
	switch {
	case len(p.RawData) > 0:
		if len(p.RawData) != t.ByteSize() {
			return nil, fmt.Errorf("raw data is %d bytes, want %d for %s%v", len(p.RawData), t.ByteSize(), dtype, shape)
		}
		copy(t.Data(), p.RawData)
	case len(p.FloatData) > 0:
		if dtype != tensor.Float32 || len(p.FloatData) != n {
			return nil, fmt.Errorf("float_data has %d values for %s%v", len(p.FloatData), dtype, shape)
		}
		copy(t.AsFloat32(), p.FloatData)
	case len(p.DoubleData) > 0:
		if dtype != tensor.Float64 || len(p.DoubleData) != n {
			return nil, fmt.Errorf("double_data has %d values for %s%v", len(p.DoubleData), dtype, shape)
		}
		copy(t.AsFloat64(), p.DoubleData)
	case len(p.Int64Data) > 0:
		if dtype != tensor.Int64 || len(p.Int64Data) != n {
			return nil, fmt.Errorf("int64_data has %d values for %s%v", len(p.Int64Data), dtype, shape)
		}
		copy(t.AsInt64(), p.Int64Data)
	case len(p.Int32Data) > 0:
		if len(p.Int32Data) != n {
			return nil, fmt.Errorf("int32_data has %d values for %s%v", len(p.Int32Data), dtype, shape)
		}
		// int32_data also carries the narrow integer and bool types.
		switch dtype {
		case tensor.Int32:
			copy(t.AsInt32(), p.Int32Data)
		case tensor.Uint8:
			dst := t.AsUint8()
			for i, v := range p.Int32Data {
				dst[i] = uint8(v)
			}
		case tensor.Bool:
			dst := t.AsBool()
			for i, v := range p.Int32Data {
				dst[i] = v != 0
			}
		default:
			return nil, fmt.Errorf("int32_data cannot hold %s", dtype)
		}
	}
	return t, nil
}

func dataType(onnxType int32) (tensor.DataType, error) {
	switch onnxType {
	case TensorProtoFloat:
		return tensor.Float32, nil
	case TensorProtoDouble:
		return tensor.Float64, nil
	case TensorProtoInt32:
		return tensor.Int32, nil
	case TensorProtoInt64:
		return tensor.Int64, nil
	case TensorProtoUint8:
		return tensor.Uint8, nil
	case TensorProtoBool:
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("unsupported ONNX element type %d", onnxType)
	}
}

// ElementType is the inverse of the ONNX to tensor dtype mapping.
func ElementType(dt tensor.DataType) int32 {
	switch dt {
	case tensor.Float32:
		return TensorProtoFloat
	case tensor.Float64:
		return TensorProtoDouble
	case tensor.Int32:
		return TensorProtoInt32
	case tensor.Int64:
		return TensorProtoInt64
	case tensor.Uint8:
		return TensorProtoUint8
	case tensor.Bool:
		return TensorProtoBool
	default:
		return TensorProtoUndefined
	}
}
