package onnx

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: the model path is caller-provided by design of the importer
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes. Byte fields of the result may
// alias data.
func Parse(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	if err := readModel(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return m, nil
}

// field is one decoded wire field. Varint, fixed32 and fixed64 payloads
// land in u; length-delimited payloads in b.
type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

// walk decodes the fields of one message and calls fn for each.
func walk(data []byte, fn func(f field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(data)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(data)
			f.u = uint64(v)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(data)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]

		if err := fn(f); err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
	}
	return nil
}

func (f field) str() string { return string(f.b) }

func (f field) int64() int64 { return int64(f.u) }

// int64s appends a repeated int64 field in packed or unpacked encoding.
func (f field) int64s(dst []int64) ([]int64, error) {
	if f.typ != protowire.BytesType {
		return append(dst, int64(f.u)), nil
	}
	b := f.b
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		dst = append(dst, int64(v))
		b = b[n:]
	}
	return dst, nil
}

func (f field) int32s(dst []int32) ([]int32, error) {
	vs, err := f.int64s(nil)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		dst = append(dst, int32(v))
	}
	return dst, nil
}

func (f field) float32s(dst []float32) ([]float32, error) {
	if f.typ != protowire.BytesType {
		return append(dst, math.Float32frombits(uint32(f.u))), nil
	}
	b := f.b
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		dst = append(dst, math.Float32frombits(v))
		b = b[n:]
	}
	return dst, nil
}

func (f field) float64s(dst []float64) ([]float64, error) {
	if f.typ != protowire.BytesType {
		return append(dst, math.Float64frombits(f.u)), nil
	}
	b := f.b
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		dst = append(dst, math.Float64frombits(v))
		b = b[n:]
	}
	return dst, nil
}

func readModel(data []byte, m *ModelProto) error {
	return walk(data, func(f field) error {
		switch f.num {
		case 1: // ir_version
			m.IRVersion = f.int64()
		case 2: // producer_name
			m.ProducerName = f.str()
		case 3: // producer_version
			m.ProducerVersion = f.str()
		case 4: // domain
			m.Domain = f.str()
		case 5: // model_version
			m.ModelVersion = f.int64()
		case 6: // doc_string
			m.DocString = f.str()
		case 7: // graph
			m.Graph = &GraphProto{}
			return readGraph(f.b, m.Graph)
		case 8: // opset_import
			var op OperatorSetID
			if err := readOpset(f.b, &op); err != nil {
				return err
			}
			m.OpsetImport = append(m.OpsetImport, op)
		case 14: // metadata_props
			var e StringStringEntry
			if err := readEntry(f.b, &e); err != nil {
				return err
			}
			m.MetadataProps = append(m.MetadataProps, e)
		}
		return nil
	})
}

func readGraph(data []byte, g *GraphProto) error {
	return walk(data, func(f field) error {
		switch f.num {
		case 1: // node
			var n NodeProto
			if err := readNode(f.b, &n); err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, n)
		case 2: // name
			g.Name = f.str()
		case 5: // initializer
			var t TensorProto
			if err := readTensor(f.b, &t); err != nil {
				return err
			}
			g.Initializers = append(g.Initializers, t)
		case 10: // doc_string
			g.DocString = f.str()
		case 11, 12, 13: // input, output, value_info
			var v ValueInfoProto
			if err := readValueInfo(f.b, &v); err != nil {
				return err
			}
			switch f.num {
			case 11:
				g.Inputs = append(g.Inputs, v)
			case 12:
				g.Outputs = append(g.Outputs, v)
			default:
				g.ValueInfo = append(g.ValueInfo, v)
			}
		}
		return nil
	})
}

func readNode(data []byte, n *NodeProto) error {
	return walk(data, func(f field) error {
		switch f.num {
		case 1: // input
			n.Inputs = append(n.Inputs, f.str())
		case 2: // output
			n.Outputs = append(n.Outputs, f.str())
		case 3: // name
			n.Name = f.str()
		case 4: // op_type
			n.OpType = f.str()
		case 5: // attribute
			var a AttributeProto
			if err := readAttribute(f.b, &a); err != nil {
				return err
			}
			n.Attributes = append(n.Attributes, a)
		case 7: // domain
			n.Domain = f.str()
		}
		return nil
	})
}

func readTensor(data []byte, t *TensorProto) error {
	return walk(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // dims
			t.Dims, err = f.int64s(t.Dims)
		case 2: // data_type
			t.DataType = int32(f.u)
		case 4: // float_data
			t.FloatData, err = f.float32s(t.FloatData)
		case 5: // int32_data
			t.Int32Data, err = f.int32s(t.Int32Data)
		case 7: // int64_data
			t.Int64Data, err = f.int64s(t.Int64Data)
		case 8: // name
			t.Name = f.str()
		case 9: // raw_data
			t.RawData = f.b
		case 10: // double_data
			t.DoubleData, err = f.float64s(t.DoubleData)
		}
		return err
	})
}

func readValueInfo(data []byte, v *ValueInfoProto) error {
	return walk(data, func(f field) error {
		switch f.num {
		case 1: // name
			v.Name = f.str()
		case 2: // type
			v.Type = &TypeProto{}
			return readType(f.b, v.Type)
		}
		return nil
	})
}

func readType(data []byte, t *TypeProto) error {
	return walk(data, func(f field) error {
		if f.num != 1 { // tensor_type
			return nil
		}
		t.TensorType = &TensorTypeProto{}
		return walk(f.b, func(f field) error {
			switch f.num {
			case 1: // elem_type
				t.TensorType.ElemType = int32(f.u)
			case 2: // shape
				t.TensorType.Shape = &TensorShapeProto{}
				return readShape(f.b, t.TensorType.Shape)
			}
			return nil
		})
	})
}

func readShape(data []byte, s *TensorShapeProto) error {
	return walk(data, func(f field) error {
		if f.num != 1 { // dim
			return nil
		}
		var d DimensionProto
		err := walk(f.b, func(f field) error {
			switch f.num {
			case 1: // dim_value
				d.DimValue = f.int64()
			case 2: // dim_param
				d.DimParam = f.str()
			}
			return nil
		})
		s.Dims = append(s.Dims, d)
		return err
	})
}

func readAttribute(data []byte, a *AttributeProto) error {
	return walk(data, func(f field) error {
		var err error
		switch f.num {
		case 1: // name
			a.Name = f.str()
		case 2: // f
			a.F = math.Float32frombits(uint32(f.u))
		case 3: // i
			a.I = f.int64()
		case 4: // s
			a.S = f.b
		case 5: // t
			a.T = &TensorProto{}
			err = readTensor(f.b, a.T)
		case 6: // g
			a.G = &GraphProto{}
			err = readGraph(f.b, a.G)
		case 7: // floats
			a.Floats, err = f.float32s(a.Floats)
		case 8: // ints
			a.Ints, err = f.int64s(a.Ints)
		case 9: // strings
			a.Strings = append(a.Strings, f.b)
		case 20: // type
			a.Type = int32(f.u)
		}
		return err
	})
}

func readOpset(data []byte, op *OperatorSetID) error {
	return walk(data, func(f field) error {
		switch f.num {
		case 1: // domain
			op.Domain = f.str()
		case 2: // version
			op.Version = f.int64()
		}
		return nil
	})
}

func readEntry(data []byte, e *StringStringEntry) error {
	return walk(data, func(f field) error {
		switch f.num {
		case 1:
			e.Key = f.str()
		case 2:
			e.Value = f.str()
		}
		return nil
	})
}
