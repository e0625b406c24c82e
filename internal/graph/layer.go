package graph

import (
	"github.com/born-ml/graphrt/internal/tensor"
)

// Well-known operator types.
const (
	OpInput        = "Input"
	OpOutput       = "Output"
	OpConstant     = "Constant"
	OpFused        = "FusedOp"
	OpTupleGetItem = "TupleGetItem"
)

// Layer is one typed operator node of a Graph.
// A layer produces the tensor that carries its name; multi-output layers
// produce a tuple that TupleGetItem layers index into.
type Layer struct {
	Name     string
	Type     string
	Inputs   []string       // Producer layer names, in operand order.
	Shape    tensor.Shape   // Output shape, -1 for dynamic dimensions.
	DType    tensor.DataType
	Attrs    map[string]any // int64, []int64, float32, []float32, string, []string.
	Data     []*tensor.RawTensor
	Subgraph *Graph // Body of a fused layer.
}

// Clone returns a copy of l that shares Data tensors and Subgraph.
func (l *Layer) Clone() *Layer {
	c := *l
	c.Inputs = append([]string(nil), l.Inputs...)
	c.Shape = l.Shape.Clone()
	if l.Attrs != nil {
		c.Attrs = make(map[string]any, len(l.Attrs))
		for k, v := range l.Attrs {
			c.Attrs[k] = v
		}
	}
	c.Data = append([]*tensor.RawTensor(nil), l.Data...)
	return &c
}

// SetAttr sets an attribute, allocating the map on first use.
func (l *Layer) SetAttr(name string, value any) {
	if l.Attrs == nil {
		l.Attrs = make(map[string]any)
	}
	l.Attrs[name] = value
}

// AttrInt returns an integer attribute or defaultVal.
func (l *Layer) AttrInt(name string, defaultVal int64) int64 {
	switch v := l.Attrs[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	default:
		return defaultVal
	}
}

// AttrInts returns an integer array attribute, or nil.
func (l *Layer) AttrInts(name string) []int64 {
	switch v := l.Attrs[name].(type) {
	case []int64:
		return v
	case []int:
		out := make([]int64, len(v))
		for i := range v {
			out[i] = int64(v[i])
		}
		return out
	default:
		return nil
	}
}

// AttrFloat returns a float attribute or defaultVal.
func (l *Layer) AttrFloat(name string, defaultVal float32) float32 {
	switch v := l.Attrs[name].(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	default:
		return defaultVal
	}
}

// AttrString returns a string attribute or defaultVal.
func (l *Layer) AttrString(name, defaultVal string) string {
	if v, ok := l.Attrs[name].(string); ok {
		return v
	}
	return defaultVal
}

// AttrStrings returns a string array attribute, or nil.
func (l *Layer) AttrStrings(name string) []string {
	v, _ := l.Attrs[name].([]string)
	return v
}
