package opaque

import (
	"fmt"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Kind is the case of a Value.
type Kind int

// Value kinds. The set is closed.
const (
	KindGraph Kind = iota + 1
	KindString
	KindBytes
	KindTensors
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindGraph:
		return "graph"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTensors:
		return "tensors"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is the type-erased argument passed to opaque functions.
// Graph and tensor-list values are containers: a callee may populate them
// in place and the caller observes the result through the same *Value.
type Value struct {
	kind    Kind
	graph   *graph.Graph
	str     string
	bytes   []byte
	tensors []*tensor.RawTensor
}

// GraphArg wraps a graph reference.
func GraphArg(g *graph.Graph) *Value { return &Value{kind: KindGraph, graph: g} }

// StringArg wraps a string.
func StringArg(s string) *Value { return &Value{kind: KindString, str: s} }

// BytesArg wraps a byte buffer.
func BytesArg(b []byte) *Value { return &Value{kind: KindBytes, bytes: b} }

// TensorsArg wraps a tensor list. Pass no tensors to create an output container.
func TensorsArg(ts ...*tensor.RawTensor) *Value { return &Value{kind: KindTensors, tensors: ts} }

// Kind returns the case held by v.
func (v *Value) Kind() Kind { return v.kind }

// AsGraph returns the wrapped graph.
func (v *Value) AsGraph() (*graph.Graph, error) {
	if err := v.expect(KindGraph); err != nil {
		return nil, err
	}
	if v.graph == nil {
		return nil, &errdefs.Error{Kind: errdefs.ErrTypeMismatch, Op: errdefs.OpInvoke, Detail: "nil graph"}
	}
	return v.graph, nil
}

// AsString returns the wrapped string.
func (v *Value) AsString() (string, error) {
	if err := v.expect(KindString); err != nil {
		return "", err
	}
	return v.str, nil
}

// AsBytes returns the wrapped byte buffer.
func (v *Value) AsBytes() ([]byte, error) {
	if err := v.expect(KindBytes); err != nil {
		return nil, err
	}
	return v.bytes, nil
}

// AsTensors returns the wrapped tensor list.
func (v *Value) AsTensors() ([]*tensor.RawTensor, error) {
	if err := v.expect(KindTensors); err != nil {
		return nil, err
	}
	return v.tensors, nil
}

// SetTensors replaces the contents of a tensor-list container.
func (v *Value) SetTensors(ts ...*tensor.RawTensor) error {
	if err := v.expect(KindTensors); err != nil {
		return err
	}
	v.tensors = ts
	return nil
}

// String describes the value without dumping its payload.
func (v *Value) String() string {
	switch v.kind {
	case KindGraph:
		if v.graph == nil {
			return "graph(nil)"
		}
		return fmt.Sprintf("graph(%q)", v.graph.Name())
	case KindString:
		return fmt.Sprintf("string(%q)", v.str)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytes))
	case KindTensors:
		return fmt.Sprintf("tensors(%d)", len(v.tensors))
	default:
		return v.kind.String()
	}
}

func (v *Value) expect(k Kind) error {
	if v == nil {
		return errdefs.Type(errdefs.OpInvoke, "argument", k, "nil")
	}
	if v.kind != k {
		return errdefs.Type(errdefs.OpInvoke, "argument", k, v.kind)
	}
	return nil
}

// Expect validates a call signature: args must have exactly len(kinds)
// entries and each must hold the corresponding kind.
func Expect(args []*Value, kinds ...Kind) error {
	if len(args) != len(kinds) {
		return errdefs.Arity(errdefs.OpInvoke, "arguments", len(kinds), len(args))
	}
	for i, k := range kinds {
		if args[i] == nil || args[i].kind != k {
			got := "nil"
			if args[i] != nil {
				got = args[i].kind.String()
			}
			return errdefs.Type(errdefs.OpInvoke, fmt.Sprintf("argument %d", i), k, got)
		}
	}
	return nil
}
