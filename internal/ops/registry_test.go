package ops

import (
	"errors"
	"testing"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/tensor"
)

func TestBuiltin(t *testing.T) {
	r := Builtin()

	essentialOps := []string{
		"Add", "Sub", "Mul", "Div", "MatMul", "Gemm",
		"Relu", "Sigmoid", "Tanh", "Softmax",
		"Reshape", "Transpose", "Concat", "Flatten",
		"Identity", "Dropout", "Output", "Constant",
	}

	for _, op := range essentialOps {
		if !r.Supports(op) {
			t.Errorf("Expected operator %s to be registered", op)
		}
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := Builtin()

	if _, ok := r.Get("Conv2D"); ok {
		t.Error("Expected unknown operator to not be found")
	}
	if New().Supports("Add") {
		t.Error("Expected empty registry to support nothing")
	}
}

func TestSupportedOpsSorted(t *testing.T) {
	ops := Builtin().SupportedOps()
	for i := 1; i < len(ops); i++ {
		if ops[i-1] >= ops[i] {
			t.Fatalf("SupportedOps not sorted: %v", ops)
		}
	}
}

func TestExecuteUnsupported(t *testing.T) {
	_, err := New().Execute(&graph.Layer{Name: "c", Type: "Conv2D"}, nil)
	if !errors.Is(err, errdefs.ErrUnsupportedOperator) {
		t.Fatalf("expected unsupported operator, got %v", err)
	}
}

func TestRegisterCustomOp(t *testing.T) {
	r := New()

	r.Register("MyCustomOp", func(_ *graph.Layer, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		return in, nil
	})

	if _, ok := r.Get("MyCustomOp"); !ok {
		t.Error("Expected custom operator to be registered")
	}
}
