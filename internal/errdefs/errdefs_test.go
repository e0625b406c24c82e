package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageNamesRegistryNameAndOp(t *testing.T) {
	err := NotFound(OpImport, "opaque function registry", "onnx.from_onnx")

	msg := err.Error()
	assert.Contains(t, msg, "import")
	assert.Contains(t, msg, "opaque function registry")
	assert.Contains(t, msg, `"onnx.from_onnx"`)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnknownRuntime)
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("device busy")
	err := Construction("dpu-sim", cause)

	assert.ErrorIs(t, err, ErrConstructionFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "device busy")
}

func TestError_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", Arity(OpExecution, "input buffers", 2, 1))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrArityMismatch, e.Kind)
	assert.Contains(t, err.Error(), "want 2, got 1")
}

func TestUnsupportedOperatorError(t *testing.T) {
	err := error(&UnsupportedOperatorError{OpType: "Conv2D", Layer: "conv1", Runtime: "dpu-sim"})

	assert.ErrorIs(t, err, ErrUnsupportedOperator)
	assert.Contains(t, err.Error(), `"Conv2D"`)
	assert.Contains(t, err.Error(), `"conv1"`)

	var uerr *UnsupportedOperatorError
	require.ErrorAs(t, fmt.Errorf("wrap: %w", err), &uerr)
	assert.Equal(t, "Conv2D", uerr.OpType)
}

func TestClassified(t *testing.T) {
	assert.True(t, Classified(Shape(OpExecution, "x", []int{2}, []int{3})))
	assert.True(t, Classified(fmt.Errorf("ctx: %w", UseAfterRelease(OpExecution, "sim"))))
	assert.True(t, Classified(&UnsupportedOperatorError{OpType: "Foo"}))
	assert.False(t, Classified(errors.New("plain")))
}
