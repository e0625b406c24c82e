//go:build windows

package webgpu

import "fmt"

// workgroupSize is the number of threads per workgroup in every shader.
const workgroupSize = 256

// binaryShader builds an elementwise kernel: result = expr(a, b).
func binaryShader(expr string) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = %s;
    }
}
`, expr)
}

// unaryShader builds an elementwise kernel: result = expr(x).
func unaryShader(expr string) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        let x = input[idx];
        result[idx] = %s;
    }
}
`, expr)
}

var binaryShaders = map[string]string{
	"Add": binaryShader("a[idx] + b[idx]"),
	"Sub": binaryShader("a[idx] - b[idx]"),
	"Mul": binaryShader("a[idx] * b[idx]"),
	"Div": binaryShader("a[idx] / b[idx]"),
}

var unaryShaders = map[string]string{
	"Relu":    unaryShader("max(0.0, x)"),
	"Sigmoid": unaryShader("1.0 / (1.0 + exp(-x))"),
	"Tanh":    unaryShader("tanh(x)"),
	"Exp":     unaryShader("exp(x)"),
	"Sqrt":    unaryShader("sqrt(x)"),
}
