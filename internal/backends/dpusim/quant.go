package dpusim

import (
	"math"

	"github.com/born-ml/graphrt/internal/tensor"
)

const int8Max = 127

// quantizer implements on-the-fly quantization. The first calib calls
// pass inputs through unchanged and record the max-abs of each input;
// later calls snap float inputs onto a symmetric int8 grid derived from
// those ranges.
type quantizer struct {
	calib  int
	seen   int
	maxAbs []float64
}

func newQuantizer(inputs, calib int) *quantizer {
	return &quantizer{calib: calib, maxAbs: make([]float64, inputs)}
}

func (q *quantizer) calibrated() bool { return q.seen >= q.calib }

// apply returns the tensors to execute for in. in is never modified.
func (q *quantizer) apply(in []*tensor.RawTensor) []*tensor.RawTensor {
	if !q.calibrated() {
		for i, t := range in {
			q.maxAbs[i] = math.Max(q.maxAbs[i], maxAbs(t))
		}
		q.seen++
		return in
	}

	out := make([]*tensor.RawTensor, len(in))
	for i, t := range in {
		out[i] = quantize(t, q.maxAbs[i])
	}
	return out
}

func maxAbs(t *tensor.RawTensor) float64 {
	var m float64
	switch t.DType() {
	case tensor.Float32:
		for _, v := range t.AsFloat32() {
			m = math.Max(m, math.Abs(float64(v)))
		}
	case tensor.Float64:
		for _, v := range t.AsFloat64() {
			m = math.Max(m, math.Abs(v))
		}
	}
	return m
}

func quantize(t *tensor.RawTensor, rangeAbs float64) *tensor.RawTensor {
	if rangeAbs == 0 {
		return t
	}
	scale := rangeAbs / int8Max
	snap := func(v float64) float64 {
		q := math.Round(v / scale)
		return math.Max(-int8Max, math.Min(int8Max, q)) * scale
	}

	switch t.DType() {
	case tensor.Float32:
		c := t.Clone()
		v := c.AsFloat32()
		for i := range v {
			v[i] = float32(snap(float64(v[i])))
		}
		return c
	case tensor.Float64:
		c := t.Clone()
		v := c.AsFloat64()
		for i := range v {
			v[i] = snap(v[i])
		}
		return c
	default:
		return t
	}
}
