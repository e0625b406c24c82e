// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the raw tensor buffers exchanged with runtime
// modules.
//
// # Overview
//
// A [RawTensor] is a dense, row-major buffer with a [Shape], a [DataType]
// and a [Device]. Callers allocate both the input and the output tensors of
// a run; runtime modules read the inputs and write results into the
// outputs in place.
//
// # Basic Usage
//
//	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	y, _ := tensor.Zeros(tensor.Shape{2, 2}, tensor.Float32)
//
//	err = module.Run([]*tensor.RawTensor{x}, []*tensor.RawTensor{y})
//	fmt.Println(y.AsFloat32())
package tensor
