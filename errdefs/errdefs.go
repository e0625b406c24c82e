// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package errdefs exposes the error kinds returned by registries, factories
// and runtime modules. Match them with errors.Is:
//
//	if errors.Is(err, errdefs.ErrUnknownRuntime) {
//	    // fall back to another runtime
//	}
package errdefs

import (
	"github.com/born-ml/graphrt/internal/errdefs"
)

// Error kinds.
var (
	ErrNotFound            = errdefs.ErrNotFound
	ErrUnknownRuntime      = errdefs.ErrUnknownRuntime
	ErrUnsupportedOperator = errdefs.ErrUnsupportedOperator
	ErrArityMismatch       = errdefs.ErrArityMismatch
	ErrShapeMismatch       = errdefs.ErrShapeMismatch
	ErrTypeMismatch        = errdefs.ErrTypeMismatch
	ErrConstructionFailure = errdefs.ErrConstructionFailure
	ErrExecutionFailure    = errdefs.ErrExecutionFailure
	ErrUseAfterRelease     = errdefs.ErrUseAfterRelease
)

// Error carries the kind, operation and subject of a failure.
// Use errors.As to inspect it.
type Error = errdefs.Error

// UnsupportedOperatorError names the operator a runtime rejected.
type UnsupportedOperatorError = errdefs.UnsupportedOperatorError
