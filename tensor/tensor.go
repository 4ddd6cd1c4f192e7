// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor is the public tensor API of the deepspline library.
//
// It re-exports the internal tensor types: the flat float32 RawTensor, the
// Shape helpers and the Backend compute interface that the spline modules
// build on.
package tensor

import (
	"github.com/born-ml/deepspline/internal/tensor"
)

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// DataType identifies the element type of a tensor.
type DataType = tensor.DataType

// Supported element types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Bool    = tensor.Bool
)

// Device identifies where tensor data lives.
type Device = tensor.Device

// CPU is the only device supported today.
const CPU = tensor.CPU

// RawTensor is a dense tensor with flat storage.
type RawTensor = tensor.RawTensor

// Backend is the compute interface the library's modules run on.
type Backend = tensor.Backend

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape, dtype DataType, device Device) *RawTensor {
	return tensor.Zeros(shape, dtype, device)
}

// Full creates a Float32 tensor filled with a specific value.
func Full(shape Shape, value float32, device Device) *RawTensor {
	return tensor.Full(shape, value, device)
}

// FromFloat32 creates a Float32 tensor from a slice. The data is copied.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape, device)
}

// Randn creates a Float32 tensor with values drawn from N(0, 1).
func Randn(shape Shape, device Device) *RawTensor {
	return tensor.Randn(shape, device)
}
