package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a zero-filled tensor.
// Panics on an invalid shape; shapes are fixed at construction by callers.
func Zeros(shape Shape, dtype DataType, device Device) *RawTensor {
	t, err := NewRaw(shape, dtype, device)
	if err != nil {
		panic(fmt.Sprintf("zeros: %v", err))
	}
	return t
}

// Full creates a Float32 tensor filled with a specific value.
func Full(shape Shape, value float32, device Device) *RawTensor {
	t := Zeros(shape, Float32, device)
	data := t.AsFloat32()
	for i := range data {
		data[i] = value
	}
	return t
}

// FromFloat32 creates a Float32 tensor from a slice.
// The data is copied; the length must match the shape.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	t, err := NewRaw(shape, Float32, device)
	if err != nil {
		return nil, err
	}
	if len(data) != t.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, t.NumElements())
	}
	copy(t.AsFloat32(), data)
	return t, nil
}

// Randn creates a Float32 tensor with values drawn from N(0, 1).
func Randn(shape Shape, device Device) *RawTensor {
	t := Zeros(shape, Float32, device)
	data := t.AsFloat32()
	for i := range data {
		//nolint:gosec // math/rand for initialization (not security-critical)
		data[i] = float32(rand.NormFloat64())
	}
	return t
}
