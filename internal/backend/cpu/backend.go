// Package cpu implements the CPU backend for the deepspline library.
package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/deepspline/internal/tensor"
)

// CPUBackend implements tensor operations on CPU with plain Go loops.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// checkFloat32Pair validates a binary element-wise operation's operands.
func checkFloat32Pair(op string, a, b *tensor.RawTensor) {
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("%s: unsupported dtypes %s, %s (only float32)", op, a.DType(), b.DType()))
	}
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape()))
	}
}

// newResult allocates a result tensor, panicking on failure (shapes are
// validated by the callers).
func (cpu *CPUBackend) newResult(op string, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

// Add performs element-wise addition.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	checkFloat32Pair("add", a, b)
	result := cpu.newResult("add", a.Shape(), tensor.Float32)

	ad, bd, rd := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
	for i := range rd {
		rd[i] = ad[i] + bd[i]
	}
	return result
}

// Sub performs element-wise subtraction.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	checkFloat32Pair("sub", a, b)
	result := cpu.newResult("sub", a.Shape(), tensor.Float32)

	ad, bd, rd := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
	for i := range rd {
		rd[i] = ad[i] - bd[i]
	}
	return result
}

// Mul performs element-wise multiplication.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	checkFloat32Pair("mul", a, b)
	result := cpu.newResult("mul", a.Shape(), tensor.Float32)

	ad, bd, rd := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
	for i := range rd {
		rd[i] = ad[i] * bd[i]
	}
	return result
}

// AddScalar adds a scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	result := cpu.newResult("addscalar", x.Shape(), tensor.Float32)

	xd, rd := x.AsFloat32(), result.AsFloat32()
	for i := range rd {
		rd[i] = xd[i] + s
	}
	return result
}

// MulScalar multiplies every element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	result := cpu.newResult("mulscalar", x.Shape(), tensor.Float32)

	xd, rd := x.AsFloat32(), result.AsFloat32()
	for i := range rd {
		rd[i] = xd[i] * s
	}
	return result
}

// Abs computes element-wise absolute value.
func (cpu *CPUBackend) Abs(x *tensor.RawTensor) *tensor.RawTensor {
	result := cpu.newResult("abs", x.Shape(), tensor.Float32)

	xd, rd := x.AsFloat32(), result.AsFloat32()
	for i := range rd {
		rd[i] = float32(math.Abs(float64(xd[i])))
	}
	return result
}
