package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/deepspline/internal/tensor"
)

// Sum returns the total sum of all elements, accumulated in float64.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) float64 {
	var acc float64
	for _, v := range x.AsFloat32() {
		acc += float64(v)
	}
	return acc
}

// SumDim sums along a dimension, removing it from the result shape.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("sumdim: dimension %d out of range for shape %v", dim, shape))
	}

	outShape := make(tensor.Shape, 0, len(shape)-1)
	outShape = append(outShape, shape[:dim]...)
	outShape = append(outShape, shape[dim+1:]...)
	if len(outShape) == 0 {
		outShape = tensor.Shape{1}
	}

	result := cpu.newResult("sumdim", outShape, tensor.Float32)

	// outer iterates dims before dim, inner iterates dims after it.
	outer, inner := 1, 1
	for _, d := range shape[:dim] {
		outer *= d
	}
	for _, d := range shape[dim+1:] {
		inner *= d
	}
	reduced := shape[dim]

	xd, rd := x.AsFloat32(), result.AsFloat32()
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var acc float64
			base := o * reduced * inner
			for r := 0; r < reduced; r++ {
				acc += float64(xd[base+r*inner+in])
			}
			rd[o*inner+in] = float32(acc)
		}
	}
	return result
}

// MaxAbs returns the maximum absolute value over all elements.
func (cpu *CPUBackend) MaxAbs(x *tensor.RawTensor) float64 {
	var m float64
	for _, v := range x.AsFloat32() {
		if a := math.Abs(float64(v)); a > m {
			m = a
		}
	}
	return m
}
