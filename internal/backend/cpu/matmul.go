package cpu

import (
	"fmt"

	"github.com/born-ml/deepspline/internal/tensor"
)

// MatMul performs 2D matrix multiplication: [M, K] @ [K, N] -> [M, N].
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", aShape, bShape))
	}
	if aShape[1] != bShape[0] {
		panic(fmt.Sprintf("matmul: inner dimensions mismatch: %v @ %v", aShape, bShape))
	}

	m, k, n := aShape[0], aShape[1], bShape[1]
	result := cpu.newResult("matmul", tensor.Shape{m, n}, tensor.Float32)

	ad, bd, rd := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()

	// i-k-j loop order: streams over b rows, cache-friendly for row-major data.
	for i := 0; i < m; i++ {
		aRow := ad[i*k : (i+1)*k]
		rRow := rd[i*n : (i+1)*n]
		for kk := 0; kk < k; kk++ {
			av := aRow[kk]
			if av == 0 {
				continue
			}
			bRow := bd[kk*n : (kk+1)*n]
			for j := 0; j < n; j++ {
				rRow[j] += av * bRow[j]
			}
		}
	}
	return result
}

// Transpose transposes a 2D tensor: [M, N] -> [N, M].
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor) *tensor.RawTensor {
	shape := t.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("transpose: expected 2D tensor, got %v", shape))
	}

	m, n := shape[0], shape[1]
	result := cpu.newResult("transpose", tensor.Shape{n, m}, tensor.Float32)

	td, rd := t.AsFloat32(), result.AsFloat32()
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			rd[j*m+i] = td[i*n+j]
		}
	}
	return result
}
