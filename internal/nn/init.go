package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/deepspline/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
func Xavier(fanIn, fanOut int, shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	t := tensor.Zeros(shape, tensor.Float32, device)
	data := t.AsFloat32()
	for i := range data {
		//nolint:gosec // math/rand for weight initialization (not security-critical)
		data[i] = float32((rand.Float64()*2.0 - 1.0) * bound)
	}
	return t
}

// KaimingNormal (He) initialization for weights feeding a ReLU-family
// nonlinearity, fan-out mode:
//
//	N(0, sqrt(2 / ((1 + slope^2) * fan_out)))
//
// slope is the negative slope of the nonlinearity (0 for ReLU, e.g. 0.01
// for LeakyReLU or a spline initialized to mimic it).
func KaimingNormal(fanOut int, slope float64, shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	std := math.Sqrt(2.0 / ((1.0 + slope*slope) * float64(fanOut)))

	t := tensor.Zeros(shape, tensor.Float32, device)
	data := t.AsFloat32()
	for i := range data {
		//nolint:gosec // math/rand for weight initialization (not security-critical)
		data[i] = float32(rand.NormFloat64() * std)
	}
	return t
}

// CustomNormal initializes weights from N(0, std).
func CustomNormal(std float64, shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	t := tensor.Zeros(shape, tensor.Float32, device)
	data := t.AsFloat32()
	for i := range data {
		//nolint:gosec // math/rand for weight initialization (not security-critical)
		data[i] = float32(rand.NormFloat64() * std)
	}
	return t
}
