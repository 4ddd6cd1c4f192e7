package nn

import (
	"github.com/born-ml/deepspline/internal/tensor"
)

// ReLU is a Rectified Linear Unit activation module.
//
// Applies the element-wise function: f(x) = max(0, x)
type ReLU struct {
	input *tensor.RawTensor // cached for backward
}

// NewReLU creates a new ReLU activation module.
func NewReLU() *ReLU {
	return &ReLU{}
}

// Forward applies ReLU activation: f(x) = max(0, x).
func (r *ReLU) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	r.input = input

	out := tensor.Zeros(input.Shape(), tensor.Float32, input.Device())
	xd, od := input.AsFloat32(), out.AsFloat32()
	for i, v := range xd {
		if v > 0 {
			od[i] = v
		}
	}
	return out
}

// Backward passes the gradient through where the input was positive.
func (r *ReLU) Backward(gradOutput *tensor.RawTensor) *tensor.RawTensor {
	if r.input == nil {
		panic("relu: backward called before forward")
	}

	gradIn := tensor.Zeros(gradOutput.Shape(), tensor.Float32, gradOutput.Device())
	xd, gd, gi := r.input.AsFloat32(), gradOutput.AsFloat32(), gradIn.AsFloat32()
	for i, v := range xd {
		if v > 0 {
			gi[i] = gd[i]
		}
	}
	return gradIn
}

// Parameters returns an empty slice (ReLU has no trainable parameters).
func (r *ReLU) Parameters() []*Parameter {
	return nil
}

// LeakyReLU is a leaky rectified linear unit activation module.
//
// Applies the element-wise function: f(x) = x if x > 0, else slope * x.
type LeakyReLU struct {
	slope float32
	input *tensor.RawTensor
}

// NewLeakyReLU creates a new LeakyReLU activation with the given negative
// slope. A slope of 0 defaults to 0.01.
func NewLeakyReLU(slope float64) *LeakyReLU {
	if slope == 0 {
		slope = 0.01
	}
	return &LeakyReLU{slope: float32(slope)}
}

// Forward applies the leaky ReLU function.
func (l *LeakyReLU) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	l.input = input

	out := tensor.Zeros(input.Shape(), tensor.Float32, input.Device())
	xd, od := input.AsFloat32(), out.AsFloat32()
	for i, v := range xd {
		if v > 0 {
			od[i] = v
		} else {
			od[i] = l.slope * v
		}
	}
	return out
}

// Backward scales the gradient by 1 or the negative slope.
func (l *LeakyReLU) Backward(gradOutput *tensor.RawTensor) *tensor.RawTensor {
	if l.input == nil {
		panic("leaky_relu: backward called before forward")
	}

	gradIn := tensor.Zeros(gradOutput.Shape(), tensor.Float32, gradOutput.Device())
	xd, gd, gi := l.input.AsFloat32(), gradOutput.AsFloat32(), gradIn.AsFloat32()
	for i, v := range xd {
		if v > 0 {
			gi[i] = gd[i]
		} else {
			gi[i] = l.slope * gd[i]
		}
	}
	return gradIn
}

// Parameters returns an empty slice (LeakyReLU has no trainable parameters).
func (l *LeakyReLU) Parameters() []*Parameter {
	return nil
}

// Slope returns the negative slope.
func (l *LeakyReLU) Slope() float64 {
	return float64(l.slope)
}
