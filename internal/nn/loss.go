package nn

import (
	"fmt"

	"github.com/born-ml/deepspline/internal/tensor"
)

// MSELoss computes the mean squared error between a prediction and a target
// batch, with a matching manual backward pass.
type MSELoss struct {
	diff *tensor.RawTensor // prediction - target, saved by Forward
}

// NewMSELoss creates a mean squared error criterion.
func NewMSELoss() *MSELoss {
	return &MSELoss{}
}

// Forward returns mean((prediction - target)^2) over all elements.
func (l *MSELoss) Forward(prediction, target *tensor.RawTensor) float32 {
	if !prediction.Shape().Equal(target.Shape()) {
		panic(fmt.Sprintf("mse: prediction shape %v does not match target shape %v",
			prediction.Shape(), target.Shape()))
	}

	diff := tensor.Zeros(prediction.Shape(), tensor.Float32, prediction.Device())
	dd := diff.AsFloat32()
	pd, td := prediction.AsFloat32(), target.AsFloat32()

	var acc float64
	for i := range pd {
		d := pd[i] - td[i]
		dd[i] = d
		acc += float64(d) * float64(d)
	}

	l.diff = diff
	return float32(acc / float64(len(pd)))
}

// Backward returns the gradient of the loss w.r.t. the prediction.
func (l *MSELoss) Backward() *tensor.RawTensor {
	if l.diff == nil {
		panic("mse: backward called before forward")
	}

	n := float32(l.diff.NumElements())
	grad := tensor.Zeros(l.diff.Shape(), tensor.Float32, l.diff.Device())
	gd := grad.AsFloat32()
	for i, d := range l.diff.AsFloat32() {
		gd[i] = 2 * d / n
	}

	l.diff = nil
	return grad
}
