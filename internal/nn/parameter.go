package nn

import (
	"fmt"

	"github.com/born-ml/deepspline/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors whose gradients are accumulated during the
// backward pass and consumed by an optimizer.
type Parameter struct {
	name   string            // Parameter name (e.g., "weight", "coefficients_vect")
	tensor *tensor.RawTensor // The parameter tensor
	grad   *tensor.RawTensor // Accumulated gradient (nil until first backward)
}

// NewParameter creates a new trainable parameter.
// The gradient is allocated lazily on the first accumulation.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Grad returns the accumulated gradient tensor.
// Returns nil if no gradient has been accumulated yet.
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// AccumulateGrad adds g to the parameter's gradient, allocating it on
// first use. Gradients from multiple backward contributions sum, they
// never overwrite.
func (p *Parameter) AccumulateGrad(g *tensor.RawTensor) {
	if !g.Shape().Equal(p.tensor.Shape()) {
		panic(fmt.Sprintf("parameter %q: gradient shape %v does not match parameter shape %v",
			p.name, g.Shape(), p.tensor.Shape()))
	}
	if p.grad == nil {
		p.grad = tensor.Zeros(p.tensor.Shape(), tensor.Float32, p.tensor.Device())
	}
	gd := p.grad.AsFloat32()
	for i, v := range g.AsFloat32() {
		gd[i] += v
	}
}

// ZeroGrad clears the gradient tensor.
// Call before each training iteration to avoid accumulating gradients
// from previous iterations.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}
