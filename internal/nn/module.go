// Package nn implements neural network modules for the deepspline library.
//
// This package provides the building blocks around learnable spline
// activations:
//   - Module interface: forward/backward/parameter contract for all components
//   - Parameter: trainable parameters with gradient accumulation
//   - DeepBSpline, DeepBSplineExplicitLinear, DeepReLUBasis: spline activations
//   - ReLU, LeakyReLU: fixed activations sharing the same Module contract
//   - Linear, Conv2d: weight layers
//   - Network: container with spline regularization, sparsification and
//     Lipschitz bound aggregation
//
// Design inspired by PyTorch's nn.Module, with explicit manually derived
// backward passes instead of a recorded autodiff graph.
package nn

import (
	"github.com/born-ml/deepspline/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Backward must be called after Forward on the same input batch: modules
// cache the forward activations they need for their gradient rule. A module
// is not safe for concurrent use; in particular, in-place parameter rewrites
// (optimizer steps, sparsification) must not overlap a forward/backward pass
// over the same module.
type Module interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.RawTensor) *tensor.RawTensor

	// Backward consumes the gradient w.r.t. the module output, accumulates
	// gradients into the module's parameters, and returns the gradient
	// w.r.t. the module input.
	Backward(gradOutput *tensor.RawTensor) *tensor.RawTensor

	// Parameters returns all trainable parameters of this module.
	// Returns an empty slice for modules without trainable parameters.
	Parameters() []*Parameter
}

// Sequential is a container that chains modules in order.
type Sequential struct {
	modules []Module
}

// NewSequential creates a Sequential container from the given modules.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Forward runs the input through every module in order.
func (s *Sequential) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	out := input
	for _, m := range s.modules {
		out = m.Forward(out)
	}
	return out
}

// Backward propagates the output gradient through every module in reverse.
func (s *Sequential) Backward(gradOutput *tensor.RawTensor) *tensor.RawTensor {
	grad := gradOutput
	for i := len(s.modules) - 1; i >= 0; i-- {
		grad = s.modules[i].Backward(grad)
	}
	return grad
}

// Parameters returns the parameters of all contained modules.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Modules returns the contained modules in order.
func (s *Sequential) Modules() []Module {
	return s.modules
}

// Len returns the number of contained modules.
func (s *Sequential) Len() int {
	return len(s.modules)
}
