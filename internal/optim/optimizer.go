// Package optim provides optimization algorithms for training spline
// networks: SGD with momentum and Adam. The spline coefficient parameters
// are typically trained with Adam and the weight layers with SGD; the
// Network's parameter partitioning feeds one optimizer per group.
package optim

import (
	"github.com/born-ml/deepspline/internal/nn"
)

// Optimizer is the interface implemented by all optimization algorithms.
type Optimizer interface {
	// Step applies one parameter update from the accumulated gradients.
	// Parameters without a gradient are skipped.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR sets the learning rate (used by schedulers).
	SetLR(lr float32)
}

func zeroGrads(params []*nn.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
