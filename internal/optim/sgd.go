package optim

import (
	"github.com/born-ml/deepspline/internal/nn"
)

// SGD implements stochastic gradient descent with optional momentum and
// decoupled weight decay.
//
// Update rule without momentum:
//
//	param = param - lr * (gradient + weight_decay * param)
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient + weight_decay * param
//	param = param - lr * velocity
type SGD struct {
	params      []*nn.Parameter
	lr          float32
	momentum    float32
	weightDecay float32
	velocities  map[*nn.Parameter][]float32
}

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LR          float32 // learning rate (default: 0.01)
	Momentum    float32 // momentum factor (default: 0, range [0, 1))
	WeightDecay float32 // L2 penalty added to the gradient (default: 0)
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:      params,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		velocities:  make(map[*nn.Parameter][]float32),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step() {
	for _, p := range s.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		pd, gd := p.Tensor().AsFloat32(), grad.AsFloat32()

		if s.momentum == 0 {
			for i := range pd {
				g := gd[i] + s.weightDecay*pd[i]
				pd[i] -= s.lr * g
			}
			continue
		}

		vel, ok := s.velocities[p]
		if !ok {
			vel = make([]float32, len(pd))
			s.velocities[p] = vel
		}
		for i := range pd {
			g := gd[i] + s.weightDecay*pd[i]
			vel[i] = s.momentum*vel[i] + g
			pd[i] -= s.lr * vel[i]
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (s *SGD) ZeroGrad() {
	zeroGrads(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR sets the learning rate.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}
