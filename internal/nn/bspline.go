package nn

import (
	"github.com/born-ml/deepspline/internal/tensor"
)

// DeepBSpline is a learnable piecewise-linear activation group: one
// independent 1D spline per activation unit, with linear extrapolation
// outside the knot support. The only trainable state is the coefficient
// vector (one value per knot per unit).
type DeepBSpline struct {
	deepBSplineBase
}

// NewDeepBSpline builds a spline activation group from the configuration.
func NewDeepBSpline(cfg SplineConfig, backend tensor.Backend) (*DeepBSpline, error) {
	base, err := newDeepBSplineBase(cfg, backend)
	if err != nil {
		return nil, err
	}
	return &DeepBSpline{deepBSplineBase: base}, nil
}

// Kind identifies the variant.
func (m *DeepBSpline) Kind() ActivationKind { return ActivationBSpline }

// Forward evaluates the splines over the input batch and caches the state
// the next Backward call needs.
func (m *DeepBSpline) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	out := m.splineForward(input)
	if !m.saveMemory {
		m.addExtrapolation(input, out)
	}
	return out
}

// Backward accumulates coefficient gradients and returns the input gradient.
func (m *DeepBSpline) Backward(gradOutput *tensor.RawTensor) *tensor.RawTensor {
	return m.splineBackward(gradOutput)
}

// Parameters returns the trainable parameters.
func (m *DeepBSpline) Parameters() []*Parameter {
	return []*Parameter{m.coefficientsVect}
}

// ParameterNames returns the variant's trainable parameter names.
func (m *DeepBSpline) ParameterNames() []string {
	return []string{"coefficients_vect"}
}

// BVNorm returns TV(2) plus the absolute activation values at x = -1 and
// x = +1, per unit or summed.
func (m *DeepBSpline) BVNorm(additive bool) *tensor.RawTensor {
	return m.bvNorm(additive, m.evalAt)
}

// Knots returns the plotting/export view of the group.
func (m *DeepBSpline) Knots(threshold float64) (*KnotData, error) {
	kd, err := m.knotData(threshold, m.evalAt)
	if err != nil {
		return nil, err
	}
	kd.Kind = m.Kind()
	return kd, nil
}
