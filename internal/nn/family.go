package nn

import (
	"fmt"

	"github.com/born-ml/deepspline/internal/tensor"
)

// ActivationKind is the closed set of activation families the library
// constructs. The kind is chosen once at construction and stored as data;
// the hot path never inspects types at runtime.
type ActivationKind int

// Fixed activations and learnable spline variants.
const (
	ActivationReLU ActivationKind = iota
	ActivationLeakyReLU
	ActivationBSpline
	ActivationBSplineExplicitLinear
	ActivationReLUBasis
)

// String returns the kind name.
func (k ActivationKind) String() string {
	switch k {
	case ActivationReLU:
		return "relu"
	case ActivationLeakyReLU:
		return "leaky_relu"
	case ActivationBSpline:
		return "deep_bspline"
	case ActivationBSplineExplicitLinear:
		return "deep_bspline_explicit_linear"
	case ActivationReLUBasis:
		return "deep_relu"
	default:
		return "unknown"
	}
}

// IsSpline reports whether the kind is a learnable spline variant.
func (k ActivationKind) IsSpline() bool {
	switch k {
	case ActivationBSpline, ActivationBSplineExplicitLinear, ActivationReLUBasis:
		return true
	default:
		return false
	}
}

// ActivationConfig selects and configures an activation family member.
type ActivationConfig struct {
	Kind          ActivationKind
	NegativeSlope float64      // LeakyReLU fixed activation; 0 defaults to 0.01
	Spline        SplineConfig // spline variants only
}

// NewActivation constructs an activation module for the given configuration.
// Spline kinds validate their SplineConfig and return a module that also
// satisfies the Spline interface.
func NewActivation(cfg ActivationConfig, backend tensor.Backend) (Module, error) {
	switch cfg.Kind {
	case ActivationReLU:
		return NewReLU(), nil
	case ActivationLeakyReLU:
		return NewLeakyReLU(cfg.NegativeSlope), nil
	case ActivationBSpline:
		return NewDeepBSpline(cfg.Spline, backend)
	case ActivationBSplineExplicitLinear:
		return NewDeepBSplineExplicitLinear(cfg.Spline, backend)
	case ActivationReLUBasis:
		return NewDeepReLUBasis(cfg.Spline, backend)
	default:
		return nil, fmt.Errorf("activation: unknown kind %d", cfg.Kind)
	}
}
