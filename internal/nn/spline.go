package nn

import (
	"fmt"

	"github.com/born-ml/deepspline/internal/tensor"
)

// Mode selects the input reshape convention of a spline activation group.
type Mode int

// A conv-style group applies one spline per output channel, shared across
// spatial positions; a linear-style group applies one spline per neuron.
// The mode only determines how the input batch maps onto activation units,
// never the numeric algorithm.
const (
	ModeConv Mode = iota
	ModeLinear
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeConv:
		return "conv"
	case ModeLinear:
		return "linear"
	default:
		return "unknown"
	}
}

// InitPolicy selects the initial shape of a spline activation.
type InitPolicy int

// Supported initialization policies: mimic a fixed nonlinearity exactly at
// each knot, or draw knot values from a zero-mean Gaussian.
const (
	InitReLU InitPolicy = iota
	InitLeakyReLU
	InitRandom
)

// String returns the policy name.
func (p InitPolicy) String() string {
	switch p {
	case InitReLU:
		return "relu"
	case InitLeakyReLU:
		return "leaky_relu"
	case InitRandom:
		return "random"
	default:
		return "unknown"
	}
}

// SplineConfig configures one spline activation group.
type SplineConfig struct {
	Mode           Mode
	NumActivations int     // independent 1D splines in the group
	Size           int     // coefficients per spline; odd, >= 3
	Grid           float64 // spacing between adjacent knots; > 0
	Init           InitPolicy
	NegativeSlope  float64 // InitLeakyReLU slope; 0 defaults to 0.01
	InitStd        float64 // InitRandom std; 0 defaults to 0.3
	SaveMemory     bool    // fold extrapolation into the kernel, recompute at backward
}

// withDefaults fills zero-valued optional fields.
func (c SplineConfig) withDefaults() SplineConfig {
	if c.NegativeSlope == 0 {
		c.NegativeSlope = 0.01
	}
	if c.InitStd == 0 {
		c.InitStd = 0.3
	}
	return c
}

// validate rejects configurations the numeric algorithm cannot support.
func (c SplineConfig) validate() error {
	if c.NumActivations <= 0 {
		return fmt.Errorf("spline: num_activations must be positive, got %d", c.NumActivations)
	}
	if c.Size < 3 || c.Size%2 == 0 {
		return fmt.Errorf("spline: size must be an odd integer >= 3, got %d", c.Size)
	}
	if c.Grid <= 0 {
		return fmt.Errorf("spline: grid must be positive, got %g", c.Grid)
	}
	if c.Mode != ModeConv && c.Mode != ModeLinear {
		return fmt.Errorf("spline: unknown mode %d", c.Mode)
	}
	return nil
}

// initSlope is the negative slope of the initial activation shape, used to
// key He weight initialization of the preceding layer.
func (c SplineConfig) initSlope() float64 {
	if c.Init == InitLeakyReLU {
		return c.NegativeSlope
	}
	return 0
}

// initValue evaluates the configured initialization policy at knot position x.
func (c SplineConfig) initValue(x float64) float32 {
	switch c.Init {
	case InitLeakyReLU:
		if x < 0 {
			return float32(c.NegativeSlope * x)
		}
		return float32(x)
	default: // InitReLU
		if x < 0 {
			return 0
		}
		return float32(x)
	}
}

// KnotData is the introspection export of one spline group: the ordered knot
// positions (shared across units), the spline value at each knot per unit,
// and the sparsity mask at the requested threshold (true where the slope
// would be zeroed). Used for plotting and export only.
type KnotData struct {
	Kind      ActivationKind
	Positions []float32         // [size]
	Values    *tensor.RawTensor // [numActivations, size], Float32
	Mask      *tensor.RawTensor // [numActivations, size-2], Bool
}

// Spline is the capability set shared by all learnable spline activation
// variants. A Spline is also a Module; the extra methods expose the
// regularization, sparsification and introspection surface the Network
// aggregator consumes.
type Spline interface {
	Module

	// Kind identifies the variant.
	Kind() ActivationKind
	// Mode returns the input reshape convention.
	Mode() Mode
	// NumActivations returns the number of independent splines in the group.
	NumActivations() int
	// Size returns the number of coefficients per spline.
	Size() int
	// Grid returns the knot spacing.
	Grid() float64
	// InitSlope returns the negative slope of the initial activation
	// shape: the configured slope for a leaky_relu init, 0 otherwise.
	InitSlope() float64
	// ParameterNames returns the variant's trainable parameter names.
	ParameterNames() []string

	// ReluSlopes returns the second finite differences of the spline,
	// shape [numActivations, size-2]. The result is freshly allocated and
	// never aliases parameter memory.
	ReluSlopes() *tensor.RawTensor

	// TotalVariation returns the TV(2) seminorm: the L1 norm of the relu
	// slopes per activation unit ([numActivations]) when additive is true,
	// or summed over the group ([1]) otherwise.
	TotalVariation(additive bool) *tensor.RawTensor

	// BVNorm returns TV(2) plus the absolute spline values at the
	// normalized support boundaries x = -1 and x = +1, with the same
	// additive convention as TotalVariation.
	BVNorm(additive bool) *tensor.RawTensor

	// ApplyThreshold zeroes every relu slope with absolute value below
	// threshold and rebuilds consistent coefficients. The first two
	// coefficients of each spline are preserved exactly.
	ApplyThreshold(threshold float64) error

	// ThresholdSparsity reports, without mutating state, how many relu
	// slopes would be zeroed at the threshold, and the boolean mask
	// ([numActivations, size-2], true = would be zeroed).
	ThresholdSparsity(threshold float64) (int, *tensor.RawTensor, error)

	// AccumulateTVGrad adds the subgradient of lmbda * TV(2) to the
	// variant's parameter gradients.
	AccumulateTVGrad(lmbda float64)

	// Knots returns the plotting/export view of the group at the given
	// sparsity threshold.
	Knots(threshold float64) (*KnotData, error)
}

// SplineParameterNames returns the fixed, enumerable set of parameter names
// used by the spline activation family. The set is stable across variants;
// callers partition a network's parameters by matching name suffixes
// against it.
func SplineParameterNames() []string {
	return []string{"coefficients_vect", "relu_slopes", "spline_weight", "spline_bias"}
}
