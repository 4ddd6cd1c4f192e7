package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/deepspline/internal/tensor"
)

// NetworkConfig holds the regularization settings the Network aggregates
// over its spline activations and weight layers.
type NetworkConfig struct {
	WeightDecay float64 // L2 penalty coefficient for weight/bias parameters
	Lambda      float64 // TV(2)/BV(2) regularization weight
	Lipschitz   bool    // use BV(2) instead of TV(2), enabling the Lipschitz bound
	Threshold   float64 // sparsification threshold on relu slopes
}

// weightLayer is satisfied by modules whose main parameter enters the
// Lipschitz bound through its max absolute entry.
type weightLayer interface {
	Weight() *Parameter
}

// Network is a Sequential with the regularization, sparsification and
// introspection surface of a spline-activated model: it locates the spline
// groups among its modules and aggregates their seminorms, applies
// sparsification across all of them, and partitions parameters into spline
// and non-spline sets for per-group optimizers.
type Network struct {
	*Sequential

	cfg     NetworkConfig
	backend tensor.Backend
}

// NewNetwork wraps the modules in a Network with the given settings.
func NewNetwork(cfg NetworkConfig, backend tensor.Backend, modules ...Module) (*Network, error) {
	if cfg.WeightDecay < 0 {
		return nil, fmt.Errorf("network: weight_decay must be non-negative, got %g", cfg.WeightDecay)
	}
	if cfg.Lambda < 0 {
		return nil, fmt.Errorf("network: lambda must be non-negative, got %g", cfg.Lambda)
	}
	if cfg.Threshold < 0 {
		return nil, fmt.Errorf("network: threshold must be non-negative, got %g", cfg.Threshold)
	}
	return &Network{
		Sequential: NewSequential(modules...),
		cfg:        cfg,
		backend:    backend,
	}, nil
}

// Config returns the network's regularization settings.
func (n *Network) Config() NetworkConfig { return n.cfg }

// Splines returns the spline activation groups among the modules, in order.
func (n *Network) Splines() []Spline {
	var splines []Spline
	for _, m := range n.Modules() {
		if s, ok := m.(Spline); ok {
			splines = append(splines, s)
		}
	}
	return splines
}

// isSplineParam reports whether the parameter name belongs to a spline
// activation. Spline parameter names form a fixed set matched by suffix.
func isSplineParam(name string) bool {
	for _, s := range SplineParameterNames() {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// ParametersSpline returns the parameters owned by spline activations.
func (n *Network) ParametersSpline() []*Parameter {
	var params []*Parameter
	for _, p := range n.Parameters() {
		if isSplineParam(p.Name()) {
			params = append(params, p)
		}
	}
	return params
}

// ParametersNoSpline returns the parameters not owned by spline activations.
func (n *Network) ParametersNoSpline() []*Parameter {
	var params []*Parameter
	for _, p := range n.Parameters() {
		if !isSplineParam(p.Name()) {
			params = append(params, p)
		}
	}
	return params
}

// WeightDecay returns (weight_decay / 2) * sum of squared entries over every
// parameter named with a "weight" or "bias" suffix. Spline affine parameters
// carry those suffixes and are included.
func (n *Network) WeightDecay() float64 {
	var acc float64
	for _, p := range n.Parameters() {
		name := p.Name()
		if !strings.HasSuffix(name, "weight") && !strings.HasSuffix(name, "bias") {
			continue
		}
		for _, v := range p.Tensor().AsFloat32() {
			acc += float64(v) * float64(v)
		}
	}
	return n.cfg.WeightDecay / 2 * acc
}

// TVBV returns the spline regularization total: the sum over spline groups
// of BV(2) when the Lipschitz setting is on, of TV(2) otherwise. The first
// result is weighted by lambda, the second is the raw sum.
func (n *Network) TVBV() (weighted, unweighted float64) {
	for _, s := range n.Splines() {
		var total *tensor.RawTensor
		if n.cfg.Lipschitz {
			total = s.BVNorm(false)
		} else {
			total = s.TotalVariation(false)
		}
		unweighted += float64(total.AsFloat32()[0])
	}
	return n.cfg.Lambda * unweighted, unweighted
}

// LipschitzBound returns the product of the max absolute weight entry over
// every weight layer and the summed BV(2) norm over every spline group, an
// upper bound on the network's global Lipschitz constant.
func (n *Network) LipschitzBound() float64 {
	bound := 1.0
	for _, m := range n.Modules() {
		if wl, ok := m.(weightLayer); ok {
			bound *= n.backend.MaxAbs(wl.Weight().Tensor())
		}
	}
	for _, s := range n.Splines() {
		bound *= float64(s.BVNorm(false).AsFloat32()[0])
	}
	return bound
}

// AccumulateTVGrads adds the lambda-weighted TV(2) subgradient to every
// spline group's parameter gradients.
func (n *Network) AccumulateTVGrads() {
	for _, s := range n.Splines() {
		s.AccumulateTVGrad(n.cfg.Lambda)
	}
}

// SparsifyActivations applies the configured threshold to every spline
// group, zeroing small relu slopes in place.
func (n *Network) SparsifyActivations() error {
	for _, s := range n.Splines() {
		if err := s.ApplyThreshold(n.cfg.Threshold); err != nil {
			return err
		}
	}
	return nil
}

// ComputeSparsity returns the total number of relu slopes that fall below
// the configured threshold across all spline groups, without mutating them.
func (n *Network) ComputeSparsity() (int, error) {
	total := 0
	for _, s := range n.Splines() {
		count, _, err := s.ThresholdSparsity(n.cfg.Threshold)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// SplineActivations exports the plotting view of every spline group at the
// configured threshold, in module order.
func (n *Network) SplineActivations() ([]*KnotData, error) {
	var out []*KnotData
	for _, s := range n.Splines() {
		kd, err := s.Knots(n.cfg.Threshold)
		if err != nil {
			return nil, err
		}
		out = append(out, kd)
	}
	return out, nil
}

// initSlopeFor returns the He slope implied by the activation following a
// weight layer: the negative slope for LeakyReLU and for splines with a
// leaky_relu init, 0 otherwise.
func initSlopeFor(next Module) float64 {
	switch a := next.(type) {
	case *LeakyReLU:
		return a.Slope()
	case Spline:
		return a.InitSlope()
	default:
		return 0
	}
}

// InitializeWeights re-initializes every weight layer with Kaiming normal
// values, deriving the nonlinearity slope from the module that follows it.
// Biases stay zero.
func (n *Network) InitializeWeights() {
	modules := n.Modules()
	for i, m := range modules {
		slope := 0.0
		if i+1 < len(modules) {
			slope = initSlopeFor(modules[i+1])
		}
		switch layer := m.(type) {
		case *Linear:
			w := layer.Weight().Tensor()
			fanOut := w.Shape()[0]
			src := KaimingNormal(fanOut, slope, w.Shape(), w.Device())
			copy(w.AsFloat32(), src.AsFloat32())
		case *Conv2d:
			w := layer.Weight().Tensor()
			shape := w.Shape()
			fanOut := shape[0] * shape[2] * shape[3]
			src := KaimingNormal(fanOut, slope, shape, w.Device())
			copy(w.AsFloat32(), src.AsFloat32())
		}
	}
}
