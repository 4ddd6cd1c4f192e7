package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/deepspline/internal/parallel"
	"github.com/born-ml/deepspline/internal/tensor"
)

// DeepReLUBasis parameterizes each activation directly in the ReLU basis:
//
//	f(x) = b0 + b1*x + sum_j a_j * relu(x - t_j)
//
// with fixed knots t_j = grid*(j+1-size/2) for j in [0, size-3]. The a_j are
// the relu slopes themselves, so TV(2) regularization and sparsification act
// on the parameters directly, with no coefficient conversion. There is no
// support clamp; the representation is globally exact.
type DeepReLUBasis struct {
	mode           Mode
	numActivations int
	size           int
	grid           float64
	initSlope      float64

	reluSlopes   *Parameter // [numActivations, size-2]
	splineWeight *Parameter // [numActivations], the b1 term
	splineBias   *Parameter // [numActivations], the b0 term

	par parallel.Config
	ctx *tensor.RawTensor // input saved by Forward
}

// NewDeepReLUBasis builds the variant. The initialization policy is sampled
// at the uniform knot grid and converted to the ReLU basis, so a relu or
// leaky_relu init reproduces that nonlinearity exactly on the grid.
func NewDeepReLUBasis(cfg SplineConfig, backend tensor.Backend) (*DeepReLUBasis, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	coeffs := initialCoefficients(cfg, backend.Device())
	cd := coeffs.AsFloat32()

	device := backend.Device()
	slopes := tensor.Zeros(tensor.Shape{cfg.NumActivations, cfg.Size - 2}, tensor.Float32, device)
	weight := tensor.Zeros(tensor.Shape{cfg.NumActivations}, tensor.Float32, device)
	bias := tensor.Zeros(tensor.Shape{cfg.NumActivations}, tensor.Float32, device)
	sd, wd, bd := slopes.AsFloat32(), weight.AsFloat32(), bias.AsFloat32()

	x0 := -cfg.Grid * float64(cfg.Size/2)
	for u := 0; u < cfg.NumActivations; u++ {
		base := u * cfg.Size
		for j := 0; j < cfg.Size-2; j++ {
			d2 := float64(cd[base+j]) - 2*float64(cd[base+j+1]) + float64(cd[base+j+2])
			sd[u*(cfg.Size-2)+j] = float32(d2 / cfg.Grid)
		}
		b1 := (float64(cd[base+1]) - float64(cd[base])) / cfg.Grid
		wd[u] = float32(b1)
		bd[u] = float32(float64(cd[base]) - b1*x0)
	}

	return &DeepReLUBasis{
		mode:           cfg.Mode,
		numActivations: cfg.NumActivations,
		size:           cfg.Size,
		grid:           cfg.Grid,
		initSlope:      cfg.initSlope(),
		reluSlopes:     NewParameter("relu_slopes", slopes),
		splineWeight:   NewParameter("spline_weight", weight),
		splineBias:     NewParameter("spline_bias", bias),
		par:            parallel.DefaultConfig(),
	}, nil
}

// Kind identifies the variant.
func (m *DeepReLUBasis) Kind() ActivationKind { return ActivationReLUBasis }

// Mode returns the input reshape convention.
func (m *DeepReLUBasis) Mode() Mode { return m.mode }

// NumActivations returns the number of independent splines in the group.
func (m *DeepReLUBasis) NumActivations() int { return m.numActivations }

// Size returns the number of coefficients per spline.
func (m *DeepReLUBasis) Size() int { return m.size }

// Grid returns the knot spacing.
func (m *DeepReLUBasis) Grid() float64 { return m.grid }

// InitSlope returns the negative slope of the initial activation shape.
func (m *DeepReLUBasis) InitSlope() float64 { return m.initSlope }

// ParameterNames returns the variant's trainable parameter names.
func (m *DeepReLUBasis) ParameterNames() []string {
	return []string{"relu_slopes", "spline_weight", "spline_bias"}
}

// knot returns t_j for unit-independent knot index j.
func (m *DeepReLUBasis) knot(j int) float64 {
	return m.grid * float64(j+1-m.size/2)
}

func (m *DeepReLUBasis) checkInput(input *tensor.RawTensor) (batch, inner int) {
	shape := input.Shape()
	switch m.mode {
	case ModeLinear:
		if len(shape) != 2 || shape[1] != m.numActivations {
			panic(fmt.Sprintf("deep_relu: linear mode expects [batch, %d], got %v",
				m.numActivations, shape))
		}
		return shape[0], 1
	default:
		if len(shape) != 4 || shape[1] != m.numActivations {
			panic(fmt.Sprintf("deep_relu: conv mode expects [batch, %d, H, W], got %v",
				m.numActivations, shape))
		}
		return shape[0], shape[2] * shape[3]
	}
}

// evalAt evaluates unit u's activation at a single point.
func (m *DeepReLUBasis) evalAt(u int, x float64) float64 {
	sd := m.reluSlopes.Tensor().AsFloat32()
	wd, bd := m.splineWeight.Tensor().AsFloat32(), m.splineBias.Tensor().AsFloat32()

	v := float64(bd[u]) + float64(wd[u])*x
	sBase := u * (m.size - 2)
	for j := 0; j < m.size-2; j++ {
		if d := x - m.knot(j); d > 0 {
			v += float64(sd[sBase+j]) * d
		}
	}
	return v
}

// Forward evaluates the activations over the input batch.
func (m *DeepReLUBasis) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	batch, inner := m.checkInput(input)

	out := tensor.Zeros(input.Shape(), tensor.Float32, input.Device())
	xd, od := input.AsFloat32(), out.AsFloat32()
	sd := m.reluSlopes.Tensor().AsFloat32()
	wd, bd := m.splineWeight.Tensor().AsFloat32(), m.splineBias.Tensor().AsFloat32()

	parallel.For(m.numActivations, func(u int) {
		sBase := u * (m.size - 2)
		w, b := wd[u], bd[u]
		for bi := 0; bi < batch; bi++ {
			off := (bi*m.numActivations + u) * inner
			for s := 0; s < inner; s++ {
				e := off + s
				x := xd[e]
				v := b + w*x
				for j := 0; j < m.size-2; j++ {
					if d := x - float32(m.knot(j)); d > 0 {
						v += sd[sBase+j] * d
					}
				}
				od[e] = v
			}
		}
	}, m.par)

	m.ctx = input
	return out
}

// Backward accumulates parameter gradients and returns the input gradient.
// The ReLU derivative uses the strict convention relu'(0) = 0, so an input
// exactly on a knot contributes no slope to its own gradient.
func (m *DeepReLUBasis) Backward(gradOutput *tensor.RawTensor) *tensor.RawTensor {
	if m.ctx == nil {
		panic("deep_relu: backward called before forward")
	}
	if !gradOutput.Shape().Equal(m.ctx.Shape()) {
		panic(fmt.Sprintf("deep_relu backward: gradient shape %v does not match input shape %v",
			gradOutput.Shape(), m.ctx.Shape()))
	}

	batch, inner := m.checkInput(m.ctx)
	device := gradOutput.Device()

	gradIn := tensor.Zeros(gradOutput.Shape(), tensor.Float32, device)
	gradSlopes := tensor.Zeros(tensor.Shape{m.numActivations, m.size - 2}, tensor.Float32, device)
	gradW := tensor.Zeros(tensor.Shape{m.numActivations}, tensor.Float32, device)
	gradB := tensor.Zeros(tensor.Shape{m.numActivations}, tensor.Float32, device)

	xd, gd := m.ctx.AsFloat32(), gradOutput.AsFloat32()
	gi, gs := gradIn.AsFloat32(), gradSlopes.AsFloat32()
	gw, gb := gradW.AsFloat32(), gradB.AsFloat32()
	sd := m.reluSlopes.Tensor().AsFloat32()
	wd := m.splineWeight.Tensor().AsFloat32()

	parallel.For(m.numActivations, func(u int) {
		sBase := u * (m.size - 2)
		w := wd[u]
		var sumW, sumB float64
		for bi := 0; bi < batch; bi++ {
			off := (bi*m.numActivations + u) * inner
			for s := 0; s < inner; s++ {
				e := off + s
				g := gd[e]
				x := xd[e]

				slope := w
				for j := 0; j < m.size-2; j++ {
					if d := x - float32(m.knot(j)); d > 0 {
						slope += sd[sBase+j]
						gs[sBase+j] += d * g
					}
				}
				gi[e] = slope * g
				sumW += float64(x) * float64(g)
				sumB += float64(g)
			}
		}
		gw[u] = float32(sumW)
		gb[u] = float32(sumB)
	}, m.par)

	m.reluSlopes.AccumulateGrad(gradSlopes)
	m.splineWeight.AccumulateGrad(gradW)
	m.splineBias.AccumulateGrad(gradB)
	m.ctx = nil
	return gradIn
}

// Parameters returns the trainable parameters.
func (m *DeepReLUBasis) Parameters() []*Parameter {
	return []*Parameter{m.reluSlopes, m.splineWeight, m.splineBias}
}

// ReluSlopes returns a copy of the slope parameter, shape
// [numActivations, size-2].
func (m *DeepReLUBasis) ReluSlopes() *tensor.RawTensor {
	return m.reluSlopes.Tensor().Clone()
}

// TotalVariation returns the TV(2) seminorm, the L1 norm of the slopes.
func (m *DeepReLUBasis) TotalVariation(additive bool) *tensor.RawTensor {
	sd := m.reluSlopes.Tensor().AsFloat32()
	perUnit := tensor.Zeros(tensor.Shape{m.numActivations}, tensor.Float32, m.reluSlopes.Tensor().Device())
	pd := perUnit.AsFloat32()

	for u := 0; u < m.numActivations; u++ {
		var sum float64
		sBase := u * (m.size - 2)
		for j := 0; j < m.size-2; j++ {
			sum += math.Abs(float64(sd[sBase+j]))
		}
		pd[u] = float32(sum)
	}
	if additive {
		return perUnit
	}
	var total float64
	for _, v := range pd {
		total += float64(v)
	}
	return tensor.Full(tensor.Shape{1}, float32(total), m.reluSlopes.Tensor().Device())
}

// BVNorm returns TV(2) plus the absolute activation values at x = -1 and
// x = +1, per unit or summed.
func (m *DeepReLUBasis) BVNorm(additive bool) *tensor.RawTensor {
	perUnit := m.TotalVariation(true)
	pd := perUnit.AsFloat32()
	for u := 0; u < m.numActivations; u++ {
		pd[u] += float32(math.Abs(m.evalAt(u, -1)) + math.Abs(m.evalAt(u, 1)))
	}
	if additive {
		return perUnit
	}
	var total float64
	for _, v := range pd {
		total += float64(v)
	}
	return tensor.Full(tensor.Shape{1}, float32(total), m.reluSlopes.Tensor().Device())
}

// ApplyThreshold zeroes every slope below threshold in magnitude. The
// slopes being the parameters, no rebuild step is needed.
func (m *DeepReLUBasis) ApplyThreshold(threshold float64) error {
	if threshold < 0 || math.IsNaN(threshold) {
		return fmt.Errorf("spline: threshold must be non-negative, got %g", threshold)
	}
	sd := m.reluSlopes.Tensor().AsFloat32()
	for i, v := range sd {
		if math.Abs(float64(v)) < threshold {
			sd[i] = 0
		}
	}
	return nil
}

// ThresholdSparsity reports how many slopes would be zeroed at the
// threshold, and the per-entry mask, without mutating state.
func (m *DeepReLUBasis) ThresholdSparsity(threshold float64) (int, *tensor.RawTensor, error) {
	if threshold < 0 || math.IsNaN(threshold) {
		return 0, nil, fmt.Errorf("spline: threshold must be non-negative, got %g", threshold)
	}
	sd := m.reluSlopes.Tensor().AsFloat32()
	mask := tensor.Zeros(m.reluSlopes.Tensor().Shape(), tensor.Bool, m.reluSlopes.Tensor().Device())
	md := mask.AsBool()
	count := 0
	for i, v := range sd {
		if math.Abs(float64(v)) < threshold {
			md[i] = true
			count++
		}
	}
	return count, mask, nil
}

// AccumulateTVGrad adds the subgradient of lmbda * TV(2) to the slope
// gradients. In the ReLU basis this is lmbda * sign(a) directly.
func (m *DeepReLUBasis) AccumulateTVGrad(lmbda float64) {
	sd := m.reluSlopes.Tensor().AsFloat32()
	grad := tensor.Zeros(m.reluSlopes.Tensor().Shape(), tensor.Float32, m.reluSlopes.Tensor().Device())
	gd := grad.AsFloat32()
	for i, v := range sd {
		switch {
		case v > 0:
			gd[i] = float32(lmbda)
		case v < 0:
			gd[i] = float32(-lmbda)
		}
	}
	m.reluSlopes.AccumulateGrad(grad)
}

// Knots returns the plotting/export view at the same uniform grid used by
// the coefficient-based variants.
func (m *DeepReLUBasis) Knots(threshold float64) (*KnotData, error) {
	_, mask, err := m.ThresholdSparsity(threshold)
	if err != nil {
		return nil, err
	}

	device := m.reluSlopes.Tensor().Device()
	pos := make([]float32, m.size)
	for k := range pos {
		pos[k] = float32(m.grid * float64(k-m.size/2))
	}
	values := tensor.Zeros(tensor.Shape{m.numActivations, m.size}, tensor.Float32, device)
	vd := values.AsFloat32()
	for u := 0; u < m.numActivations; u++ {
		for k := 0; k < m.size; k++ {
			vd[u*m.size+k] = float32(m.evalAt(u, float64(pos[k])))
		}
	}
	return &KnotData{Kind: m.Kind(), Positions: pos, Values: values, Mask: mask}, nil
}
