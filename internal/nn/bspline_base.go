package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/deepspline/internal/parallel"
	"github.com/born-ml/deepspline/internal/tensor"
)

// deepBSplineBase carries the per-group spline state shared by the B-spline
// variants: configuration, the coefficient parameter, and the conversion,
// regularization and sparsification machinery operating on it.
//
// The coefficient tensor has shape [numActivations, size]; flat indexing
// with zero-knot offsets zeroKnot(u) = u*size + size/2 addresses it the way
// the evaluation kernel does.
type deepBSplineBase struct {
	mode           Mode
	numActivations int
	size           int
	grid           float64
	saveMemory     bool
	xMin, xMax     float64
	initSlope      float64

	coefficientsVect *Parameter
	backend          tensor.Backend
	par              parallel.Config
	ctx              *splineCtx
}

// newDeepBSplineBase validates the configuration and builds the initial
// coefficient state.
func newDeepBSplineBase(cfg SplineConfig, backend tensor.Backend) (deepBSplineBase, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return deepBSplineBase{}, err
	}

	coeffs := initialCoefficients(cfg, backend.Device())

	return deepBSplineBase{
		mode:             cfg.Mode,
		numActivations:   cfg.NumActivations,
		size:             cfg.Size,
		grid:             cfg.Grid,
		saveMemory:       cfg.SaveMemory,
		xMin:             -cfg.Grid * float64(cfg.Size/2),
		xMax:             cfg.Grid * float64(cfg.Size/2-1),
		initSlope:        cfg.initSlope(),
		coefficientsVect: NewParameter("coefficients_vect", coeffs),
		backend:          backend,
		par:              parallel.DefaultConfig(),
	}, nil
}

// initialCoefficients samples the init policy at every knot of every unit.
func initialCoefficients(cfg SplineConfig, device tensor.Device) *tensor.RawTensor {
	if cfg.Init == InitRandom {
		c := tensor.Randn(tensor.Shape{cfg.NumActivations, cfg.Size}, device)
		data := c.AsFloat32()
		for i := range data {
			data[i] *= float32(cfg.InitStd)
		}
		return c
	}

	c := tensor.Zeros(tensor.Shape{cfg.NumActivations, cfg.Size}, tensor.Float32, device)
	data := c.AsFloat32()
	for u := 0; u < cfg.NumActivations; u++ {
		for k := 0; k < cfg.Size; k++ {
			x := cfg.Grid * float64(k-cfg.Size/2)
			data[u*cfg.Size+k] = cfg.initValue(x)
		}
	}
	return c
}

// Mode returns the input reshape convention.
func (b *deepBSplineBase) Mode() Mode { return b.mode }

// InitSlope returns the negative slope of the initial activation shape.
func (b *deepBSplineBase) InitSlope() float64 { return b.initSlope }

// NumActivations returns the number of independent splines in the group.
func (b *deepBSplineBase) NumActivations() int { return b.numActivations }

// Size returns the number of coefficients per spline.
func (b *deepBSplineBase) Size() int { return b.size }

// Grid returns the knot spacing.
func (b *deepBSplineBase) Grid() float64 { return b.grid }

// checkInput validates the batch layout against the group's mode and
// returns the batch size and the per-unit inner (spatial) extent.
func (b *deepBSplineBase) checkInput(input *tensor.RawTensor) (batch, inner int) {
	shape := input.Shape()
	switch b.mode {
	case ModeLinear:
		if len(shape) != 2 || shape[1] != b.numActivations {
			panic(fmt.Sprintf("deep_bspline: linear mode expects [batch, %d], got %v",
				b.numActivations, shape))
		}
		return shape[0], 1
	default: // ModeConv
		if len(shape) != 4 || shape[1] != b.numActivations {
			panic(fmt.Sprintf("deep_bspline: conv mode expects [batch, %d, H, W], got %v",
				b.numActivations, shape))
		}
		return shape[0], shape[2] * shape[3]
	}
}

// gridPositions returns the knot positions, shared across all units.
func (b *deepBSplineBase) gridPositions() []float32 {
	pos := make([]float32, b.size)
	for k := range pos {
		pos[k] = float32(b.grid * float64(k-b.size/2))
	}
	return pos
}

// evalAt evaluates unit u's spline at a single point, including the linear
// extrapolation outside the support. Off the hot path; used by the BV norm
// and the introspection export.
func (b *deepBSplineBase) evalAt(u int, x float64) float64 {
	cd := b.coefficientsVect.Tensor().AsFloat32()
	base := u * b.size

	idx, frac := b.locate(x, base+b.size/2)
	v := float64(cd[idx+1])*float64(frac) + float64(cd[idx])*(1-float64(frac))

	if left := x - b.xMin; left < 0 {
		v += left * float64(cd[base+1]-cd[base]) / b.grid
	}
	if right := x - b.xMax; right > 0 {
		v += right * float64(cd[base+b.size-1]-cd[base+b.size-2]) / b.grid
	}
	return v
}

// ReluSlopes computes the second finite differences of the coefficients,
// a valid convolution with the fixed filter [1,-2,1]/grid.
func (b *deepBSplineBase) ReluSlopes() *tensor.RawTensor {
	inv := float32(1.0 / b.grid)
	filter, err := tensor.FromFloat32([]float32{inv, -2 * inv, inv}, tensor.Shape{3}, b.backend.Device())
	if err != nil {
		panic(fmt.Sprintf("deep_bspline: %v", err))
	}
	return b.backend.Conv1D(b.coefficientsVect.Tensor(), filter)
}

// slopesToCoefficients rebuilds a full coefficient tensor from relu slopes.
//
// The first two coefficients of each unit seed the recurrence
//
//	c[i] = 2*c[i-1] - c[i-2] + slopes[i-2]*grid
//
// which inverts the second-difference projection exactly and stays
// well-conditioned: a direct matrix inversion of the second-difference
// operator has a condition number growing with size, while the recurrence
// only ever adds bounded increments. The seed pins down the affine term
// that lives in the projection's nullspace.
func (b *deepBSplineBase) slopesToCoefficients(slopes *tensor.RawTensor) *tensor.RawTensor {
	expected := tensor.Shape{b.numActivations, b.size - 2}
	if !slopes.Shape().Equal(expected) {
		panic(fmt.Sprintf("deep_bspline: slopes shape %v, want %v", slopes.Shape(), expected))
	}

	out := tensor.Zeros(tensor.Shape{b.numActivations, b.size}, tensor.Float32, b.backend.Device())
	od, cd, sd := out.AsFloat32(), b.coefficientsVect.Tensor().AsFloat32(), slopes.AsFloat32()

	for u := 0; u < b.numActivations; u++ {
		base := u * b.size
		sBase := u * (b.size - 2)

		od[base] = cd[base]
		od[base+1] = cd[base+1]
		for i := 2; i < b.size; i++ {
			od[base+i] = float32(2*float64(od[base+i-1]) - float64(od[base+i-2]) +
				float64(sd[sBase+i-2])*b.grid)
		}
	}
	return out
}

// TotalVariation returns the TV(2) seminorm of the group: the L1 norm of
// the relu slopes per unit, or summed over the group.
func (b *deepBSplineBase) TotalVariation(additive bool) *tensor.RawTensor {
	perUnit := b.backend.SumDim(b.backend.Abs(b.ReluSlopes()), 1)
	if additive {
		return perUnit
	}
	return tensor.Full(tensor.Shape{1}, float32(b.backend.Sum(perUnit)), b.backend.Device())
}

// bvNorm assembles TV(2) + |f(-1)| + |f(+1)| for a variant whose full
// activation value at a point is given by eval (the explicit-linear variant
// adds its affine term there).
func (b *deepBSplineBase) bvNorm(additive bool, eval func(u int, x float64) float64) *tensor.RawTensor {
	perUnit := b.backend.SumDim(b.backend.Abs(b.ReluSlopes()), 1)
	pd := perUnit.AsFloat32()
	for u := 0; u < b.numActivations; u++ {
		pd[u] += float32(math.Abs(eval(u, -1)) + math.Abs(eval(u, 1)))
	}
	if additive {
		return perUnit
	}
	return tensor.Full(tensor.Shape{1}, float32(b.backend.Sum(perUnit)), b.backend.Device())
}

// ApplyThreshold zeroes every relu slope below threshold in magnitude and
// rebuilds the coefficients in place. The first two coefficients of each
// unit are preserved exactly, so slopes that were already zero stay zero
// and untouched regions of the spline are reproduced up to rounding.
//
// Must not run concurrently with a forward/backward pass over this group.
func (b *deepBSplineBase) ApplyThreshold(threshold float64) error {
	if threshold < 0 || math.IsNaN(threshold) {
		return fmt.Errorf("spline: threshold must be non-negative, got %g", threshold)
	}

	slopes := b.ReluSlopes()
	sd := slopes.AsFloat32()
	for i, v := range sd {
		if math.Abs(float64(v)) < threshold {
			sd[i] = 0
		}
	}

	rebuilt := b.slopesToCoefficients(slopes)
	copy(b.coefficientsVect.Tensor().AsFloat32(), rebuilt.AsFloat32())
	return nil
}

// ThresholdSparsity reports how many relu slopes would be zeroed at the
// threshold, and the per-entry mask, without mutating state.
func (b *deepBSplineBase) ThresholdSparsity(threshold float64) (int, *tensor.RawTensor, error) {
	if threshold < 0 || math.IsNaN(threshold) {
		return 0, nil, fmt.Errorf("spline: threshold must be non-negative, got %g", threshold)
	}

	slopes := b.ReluSlopes()
	mask := tensor.Zeros(slopes.Shape(), tensor.Bool, b.backend.Device())

	sd, md := slopes.AsFloat32(), mask.AsBool()
	count := 0
	for i, v := range sd {
		if math.Abs(float64(v)) < threshold {
			md[i] = true
			count++
		}
	}
	return count, mask, nil
}

// AccumulateTVGrad adds the subgradient of lmbda * TV(2) to the coefficient
// gradients: the transposed second-difference filter applied to the sign of
// the slopes, scaled by lmbda/grid.
func (b *deepBSplineBase) AccumulateTVGrad(lmbda float64) {
	slopes := b.ReluSlopes()
	sd := slopes.AsFloat32()

	grad := tensor.Zeros(tensor.Shape{b.numActivations, b.size}, tensor.Float32, b.backend.Device())
	gd := grad.AsFloat32()

	scale := float32(lmbda / b.grid)
	for u := 0; u < b.numActivations; u++ {
		base := u * b.size
		sBase := u * (b.size - 2)
		for j := 0; j < b.size-2; j++ {
			v := sd[sBase+j]
			if v == 0 {
				continue
			}
			w := scale
			if v < 0 {
				w = -scale
			}
			gd[base+j] += w
			gd[base+j+1] -= 2 * w
			gd[base+j+2] += w
		}
	}
	b.coefficientsVect.AccumulateGrad(grad)
}

// knotData builds the introspection export using the variant's full
// activation value eval.
func (b *deepBSplineBase) knotData(threshold float64, eval func(u int, x float64) float64) (*KnotData, error) {
	_, mask, err := b.ThresholdSparsity(threshold)
	if err != nil {
		return nil, err
	}

	pos := b.gridPositions()
	values := tensor.Zeros(tensor.Shape{b.numActivations, b.size}, tensor.Float32, b.backend.Device())
	vd := values.AsFloat32()
	for u := 0; u < b.numActivations; u++ {
		for k := 0; k < b.size; k++ {
			vd[u*b.size+k] = float32(eval(u, float64(pos[k])))
		}
	}

	return &KnotData{Positions: pos, Values: values, Mask: mask}, nil
}
