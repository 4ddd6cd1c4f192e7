package nn

import (
	"github.com/born-ml/deepspline/internal/parallel"
	"github.com/born-ml/deepspline/internal/tensor"
)

// DeepBSplineExplicitLinear augments each spline with an explicit per-unit
// affine term w*x + b on top of the interpolated value. The spline part is
// shared with DeepBSpline; the affine parameters start at zero so the
// variant is initialized identically to the plain one.
type DeepBSplineExplicitLinear struct {
	deepBSplineBase

	splineWeight *Parameter // [numActivations]
	splineBias   *Parameter // [numActivations]
}

// NewDeepBSplineExplicitLinear builds the variant from the configuration.
func NewDeepBSplineExplicitLinear(cfg SplineConfig, backend tensor.Backend) (*DeepBSplineExplicitLinear, error) {
	base, err := newDeepBSplineBase(cfg, backend)
	if err != nil {
		return nil, err
	}
	shape := tensor.Shape{base.numActivations}
	return &DeepBSplineExplicitLinear{
		deepBSplineBase: base,
		splineWeight:    NewParameter("spline_weight", tensor.Zeros(shape, tensor.Float32, backend.Device())),
		splineBias:      NewParameter("spline_bias", tensor.Zeros(shape, tensor.Float32, backend.Device())),
	}, nil
}

// Kind identifies the variant.
func (m *DeepBSplineExplicitLinear) Kind() ActivationKind { return ActivationBSplineExplicitLinear }

// Forward evaluates the splines and adds each unit's affine term.
func (m *DeepBSplineExplicitLinear) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	out := m.splineForward(input)
	if !m.saveMemory {
		m.addExtrapolation(input, out)
	}

	batch, inner := m.checkInput(input)
	xd, od := input.AsFloat32(), out.AsFloat32()
	wd, bd := m.splineWeight.Tensor().AsFloat32(), m.splineBias.Tensor().AsFloat32()

	parallel.For(m.numActivations, func(u int) {
		w, b := wd[u], bd[u]
		for bi := 0; bi < batch; bi++ {
			off := (bi*m.numActivations + u) * inner
			for s := 0; s < inner; s++ {
				od[off+s] += w*xd[off+s] + b
			}
		}
	}, m.par)

	return out
}

// Backward accumulates spline and affine gradients and returns the input
// gradient. The affine part is differentiated first while the forward
// context still holds the input; the spline part then consumes and clears
// the context.
func (m *DeepBSplineExplicitLinear) Backward(gradOutput *tensor.RawTensor) *tensor.RawTensor {
	if m.ctx == nil {
		panic("deep_bspline_explicit_linear: backward called before forward")
	}
	input := m.ctx.input
	batch, inner := m.checkInput(input)

	gradW := tensor.Zeros(tensor.Shape{m.numActivations}, tensor.Float32, gradOutput.Device())
	gradB := tensor.Zeros(tensor.Shape{m.numActivations}, tensor.Float32, gradOutput.Device())

	xd, gd := input.AsFloat32(), gradOutput.AsFloat32()
	wd := m.splineWeight.Tensor().AsFloat32()
	gw, gb := gradW.AsFloat32(), gradB.AsFloat32()

	gradIn := m.splineBackward(gradOutput)
	gi := gradIn.AsFloat32()

	parallel.For(m.numActivations, func(u int) {
		w := wd[u]
		var sumW, sumB float64
		for bi := 0; bi < batch; bi++ {
			off := (bi*m.numActivations + u) * inner
			for s := 0; s < inner; s++ {
				e := off + s
				g := gd[e]
				gi[e] += w * g
				sumW += float64(xd[e]) * float64(g)
				sumB += float64(g)
			}
		}
		gw[u] = float32(sumW)
		gb[u] = float32(sumB)
	}, m.par)

	m.splineWeight.AccumulateGrad(gradW)
	m.splineBias.AccumulateGrad(gradB)
	return gradIn
}

// Parameters returns the trainable parameters.
func (m *DeepBSplineExplicitLinear) Parameters() []*Parameter {
	return []*Parameter{m.coefficientsVect, m.splineWeight, m.splineBias}
}

// ParameterNames returns the variant's trainable parameter names.
func (m *DeepBSplineExplicitLinear) ParameterNames() []string {
	return []string{"coefficients_vect", "spline_weight", "spline_bias"}
}

// evalFull is evalAt plus the unit's affine term, the full activation value.
func (m *DeepBSplineExplicitLinear) evalFull(u int, x float64) float64 {
	wd, bd := m.splineWeight.Tensor().AsFloat32(), m.splineBias.Tensor().AsFloat32()
	return m.evalAt(u, x) + float64(wd[u])*x + float64(bd[u])
}

// BVNorm returns TV(2) plus the absolute full activation values at x = -1
// and x = +1, per unit or summed. The affine term is part of the activation
// and therefore part of the boundary values.
func (m *DeepBSplineExplicitLinear) BVNorm(additive bool) *tensor.RawTensor {
	return m.bvNorm(additive, m.evalFull)
}

// Knots returns the plotting/export view, with the affine term included in
// the knot values.
func (m *DeepBSplineExplicitLinear) Knots(threshold float64) (*KnotData, error) {
	kd, err := m.knotData(threshold, m.evalFull)
	if err != nil {
		return nil, err
	}
	kd.Kind = m.Kind()
	return kd, nil
}
