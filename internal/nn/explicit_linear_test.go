package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/deepspline/internal/backend/cpu"
	"github.com/born-ml/deepspline/internal/tensor"
)

func TestExplicitLinearZeroInitMatchesPlainSpline(t *testing.T) {
	cfg := testSplineConfig()
	cfg.NumActivations = 2

	plain, err := NewDeepBSpline(cfg, cpu.New())
	require.NoError(t, err)
	explicit, err := NewDeepBSplineExplicitLinear(cfg, cpu.New())
	require.NoError(t, err)

	input := randomBatch(t, 8, 2, 31)
	outP := plain.Forward(input.Clone()).AsFloat32()
	outE := explicit.Forward(input.Clone()).AsFloat32()

	// The affine parameters start at zero, so the variant behaves exactly
	// like the plain spline at initialization.
	assert.Equal(t, outP, outE)
}

func TestExplicitLinearForwardWithAffineTerm(t *testing.T) {
	cfg := testSplineConfig()
	m, err := NewDeepBSplineExplicitLinear(cfg, cpu.New())
	require.NoError(t, err)
	m.splineWeight.Tensor().AsFloat32()[0] = 2
	m.splineBias.Tensor().AsFloat32()[0] = -1

	input, err := tensor.FromFloat32([]float32{1.5}, tensor.Shape{1, 1}, tensor.CPU)
	require.NoError(t, err)
	out := m.Forward(input).AsFloat32()[0]

	// relu(1.5) + 2*1.5 - 1
	assert.InDelta(t, 1.5+3-1, float64(out), 1e-6)
}

func TestExplicitLinearBackward(t *testing.T) {
	cfg := testSplineConfig()
	m, err := NewDeepBSplineExplicitLinear(cfg, cpu.New())
	require.NoError(t, err)
	m.splineWeight.Tensor().AsFloat32()[0] = 0.5

	input, err := tensor.FromFloat32([]float32{0.25, -0.75}, tensor.Shape{2, 1}, tensor.CPU)
	require.NoError(t, err)
	m.Forward(input)

	grad, err := tensor.FromFloat32([]float32{1, 2}, tensor.Shape{2, 1}, tensor.CPU)
	require.NoError(t, err)
	gradIn := m.Backward(grad).AsFloat32()

	// ReLU-init spline slope is 1 above zero and 0 below; the affine term
	// adds its weight everywhere.
	assert.InDelta(t, 1.0+0.5, float64(gradIn[0]), 1e-6)
	assert.InDelta(t, 0.0+0.5*2, float64(gradIn[1]), 1e-6)

	// d/dw = sum(x * g), d/db = sum(g).
	assert.InDelta(t, 0.25*1+(-0.75)*2, float64(m.splineWeight.Grad().AsFloat32()[0]), 1e-6)
	assert.InDelta(t, 3.0, float64(m.splineBias.Grad().AsFloat32()[0]), 1e-6)
}

func TestExplicitLinearBackwardBeforeForwardPanics(t *testing.T) {
	m, err := NewDeepBSplineExplicitLinear(testSplineConfig(), cpu.New())
	require.NoError(t, err)
	grad := tensor.Zeros(tensor.Shape{1, 1}, tensor.Float32, tensor.CPU)
	assert.Panics(t, func() { m.Backward(grad) })
}

func TestExplicitLinearParameterNames(t *testing.T) {
	m, err := NewDeepBSplineExplicitLinear(testSplineConfig(), cpu.New())
	require.NoError(t, err)

	assert.Equal(t, []string{"coefficients_vect", "spline_weight", "spline_bias"}, m.ParameterNames())
	params := m.Parameters()
	require.Len(t, params, 3)
	assert.Equal(t, "coefficients_vect", params[0].Name())
	assert.Equal(t, "spline_weight", params[1].Name())
	assert.Equal(t, "spline_bias", params[2].Name())
}

func TestExplicitLinearBVNormIncludesAffine(t *testing.T) {
	m, err := NewDeepBSplineExplicitLinear(testSplineConfig(), cpu.New())
	require.NoError(t, err)

	base := float64(m.BVNorm(false).AsFloat32()[0])

	// Adding a bias shifts both boundary values; with relu init f(-1) = 0
	// and f(+1) = 1, a bias of 1 raises the norm by |1| + |2| - (0 + 1).
	m.splineBias.Tensor().AsFloat32()[0] = 1
	withBias := float64(m.BVNorm(false).AsFloat32()[0])
	assert.InDelta(t, base+2, withBias, 1e-6)
}

func TestExplicitLinearGradientFiniteDifference(t *testing.T) {
	cfg := SplineConfig{
		Mode:           ModeLinear,
		NumActivations: 2,
		Size:           7,
		Grid:           0.5,
		Init:           InitLeakyReLU,
		SaveMemory:     true,
	}
	m, err := NewDeepBSplineExplicitLinear(cfg, cpu.New())
	require.NoError(t, err)
	m.splineWeight.Tensor().AsFloat32()[0] = 0.3
	m.splineWeight.Tensor().AsFloat32()[1] = -0.2

	input := randomBatch(t, 6, 2, 37)
	ones := tensor.Full(input.Shape(), 1, tensor.CPU)

	m.Forward(input)
	m.Backward(ones)
	analytic := map[string][]float32{}
	for _, p := range m.Parameters() {
		analytic[p.Name()] = append([]float32(nil), p.Grad().AsFloat32()...)
	}

	const eps = 1e-2
	backend := cpu.New()
	for _, p := range m.Parameters() {
		data := p.Tensor().AsFloat32()
		for i := range data {
			orig := data[i]

			data[i] = orig + eps
			plus := backend.Sum(m.Forward(input))
			data[i] = orig - eps
			minus := backend.Sum(m.Forward(input))
			data[i] = orig

			numeric := (plus - minus) / (2 * eps)
			assert.InDelta(t, numeric, float64(analytic[p.Name()][i]), 1e-2,
				"%s[%d]", p.Name(), i)
		}
	}
}
