package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/deepspline/internal/backend/cpu"
	"github.com/born-ml/deepspline/internal/tensor"
)

var (
	_ Spline = (*DeepBSpline)(nil)
	_ Spline = (*DeepBSplineExplicitLinear)(nil)
	_ Spline = (*DeepReLUBasis)(nil)
)

func testSplineConfig() SplineConfig {
	return SplineConfig{
		Mode:           ModeLinear,
		NumActivations: 1,
		Size:           5,
		Grid:           1,
		Init:           InitReLU,
	}
}

// setCoefficients overwrites the spline's coefficient data.
func setCoefficients(t *testing.T, s *DeepBSpline, coeffs []float32) {
	t.Helper()
	data := s.coefficientsVect.Tensor().AsFloat32()
	require.Len(t, coeffs, len(data))
	copy(data, coeffs)
}

func forwardOne(t *testing.T, s *DeepBSpline, x float32) float32 {
	t.Helper()
	input, err := tensor.FromFloat32([]float32{x}, tensor.Shape{1, 1}, tensor.CPU)
	require.NoError(t, err)
	return s.Forward(input).AsFloat32()[0]
}

func TestSplineConfigValidation(t *testing.T) {
	backend := cpu.New()

	bad := []SplineConfig{
		{Mode: ModeLinear, NumActivations: 0, Size: 5, Grid: 1},
		{Mode: ModeLinear, NumActivations: 1, Size: 4, Grid: 1},  // even
		{Mode: ModeLinear, NumActivations: 1, Size: 1, Grid: 1},  // too small
		{Mode: ModeLinear, NumActivations: 1, Size: 5, Grid: 0},  // no spacing
		{Mode: ModeLinear, NumActivations: 1, Size: 5, Grid: -1}, // negative spacing
	}
	for _, cfg := range bad {
		_, err := NewDeepBSpline(cfg, backend)
		assert.Error(t, err, "config %+v", cfg)
	}

	_, err := NewDeepBSpline(testSplineConfig(), backend)
	assert.NoError(t, err)
}

func TestSplineForwardLinearCoefficients(t *testing.T) {
	s, err := NewDeepBSpline(testSplineConfig(), cpu.New())
	require.NoError(t, err)
	// Knots at -2..2 with values x+2: the spline is globally linear, so
	// interpolation and extrapolation must agree with f(x) = x + 2.
	setCoefficients(t, s, []float32{0, 1, 2, 3, 4})

	assert.InDelta(t, 2.0, forwardOne(t, s, 0), 1e-6)
	assert.InDelta(t, 2.5, forwardOne(t, s, 0.5), 1e-6)
	assert.InDelta(t, 1.0, forwardOne(t, s, -1), 1e-6)
	assert.InDelta(t, 3.5, forwardOne(t, s, 1.5), 1e-6)
	assert.InDelta(t, -8.0, forwardOne(t, s, -10), 1e-5)
	assert.InDelta(t, 12.0, forwardOne(t, s, 10), 1e-5)
}

func TestSplineForwardReLUInit(t *testing.T) {
	s, err := NewDeepBSpline(testSplineConfig(), cpu.New())
	require.NoError(t, err)

	// InitReLU samples relu at every knot, so the spline reproduces relu
	// exactly on and beyond the grid.
	for _, x := range []float32{-5, -2, -0.5, 0, 0.25, 1, 3} {
		want := x
		if x < 0 {
			want = 0
		}
		assert.InDelta(t, want, forwardOne(t, s, x), 1e-6, "x=%g", x)
	}
}

func TestSplineForwardConvMode(t *testing.T) {
	cfg := testSplineConfig()
	cfg.Mode = ModeConv
	cfg.NumActivations = 2
	s, err := NewDeepBSpline(cfg, cpu.New())
	require.NoError(t, err)

	input, err := tensor.FromFloat32(
		[]float32{-1, 2, 0.5, -3, 1, 1, -1, 0},
		tensor.Shape{1, 2, 2, 2}, tensor.CPU)
	require.NoError(t, err)

	out := s.Forward(input)
	assert.True(t, out.Shape().Equal(input.Shape()))
	// ReLU init: every element maps through relu.
	want := []float32{0, 2, 0.5, 0, 1, 1, 0, 0}
	for i, v := range out.AsFloat32() {
		assert.InDelta(t, want[i], v, 1e-6, "element %d", i)
	}
}

func TestSplineForwardShapePanics(t *testing.T) {
	s, err := NewDeepBSpline(testSplineConfig(), cpu.New())
	require.NoError(t, err)

	wrong := tensor.Zeros(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	assert.Panics(t, func() { s.Forward(wrong) })

	threeD := tensor.Zeros(tensor.Shape{2, 1, 3}, tensor.Float32, tensor.CPU)
	assert.Panics(t, func() { s.Forward(threeD) })
}

func TestSplineBackwardBeforeForwardPanics(t *testing.T) {
	s, err := NewDeepBSpline(testSplineConfig(), cpu.New())
	require.NoError(t, err)

	grad := tensor.Zeros(tensor.Shape{1, 1}, tensor.Float32, tensor.CPU)
	assert.Panics(t, func() { s.Backward(grad) })
}

func TestSplineBackwardShapeMismatchPanics(t *testing.T) {
	s, err := NewDeepBSpline(testSplineConfig(), cpu.New())
	require.NoError(t, err)

	input := tensor.Zeros(tensor.Shape{2, 1}, tensor.Float32, tensor.CPU)
	s.Forward(input)
	grad := tensor.Zeros(tensor.Shape{3, 1}, tensor.Float32, tensor.CPU)
	assert.Panics(t, func() { s.Backward(grad) })
}

func TestSplineBackwardInterpolationGrads(t *testing.T) {
	s, err := NewDeepBSpline(testSplineConfig(), cpu.New())
	require.NoError(t, err)
	setCoefficients(t, s, []float32{0, 1, 2, 3, 4})

	input, err := tensor.FromFloat32([]float32{0.5}, tensor.Shape{1, 1}, tensor.CPU)
	require.NoError(t, err)
	s.Forward(input)

	grad, err := tensor.FromFloat32([]float32{1}, tensor.Shape{1, 1}, tensor.CPU)
	require.NoError(t, err)
	gradIn := s.Backward(grad)

	// Inside the support the input gradient is the local slope.
	assert.InDelta(t, 1.0, float64(gradIn.AsFloat32()[0]), 1e-6)

	// x = 0.5 sits between the zero knot (index 2) and its right neighbor.
	gc := s.coefficientsVect.Grad().AsFloat32()
	want := []float32{0, 0, 0.5, 0.5, 0}
	for i, v := range gc {
		assert.InDelta(t, want[i], v, 1e-6, "coefficient %d", i)
	}
}

func TestSplineBackwardKnotExactInput(t *testing.T) {
	s, err := NewDeepBSpline(testSplineConfig(), cpu.New())
	require.NoError(t, err)
	setCoefficients(t, s, []float32{0, 1, 2, 3, 4})

	input, err := tensor.FromFloat32([]float32{-1}, tensor.Shape{1, 1}, tensor.CPU)
	require.NoError(t, err)
	s.Forward(input)

	grad, err := tensor.FromFloat32([]float32{1}, tensor.Shape{1, 1}, tensor.CPU)
	require.NoError(t, err)
	s.Backward(grad)

	// An input exactly on a knot has frac = 0: the full gradient goes to
	// that knot's coefficient.
	gc := s.coefficientsVect.Grad().AsFloat32()
	want := []float32{0, 1, 0, 0, 0}
	for i, v := range gc {
		assert.InDelta(t, want[i], v, 1e-6, "coefficient %d", i)
	}
}

func TestSplineBackwardExtrapolationGrads(t *testing.T) {
	s, err := NewDeepBSpline(testSplineConfig(), cpu.New())
	require.NoError(t, err)
	setCoefficients(t, s, []float32{0, 1, 2, 3, 4})

	input, err := tensor.FromFloat32([]float32{-10}, tensor.Shape{1, 1}, tensor.CPU)
	require.NoError(t, err)
	s.Forward(input)

	grad, err := tensor.FromFloat32([]float32{1}, tensor.Shape{1, 1}, tensor.CPU)
	require.NoError(t, err)
	gradIn := s.Backward(grad)

	// Outside the support the input gradient is the boundary slope.
	assert.InDelta(t, 1.0, float64(gradIn.AsFloat32()[0]), 1e-6)

	// f(-10) = c0 + (x - xMin) * (c1 - c0) / grid with x - xMin = -8:
	// df/dc0 = 1 + 8 = 9, df/dc1 = -8.
	gc := s.coefficientsVect.Grad().AsFloat32()
	want := []float32{9, -8, 0, 0, 0}
	for i, v := range gc {
		assert.InDelta(t, want[i], v, 1e-5, "coefficient %d", i)
	}
}

func randomSpline(t *testing.T, saveMemory bool, seed int64) *DeepBSpline {
	t.Helper()
	cfg := SplineConfig{
		Mode:           ModeLinear,
		NumActivations: 3,
		Size:           7,
		Grid:           0.5,
		Init:           InitLeakyReLU,
		SaveMemory:     saveMemory,
	}
	s, err := NewDeepBSpline(cfg, cpu.New())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(seed))
	data := s.coefficientsVect.Tensor().AsFloat32()
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return s
}

func randomBatch(t *testing.T, rows, cols int, seed int64) *tensor.RawTensor {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = float32(rng.NormFloat64() * 3)
	}
	input, err := tensor.FromFloat32(data, tensor.Shape{rows, cols}, tensor.CPU)
	require.NoError(t, err)
	return input
}

func TestSplineMemoryModesMatchExactly(t *testing.T) {
	precise := randomSpline(t, false, 7)
	saving := randomSpline(t, true, 7)

	input := randomBatch(t, 16, 3, 11)
	outP := precise.Forward(input.Clone())
	outS := saving.Forward(input.Clone())

	// Same coefficients, same inputs: outputs are bit-identical across
	// memory modes.
	assert.Equal(t, outP.AsFloat32(), outS.AsFloat32())

	grad := randomBatch(t, 16, 3, 13)
	giP := precise.Backward(grad.Clone())
	giS := saving.Backward(grad.Clone())

	assert.Equal(t, giP.AsFloat32(), giS.AsFloat32())
	assert.Equal(t,
		precise.coefficientsVect.Grad().AsFloat32(),
		saving.coefficientsVect.Grad().AsFloat32())
}

func TestSplineForwardDeterministic(t *testing.T) {
	s := randomSpline(t, false, 3)
	input := randomBatch(t, 32, 3, 5)

	first := s.Forward(input.Clone()).AsFloat32()
	s.ctx = nil
	second := s.Forward(input.Clone()).AsFloat32()
	assert.Equal(t, first, second)
}

func TestSplineGradientFiniteDifference(t *testing.T) {
	s := randomSpline(t, false, 17)
	input := randomBatch(t, 8, 3, 19)

	ones := tensor.Full(input.Shape(), 1, tensor.CPU)
	s.Forward(input)
	s.Backward(ones)
	analytic := s.coefficientsVect.Grad().Clone().AsFloat32()

	// Loss = sum of outputs, so the numeric coefficient gradient is the
	// central difference of that sum.
	const eps = 1e-2
	coeffs := s.coefficientsVect.Tensor().AsFloat32()
	backend := cpu.New()
	for i := range coeffs {
		orig := coeffs[i]

		coeffs[i] = orig + eps
		plus := backend.Sum(s.Forward(input))
		coeffs[i] = orig - eps
		minus := backend.Sum(s.Forward(input))
		coeffs[i] = orig

		numeric := (plus - minus) / (2 * eps)
		assert.InDelta(t, numeric, float64(analytic[i]), 1e-2, "coefficient %d", i)
	}
}

func TestSplineInputGradientFiniteDifference(t *testing.T) {
	s := randomSpline(t, true, 23)

	// Inputs sit strictly between knots: a central difference straddling
	// a knot would measure the average of two slopes.
	rng := rand.New(rand.NewSource(29))
	data := make([]float32, 4*3)
	for i := range data {
		data[i] = float32((float64(rng.Intn(13)-6) + 0.3) * 0.5)
	}
	input, err := tensor.FromFloat32(data, tensor.Shape{4, 3}, tensor.CPU)
	require.NoError(t, err)

	ones := tensor.Full(input.Shape(), 1, tensor.CPU)
	s.Forward(input)
	gradIn := s.Backward(ones).AsFloat32()

	const eps = 1e-3
	backend := cpu.New()
	data = input.AsFloat32()
	for i := range data {
		orig := data[i]

		data[i] = orig + eps
		plus := backend.Sum(s.Forward(input))
		data[i] = orig - eps
		minus := backend.Sum(s.Forward(input))
		data[i] = orig

		numeric := (plus - minus) / (2 * eps)
		assert.InDelta(t, numeric, float64(gradIn[i]), 5e-2, "element %d", i)
	}
}

func TestSplineGradAccumulatesAcrossBatches(t *testing.T) {
	s, err := NewDeepBSpline(testSplineConfig(), cpu.New())
	require.NoError(t, err)
	setCoefficients(t, s, []float32{0, 1, 2, 3, 4})

	input, err := tensor.FromFloat32([]float32{0.5}, tensor.Shape{1, 1}, tensor.CPU)
	require.NoError(t, err)
	grad := tensor.Full(tensor.Shape{1, 1}, 1, tensor.CPU)

	s.Forward(input)
	s.Backward(grad)
	s.Forward(input)
	s.Backward(grad)

	gc := s.coefficientsVect.Grad().AsFloat32()
	assert.InDelta(t, 1.0, float64(gc[2]), 1e-6)
	assert.InDelta(t, 1.0, float64(gc[3]), 1e-6)
}

func TestSplineKnots(t *testing.T) {
	cfg := testSplineConfig()
	cfg.NumActivations = 2
	s, err := NewDeepBSpline(cfg, cpu.New())
	require.NoError(t, err)

	kd, err := s.Knots(0.1)
	require.NoError(t, err)

	assert.Equal(t, ActivationBSpline, kd.Kind)
	assert.Equal(t, []float32{-2, -1, 0, 1, 2}, kd.Positions)
	assert.True(t, kd.Values.Shape().Equal(tensor.Shape{2, 5}))
	assert.True(t, kd.Mask.Shape().Equal(tensor.Shape{2, 3}))

	// ReLU init: knot values are relu of the positions.
	want := []float32{0, 0, 0, 1, 2}
	vd := kd.Values.AsFloat32()
	for u := 0; u < 2; u++ {
		for k := 0; k < 5; k++ {
			assert.InDelta(t, want[k], vd[u*5+k], 1e-6)
		}
	}
}

func TestSplineLocateGridRounding(t *testing.T) {
	// For some grids xMin/grid rounds just past -size/2, so flooring alone
	// would land one knot left of the support: coefficient -1 for the
	// first unit, the previous unit's last coefficient for the rest.
	cfg := SplineConfig{
		Mode:           ModeLinear,
		NumActivations: 2,
		Size:           23,
		Grid:           0.41298829211258664,
		Init:           InitLeakyReLU,
	}
	s, err := NewDeepBSpline(cfg, cpu.New())
	require.NoError(t, err)

	input, err := tensor.FromFloat32([]float32{-100, 100}, tensor.Shape{1, 2}, tensor.CPU)
	require.NoError(t, err)

	out := s.Forward(input).AsFloat32()
	assert.InDelta(t, -1.0, out[0], 1e-3) // leaky slope 0.01 extrapolated left
	assert.InDelta(t, 100.0, out[1], 1e-3)

	grad, err := tensor.FromFloat32([]float32{1, 1}, tensor.Shape{1, 2}, tensor.CPU)
	require.NoError(t, err)
	s.Backward(grad)

	// The far-left input belongs to unit 0: its gradient stays on the
	// unit's first two coefficients and never leaves the unit's block.
	gc := s.coefficientsVect.Grad().AsFloat32()
	for k := 2; k < cfg.Size; k++ {
		assert.Zero(t, gc[k], "unit 0 coefficient %d", k)
	}
	// The far-right input belongs to unit 1: only its last two
	// coefficients receive gradient.
	for k := 0; k < cfg.Size-2; k++ {
		assert.Zero(t, gc[cfg.Size+k], "unit 1 coefficient %d", k)
	}

	cfg.SaveMemory = true
	sm, err := NewDeepBSpline(cfg, cpu.New())
	require.NoError(t, err)
	copy(sm.coefficientsVect.Tensor().AsFloat32(), s.coefficientsVect.Tensor().AsFloat32())

	assert.Equal(t, out, sm.Forward(input).AsFloat32())
	sm.Backward(grad)
	assert.Equal(t, gc, sm.coefficientsVect.Grad().AsFloat32())
}
