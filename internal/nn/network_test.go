package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/deepspline/internal/backend/cpu"
	"github.com/born-ml/deepspline/internal/tensor"
)

func testNetwork(t *testing.T, cfg NetworkConfig) (*Network, *Linear, *DeepBSpline, *Linear) {
	t.Helper()
	backend := cpu.New()

	l1, err := NewLinear(1, 2, backend)
	require.NoError(t, err)
	splineCfg := testSplineConfig()
	splineCfg.NumActivations = 2
	act, err := NewDeepBSpline(splineCfg, backend)
	require.NoError(t, err)
	l2, err := NewLinear(2, 1, backend)
	require.NoError(t, err)

	net, err := NewNetwork(cfg, backend, l1, act, l2)
	require.NoError(t, err)
	return net, l1, act, l2
}

func TestNetworkConfigValidation(t *testing.T) {
	backend := cpu.New()
	_, err := NewNetwork(NetworkConfig{WeightDecay: -1}, backend)
	assert.Error(t, err)
	_, err = NewNetwork(NetworkConfig{Lambda: -1}, backend)
	assert.Error(t, err)
	_, err = NewNetwork(NetworkConfig{Threshold: -1}, backend)
	assert.Error(t, err)
}

func TestNetworkSplines(t *testing.T) {
	net, _, act, _ := testNetwork(t, NetworkConfig{})
	splines := net.Splines()
	require.Len(t, splines, 1)
	assert.Same(t, act, splines[0].(*DeepBSpline))
}

func TestNetworkParameterPartition(t *testing.T) {
	net, _, _, _ := testNetwork(t, NetworkConfig{})

	spline := net.ParametersSpline()
	require.Len(t, spline, 1)
	assert.Equal(t, "coefficients_vect", spline[0].Name())

	noSpline := net.ParametersNoSpline()
	assert.Len(t, noSpline, 4)
	for _, p := range noSpline {
		assert.NotEqual(t, "coefficients_vect", p.Name())
	}

	// Partition is exhaustive and disjoint.
	assert.Len(t, net.Parameters(), len(spline)+len(noSpline))
}

func TestNetworkWeightDecay(t *testing.T) {
	net, l1, _, l2 := testNetwork(t, NetworkConfig{WeightDecay: 2})

	for _, p := range append(l1.Parameters(), l2.Parameters()...) {
		data := p.Tensor().AsFloat32()
		for i := range data {
			data[i] = 1
		}
	}

	// (wd/2) * sum of squares over weight and bias entries:
	// l1 has 2 + 2, l2 has 2 + 1 entries, all ones.
	assert.InDelta(t, 2.0/2*7, net.WeightDecay(), 1e-6)
}

func TestNetworkTVBV(t *testing.T) {
	net, _, _, _ := testNetwork(t, NetworkConfig{Lambda: 0.5})

	// ReLU init: TV = 1 per unit, two units.
	weighted, raw := net.TVBV()
	assert.InDelta(t, 2.0, raw, 1e-6)
	assert.InDelta(t, 1.0, weighted, 1e-6)
}

func TestNetworkTVBVLipschitzUsesBVNorm(t *testing.T) {
	net, _, _, _ := testNetwork(t, NetworkConfig{Lambda: 1, Lipschitz: true})

	// BV adds |f(-1)| + |f(+1)| = 0 + 1 per relu-initialized unit.
	_, raw := net.TVBV()
	assert.InDelta(t, 4.0, raw, 1e-6)
}

func TestNetworkLipschitzBound(t *testing.T) {
	net, l1, _, l2 := testNetwork(t, NetworkConfig{Lipschitz: true})

	copy(l1.weight.Tensor().AsFloat32(), []float32{1, -2})
	copy(l2.weight.Tensor().AsFloat32(), []float32{3, 0.5})

	// max|W1| * max|W2| * summed BV of the relu-initialized splines.
	bound := net.LipschitzBound()
	assert.InDelta(t, 2.0*3.0*4.0, bound, 1e-5)

	// Scaling a weight layer scales the bound.
	for i, v := range l1.weight.Tensor().AsFloat32() {
		l1.weight.Tensor().AsFloat32()[i] = v * 2
	}
	assert.InDelta(t, 2*bound, net.LipschitzBound(), 1e-4)
}

func TestNetworkAccumulateTVGrads(t *testing.T) {
	net, _, act, _ := testNetwork(t, NetworkConfig{Lambda: 0.5})

	net.AccumulateTVGrads()
	gc := act.coefficientsVect.Grad().AsFloat32()
	// Each unit has slopes [0, 1, 0]: the subgradient stencil lands on the
	// middle three coefficients.
	for u := 0; u < 2; u++ {
		base := u * 5
		assert.InDelta(t, 0.5, float64(gc[base+1]), 1e-6)
		assert.InDelta(t, -1.0, float64(gc[base+2]), 1e-6)
		assert.InDelta(t, 0.5, float64(gc[base+3]), 1e-6)
	}
}

func TestNetworkSparsify(t *testing.T) {
	net, _, act, _ := testNetwork(t, NetworkConfig{Threshold: 1.5})

	count, err := net.ComputeSparsity()
	require.NoError(t, err)
	// All slopes (two units, [0, 1, 0] each) fall below 1.5.
	assert.Equal(t, 6, count)

	require.NoError(t, net.SparsifyActivations())
	slopes := act.ReluSlopes().AsFloat32()
	for i, v := range slopes {
		assert.InDelta(t, 0.0, float64(v), 1e-6, "slope %d", i)
	}

	after, err := net.ComputeSparsity()
	require.NoError(t, err)
	assert.Equal(t, 6, after)
}

func TestNetworkSplineActivations(t *testing.T) {
	net, _, _, _ := testNetwork(t, NetworkConfig{Threshold: 0.5})

	knots, err := net.SplineActivations()
	require.NoError(t, err)
	require.Len(t, knots, 1)
	assert.True(t, knots[0].Values.Shape().Equal(tensor.Shape{2, 5}))
}

func TestNetworkTraining(t *testing.T) {
	net, _, _, _ := testNetwork(t, NetworkConfig{Lambda: 1e-4})
	net.InitializeWeights()
	loss := NewMSELoss()

	input, err := tensor.FromFloat32([]float32{-1, 0, 1, 2}, tensor.Shape{4, 1}, tensor.CPU)
	require.NoError(t, err)
	target, err := tensor.FromFloat32([]float32{1, 0, 1, 4}, tensor.Shape{4, 1}, tensor.CPU)
	require.NoError(t, err)

	var first float32
	for step := 0; step < 50; step++ {
		for _, p := range net.Parameters() {
			p.ZeroGrad()
		}
		pred := net.Forward(input)
		l := loss.Forward(pred, target)
		if step == 0 {
			first = l
		}
		net.Backward(loss.Backward())
		net.AccumulateTVGrads()

		for _, p := range net.Parameters() {
			pd, gd := p.Tensor().AsFloat32(), p.Grad().AsFloat32()
			for i := range pd {
				pd[i] -= 0.01 * gd[i]
			}
		}
	}

	pred := net.Forward(input)
	final := loss.Forward(pred, target)
	assert.Less(t, final, first)
}

func TestNetworkInitializeWeightsKeepsShapes(t *testing.T) {
	net, l1, _, l2 := testNetwork(t, NetworkConfig{})
	net.InitializeWeights()

	assert.True(t, l1.weight.Tensor().Shape().Equal(tensor.Shape{2, 1}))
	assert.True(t, l2.weight.Tensor().Shape().Equal(tensor.Shape{1, 2}))
	for _, v := range l1.bias.Tensor().AsFloat32() {
		assert.Zero(t, v)
	}
}

func TestNetworkInitSlope(t *testing.T) {
	backend := cpu.New()

	cfg := testSplineConfig()
	cfg.Init = InitLeakyReLU
	cfg.NegativeSlope = 0.2
	leaky, err := NewDeepBSpline(cfg, backend)
	require.NoError(t, err)
	assert.Equal(t, 0.2, leaky.InitSlope())

	basis, err := NewDeepReLUBasis(cfg, backend)
	require.NoError(t, err)
	assert.Equal(t, 0.2, basis.InitSlope())

	cfg.Init = InitReLU
	plain, err := NewDeepBSpline(cfg, backend)
	require.NoError(t, err)
	assert.Zero(t, plain.InitSlope())

	// He slope selection covers both fixed and spline activations.
	assert.Equal(t, 0.2, initSlopeFor(leaky))
	assert.Zero(t, initSlopeFor(plain))
	assert.Equal(t, 0.3, initSlopeFor(NewLeakyReLU(0.3)))
	assert.Zero(t, initSlopeFor(NewReLU()))
}
