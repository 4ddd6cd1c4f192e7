// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn is the public neural network API of the deepspline library.
//
// It re-exports the internal modules: learnable spline activations and
// their fixed counterparts, weight layers, the Sequential container and the
// Network aggregator that ties spline regularization, sparsification and
// the Lipschitz bound together.
package nn

import (
	"github.com/born-ml/deepspline/internal/nn"
	"github.com/born-ml/deepspline/internal/tensor"
)

// Module is the forward/backward/parameter contract for all components.
type Module = nn.Module

// Parameter represents a trainable parameter.
type Parameter = nn.Parameter

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return nn.NewParameter(name, t)
}

// Sequential chains modules in order.
type Sequential = nn.Sequential

// NewSequential creates a Sequential container from the given modules.
func NewSequential(modules ...Module) *Sequential {
	return nn.NewSequential(modules...)
}

// Layers

// Linear is a fully connected layer.
type Linear = nn.Linear

// NewLinear creates a fully connected layer with Xavier-initialized
// weights and zero bias.
func NewLinear(inFeatures, outFeatures int, backend tensor.Backend) (*Linear, error) {
	return nn.NewLinear(inFeatures, outFeatures, backend)
}

// Conv2d is a 2D convolution layer over [N, C, H, W] inputs.
type Conv2d = nn.Conv2d

// NewConv2d creates a convolution layer with Xavier-initialized weights
// and zero bias.
func NewConv2d(inChannels, outChannels, kernelSize, stride, padding int, backend tensor.Backend) (*Conv2d, error) {
	return nn.NewConv2d(inChannels, outChannels, kernelSize, stride, padding, backend)
}

// Activations

// ActivationKind identifies an activation family member.
type ActivationKind = nn.ActivationKind

// Fixed activations and learnable spline variants.
const (
	ActivationReLU                  = nn.ActivationReLU
	ActivationLeakyReLU             = nn.ActivationLeakyReLU
	ActivationBSpline               = nn.ActivationBSpline
	ActivationBSplineExplicitLinear = nn.ActivationBSplineExplicitLinear
	ActivationReLUBasis             = nn.ActivationReLUBasis
)

// ActivationConfig selects and configures an activation family member.
type ActivationConfig = nn.ActivationConfig

// NewActivation constructs an activation module for the given configuration.
func NewActivation(cfg ActivationConfig, backend tensor.Backend) (Module, error) {
	return nn.NewActivation(cfg, backend)
}

// ReLU is the fixed rectified linear activation.
type ReLU = nn.ReLU

// NewReLU creates a ReLU activation module.
func NewReLU() *ReLU {
	return nn.NewReLU()
}

// LeakyReLU is the fixed leaky rectified linear activation.
type LeakyReLU = nn.LeakyReLU

// NewLeakyReLU creates a LeakyReLU activation with the given negative slope.
func NewLeakyReLU(slope float64) *LeakyReLU {
	return nn.NewLeakyReLU(slope)
}

// Splines

// Mode selects the input reshape convention of a spline group.
type Mode = nn.Mode

// Input reshape conventions.
const (
	ModeConv   = nn.ModeConv
	ModeLinear = nn.ModeLinear
)

// InitPolicy selects the initial shape of a spline activation.
type InitPolicy = nn.InitPolicy

// Supported initialization policies.
const (
	InitReLU      = nn.InitReLU
	InitLeakyReLU = nn.InitLeakyReLU
	InitRandom    = nn.InitRandom
)

// SplineConfig configures one spline activation group.
type SplineConfig = nn.SplineConfig

// Spline is the capability set shared by all learnable spline variants.
type Spline = nn.Spline

// KnotData is the plotting/export view of one spline group.
type KnotData = nn.KnotData

// DeepBSpline is the coefficient-parameterized spline activation.
type DeepBSpline = nn.DeepBSpline

// NewDeepBSpline builds a spline activation group.
func NewDeepBSpline(cfg SplineConfig, backend tensor.Backend) (*DeepBSpline, error) {
	return nn.NewDeepBSpline(cfg, backend)
}

// DeepBSplineExplicitLinear adds an explicit per-unit affine term.
type DeepBSplineExplicitLinear = nn.DeepBSplineExplicitLinear

// NewDeepBSplineExplicitLinear builds the explicit-linear variant.
func NewDeepBSplineExplicitLinear(cfg SplineConfig, backend tensor.Backend) (*DeepBSplineExplicitLinear, error) {
	return nn.NewDeepBSplineExplicitLinear(cfg, backend)
}

// DeepReLUBasis parameterizes each activation directly in the ReLU basis.
type DeepReLUBasis = nn.DeepReLUBasis

// NewDeepReLUBasis builds the ReLU-basis variant.
func NewDeepReLUBasis(cfg SplineConfig, backend tensor.Backend) (*DeepReLUBasis, error) {
	return nn.NewDeepReLUBasis(cfg, backend)
}

// SplineParameterNames returns the fixed set of spline parameter names.
func SplineParameterNames() []string {
	return nn.SplineParameterNames()
}

// Network and loss

// NetworkConfig holds the regularization settings of a Network.
type NetworkConfig = nn.NetworkConfig

// Network aggregates spline regularization over a module chain.
type Network = nn.Network

// NewNetwork wraps the modules in a Network with the given settings.
func NewNetwork(cfg NetworkConfig, backend tensor.Backend, modules ...Module) (*Network, error) {
	return nn.NewNetwork(cfg, backend, modules...)
}

// MSELoss is the mean squared error criterion.
type MSELoss = nn.MSELoss

// NewMSELoss creates a mean squared error criterion.
func NewMSELoss() *MSELoss {
	return nn.NewMSELoss()
}
