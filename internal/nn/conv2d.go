package nn

import (
	"fmt"

	"github.com/born-ml/deepspline/internal/tensor"
)

// Conv2d is a 2D convolution layer over [N, C, H, W] inputs.
type Conv2d struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	weight *Parameter // [outChannels, inChannels, kernelSize, kernelSize]
	bias   *Parameter // [outChannels]

	backend tensor.Backend
	input   *tensor.RawTensor
}

// NewConv2d creates a convolution layer with Xavier-initialized weights and
// zero bias.
func NewConv2d(inChannels, outChannels, kernelSize, stride, padding int, backend tensor.Backend) (*Conv2d, error) {
	if inChannels <= 0 || outChannels <= 0 || kernelSize <= 0 {
		return nil, fmt.Errorf("conv2d: channels and kernel size must be positive, got in=%d out=%d k=%d",
			inChannels, outChannels, kernelSize)
	}
	if stride <= 0 || padding < 0 {
		return nil, fmt.Errorf("conv2d: invalid stride %d or padding %d", stride, padding)
	}

	device := backend.Device()
	fanIn := inChannels * kernelSize * kernelSize
	fanOut := outChannels * kernelSize * kernelSize
	weight := Xavier(fanIn, fanOut,
		tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}, device)
	bias := tensor.Zeros(tensor.Shape{outChannels}, tensor.Float32, device)

	return &Conv2d{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
		backend:     backend,
	}, nil
}

// Forward convolves the input and adds the per-channel bias.
func (c *Conv2d) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	out := c.backend.Conv2D(input, c.weight.Tensor(), c.stride, c.padding)

	shape := out.Shape()
	od, bd := out.AsFloat32(), c.bias.Tensor().AsFloat32()
	hw := shape[2] * shape[3]
	for n := 0; n < shape[0]; n++ {
		for ch := 0; ch < c.outChannels; ch++ {
			off := (n*c.outChannels + ch) * hw
			for i := 0; i < hw; i++ {
				od[off+i] += bd[ch]
			}
		}
	}

	c.input = input
	return out
}

// Backward accumulates weight and bias gradients and returns the input
// gradient.
func (c *Conv2d) Backward(gradOutput *tensor.RawTensor) *tensor.RawTensor {
	if c.input == nil {
		panic("conv2d: backward called before forward")
	}

	gradIn := c.backend.Conv2DInputBackward(c.input, c.weight.Tensor(), gradOutput, c.stride, c.padding)
	gradW := c.backend.Conv2DKernelBackward(c.input, c.weight.Tensor(), gradOutput, c.stride, c.padding)

	shape := gradOutput.Shape()
	gradB := tensor.Zeros(tensor.Shape{c.outChannels}, tensor.Float32, gradOutput.Device())
	gd, gb := gradOutput.AsFloat32(), gradB.AsFloat32()
	hw := shape[2] * shape[3]
	for n := 0; n < shape[0]; n++ {
		for ch := 0; ch < c.outChannels; ch++ {
			off := (n*c.outChannels + ch) * hw
			var acc float64
			for i := 0; i < hw; i++ {
				acc += float64(gd[off+i])
			}
			gb[ch] += float32(acc)
		}
	}

	c.weight.AccumulateGrad(gradW)
	c.bias.AccumulateGrad(gradB)
	c.input = nil
	return gradIn
}

// Parameters returns the trainable parameters.
func (c *Conv2d) Parameters() []*Parameter {
	return []*Parameter{c.weight, c.bias}
}

// Weight returns the weight parameter.
func (c *Conv2d) Weight() *Parameter { return c.weight }

// Bias returns the bias parameter.
func (c *Conv2d) Bias() *Parameter { return c.bias }
