package nn

import (
	"fmt"

	"github.com/born-ml/deepspline/internal/tensor"
)

// Linear is a fully connected layer: output = input @ weight^T + bias.
type Linear struct {
	inFeatures  int
	outFeatures int

	weight *Parameter // [outFeatures, inFeatures]
	bias   *Parameter // [outFeatures]

	backend tensor.Backend
	input   *tensor.RawTensor // saved by Forward
}

// NewLinear creates a fully connected layer with Xavier-initialized weights
// and zero bias.
func NewLinear(inFeatures, outFeatures int, backend tensor.Backend) (*Linear, error) {
	if inFeatures <= 0 || outFeatures <= 0 {
		return nil, fmt.Errorf("linear: features must be positive, got in=%d out=%d",
			inFeatures, outFeatures)
	}
	device := backend.Device()
	weight := Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, device)
	bias := tensor.Zeros(tensor.Shape{outFeatures}, tensor.Float32, device)

	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
		backend:     backend,
	}, nil
}

// Forward computes the affine transform of a [batch, inFeatures] input.
func (l *Linear) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		panic(fmt.Sprintf("linear: expects [batch, %d], got %v", l.inFeatures, shape))
	}

	out := l.backend.MatMul(input, l.backend.Transpose(l.weight.Tensor()))

	od, bd := out.AsFloat32(), l.bias.Tensor().AsFloat32()
	for bi := 0; bi < shape[0]; bi++ {
		off := bi * l.outFeatures
		for j := 0; j < l.outFeatures; j++ {
			od[off+j] += bd[j]
		}
	}

	l.input = input
	return out
}

// Backward accumulates weight and bias gradients and returns the input
// gradient.
func (l *Linear) Backward(gradOutput *tensor.RawTensor) *tensor.RawTensor {
	if l.input == nil {
		panic("linear: backward called before forward")
	}
	shape := gradOutput.Shape()
	if len(shape) != 2 || shape[1] != l.outFeatures {
		panic(fmt.Sprintf("linear backward: expects [batch, %d], got %v", l.outFeatures, shape))
	}

	gradIn := l.backend.MatMul(gradOutput, l.weight.Tensor())
	gradW := l.backend.MatMul(l.backend.Transpose(gradOutput), l.input)
	gradB := l.backend.SumDim(gradOutput, 0)

	l.weight.AccumulateGrad(gradW)
	l.bias.AccumulateGrad(gradB)
	l.input = nil
	return gradIn
}

// Parameters returns the trainable parameters.
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter { return l.weight }

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter { return l.bias }
