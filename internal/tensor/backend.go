package tensor

// Backend defines the interface that compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// The only implementation today is the CPU backend; the spline kernels
// themselves live in internal/nn and address coefficient memory directly,
// so the Backend surface is limited to the dense operations the library
// composes around them.
type Backend interface {
	Name() string
	Device() Device

	// Element-wise binary operations (equal shapes, no broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// Scalar operations
	AddScalar(x *RawTensor, s float32) *RawTensor
	MulScalar(x *RawTensor, s float32) *RawTensor

	// Element-wise math
	Abs(x *RawTensor) *RawTensor

	// Matrix operations (2D)
	MatMul(a, b *RawTensor) *RawTensor
	Transpose(t *RawTensor) *RawTensor

	// Convolutions.
	// Conv1D applies a single 1D filter to every row of a 2D tensor
	// ("valid" region only): [rows, cols] -> [rows, cols-len(filter)+1].
	// It is the second-finite-difference engine of the slope converter.
	Conv1D(x, filter *RawTensor) *RawTensor
	// Conv2D and its gradients follow the usual [N,C,H,W] layout.
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor

	// Reductions
	Sum(x *RawTensor) float64
	SumDim(x *RawTensor, dim int) *RawTensor
	MaxAbs(x *RawTensor) float64
}
