package cpu

import (
	"fmt"

	"github.com/born-ml/deepspline/internal/tensor"
)

// Conv1D applies a single 1D filter to every row of a 2D tensor, "valid"
// region only: [rows, cols] -> [rows, cols-len(filter)+1].
//
// The slope converter uses this with the fixed second-finite-difference
// filter [1,-2,1]/grid to project spline coefficients onto relu slopes.
func (cpu *CPUBackend) Conv1D(x, filter *tensor.RawTensor) *tensor.RawTensor {
	xShape, fShape := x.Shape(), filter.Shape()
	if len(xShape) != 2 {
		panic(fmt.Sprintf("conv1d: input must be 2D [rows, cols], got %v", xShape))
	}
	if len(fShape) != 1 {
		panic(fmt.Sprintf("conv1d: filter must be 1D, got %v", fShape))
	}

	rows, cols, k := xShape[0], xShape[1], fShape[0]
	outCols := cols - k + 1
	if outCols <= 0 {
		panic(fmt.Sprintf("conv1d: filter length %d exceeds row length %d", k, cols))
	}

	result := cpu.newResult("conv1d", tensor.Shape{rows, outCols}, tensor.Float32)

	xd, fd, rd := x.AsFloat32(), filter.AsFloat32(), result.AsFloat32()
	for r := 0; r < rows; r++ {
		row := xd[r*cols : (r+1)*cols]
		out := rd[r*outCols : (r+1)*outCols]
		for j := 0; j < outCols; j++ {
			var acc float32
			for t := 0; t < k; t++ {
				acc += fd[t] * row[j+t]
			}
			out[j] = acc
		}
	}
	return result
}

// Conv2D performs 2D convolution with direct loops.
//
// Input shape: [N, C_in, H, W]
// Kernel shape: [C_out, C_in, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	n, cIn, h, w, cOut, kH, kW := conv2dDims("conv2d", input, kernel)

	hOut := (h+2*padding-kH)/stride + 1
	wOut := (w+2*padding-kW)/stride + 1
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", hOut, wOut))
	}

	output := cpu.newResult("conv2d", tensor.Shape{n, cOut, hOut, wOut}, tensor.Float32)

	in, kd, out := input.AsFloat32(), kernel.AsFloat32(), output.AsFloat32()
	for batch := 0; batch < n; batch++ {
		inBatch := in[batch*cIn*h*w : (batch+1)*cIn*h*w]
		outBatch := out[batch*cOut*hOut*wOut : (batch+1)*cOut*hOut*wOut]
		for outChan := 0; outChan < cOut; outChan++ {
			kChan := kd[outChan*cIn*kH*kW : (outChan+1)*cIn*kH*kW]
			outPlane := outBatch[outChan*hOut*wOut : (outChan+1)*hOut*wOut]
			for outH := 0; outH < hOut; outH++ {
				for outW := 0; outW < wOut; outW++ {
					var acc float32
					for inChan := 0; inChan < cIn; inChan++ {
						inPlane := inBatch[inChan*h*w : (inChan+1)*h*w]
						kPlane := kChan[inChan*kH*kW : (inChan+1)*kH*kW]
						for kh := 0; kh < kH; kh++ {
							hPos := outH*stride - padding + kh
							if hPos < 0 || hPos >= h {
								continue
							}
							for kw := 0; kw < kW; kw++ {
								wPos := outW*stride - padding + kw
								if wPos < 0 || wPos >= w {
									continue
								}
								acc += inPlane[hPos*w+wPos] * kPlane[kh*kW+kw]
							}
						}
					}
					outPlane[outH*wOut+outW] = acc
				}
			}
		}
	}
	return output
}

// Conv2DInputBackward computes the gradient w.r.t. the convolution input
// (transposed convolution).
//
// For each output gradient position, the gradient is distributed back to
// every input position that contributed to it.
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	n, cIn, h, w, cOut, kH, kW := conv2dDims("conv2d input backward", input, kernel)
	gradShape := grad.Shape()
	hOut, wOut := gradShape[2], gradShape[3]

	inputGrad := cpu.newResult("conv2d input backward", tensor.Shape{n, cIn, h, w}, tensor.Float32)

	ig, gd, kd := inputGrad.AsFloat32(), grad.AsFloat32(), kernel.AsFloat32()
	for batch := 0; batch < n; batch++ {
		igBatch := ig[batch*cIn*h*w : (batch+1)*cIn*h*w]
		gradBatch := gd[batch*cOut*hOut*wOut : (batch+1)*cOut*hOut*wOut]
		for outChan := 0; outChan < cOut; outChan++ {
			kChan := kd[outChan*cIn*kH*kW : (outChan+1)*cIn*kH*kW]
			gradPlane := gradBatch[outChan*hOut*wOut : (outChan+1)*hOut*wOut]
			for outH := 0; outH < hOut; outH++ {
				for outW := 0; outW < wOut; outW++ {
					gradVal := gradPlane[outH*wOut+outW]
					if gradVal == 0 {
						continue
					}
					for inChan := 0; inChan < cIn; inChan++ {
						igPlane := igBatch[inChan*h*w : (inChan+1)*h*w]
						kPlane := kChan[inChan*kH*kW : (inChan+1)*kH*kW]
						for kh := 0; kh < kH; kh++ {
							hPos := outH*stride - padding + kh
							if hPos < 0 || hPos >= h {
								continue
							}
							for kw := 0; kw < kW; kw++ {
								wPos := outW*stride - padding + kw
								if wPos < 0 || wPos >= w {
									continue
								}
								igPlane[hPos*w+wPos] += gradVal * kPlane[kh*kW+kw]
							}
						}
					}
				}
			}
		}
	}
	return inputGrad
}

// Conv2DKernelBackward computes the gradient w.r.t. the convolution kernel.
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	n, cIn, h, w, cOut, kH, kW := conv2dDims("conv2d kernel backward", input, kernel)
	gradShape := grad.Shape()
	hOut, wOut := gradShape[2], gradShape[3]

	kernelGrad := cpu.newResult("conv2d kernel backward", tensor.Shape{cOut, cIn, kH, kW}, tensor.Float32)

	kg, gd, in := kernelGrad.AsFloat32(), grad.AsFloat32(), input.AsFloat32()
	for batch := 0; batch < n; batch++ {
		inBatch := in[batch*cIn*h*w : (batch+1)*cIn*h*w]
		gradBatch := gd[batch*cOut*hOut*wOut : (batch+1)*cOut*hOut*wOut]
		for outChan := 0; outChan < cOut; outChan++ {
			kgChan := kg[outChan*cIn*kH*kW : (outChan+1)*cIn*kH*kW]
			gradPlane := gradBatch[outChan*hOut*wOut : (outChan+1)*hOut*wOut]
			for outH := 0; outH < hOut; outH++ {
				for outW := 0; outW < wOut; outW++ {
					gradVal := gradPlane[outH*wOut+outW]
					if gradVal == 0 {
						continue
					}
					for inChan := 0; inChan < cIn; inChan++ {
						inPlane := inBatch[inChan*h*w : (inChan+1)*h*w]
						kgPlane := kgChan[inChan*kH*kW : (inChan+1)*kH*kW]
						for kh := 0; kh < kH; kh++ {
							hPos := outH*stride - padding + kh
							if hPos < 0 || hPos >= h {
								continue
							}
							for kw := 0; kw < kW; kw++ {
								wPos := outW*stride - padding + kw
								if wPos < 0 || wPos >= w {
									continue
								}
								kgPlane[kh*kW+kw] += gradVal * inPlane[hPos*w+wPos]
							}
						}
					}
				}
			}
		}
	}
	return kernelGrad
}

// conv2dDims validates conv shapes and extracts dimensions.
func conv2dDims(op string, input, kernel *tensor.RawTensor) (n, cIn, h, w, cOut, kH, kW int) {
	inputShape, kernelShape := input.Shape(), kernel.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", op, len(kernelShape)))
	}
	if inputShape[1] != kernelShape[1] {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, inputShape[1], kernelShape[1]))
	}
	return inputShape[0], inputShape[1], inputShape[2], inputShape[3],
		kernelShape[0], kernelShape[2], kernelShape[3]
}
