package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/deepspline/internal/parallel"
	"github.com/born-ml/deepspline/internal/tensor"
)

// splineCtx is the saved state of one spline forward pass, consumed by the
// matching backward pass.
//
// In precise mode the per-element interpolation weights and coefficient
// indexes are cached here. In save-memory mode only the raw input is kept
// and backward recomputes them from scratch; the recomputation goes through
// the same locate() helper, so the resulting gradients are bit-identical to
// the cached path.
type splineCtx struct {
	input   *tensor.RawTensor
	fracs   []float32 // nil in save-memory mode
	indexes []int32   // nil in save-memory mode
}

// locate maps a raw input value to its left-knot coefficient index and the
// fractional distance to that knot. The input is clamped to
// [-grid*(size/2), grid*(size/2-1)]; the right bound stops one knot short of
// the last knot so a right-neighbor coefficient always exists.
func (b *deepBSplineBase) locate(x float64, zeroIdx int) (idx int, frac float32) {
	xc := x
	if xc < b.xMin {
		xc = b.xMin
	}
	if xc > b.xMax {
		xc = b.xMax
	}

	// Clamping in float space does not bound the knot offset: xc/grid can
	// round just past ±size/2 for some grids, so the integer offset is
	// clamped too. The left guard keeps idx at the unit's first
	// coefficient, the right guard one knot short of its last.
	ratio := xc / b.grid
	k := int(math.Floor(ratio))
	if k < -(b.size / 2) {
		k = -(b.size / 2)
	}
	if k > b.size/2-1 {
		k = b.size/2 - 1
	}
	f := float32(ratio - float64(k))
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	return zeroIdx + k, f
}

// splineForward evaluates the group's splines over an input batch.
//
// Each output element is the linear interpolation between the two
// coefficients neighboring its clamped input. In save-memory mode the
// linear extrapolation outside the support is folded in here; in precise
// mode the caller adds it as a separate pass (addExtrapolation), with
// identical arithmetic either way.
func (b *deepBSplineBase) splineForward(input *tensor.RawTensor) *tensor.RawTensor {
	batch, inner := b.checkInput(input)

	out := tensor.Zeros(input.Shape(), tensor.Float32, input.Device())
	xd, od := input.AsFloat32(), out.AsFloat32()
	cd := b.coefficientsVect.Tensor().AsFloat32()

	ctx := &splineCtx{input: input}
	if !b.saveMemory {
		n := input.NumElements()
		ctx.fracs = make([]float32, n)
		ctx.indexes = make([]int32, n)
	}

	grid := float32(b.grid)
	parallel.For(b.numActivations, func(u int) {
		base := u * b.size
		zeroIdx := base + b.size/2

		var leftSlope, rightSlope float32
		if b.saveMemory {
			leftSlope = (cd[base+1] - cd[base]) / grid
			rightSlope = (cd[base+b.size-1] - cd[base+b.size-2]) / grid
		}

		for bi := 0; bi < batch; bi++ {
			off := (bi*b.numActivations + u) * inner
			for s := 0; s < inner; s++ {
				e := off + s
				x := float64(xd[e])

				idx, frac := b.locate(x, zeroIdx)
				v := cd[idx+1]*frac + cd[idx]*(1-frac)

				if b.saveMemory {
					if left := x - b.xMin; left < 0 {
						v += float32(left) * leftSlope
					}
					if right := x - b.xMax; right > 0 {
						v += float32(right) * rightSlope
					}
				} else {
					ctx.fracs[e] = frac
					ctx.indexes[e] = int32(idx)
				}
				od[e] = v
			}
		}
	}, b.par)

	b.ctx = ctx
	return out
}

// addExtrapolation adds the linear continuation outside the spline support
// to a precise-mode forward output, in place. The term is zero for inputs
// inside the support.
func (b *deepBSplineBase) addExtrapolation(input, out *tensor.RawTensor) {
	batch, inner := b.checkInput(input)

	xd, od := input.AsFloat32(), out.AsFloat32()
	cd := b.coefficientsVect.Tensor().AsFloat32()

	grid := float32(b.grid)
	parallel.For(b.numActivations, func(u int) {
		base := u * b.size
		leftSlope := (cd[base+1] - cd[base]) / grid
		rightSlope := (cd[base+b.size-1] - cd[base+b.size-2]) / grid

		for bi := 0; bi < batch; bi++ {
			off := (bi*b.numActivations + u) * inner
			for s := 0; s < inner; s++ {
				e := off + s
				x := float64(xd[e])
				if left := x - b.xMin; left < 0 {
					od[e] += float32(left) * leftSlope
				}
				if right := x - b.xMax; right > 0 {
					od[e] += float32(right) * rightSlope
				}
			}
		}
	}, b.par)
}

// splineBackward consumes the upstream gradient, accumulates the coefficient
// gradients into the group's parameter, and returns the gradient w.r.t. the
// input batch.
//
// Coefficient gradients scatter-add: every input element contributes
// frac*g to its right coefficient and (1-frac)*g to its left one, and
// extrapolated elements additionally contribute through the boundary slopes,
// which are linear in the two outermost coefficient pairs. Inputs exactly on
// a knot have frac == 0, so their gradient flows entirely to the left
// coefficient.
func (b *deepBSplineBase) splineBackward(gradOutput *tensor.RawTensor) *tensor.RawTensor {
	if b.ctx == nil {
		panic("deep_bspline: backward called before forward")
	}
	if !gradOutput.Shape().Equal(b.ctx.input.Shape()) {
		panic(fmt.Sprintf("spline backward: gradient shape %v does not match input shape %v",
			gradOutput.Shape(), b.ctx.input.Shape()))
	}

	batch, inner := b.checkInput(b.ctx.input)

	gradIn := tensor.Zeros(gradOutput.Shape(), tensor.Float32, gradOutput.Device())
	gradCoeffs := tensor.Zeros(tensor.Shape{b.numActivations, b.size}, tensor.Float32, gradOutput.Device())

	xd := b.ctx.input.AsFloat32()
	gd, gi := gradOutput.AsFloat32(), gradIn.AsFloat32()
	cd := b.coefficientsVect.Tensor().AsFloat32()
	gc := gradCoeffs.AsFloat32()

	grid := float32(b.grid)
	parallel.For(b.numActivations, func(u int) {
		zeroIdx := u*b.size + b.size/2

		for bi := 0; bi < batch; bi++ {
			off := (bi*b.numActivations + u) * inner
			for s := 0; s < inner; s++ {
				e := off + s
				g := gd[e]
				x := float64(xd[e])

				var idx int
				var frac float32
				if b.saveMemory {
					// Recompute instead of loading from the ctx caches;
					// same locate(), same results.
					idx, frac = b.locate(x, zeroIdx)
				} else {
					idx, frac = int(b.ctx.indexes[e]), b.ctx.fracs[e]
				}

				gi[e] = (cd[idx+1] - cd[idx]) / grid * g

				gc[idx+1] += frac * g
				gc[idx] += (1 - frac) * g

				// Extrapolation reaches the boundary coefficient pairs
				// through the left/right slopes; both terms vanish inside
				// the support.
				if t := (x - b.xMin) / b.grid; t < 0 {
					w := float32(t)
					gc[idx] += -w * g
					gc[idx+1] += w * g
				}
				if t := (x - b.xMax) / b.grid; t > 0 {
					w := float32(t)
					gc[idx] += -w * g
					gc[idx+1] += w * g
				}
			}
		}
	}, b.par)

	b.coefficientsVect.AccumulateGrad(gradCoeffs)
	b.ctx = nil
	return gradIn
}
