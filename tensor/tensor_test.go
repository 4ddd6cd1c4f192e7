// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/deepspline/backend/cpu"
	"github.com/born-ml/deepspline/tensor"
)

// The facade re-exports the internal types; this test only checks the
// public surface is usable end to end.
func TestPublicAPI(t *testing.T) {
	backend := cpu.New()
	assert.Equal(t, "CPU", backend.Name())

	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend.Device())
	require.NoError(t, err)
	y := tensor.Full(tensor.Shape{2, 2}, 1, backend.Device())

	sum := backend.Add(x, y)
	assert.Equal(t, []float32{2, 3, 4, 5}, sum.AsFloat32())

	var b tensor.Backend = backend
	assert.InDelta(t, 10.0, b.Sum(x), 1e-9)
}
