// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure-Go CPU compute backend.
package cpu

import (
	"github.com/born-ml/deepspline/internal/backend/cpu"
)

// CPUBackend implements tensor.Backend with pure-Go float32 kernels.
type CPUBackend = cpu.CPUBackend

// New creates a CPU backend.
func New() *CPUBackend {
	return cpu.New()
}
