// Copyright 2016 The regionmaster Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartCodeGeneratorMonotonicOnCollision(t *testing.T) {
	var g StartCodeGenerator
	first := g.Next(1000)
	second := g.Next(1000) // same wall-clock reading twice
	assert.Equal(t, int64(1000), first)
	assert.Greater(t, second, first)
}

func TestStartCodeGeneratorPassesThroughAdvancingClock(t *testing.T) {
	var g StartCodeGenerator
	assert.Equal(t, int64(100), g.Next(100))
	assert.Equal(t, int64(200), g.Next(200))
}
