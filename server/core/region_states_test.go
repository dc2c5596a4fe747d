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
	"github.com/stretchr/testify/require"
)

func TestRegionStatesCheckNoOverlapPasses(t *testing.T) {
	s := NewRegionStates()
	s.PutRegion(NewRegionInfo("t1", []byte(""), []byte("m"), 1))
	s.PutRegion(NewRegionInfo("t1", []byte("m"), nil, 1))
	assert.NoError(t, s.CheckNoOverlap("t1"))
}

func TestRegionStatesCheckNoOverlapDetectsGap(t *testing.T) {
	s := NewRegionStates()
	s.PutRegion(NewRegionInfo("t1", []byte(""), []byte("d"), 1))
	s.PutRegion(NewRegionInfo("t1", []byte("m"), nil, 1))
	assert.Error(t, s.CheckNoOverlap("t1"))
}

func TestRegionStatesCheckNoOverlapDetectsOverlap(t *testing.T) {
	s := NewRegionStates()
	s.PutRegion(NewRegionInfo("t1", []byte(""), []byte("m"), 1))
	s.PutRegion(NewRegionInfo("t1", []byte("d"), nil, 1))
	assert.Error(t, s.CheckNoOverlap("t1"))
}

func TestRegionStatesCheckNoOverlapSingleRegionIsFine(t *testing.T) {
	s := NewRegionStates()
	s.PutRegion(NewRegionInfo("t1", []byte("a"), []byte("z"), 1))
	assert.NoError(t, s.CheckNoOverlap("t1"))
}

// TestRegionStatesScanRangeAcrossSplit exercises spec §8 scenario 3's
// property directly on the index a split leaves behind: a scan over
// the parent's original range returns the same coverage before and
// after the parent is replaced by its two daughters.
func TestRegionStatesScanRangeAcrossSplit(t *testing.T) {
	s := NewRegionStates()
	parent := NewRegionInfo("t1", []byte("a"), []byte("z"), 1000)
	s.PutRegion(parent)

	before := s.ScanRange("t1", []byte("a"), []byte("z"))
	require.Len(t, before, 1)
	assert.Same(t, parent, before[0])

	daughterA := NewRegionInfo("t1", []byte("a"), []byte("m"), 1001)
	daughterB := NewRegionInfo("t1", []byte("m"), []byte("z"), 1001)
	s.PutRegion(daughterA)
	s.PutRegion(daughterB)

	after := s.ScanRange("t1", []byte("a"), []byte("z"))
	if assert.Len(t, after, 2) {
		assert.Same(t, daughterA, after[0])
		assert.Same(t, daughterB, after[1])
	}
}
