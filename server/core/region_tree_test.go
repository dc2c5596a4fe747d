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

func TestRegionTreeScanRange(t *testing.T) {
	tree := NewRegionTree()
	a := NewRegionInfo("t1", []byte(""), []byte("d"), 1)
	b := NewRegionInfo("t1", []byte("d"), []byte("m"), 1)
	c := NewRegionInfo("t1", []byte("m"), nil, 1)
	tree.Update(a)
	tree.Update(b)
	tree.Update(c)

	assert.Equal(t, 3, tree.Len())

	got := tree.ScanRange("t1", []byte("e"), []byte("z"))
	if assert.Len(t, got, 2) {
		assert.Same(t, b, got[0])
		assert.Same(t, c, got[1])
	}

	tree.Remove(b)
	assert.Equal(t, 2, tree.Len())
	got = tree.ScanRange("t1", []byte(""), nil)
	assert.Len(t, got, 2)
}
