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

func TestEncodedNameStable(t *testing.T) {
	r := NewRegionInfo("t1", []byte("a"), []byte("b"), 100)
	name1 := r.EncodedName()
	name2 := r.Clone().EncodedName()
	assert.Equal(t, name1, name2)
	assert.NotEmpty(t, name1)
}

func TestContains(t *testing.T) {
	r := NewRegionInfo("t1", []byte("b"), []byte("d"), 1)
	assert.False(t, r.Contains([]byte("a")))
	assert.True(t, r.Contains([]byte("b")))
	assert.True(t, r.Contains([]byte("c")))
	assert.False(t, r.Contains([]byte("d")))

	last := NewRegionInfo("t1", []byte("d"), nil, 1)
	assert.True(t, last.Contains([]byte("zzzzzz")))
}

func TestNextRegionIDClockSkew(t *testing.T) {
	assert.Equal(t, int64(101), NextRegionID(50, 100))
	assert.Equal(t, int64(101), NextRegionID(100, 100))
	assert.Equal(t, int64(150), NextRegionID(150, 100))
}

func TestServerNameRoundTrip(t *testing.T) {
	s := NewServerName("10.0.0.1", 6020, 1690000000)
	parsed, err := ParseServerName(s.String())
	require.NoError(t, err)
	assert.Equal(t, s, parsed)
}

func TestParseServerNameMalformed(t *testing.T) {
	_, err := ParseServerName("not-a-server-name")
	assert.Error(t, err)
}
