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

package balancer

import (
	"fmt"
	"testing"

	"github.com/coredb/regionmaster/server/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regionsNamed(n int, prefix string) []*core.RegionInfo {
	out := make([]*core.RegionInfo, n)
	for i := 0; i < n; i++ {
		out[i] = core.NewRegionInfo("t1", []byte(fmt.Sprintf("%s-%03d", prefix, i)), nil, int64(i+1))
	}
	return out
}

func TestBalanceSingleServerIsNoop(t *testing.T) {
	s1 := core.NewServerName("h1", 1, 1)
	placement := map[core.ServerName][]*core.RegionInfo{s1: regionsNamed(9, "r")}
	moves := Balance([]core.ServerName{s1}, placement, nil)
	assert.Empty(t, moves)
}

func TestBalanceEvensOutOverloadedServer(t *testing.T) {
	s1 := core.NewServerName("h1", 1, 1)
	s2 := core.NewServerName("h2", 1, 1)
	s3 := core.NewServerName("h3", 1, 1)
	placement := map[core.ServerName][]*core.RegionInfo{
		s1: regionsNamed(9, "a"),
		s2: {},
		s3: {},
	}
	moves := Balance([]core.ServerName{s1, s2, s3}, placement, nil)
	require.NotEmpty(t, moves)

	finalCount := map[core.ServerName]int{s1: len(placement[s1]), s2: 0, s3: 0}
	for _, m := range moves {
		assert.Equal(t, s1, m.Source)
		finalCount[m.Source]--
		finalCount[m.Destination]++
	}
	for _, s := range []core.ServerName{s1, s2, s3} {
		assert.InDelta(t, 3, finalCount[s], 1, "server %v should end near the mean", s)
	}
}

func TestBalancePrefersLocality(t *testing.T) {
	s1 := core.NewServerName("h1", 1, 1)
	s2 := core.NewServerName("h2", 1, 1)
	local := core.NewRegionInfo("t1", []byte("local"), nil, 1)
	other := core.NewRegionInfo("t1", []byte("other"), nil, 1)
	placement := map[core.ServerName][]*core.RegionInfo{
		s1: {local, other},
		s2: {},
	}
	hint := func(r *core.RegionInfo, dest core.ServerName) bool {
		return dest == s2 && r == local
	}
	moves := Balance([]core.ServerName{s1, s2}, placement, hint)
	require.Len(t, moves, 1)
	assert.Same(t, local, moves[0].Region)
}
