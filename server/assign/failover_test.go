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

package assign

import (
	"context"
	"testing"
	"time"

	"github.com/coredb/regionmaster/server/core"
	"github.com/stretchr/testify/require"
)

func TestHandleServerDownReassignsOpenRegions(t *testing.T) {
	m, coord, cat, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	dead := core.NewServerName("rs-dead", 1000, 1)
	alive := core.NewServerName("rs-alive", 1000, 2)
	region := core.NewRegionInfo("t1", []byte("a"), []byte("m"), 100)

	require.NoError(t, coord.Create(ctx, serverPath(alive.String()), nil, true))
	require.NoError(t, m.Assign(ctx, region, dead))
	waitFor(t, time.Second, func() bool {
		owner, ok, _ := cat.Location(region)
		return ok && owner == dead
	})

	m.HandleServerDown(ctx, dead)

	waitFor(t, time.Second, func() bool {
		owner, ok, _ := cat.Location(region)
		return ok && owner == alive
	})
	require.Empty(t, m.states.RegionsOnServer(dead))
}

func TestFailoverResumesOpenedRegion(t *testing.T) {
	m, coord, cat, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	region := core.NewRegionInfo("t1", []byte("a"), []byte("m"), 100)
	server := core.NewServerName("rs1", 1000, 1)
	m.states.PutRegion(region)

	require.NoError(t, coord.Create(ctx, unassignedPath(region.EncodedName()), encodeNode(core.StateOpened, server, time.Now()), false))

	require.NoError(t, m.Failover(ctx))

	owner, ok, err := cat.Location(region)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, server, owner)

	exists, err := coord.Exists(ctx, unassignedPath(region.EncodedName()))
	require.NoError(t, err)
	require.False(t, exists)
}
