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

	"github.com/coredb/regionmaster/server/assign/assigntest"
	"github.com/coredb/regionmaster/server/catalog"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/coordstore"
	"github.com/coredb/regionmaster/server/kv"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, coordstore.Client, catalog.Catalog, *assigntest.FakeRPC) {
	t.Helper()
	store := coordstore.NewMemStore()
	coord := store.Session()
	cat := catalog.New(kv.NewMemoryBase())
	rpc := assigntest.New(coord, cat,
		func(s core.RegionState, o core.ServerName) []byte { return encodeNode(s, o, time.Now()) },
		func(data []byte) (core.RegionState, core.ServerName, error) {
			s, o, _, err := decodeNode(data)
			return s, o, err
		})
	cfg := DefaultConfig()
	cfg.OfflineTimeout = 50 * time.Millisecond
	cfg.OpeningTimeout = 50 * time.Millisecond
	cfg.ClosingTimeout = 50 * time.Millisecond
	cfg.Dispatcher.BalanceInterval = 0
	cfg.Dispatcher.TimeoutInterval = 20 * time.Millisecond
	m := New(cfg, coord, cat, rpc, assigntest.NoopWAL{})
	return m, coord, cat, rpc
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition never became true within %s", timeout)
}

func TestAssignReachesOpenedAndUpdatesCatalog(t *testing.T) {
	m, _, cat, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	region := core.NewRegionInfo("t1", []byte("a"), []byte("m"), 100)
	server := core.NewServerName("rs1", 1000, 1)

	require.NoError(t, m.Assign(ctx, region, server))

	waitFor(t, time.Second, func() bool {
		_, inTransition := m.states.Transition(region.RegionName())
		return !inTransition
	})

	owner, ok, err := cat.Location(region)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, server, owner)

	placed := m.states.RegionsOnServer(server)
	require.Len(t, placed, 1)
	require.Equal(t, region.RegionName(), placed[0].RegionName())
}

func TestUnassignThenReassignOnBalanceMove(t *testing.T) {
	m, _, cat, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	region := core.NewRegionInfo("t1", []byte("a"), []byte("m"), 100)
	src := core.NewServerName("rs1", 1000, 1)
	dst := core.NewServerName("rs2", 1000, 2)

	require.NoError(t, m.Assign(ctx, region, src))
	waitFor(t, time.Second, func() bool {
		owner, ok, _ := cat.Location(region)
		return ok && owner == src
	})

	m.states.SetPlan(&core.RegionPlan{RegionName: region.RegionName(), Source: src, Destination: &dst})
	require.NoError(t, m.Unassign(ctx, region, src))

	waitFor(t, time.Second, func() bool {
		owner, ok, _ := cat.Location(region)
		return ok && owner == dst
	})
}

func TestTimeoutForcesOfflineAndReassigns(t *testing.T) {
	m, coord, cat, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	region := core.NewRegionInfo("t1", []byte("a"), []byte("m"), 100)
	server := core.NewServerName("rs1", 1000, 1)
	m.states.PutRegion(region)

	// Register the server as live so the timeout re-drive has
	// somewhere to send the region.
	require.NoError(t, coord.Create(ctx, serverPath(server.String()), nil, true))

	// Force an OFFLINE node directly (bypassing the fake RPC) so it
	// never progresses to OPENING, simulating an unreachable server.
	_, err := m.forceState(ctx, region, core.StateOffline, server)
	require.NoError(t, err)

	m.Start(ctx)
	defer m.Stop()

	waitFor(t, 2*time.Second, func() bool {
		owner, ok, _ := cat.Location(region)
		return ok && owner == server
	})
}
