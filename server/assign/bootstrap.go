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
	"math/rand"
	"time"

	"github.com/coredb/regionmaster/server/balancer"
	"github.com/coredb/regionmaster/server/catalog"
	"github.com/coredb/regionmaster/server/core"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	rootRegion = core.NewRegionInfo(catalog.RootTableName, nil, nil, 1)
	metaRegion = core.NewRegionInfo(catalog.MetaTableName, nil, nil, 1)
)

// Bootstrap drives cluster start (spec §4.F "Initial assignment"): it
// detects whether this is a fresh cluster, waits for the minimum
// server quorum, clears stale unassigned nodes on a fresh start,
// assigns root and meta via two-server random choice, and then
// computes and enacts a full bulk plan over every user region the
// catalog already knows about. Start must have been called first:
// awaitOpened only returns once the dispatcher has handled root's and
// meta's OPENED transitions. Bootstrap's own coord-store/catalog
// calls are made directly, outside the dispatcher's serialization.
func (m *Manager) Bootstrap(ctx context.Context, cat catalog.Catalog) error {
	fresh, err := m.isFreshStart(ctx)
	if err != nil {
		return errors.Wrap(err, "bootstrap: fresh-start detection")
	}

	live, err := m.awaitQuorum(ctx)
	if err != nil {
		return errors.Wrap(err, "bootstrap: awaiting server quorum")
	}

	if fresh {
		m.log.Info("fresh cluster start detected, clearing stale unassigned nodes")
		if err := m.clearUnassigned(ctx); err != nil {
			return errors.Wrap(err, "bootstrap: clearing unassigned nodes")
		}
	}

	if err := m.assignSystemTable(ctx, rootRegion, live); err != nil {
		return errors.Wrap(err, "bootstrap: assigning root")
	}
	if err := m.assignSystemTable(ctx, metaRegion, live); err != nil {
		return errors.Wrap(err, "bootstrap: assigning meta")
	}

	userRegions, err := cat.GetAllUserRegions()
	if err != nil {
		return errors.Wrap(err, "bootstrap: reading user regions from catalog")
	}
	tables := make(map[string]bool)
	for _, r := range userRegions {
		m.states.PutRegion(r)
		tables[r.Table] = true
	}
	for table := range tables {
		if err := m.states.CheckNoOverlap(table); err != nil {
			return errors.Wrap(err, "bootstrap: keyspace invariant")
		}
	}
	placement := m.states.Placement()
	moves := balancer.Balance(live, placement, m.localityHint)
	plans := make([]core.RegionPlan, 0, len(userRegions))
	planned := make(map[string]bool, len(moves))
	for _, mv := range moves {
		dest := mv.Destination
		plans = append(plans, core.RegionPlan{RegionName: mv.Region.RegionName(), Destination: &dest})
		planned[mv.Region.RegionName()] = true
	}
	// Regions the balancer left untouched (already on a live server,
	// or every server already has the same count) still need an
	// initial OFFLINE+OPEN on a truly fresh cluster, where no region
	// is open anywhere yet.
	if fresh {
		for i, r := range userRegions {
			if planned[r.RegionName()] {
				continue
			}
			dest := live[i%len(live)]
			plans = append(plans, core.RegionPlan{RegionName: r.RegionName(), Destination: &dest})
		}
	}
	m.BulkAssign(ctx, plans)
	return nil
}

// isFreshStart reports a fresh cluster when /unassigned has no
// children (spec §4.F step 1). It does not count /rs nodes and does
// not consult the catalog.
func (m *Manager) isFreshStart(ctx context.Context) (bool, error) {
	unassigned, err := m.coord.List(ctx, unassignedDir)
	if err != nil {
		return false, err
	}
	return len(unassigned) == 0, nil
}

// awaitQuorum blocks until minServersToStart live servers are
// registered, or FreshStartDeadline has elapsed since the first
// server appeared (spec §4.F step 2).
func (m *Manager) awaitQuorum(ctx context.Context) ([]core.ServerName, error) {
	var deadline time.Time
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		live, err := m.liveServers(ctx)
		if err != nil {
			return nil, err
		}
		if len(live) >= m.cfg.MinServersToStart {
			return live, nil
		}
		if len(live) > 0 && deadline.IsZero() {
			deadline = time.Now().Add(m.cfg.FreshStartDeadline)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			m.log.Warn("awaitQuorum: proceeding past deadline short of minServersToStart",
				zap.Int("live", len(live)), zap.Int("want", m.cfg.MinServersToStart))
			return live, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// clearUnassigned deletes every child of /unassigned, permitted only
// at fresh start (spec §4.F step 3).
func (m *Manager) clearUnassigned(ctx context.Context) error {
	children, err := m.coord.List(ctx, unassignedDir)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := m.coord.Delete(ctx, unassignedPath(child), -1); err != nil {
			return errors.Wrapf(err, "deleting stale unassigned node %q", child)
		}
	}
	return nil
}

// assignSystemTable assigns region to one of the first two live
// servers chosen at random (spec §4.F step 4: "two-server random
// choice"), falling back to the sole live server when only one
// exists, and waits for the resulting OPENED transition.
func (m *Manager) assignSystemTable(ctx context.Context, region *core.RegionInfo, live []core.ServerName) error {
	if len(live) == 0 {
		return errors.New("assignSystemTable: no live servers")
	}
	candidates := live
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}
	dest := candidates[rand.Intn(len(candidates))]
	m.states.PutRegion(region)
	if err := m.Assign(ctx, region, dest); err != nil {
		return err
	}
	return m.awaitOpened(ctx, region)
}

// awaitOpened polls RegionStates until region has no recorded
// transition (meaning onOpened has run and cleared it) or the context
// is cancelled.
func (m *Manager) awaitOpened(ctx context.Context, region *core.RegionInfo) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, inTransition := m.states.Transition(region.RegionName()); !inTransition {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
