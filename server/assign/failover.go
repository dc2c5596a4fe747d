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

	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/errs"
	"go.uber.org/zap"
)

// HandleServerDown implements the dead-RegionServer action table (spec
// §4.F "RegionServer failure"): every region last believed open on
// server, and every in-transition region naming server as source or
// destination, is forced back to OFFLINE and re-planned according to
// its observed state. Before re-planning anything it calls
// m.wal.Recover for server and waits for it to return; if Recover
// returns an error, the error is logged and reassignment proceeds
// anyway.
func (m *Manager) HandleServerDown(ctx context.Context, server core.ServerName) {
	openRegions := m.states.RegionsOnServer(server)
	plans := m.states.PlansInvolving(server)
	m.states.RemoveServer(server)

	if err := m.wal.Recover(ctx, server); err != nil {
		m.log.Error("WAL recovery failed for dead server, proceeding with reassignment anyway",
			zap.Stringer("server", server), zap.Error(err))
	}

	for _, region := range openRegions {
		m.forceOfflineAndReplan(ctx, region)
	}

	for _, plan := range plans {
		region, ok := m.states.Region(plan.RegionName)
		if !ok {
			continue
		}
		node, ok := m.states.Transition(plan.RegionName)
		if !ok {
			continue
		}
		isSource := plan.Source == server
		isDestination := plan.Destination != nil && *plan.Destination == server

		switch node.State {
		case core.StateOffline:
			m.forceOfflineAndReplan(ctx, region)
		case core.StateClosing:
			if isSource || isDestination {
				m.forceOfflineAndReplan(ctx, region)
			}
		case core.StateClosed:
			if isDestination {
				m.forceOfflineAndReplan(ctx, region)
			}
			// isSource: no-op, the normal CLOSED handler (onClosed)
			// already re-drives this region.
		case core.StateOpening, core.StateOpened:
			if isDestination {
				m.forceOfflineAndReplan(ctx, region)
			}
			// isSource: no-op, nothing to unwind.
		}
	}
}

// Failover implements master-takeover recovery (spec §4.F "Master
// failover"): before this Master enables normal event handling, it
// must read every in-transition region and act per the table, since
// it missed whatever watch events the prior Master was mid-processing
// when it lost /master.
func (m *Manager) Failover(ctx context.Context) error {
	children, err := m.coord.List(ctx, unassignedDir)
	if err != nil {
		return err
	}
	for _, encodedName := range children {
		path := unassignedPath(encodedName)
		node, err := m.coord.Get(ctx, path)
		if errs.IsNotFound(err) {
			continue
		}
		if err != nil {
			m.log.Error("failover: failed reading transition node", zap.String("path", path), zap.Error(err))
			continue
		}
		state, owner, ts, err := decodeNode(node.Data)
		if err != nil {
			m.log.Error("failover: failed decoding transition node", zap.String("path", path), zap.Error(err))
			continue
		}
		region, ok := m.states.RegionByEncodedName(encodedName)

		n := &core.TransitionNode{State: state, Owner: owner, Version: node.Version, StartTimestamp: ts, LastUpdateTime: ts}
		if ok {
			n.RegionName = region.RegionName()
		}
		m.states.UpdateTransition(n)

		switch state {
		case core.StateOffline:
			if ok {
				m.forceOfflineAndReplan(ctx, region)
			}
		case core.StateClosing:
			// Let the timeout handler finish the close or force it.
		case core.StateClosed:
			if ok {
				m.onClosed(ctx, region)
			}
		case core.StateOpening:
			// Let the timeout handler finish the open or force it.
		case core.StateOpened:
			if ok {
				m.onOpened(ctx, region, owner)
			}
		}

		if err := m.watchNext(ctx, encodedName); err != nil {
			m.log.Error("failover: failed registering watch", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}
