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
	"time"

	"github.com/coredb/regionmaster/server/coordstore"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/dispatcher"
	"github.com/coredb/regionmaster/server/errs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// forceState writes state/owner to region's coord-store node
// regardless of the node's prior state (spec §4.F step 1: "force
// semantics: if node exists, CAS regardless of prior state — the
// master has unilateral authority to drive to OFFLINE"). It retries
// once on a concurrent BadVersion race, since only the Master calls
// this.
func (m *Manager) forceState(ctx context.Context, region *core.RegionInfo, state core.RegionState, owner core.ServerName) (*core.TransitionNode, error) {
	path := unassignedPath(region.EncodedName())
	data := encodeNode(state, owner, time.Now())

	for attempt := 0; attempt < 2; attempt++ {
		node, err := m.coord.Get(ctx, path)
		switch {
		case errs.IsNotFound(err):
			if cerr := m.coord.Create(ctx, path, data, false); cerr != nil {
				if errors.Is(cerr, errs.ErrNodeExists) {
					continue // lost a race with another creator; retry as an update
				}
				return nil, errors.Wrap(cerr, "create transition node")
			}
			n := &core.TransitionNode{RegionName: region.RegionName(), State: state, Owner: owner, Version: 0, StartTimestamp: time.Now(), LastUpdateTime: time.Now()}
			m.states.UpdateTransition(n)
			return n, nil
		case err != nil:
			return nil, errors.Wrap(err, "read transition node")
		default:
			if serr := m.coord.SetData(ctx, path, data, node.Version); serr != nil {
				if errs.IsBadVersion(serr) {
					continue
				}
				return nil, errors.Wrap(serr, "force transition node")
			}
			n := &core.TransitionNode{RegionName: region.RegionName(), State: state, Owner: owner, Version: node.Version + 1, StartTimestamp: time.Now(), LastUpdateTime: time.Now()}
			m.states.UpdateTransition(n)
			return n, nil
		}
	}
	return nil, errors.New("forceState: exhausted retries racing another writer")
}

// Assign drives region to destination (spec §4.F steady-state
// assign). It is asynchronous: it returns once the OFFLINE node is
// written and the OPEN RPC sent; the OPENED transition is observed
// later via HandleTransition.
func (m *Manager) Assign(ctx context.Context, region *core.RegionInfo, destination core.ServerName) error {
	m.states.PutRegion(region)
	if _, err := m.forceState(ctx, region, core.StateOffline, destination); err != nil {
		return errors.Wrap(err, "assign: force OFFLINE")
	}
	dest := destination
	m.states.SetPlan(&core.RegionPlan{RegionName: region.RegionName(), Destination: &dest})

	if err := m.watchNext(ctx, region.EncodedName()); err != nil {
		m.log.Error("assign: failed registering watch", zap.String("region", region.RegionName()), zap.Error(err))
	}

	if err := m.rpc.OpenRegion(ctx, destination, region); err != nil {
		// Non-deliverable RPC: the OFFLINE node's timeout will fire
		// and re-drive assignment (spec §4.F step 3).
		m.log.Warn("open RPC not delivered, relying on OFFLINE timeout to re-drive",
			zap.String("region", region.RegionName()), zap.Stringer("destination", destination), zap.Error(err))
	}
	return nil
}

// Unassign drives region away from its current owner (spec §4.F
// unassign), triggered by a balance move or a table disable.
func (m *Manager) Unassign(ctx context.Context, region *core.RegionInfo, source core.ServerName) error {
	m.states.PutRegion(region)
	if err := m.watchNext(ctx, region.EncodedName()); err != nil {
		m.log.Error("unassign: failed registering watch", zap.String("region", region.RegionName()), zap.Error(err))
	}
	if err := m.rpc.CloseRegion(ctx, source, region); err != nil {
		return errors.Wrap(errs.ErrRegionServerUnreachable, err.Error())
	}
	return nil
}

// onTransitionEvent is the Dispatcher's handler for a coord-store
// watch delivery on /unassigned/<regionName>. It re-reads the node
// (never trusting a cached value past a watch event, per spec §9) and
// applies the observed-state handling from spec §4.F.
func (m *Manager) onTransitionEvent(ctx context.Context, encodedName string) {
	nodePath := unassignedPath(encodedName)
	node, err := m.coord.Get(ctx, nodePath)
	if errs.IsNotFound(err) {
		// Node deleted: either assign completed (OPENED handler
		// already removed it) or unassign-for-disable completed.
		return
	}
	if err != nil {
		m.log.Error("failed reading transition node", zap.String("path", nodePath), zap.Error(err))
		return
	}
	state, owner, ts, err := decodeNode(node.Data)
	if err != nil {
		m.log.Error("failed decoding transition node", zap.String("path", nodePath), zap.Error(err))
		return
	}
	region, _ := m.states.RegionByEncodedName(encodedName)
	regionName := ""
	if region != nil {
		regionName = region.RegionName()
	}
	n := &core.TransitionNode{RegionName: regionName, State: state, Owner: owner, Version: node.Version, LastUpdateTime: time.Now()}
	if existing, ok := m.states.Transition(regionName); ok {
		n.StartTimestamp = existing.StartTimestamp
	} else {
		n.StartTimestamp = ts
	}
	m.states.UpdateTransition(n)
	m.recordTransition(regionName, state)

	switch state {
	case core.StateOpening:
		// Observed, no action (spec §4.F step 4).
	case core.StateOpened:
		m.onOpened(ctx, region, owner)
	case core.StateClosing:
		// Observed, no action (spec §4.F unassign step 2).
	case core.StateClosed:
		m.onClosed(ctx, region)
	case core.StateOffline:
		// The Master itself forces this state; no reaction needed
		// beyond the bookkeeping already applied above.
	}

	if err := m.watchNext(ctx, encodedName); err != nil {
		m.log.Error("failed re-registering watch", zap.String("path", nodePath), zap.Error(err))
	}
}

func (m *Manager) onOpened(ctx context.Context, region *core.RegionInfo, owner core.ServerName) {
	if region == nil {
		return
	}
	if err := m.cat.UpdateRegionLocation(region, owner); err != nil {
		m.log.Error("failed updating catalog after OPENED", zap.String("region", region.RegionName()), zap.Error(err))
		return
	}
	path := unassignedPath(region.EncodedName())
	if err := m.coord.Delete(ctx, path, -1); err != nil && !errs.IsNotFound(err) {
		m.log.Error("failed deleting transition node after OPENED", zap.String("region", region.RegionName()), zap.Error(err))
		return
	}
	m.states.ClearTransition(region.RegionName())
	m.states.ClearPlan(region.RegionName())
	m.states.MarkOpen(owner, region)
}

func (m *Manager) onClosed(ctx context.Context, region *core.RegionInfo) {
	if region == nil {
		return
	}
	m.states.MarkClosed(region)
	plan, _ := m.states.Plan(region.RegionName())
	path := unassignedPath(region.EncodedName())
	if plan != nil && plan.IsDisable() {
		if err := m.coord.Delete(ctx, path, -1); err != nil && !errs.IsNotFound(err) {
			m.log.Error("failed deleting transition node for disabled region", zap.String("region", region.RegionName()), zap.Error(err))
			return
		}
		m.states.ClearTransition(region.RegionName())
		m.states.ClearPlan(region.RegionName())
		return
	}
	if plan == nil {
		return
	}
	if err := m.Assign(ctx, region, *plan.Destination); err != nil {
		m.log.Error("failed re-assigning after CLOSED", zap.String("region", region.RegionName()), zap.Error(err))
	}
}

// watchNext re-registers the one-shot watch, then submits a dispatch
// event once it fires. Runs in its own goroutine so the dispatcher's
// worker returns immediately (a watch may never fire, e.g. once a
// region has settled to a steady state with its node deleted for
// good).
func (m *Manager) watchNext(ctx context.Context, encodedName string) error {
	ch, err := m.coord.WatchData(ctx, unassignedPath(encodedName))
	if err != nil {
		return err
	}
	go func() {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type == coordstore.EventDeleted {
				return
			}
			m.disp.Submit(regionTransitionEvent(encodedName))
		}
	}()
	return nil
}

// regionTransitionEvent builds the dispatch event a fired
// /unassigned/<encodedName> watch hands to the Dispatcher, which
// routes it back to onTransitionEvent under that region's
// mutual-exclusion slot (spec §5).
func regionTransitionEvent(encodedName string) dispatcher.Event {
	return dispatcher.Event{Kind: dispatcher.EventRegionTransition, Region: encodedName}
}
