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

	"github.com/coredb/regionmaster/server/balancer"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/metrics"
	"go.uber.org/zap"
)

// runBalancer fires on the dispatcher's balance timer (spec §4.D):
// it consults the balancer with the current placement snapshot and
// enacts every recommended move via Unassign, which re-enters Assign
// once the regions's CLOSED transition is observed (spec §4.F
// unassign step 3). The balancer itself never mutates state; this is
// the "AM decides whether to enact" half of §4.D.
func (m *Manager) runBalancer(ctx context.Context) {
	live, err := m.liveServers(ctx)
	if err != nil {
		m.log.Error("runBalancer: failed listing live servers", zap.Error(err))
		return
	}
	placement := m.states.Placement()
	moves := balancer.Balance(live, placement, m.localityHint)
	for _, mv := range moves {
		m.states.SetPlan(&core.RegionPlan{RegionName: mv.Region.RegionName(), Source: mv.Source, Destination: &mv.Destination})
		if err := m.Unassign(ctx, mv.Region, mv.Source); err != nil {
			metrics.BalancerMoves.WithLabelValues("failed").Inc()
			m.log.Error("balancer move: unassign failed", zap.String("region", mv.Region.RegionName()), zap.Error(err))
			continue
		}
		metrics.BalancerMoves.WithLabelValues("enacted").Inc()
	}
}

// scanTimeouts fires on the dispatcher's timeout timer (spec §4.F
// "Timeouts"): any in-transition region whose lastUpdateTimestamp is
// older than its state's deadline is forced back to OFFLINE and
// re-planned.
func (m *Manager) scanTimeouts(ctx context.Context) {
	now := time.Now()
	for _, n := range m.states.InTransition() {
		deadline := m.timeoutFor(n.State)
		if deadline <= 0 || now.Sub(n.LastUpdateTime) < deadline {
			continue
		}
		region, ok := m.states.Region(n.RegionName)
		if !ok || region == nil {
			m.log.Error("timeout fired for unknown region", zap.String("region", n.RegionName), zap.String("state", n.State.String()))
			continue
		}
		metrics.TimeoutCounter.WithLabelValues(n.State.String()).Inc()
		m.log.Warn("transition timeout, forcing OFFLINE and re-planning",
			zap.String("region", n.RegionName), zap.String("state", n.State.String()))
		m.forceOfflineAndReplan(ctx, region)
	}
}

func (m *Manager) timeoutFor(state core.RegionState) time.Duration {
	switch state {
	case core.StateOpening:
		return m.cfg.OpeningTimeout
	case core.StateClosing:
		return m.cfg.ClosingTimeout
	case core.StateOffline:
		return m.cfg.OfflineTimeout
	default:
		return 0
	}
}

// forceOfflineAndReplan forces region's coord-store node to OFFLINE
// and immediately issues a fresh Assign to the least-loaded live
// server (excluding the region's current owner if known), per the
// "force OFFLINE, re-plan" action named throughout spec §4.F's
// server-down and timeout tables.
func (m *Manager) forceOfflineAndReplan(ctx context.Context, region *core.RegionInfo) {
	live, err := m.liveServers(ctx)
	if err != nil {
		m.log.Error("forceOfflineAndReplan: failed listing live servers", zap.String("region", region.RegionName()), zap.Error(err))
		return
	}
	if len(live) == 0 {
		m.log.Warn("forceOfflineAndReplan: no live servers, region stays unassigned", zap.String("region", region.RegionName()))
		return
	}
	var exclude core.ServerName
	if n, ok := m.states.Transition(region.RegionName()); ok {
		exclude = n.Owner
	}
	dest, ok := pickDestination(live, m.states.Placement(), exclude)
	if !ok {
		dest = live[0]
	}
	if err := m.Assign(ctx, region, dest); err != nil {
		m.log.Error("forceOfflineAndReplan: assign failed", zap.String("region", region.RegionName()), zap.Error(err))
	}
}
