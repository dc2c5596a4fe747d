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

	"github.com/coredb/regionmaster/server/catalog"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/errs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EnableTable implements spec §4.F "Table enable/disable": enable
// fabricates an OFFLINE node per region of table and assigns each to
// the least-loaded live server. Not crash-durable by design in the
// baseline (spec §9 open question 1 — DESIGN.md records the decision
// not to persist plans in the coord-store).
func (m *Manager) EnableTable(ctx context.Context, cat catalog.Catalog, table string) error {
	if err := m.setTableState(ctx, table, core.TableEnabled); err != nil {
		return err
	}
	regions, err := cat.GetRegionsOfTable(table)
	if err != nil {
		return errors.Wrap(err, "enable table: reading regions")
	}
	live, err := m.liveServers(ctx)
	if err != nil {
		return errors.Wrap(err, "enable table: listing live servers")
	}
	if len(live) == 0 {
		return errors.New("enable table: no live servers")
	}
	placement := m.states.Placement()
	for _, region := range regions {
		m.states.PutRegion(region)
		dest, ok := pickDestination(live, placement, core.ServerName{})
		if !ok {
			dest = live[0]
		}
		if err := m.Assign(ctx, region, dest); err != nil {
			m.log.Error("enable table: assign failed", zap.String("region", region.RegionName()), zap.Error(err))
			continue
		}
		placement[dest] = append(placement[dest], region)
	}
	return nil
}

// DisableTable sets every region of table's plan to destination=⊥
// then unassigns each, per spec §4.F: "disable = set plans to
// destination=⊥ then unassign each".
func (m *Manager) DisableTable(ctx context.Context, cat catalog.Catalog, table string) error {
	if err := m.setTableState(ctx, table, core.TableDisabled); err != nil {
		return err
	}
	regions, err := cat.GetRegionsOfTable(table)
	if err != nil {
		return errors.Wrap(err, "disable table: reading regions")
	}
	for _, region := range regions {
		m.states.PutRegion(region)
		m.states.SetPlan(&core.RegionPlan{RegionName: region.RegionName(), Destination: nil})
		owner, ok, err := cat.Location(region)
		if err != nil {
			m.log.Error("disable table: reading location failed", zap.String("region", region.RegionName()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if err := m.Unassign(ctx, region, owner); err != nil {
			m.log.Error("disable table: unassign failed", zap.String("region", region.RegionName()), zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) setTableState(ctx context.Context, table string, state core.TableState) error {
	path := tablePath(table)
	data := []byte{byte(state)}
	node, err := m.coord.Get(ctx, path)
	if errs.IsNotFound(err) {
		return m.coord.Create(ctx, path, data, false)
	}
	if err != nil {
		return errors.Wrap(err, "read table state")
	}
	return m.coord.SetData(ctx, path, data, node.Version)
}
