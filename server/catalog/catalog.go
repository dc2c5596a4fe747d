// Copyright 2017 The regionmaster Authors.
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

// Package catalog implements the logical operations spec §4.C names
// against the two system tables (-ROOT-, .META.) that record
// committed region->server placement. Physical encoding is
// deliberately out of scope (spec §1); rows are JSON-encoded onto the
// kv.Base abstraction pingcap-pd's server/core/storage.go layers over
// clientv3/memoryKV.
package catalog

import (
	"encoding/json"
	"path"
	"sort"
	"strings"

	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/errs"
	"github.com/coredb/regionmaster/server/kv"
	"github.com/pkg/errors"
)

// Bootstrap ordering constants (spec §4.C): root is opened first,
// meta second, user regions third.
const (
	RootTableName = "-ROOT-"
	MetaTableName = ".META."
)

// row is the catalog's physical record for one region. Split/Offline
// track the bookkeeping the split-commit step (spec §4.G PONR) needs
// on the parent row.
type row struct {
	RegionName string
	Table      string
	StartKey   []byte
	EndKey     []byte
	RegionID   int64
	Server     string // empty means "unassigned"
	Offline    bool
	Split      bool
}

// Catalog is the logical interface the Assignment Manager and Split
// Transaction issue reads/writes against.
type Catalog interface {
	// GetRegionsOfTable returns every region of table, ordered by
	// StartKey, except rows marked offline (split parents).
	GetRegionsOfTable(table string) ([]*core.RegionInfo, error)

	// UpdateRegionLocation records that region is now open at server.
	// Called strictly after the Master observes OPENED (spec §4.F).
	UpdateRegionLocation(region *core.RegionInfo, server core.ServerName) error

	// Location returns the server currently recorded for region, or
	// ok=false if the region has no catalog row yet.
	Location(region *core.RegionInfo) (server core.ServerName, ok bool, err error)

	// OfflineParent marks parent's row offline+split and inserts
	// daughterA and daughterB rows (spec §4.G step 7, the PONR). These
	// are three separate writes, parent row first, and are not atomic:
	// a failure partway leaves the earlier writes in place. Neither
	// daughter row names a server until each completes
	// postOpenDeployTasks.
	OfflineParent(parent, daughterA, daughterB *core.RegionInfo) error

	// GetAllUserRegions returns every region of every table except
	// the two system tables and rows marked offline (split parents),
	// ordered by (table, StartKey).
	GetAllUserRegions() ([]*core.RegionInfo, error)
}

type catalog struct {
	base kv.Base
}

// New wraps base as a Catalog.
func New(base kv.Base) Catalog {
	return &catalog{base: base}
}

func rowKey(table, regionName string) string {
	return path.Join(MetaTableName, table, regionName)
}

func (c *catalog) GetRegionsOfTable(table string) ([]*core.RegionInfo, error) {
	prefix := path.Join(MetaTableName, table) + "/"
	keys, values, err := c.base.LoadRange(prefix, prefix+"\xff", 0)
	if err != nil {
		return nil, errors.Wrap(errs.ErrCatalogUnavailable, err.Error())
	}
	regions := make([]*core.RegionInfo, 0, len(keys))
	for _, v := range values {
		var r row
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, errors.Wrap(err, "decode catalog row")
		}
		if r.Offline {
			continue
		}
		regions = append(regions, core.NewRegionInfo(r.Table, r.StartKey, r.EndKey, r.RegionID))
	}
	sort.Slice(regions, func(i, j int) bool {
		return strings.Compare(string(regions[i].StartKey), string(regions[j].StartKey)) < 0
	})
	return regions, nil
}

func (c *catalog) UpdateRegionLocation(region *core.RegionInfo, server core.ServerName) error {
	r := row{
		RegionName: region.RegionName(),
		Table:      region.Table,
		StartKey:   region.StartKey,
		EndKey:     region.EndKey,
		RegionID:   region.RegionID,
		Server:     server.String(),
	}
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode catalog row")
	}
	if err := c.base.Save(rowKey(region.Table, r.RegionName), string(data)); err != nil {
		return errors.Wrap(errs.ErrCatalogUnavailable, err.Error())
	}
	return nil
}

func (c *catalog) Location(region *core.RegionInfo) (core.ServerName, bool, error) {
	value, ok, err := c.base.Load(rowKey(region.Table, region.RegionName()))
	if err != nil {
		return core.ServerName{}, false, errors.Wrap(errs.ErrCatalogUnavailable, err.Error())
	}
	if !ok {
		return core.ServerName{}, false, nil
	}
	var r row
	if err := json.Unmarshal([]byte(value), &r); err != nil {
		return core.ServerName{}, false, errors.Wrap(err, "decode catalog row")
	}
	if r.Server == "" {
		return core.ServerName{}, false, nil
	}
	sn, err := core.ParseServerName(r.Server)
	if err != nil {
		return core.ServerName{}, false, err
	}
	return sn, true, nil
}

func (c *catalog) OfflineParent(parent, daughterA, daughterB *core.RegionInfo) error {
	parentRow := row{
		RegionName: parent.RegionName(),
		Table:      parent.Table,
		StartKey:   parent.StartKey,
		EndKey:     parent.EndKey,
		RegionID:   parent.RegionID,
		Offline:    true,
		Split:      true,
	}
	daughterRows := []row{
		{RegionName: daughterA.RegionName(), Table: daughterA.Table, StartKey: daughterA.StartKey, EndKey: daughterA.EndKey, RegionID: daughterA.RegionID},
		{RegionName: daughterB.RegionName(), Table: daughterB.Table, StartKey: daughterB.StartKey, EndKey: daughterB.EndKey, RegionID: daughterB.RegionID},
	}
	// No multi-key transaction primitive is assumed of kv.Base (spec
	// §1 places the catalog's physical schema out of scope); the
	// Split Transaction already treats this whole step as the
	// PONR — if any of these three writes fails, the caller aborts
	// the process rather than trying to roll back.
	data, err := json.Marshal(parentRow)
	if err != nil {
		return errors.Wrap(err, "encode parent catalog row")
	}
	if err := c.base.Save(rowKey(parent.Table, parentRow.RegionName), string(data)); err != nil {
		return errors.Wrap(errs.ErrCatalogUnavailable, err.Error())
	}
	for _, dr := range daughterRows {
		data, err := json.Marshal(dr)
		if err != nil {
			return errors.Wrap(err, "encode daughter catalog row")
		}
		if err := c.base.Save(rowKey(dr.Table, dr.RegionName), string(data)); err != nil {
			return errors.Wrap(errs.ErrCatalogUnavailable, err.Error())
		}
	}
	return nil
}

func (c *catalog) GetAllUserRegions() ([]*core.RegionInfo, error) {
	_, values, err := c.base.LoadRange(MetaTableName+"/", MetaTableName+"0", 0)
	if err != nil {
		return nil, errors.Wrap(errs.ErrCatalogUnavailable, err.Error())
	}
	regions := make([]*core.RegionInfo, 0, len(values))
	for _, v := range values {
		var r row
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, errors.Wrap(err, "decode catalog row")
		}
		if r.Offline || r.Table == RootTableName || r.Table == MetaTableName {
			continue
		}
		regions = append(regions, core.NewRegionInfo(r.Table, r.StartKey, r.EndKey, r.RegionID))
	}
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Table != regions[j].Table {
			return regions[i].Table < regions[j].Table
		}
		return strings.Compare(string(regions[i].StartKey), string(regions[j].StartKey)) < 0
	})
	return regions, nil
}
