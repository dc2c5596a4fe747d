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

// Package core holds the in-memory data model shared by the Master:
// regions, server names, region states, and plans (spec §3, §4.B).
package core

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// RegionInfo is the immutable descriptor of a region: a contiguous
// half-open key range [StartKey, EndKey) of a table. Two regions of
// the same table never overlap and their union covers the keyspace.
type RegionInfo struct {
	Table    string
	StartKey []byte
	EndKey   []byte
	// RegionID is the region's creation timestamp, strictly
	// monotonic per parent across splits.
	RegionID int64
}

// NewRegionInfo builds a RegionInfo, deriving nothing else; callers
// needing EncodedName call that method explicitly since it hashes.
func NewRegionInfo(table string, startKey, endKey []byte, regionID int64) *RegionInfo {
	return &RegionInfo{Table: table, StartKey: startKey, EndKey: endKey, RegionID: regionID}
}

// EncodedName derives the region's stable external name:
// hex(md5(table, startKey, regionID)). It is recomputed, never
// stored, so a RegionInfo copied by value still names the same region.
func (r *RegionInfo) EncodedName() string {
	h := md5.New()
	h.Write([]byte(r.Table))
	h.Write(r.StartKey)
	fmt.Fprintf(h, "%d", r.RegionID)
	return hex.EncodeToString(h.Sum(nil))
}

// RegionName is the catalog/coord-store key for this region:
// table,startKey,regionID.encodedName.
func (r *RegionInfo) RegionName() string {
	return fmt.Sprintf("%s,%s,%d.%s", r.Table, r.StartKey, r.RegionID, r.EncodedName())
}

// Clone returns a deep copy so callers can't mutate shared state
// through an aliased slice.
func (r *RegionInfo) Clone() *RegionInfo {
	c := &RegionInfo{Table: r.Table, RegionID: r.RegionID}
	c.StartKey = append([]byte(nil), r.StartKey...)
	c.EndKey = append([]byte(nil), r.EndKey...)
	return c
}

// Contains reports whether key falls in [StartKey, EndKey). An empty
// EndKey means "no upper bound" (the last region of the table).
func (r *RegionInfo) Contains(key []byte) bool {
	if bytes.Compare(key, r.StartKey) < 0 {
		return false
	}
	if len(r.EndKey) == 0 {
		return true
	}
	return bytes.Compare(key, r.EndKey) < 0
}

// less orders regions by (Table, StartKey), the order the B-tree
// index in RegionStates relies on to prove non-overlap.
func (r *RegionInfo) less(other *RegionInfo) bool {
	if r.Table != other.Table {
		return r.Table < other.Table
	}
	return bytes.Compare(r.StartKey, other.StartKey) < 0
}

// NextRegionID derives a daughter's RegionID from its parent's,
// applying the clock-skew correction from spec §3: if the wall clock
// has not advanced past the parent's RegionID (parent created in the
// future relative to "now", or now == parent exactly), the daughter
// gets parent.RegionID + 1 instead of now.
func NextRegionID(now, parentRegionID int64) int64 {
	if now <= parentRegionID {
		return parentRegionID + 1
	}
	return now
}
