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

package core

import (
	"bytes"

	"github.com/google/btree"
)

// regionItem adapts *RegionInfo to btree.Item, ordering by (Table,
// StartKey) the way pingcap-pd's server/core/kv_base.go memoryKV
// orders its btree items by key.
type regionItem struct {
	region *RegionInfo
}

func (it regionItem) Less(than btree.Item) bool {
	return it.region.less(than.(regionItem).region)
}

// RegionTree is an ordered index over a table's regions keyed by
// StartKey. It is the structure that lets the Master prove, in
// O(log n), that a table's regions partition the keyspace with no
// overlap (spec §3 invariant).
type RegionTree struct {
	tree *btree.BTree
}

// NewRegionTree returns an empty tree.
func NewRegionTree() *RegionTree {
	return &RegionTree{tree: btree.New(32)}
}

// Update inserts or replaces region, keyed by its current StartKey.
func (t *RegionTree) Update(region *RegionInfo) {
	t.tree.ReplaceOrInsert(regionItem{region})
}

// Remove deletes region from the index.
func (t *RegionTree) Remove(region *RegionInfo) {
	t.tree.Delete(regionItem{region})
}

// Len returns the number of regions indexed.
func (t *RegionTree) Len() int {
	return t.tree.Len()
}

// ScanRange returns every region of table whose range intersects
// [startKey, endKey). An empty endKey means "to the end of the
// table". Results are ordered by StartKey.
func (t *RegionTree) ScanRange(table string, startKey, endKey []byte) []*RegionInfo {
	var out []*RegionInfo
	pivot := &RegionInfo{Table: table, StartKey: startKey}
	// Start from the region at-or-before startKey: it may still
	// overlap [startKey, ...) if its own EndKey extends past startKey.
	var before *RegionInfo
	t.tree.DescendLessOrEqual(regionItem{pivot}, func(i btree.Item) bool {
		before = i.(regionItem).region
		return false
	})
	if before != nil && before.Table == table && (len(before.EndKey) == 0 || before.Contains(startKey)) {
		out = append(out, before)
	}
	t.tree.AscendGreaterOrEqual(regionItem{pivot}, func(i btree.Item) bool {
		r := i.(regionItem).region
		if r.Table != table {
			return false
		}
		if len(endKey) > 0 && bytes.Compare(r.StartKey, endKey) >= 0 {
			return false
		}
		if before == nil || r != before {
			out = append(out, r)
		}
		return true
	})
	return out
}
