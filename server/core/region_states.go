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
	"sync"

	"github.com/pkg/errors"
)

// RegionStates is the Master's single-locked in-memory view of
// assignment (spec §4.B): which regions are mid-transition, what plan
// each has, and which server currently believes it has each region
// open. Every mutation goes through this type so the invariant
// "regionsInTransition matches the live coord-store state nodes"
// holds after every event the dispatcher hands to the Assignment
// Manager. Registered regions are also indexed in a RegionTree so the
// "no overlap / full keyspace coverage" invariant (spec §3, asserted
// continuously per spec §8) and the split scan of spec §8 scenario 3
// (`[startKey, endKey)` returns the same rows before and after a
// split) can both be answered in O(log n) instead of a linear scan of
// regionsByName.
type RegionStates struct {
	mu sync.RWMutex

	regionsInTransition  map[string]*TransitionNode
	plans                map[string]*RegionPlan
	serverRegions        map[ServerName]map[string]*RegionInfo
	regionsByName        map[string]*RegionInfo
	regionsByEncodedName map[string]*RegionInfo
	tree                 *RegionTree
}

// NewRegionStates returns an empty store.
func NewRegionStates() *RegionStates {
	return &RegionStates{
		regionsInTransition:  make(map[string]*TransitionNode),
		plans:                make(map[string]*RegionPlan),
		serverRegions:        make(map[ServerName]map[string]*RegionInfo),
		regionsByName:        make(map[string]*RegionInfo),
		regionsByEncodedName: make(map[string]*RegionInfo),
		tree:                 NewRegionTree(),
	}
}

// PutRegion registers a region's descriptor so later lookups by name
// or by the coord-store's encoded name (e.g. from a watch event that
// only carries /unassigned/<encodedName>) resolve, and indexes it in
// the keyspace-ordered tree.
func (s *RegionStates) PutRegion(r *RegionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regionsByName[r.RegionName()] = r
	s.regionsByEncodedName[r.EncodedName()] = r
	s.tree.Update(r)
}

// Region looks up a previously registered region by its full name.
func (s *RegionStates) Region(regionName string) (*RegionInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regionsByName[regionName]
	return r, ok
}

// RegionByEncodedName looks up a previously registered region by its
// coord-store encoded name.
func (s *RegionStates) RegionByEncodedName(encodedName string) (*RegionInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regionsByEncodedName[encodedName]
	return r, ok
}

// UpdateTransition records (or replaces) the transition node for a
// region. Called whenever the Master creates a node or observes a
// watch-delivered change.
func (s *RegionStates) UpdateTransition(n *TransitionNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regionsInTransition[n.RegionName] = n
}

// Transition returns the current transition node for a region, if any.
func (s *RegionStates) Transition(regionName string) (*TransitionNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.regionsInTransition[regionName]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// ClearTransition removes the transition node once a region reaches a
// steady state (open or offline-because-disabled).
func (s *RegionStates) ClearTransition(regionName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.regionsInTransition, regionName)
}

// InTransition returns a snapshot of every region currently mid
// transition, e.g. for failover recovery (spec §4.F) or timeout scans.
func (s *RegionStates) InTransition() []*TransitionNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*TransitionNode, 0, len(s.regionsInTransition))
	for _, n := range s.regionsInTransition {
		out = append(out, n.Clone())
	}
	return out
}

// SetPlan records the Master's intent for a region.
func (s *RegionStates) SetPlan(p *RegionPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.RegionName] = p
}

// Plan returns the recorded plan for a region, if any.
func (s *RegionStates) Plan(regionName string) (*RegionPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[regionName]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// ClearPlan forgets a region's plan, e.g. once it is enacted.
func (s *RegionStates) ClearPlan(regionName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, regionName)
}

// MarkOpen records that server now holds region open, removing it
// from any other server's set first (a region is open on at most one
// server at any instant — spec §8 invariant).
func (s *RegionStates) MarkOpen(server ServerName, region *RegionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := region.RegionName()
	for srv, regions := range s.serverRegions {
		if srv == server {
			continue
		}
		delete(regions, name)
	}
	regions, ok := s.serverRegions[server]
	if !ok {
		regions = make(map[string]*RegionInfo)
		s.serverRegions[server] = regions
	}
	regions[name] = region
	s.regionsByName[name] = region
	s.tree.Update(region)
}

// MarkClosed removes region from every server's open set.
func (s *RegionStates) MarkClosed(region *RegionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := region.RegionName()
	for _, regions := range s.serverRegions {
		delete(regions, name)
	}
}

// RegionsOnServer returns a snapshot of the regions believed open on
// server, used when that server's ephemeral node disappears.
func (s *RegionStates) RegionsOnServer(server ServerName) []*RegionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regions := s.serverRegions[server]
	out := make([]*RegionInfo, 0, len(regions))
	for _, r := range regions {
		out = append(out, r)
	}
	return out
}

// RemoveServer drops all bookkeeping for a dead server. Callers must
// first collect RegionsOnServer / plans referencing it for
// re-assignment before calling this.
func (s *RegionStates) RemoveServer(server ServerName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.serverRegions, server)
}

// Placement returns a snapshot multimap of live-server -> open region
// list, the exact shape the Load Balancer consumes (spec §4.D).
func (s *RegionStates) Placement() map[ServerName][]*RegionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ServerName][]*RegionInfo, len(s.serverRegions))
	for srv, regions := range s.serverRegions {
		list := make([]*RegionInfo, 0, len(regions))
		for _, r := range regions {
			list = append(list, r)
		}
		out[srv] = list
	}
	return out
}

// PlansInvolving returns every recorded plan whose source or
// destination matches server, used by server-failure handling
// (spec §4.F).
func (s *RegionStates) PlansInvolving(server ServerName) []*RegionPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*RegionPlan
	for _, p := range s.plans {
		if p.Source == server || (p.Destination != nil && *p.Destination == server) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// ScanRange returns every registered region of table whose range
// intersects [startKey, endKey), ordered by StartKey — the exact
// query spec §8 scenario 3 exercises across a split ("a scan...
// returns the same rows as before").
func (s *RegionStates) ScanRange(table string, startKey, endKey []byte) []*RegionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.ScanRange(table, startKey, endKey)
}

// CheckNoOverlap verifies that table's registered regions chain
// together with no gap and no overlap: each region's EndKey equals
// the next region's StartKey (spec §3's "no overlap" invariant,
// asserted continuously per spec §8). It checks only the regions
// PutRegion/MarkOpen has registered so far, so it is meaningful to
// call mid-bootstrap as each table's full region set is loaded; it
// does not itself know where a table's keyspace begins or ends.
func (s *RegionStates) CheckNoOverlap(table string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regions := s.tree.ScanRange(table, nil, nil)
	for i := 1; i < len(regions); i++ {
		if !bytes.Equal(regions[i].StartKey, regions[i-1].EndKey) {
			return errors.Errorf("table %s: gap or overlap between %s and %s", table, regions[i-1].RegionName(), regions[i].RegionName())
		}
	}
	return nil
}
