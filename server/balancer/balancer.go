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

// Package balancer implements the mean-count load balancer (spec
// §4.D): a pure function from (live servers, current placement) to an
// ordered move list. It never mutates state itself — grounded in
// pingcap-pd's server/balancer.go Balancer interface and
// server/schedulers/balance_region.go's store-affinity scoring, both
// kept advisory of the coordinator/AM that actually enacts moves. The
// stdev tie-break uses the same stats.StandardDeviation call
// server/schedulers/utils.go's adjustBalanceLimit makes over store
// region counts.
package balancer

import (
	"math"
	"sort"

	"github.com/coredb/regionmaster/server/core"
	"github.com/montanaflynn/stats"
)

// Move is one recommended relocation: take Region from Source and
// place it at Destination.
type Move struct {
	Region      *core.RegionInfo
	Source      core.ServerName
	Destination core.ServerName
}

// LocalityHint reports whether destination's disk already holds a
// replica of region's data, used as the balancer's second tie-break
// (spec §4.D (b)). A nil hint always returns false.
type LocalityHint func(region *core.RegionInfo, destination core.ServerName) bool

type serverLoad struct {
	server  core.ServerName
	regions []*core.RegionInfo
}

// Balance computes the mean-count move list for the given cluster
// snapshot. placement maps each live server to the regions it
// currently holds open. The result is empty when there is nothing to
// move (a single server, or a cluster already within [floor, ceil] of
// every server).
func Balance(live []core.ServerName, placement map[core.ServerName][]*core.RegionInfo, hint LocalityHint) []Move {
	if len(live) <= 1 {
		return nil
	}
	if hint == nil {
		hint = func(*core.RegionInfo, core.ServerName) bool { return false }
	}

	total := 0
	for _, regions := range placement {
		total += len(regions)
	}
	mean := float64(total) / float64(len(live))
	floor := int(math.Floor(mean))
	ceil := int(math.Ceil(mean))

	loads := make([]serverLoad, 0, len(live))
	for _, s := range live {
		regions := append([]*core.RegionInfo(nil), placement[s]...)
		sort.Slice(regions, func(i, j int) bool { return regions[i].RegionName() < regions[j].RegionName() })
		loads = append(loads, serverLoad{server: s, regions: regions})
	}

	var moves []Move
	for {
		sort.Slice(loads, func(i, j int) bool {
			if len(loads[i].regions) != len(loads[j].regions) {
				return len(loads[i].regions) > len(loads[j].regions)
			}
			return loads[i].server.String() < loads[j].server.String()
		})
		source := &loads[0]
		if len(source.regions) <= ceil {
			break
		}

		// Candidate destinations: every under-floor server, ranked
		// only by tie-break (a), greatest reduction in stdev. Tie-breaks
		// (b) locality hint and (c) lexicographically smallest region
		// name choose the region, not the server, in pickRegionToMove.
		destIdx := -1
		for i := 1; i < len(loads); i++ {
			if len(loads[i].regions) <= floor {
				if destIdx == -1 || stdevReduction(loads, i) > stdevReduction(loads, destIdx) {
					destIdx = i
				}
			}
		}
		if destIdx == -1 {
			break
		}
		dest := &loads[destIdx]

		region := pickRegionToMove(source.regions, dest.server, hint)
		if region == nil {
			break
		}

		moves = append(moves, Move{Region: region, Source: source.server, Destination: dest.server})

		source.regions = removeRegion(source.regions, region)
		dest.regions = append(dest.regions, region)
	}
	return moves
}

// pickRegionToMove applies tie-breaks (b) then (c) from spec §4.D:
// prefer a region whose destination already has locality, then the
// lexicographically smallest region name.
func pickRegionToMove(candidates []*core.RegionInfo, dest core.ServerName, hint LocalityHint) *core.RegionInfo {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	bestLocal := hint(best, dest)
	for _, r := range candidates[1:] {
		local := hint(r, dest)
		switch {
		case local && !bestLocal:
			best, bestLocal = r, local
		case local == bestLocal && r.RegionName() < best.RegionName():
			best = r
		}
	}
	return best
}

func removeRegion(regions []*core.RegionInfo, target *core.RegionInfo) []*core.RegionInfo {
	out := make([]*core.RegionInfo, 0, len(regions)-1)
	for _, r := range regions {
		if r != target {
			out = append(out, r)
		}
	}
	return out
}

// stdevReduction estimates how much moving one region from loads[0]
// (the fullest server) to loads[destIdx] would reduce the population
// standard deviation of region counts across all servers — tie-break
// (a). Only the counts matter, not which specific region moves.
func stdevReduction(loads []serverLoad, destIdx int) float64 {
	before := stdevOfCounts(loads, -1, -1)
	after := stdevOfCounts(loads, 0, destIdx)
	return before - after
}

func stdevOfCounts(loads []serverLoad, dec, inc int) float64 {
	counts := make([]float64, len(loads))
	for i, l := range loads {
		c := float64(len(l.regions))
		if i == dec {
			c--
		}
		if i == inc {
			c++
		}
		counts[i] = c
	}
	sd, _ := stats.StandardDeviation(counts)
	return sd
}
