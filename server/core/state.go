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

import "time"

// RegionState is the coord-store-observable state of an in-transition
// region (spec §3).
type RegionState byte

// The five observable states. Absence of a coord-store node means
// "steady": open at the catalog-recorded server, or offline because
// the table is disabled.
const (
	StateOffline RegionState = iota
	StateOpening
	StateOpened
	StateClosing
	StateClosed
)

func (s RegionState) String() string {
	switch s {
	case StateOffline:
		return "OFFLINE"
	case StateOpening:
		return "OPENING"
	case StateOpened:
		return "OPENED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// TransitionNode mirrors the data carried by a /unassigned/<region>
// coord-store node: (regionName, state, owningServer, version), plus
// the timestamps the Master uses to drive timeouts.
type TransitionNode struct {
	RegionName     string
	State          RegionState
	Owner          ServerName
	Version        int64
	StartTimestamp time.Time
	LastUpdateTime time.Time
}

// Clone returns a copy safe to hand to a caller outside the lock.
func (n *TransitionNode) Clone() *TransitionNode {
	c := *n
	return &c
}

// TableState is persisted in the coord-store at /table/<tableName>.
type TableState byte

const (
	TableEnabled TableState = iota
	TableDisabled
	TableEnabling
	TableDisabling
)

func (s TableState) String() string {
	switch s {
	case TableEnabled:
		return "ENABLED"
	case TableDisabled:
		return "DISABLED"
	case TableEnabling:
		return "ENABLING"
	case TableDisabling:
		return "DISABLING"
	default:
		return "UNKNOWN"
	}
}

// RegionPlan records the Master's in-memory intent for a region:
// move it from Source (may be the zero ServerName if unknown) to
// Destination. A nil Destination encodes "do not reopen" (disable).
type RegionPlan struct {
	RegionName  string
	Source      ServerName
	Destination *ServerName
}

// IsDisable reports whether this plan encodes a disable (no
// destination to reopen at).
func (p *RegionPlan) IsDisable() bool {
	return p.Destination == nil
}

// Clone returns a deep copy.
func (p *RegionPlan) Clone() *RegionPlan {
	c := &RegionPlan{RegionName: p.RegionName, Source: p.Source}
	if p.Destination != nil {
		d := *p.Destination
		c.Destination = &d
	}
	return c
}
