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

// Package assigntest is an in-memory fake of the RegionServer side of
// the assignment protocol, exercising the authoritative CAS rules
// spec §4.F names: create CLOSING in response to CLOSE, CAS
// OFFLINE->OPENING in response to OPEN (must match owner), CAS
// CLOSING->CLOSED after a local close, CAS OPENING->OPENED after a
// local open and catalog update. It lets Assignment Manager tests
// exercise real coord-store CAS races without a live RegionServer,
// grounded in pingcap-pd's mockcluster test doubles
// (server/schedule/mockcluster) that similarly fake a collaborator's
// authoritative side for coordinator-level tests.
package assigntest

import (
	"context"
	"sync"

	"github.com/coredb/regionmaster/server/catalog"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/coordstore"
	"github.com/coredb/regionmaster/server/errs"
	"github.com/pkg/errors"
)

// FakeRPC drives a coordstore.Client and catalog.Catalog exactly the
// way a real RegionServer would on receiving OpenRegion/CloseRegion,
// synchronously, so tests can assert on the resulting coord-store and
// catalog state immediately after the call returns.
type FakeRPC struct {
	mu    sync.Mutex
	coord coordstore.Client
	cat   catalog.Catalog

	// OpenDelay/CloseDelay, when set, let a test simulate a slow
	// RegionServer by running a step asynchronously instead of
	// inline; left nil by default (synchronous).
	OpenDelay  func()
	CloseDelay func()

	encode func(core.RegionState, core.ServerName) []byte
	decode func([]byte) (core.RegionState, core.ServerName, error)
}

// New builds a FakeRPC over coord (shared with the Manager under
// test) and cat. encode/decode let the caller reuse the Manager's own
// wire format so nodes this fake writes are readable by the real
// onTransitionEvent path.
func New(coord coordstore.Client, cat catalog.Catalog,
	encode func(core.RegionState, core.ServerName) []byte,
	decode func([]byte) (core.RegionState, core.ServerName, error)) *FakeRPC {
	return &FakeRPC{coord: coord, cat: cat, encode: encode, decode: decode}
}

func unassignedPath(encodedName string) string {
	return "/unassigned/" + encodedName
}

// OpenRegion performs the authoritative OFFLINE@v -> OPENING CAS,
// then immediately "completes the local open" by updating the
// catalog and CASing OPENING -> OPENED, matching spec §4.F's
// RegionServer-side rules exactly. It rejects an owner mismatch with
// ErrInvalidTransition, since only the node's named owner may open.
func (f *FakeRPC) OpenRegion(ctx context.Context, server core.ServerName, region *core.RegionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := unassignedPath(region.EncodedName())
	node, err := f.coord.Get(ctx, path)
	if err != nil {
		return errors.Wrap(err, "fake open: read node")
	}
	state, owner, derr := f.decode(node.Data)
	if derr != nil {
		return errors.Wrap(derr, "fake open: decode node")
	}
	if owner != server {
		// Idempotence: if the region is already open at the intended
		// server under a different in-flight call, succeed without
		// redoing work (spec §4.F master-failover note).
		if existingOwner, ok, _ := f.cat.Location(region); ok && existingOwner == server {
			return nil
		}
		return errs.ErrInvalidTransition
	}
	if state != core.StateOffline {
		return errs.ErrInvalidTransition
	}
	if err := f.coord.SetData(ctx, path, f.encode(core.StateOpening, owner), node.Version); err != nil {
		return errors.Wrap(err, "fake open: CAS OFFLINE->OPENING")
	}

	complete := func() {
		if err := f.cat.UpdateRegionLocation(region, server); err != nil {
			return
		}
		n, err := f.coord.Get(ctx, path)
		if err != nil {
			return
		}
		f.coord.SetData(ctx, path, f.encode(core.StateOpened, server), n.Version)
	}
	if f.OpenDelay != nil {
		go func() { f.OpenDelay(); f.mu.Lock(); defer f.mu.Unlock(); complete() }()
		return nil
	}
	complete()
	return nil
}

// CloseRegion creates the CLOSING node (no prior node expected) then
// immediately "completes the local close" by CASing CLOSING -> CLOSED.
func (f *FakeRPC) CloseRegion(ctx context.Context, server core.ServerName, region *core.RegionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := unassignedPath(region.EncodedName())
	if err := f.coord.Create(ctx, path, f.encode(core.StateClosing, server), false); err != nil {
		if errors.Is(err, errs.ErrNodeExists) {
			node, gerr := f.coord.Get(ctx, path)
			if gerr != nil {
				return errors.Wrap(gerr, "fake close: read existing node")
			}
			if err := f.coord.SetData(ctx, path, f.encode(core.StateClosing, server), node.Version); err != nil {
				return errors.Wrap(err, "fake close: force CLOSING")
			}
		} else {
			return errors.Wrap(err, "fake close: create CLOSING")
		}
	}

	complete := func() {
		n, err := f.coord.Get(ctx, path)
		if err != nil {
			return
		}
		f.coord.SetData(ctx, path, f.encode(core.StateClosed, server), n.Version)
	}
	if f.CloseDelay != nil {
		go func() { f.CloseDelay(); f.mu.Lock(); defer f.mu.Unlock(); complete() }()
		return nil
	}
	complete()
	return nil
}

// SplitRegion is unused by Assignment Manager tests (split is driven
// by server/split, not server/assign); it always succeeds as a no-op.
func (f *FakeRPC) SplitRegion(ctx context.Context, server core.ServerName, region *core.RegionInfo, splitRow []byte) error {
	return nil
}

// NoopWAL is a WALRecovery collaborator that always reports recovery
// complete immediately, for tests that don't exercise WAL-gated
// reassignment.
type NoopWAL struct{}

func (NoopWAL) Recover(ctx context.Context, server core.ServerName) error { return nil }
