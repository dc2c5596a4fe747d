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

package split

import (
	"context"
	"sync"
	"testing"

	"github.com/coredb/regionmaster/server/catalog"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/errs"
	"github.com/coredb/regionmaster/server/kv"
	"github.com/coredb/regionmaster/server/split/splitstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHooks implements Hooks against plain in-memory bookkeeping, the
// server/split analogue of assign/assigntest.FakeRPC: it drives the
// RegionServer-local steps a real region table would, so Execute can
// be exercised end to end without a real RegionServer.
type fakeHooks struct {
	mu sync.Mutex

	closed     bool
	online     map[string]bool
	daughters  map[string]*core.RegionInfo
	storeFiles []StoreFile

	failCloseParent     bool
	failOpenDaughter    string // encoded name to fail, if set
	reopenParentCount   int
	reinstateOnlineCalled bool
}

func newFakeHooks(parent *core.RegionInfo, storeFiles []StoreFile) *fakeHooks {
	return &fakeHooks{
		online:     map[string]bool{parent.EncodedName(): true},
		daughters:  map[string]*core.RegionInfo{},
		storeFiles: storeFiles,
	}
}

func (f *fakeHooks) VerifyOpen(parent *core.RegionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errs.ErrInvalidTransition
	}
	return nil
}

func (f *fakeHooks) CloseParent(ctx context.Context, parent *core.RegionInfo) ([]StoreFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCloseParent {
		return nil, assert.AnError
	}
	f.closed = true
	return f.storeFiles, nil
}

func (f *fakeHooks) RemoveOnline(parent *core.RegionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.online, parent.EncodedName())
	return nil
}

func (f *fakeHooks) ReinstateOnline(parent *core.RegionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reinstateOnlineCalled = true
	f.online[parent.EncodedName()] = true
	return nil
}

func (f *fakeHooks) ReopenParent(ctx context.Context, parent *core.RegionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reopenParentCount++
	f.closed = false
	return nil
}

func (f *fakeHooks) InstantiateDaughter(daughter *core.RegionInfo, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.daughters[daughter.EncodedName()] = daughter
	return nil
}

func (f *fakeHooks) OpenDaughter(ctx context.Context, daughter *core.RegionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpenDaughter == daughter.EncodedName() {
		return assert.AnError
	}
	f.online[daughter.EncodedName()] = true
	return nil
}

func newTestTransaction(t *testing.T, parent *core.RegionInfo, splitRow []byte, storeFiles []StoreFile) (*Transaction, *fakeHooks, catalog.Catalog) {
	t.Helper()
	fs := splitstore.NewMemFS()
	cat := catalog.New(kv.NewMemoryBase())
	hooks := newFakeHooks(parent, storeFiles)
	txn := New(parent, splitRow, "tbl1", fs, cat, hooks, &sync.Mutex{})
	return txn, hooks, cat
}

func TestSplitRejectsRowEqualToStartKey(t *testing.T) {
	parent := core.NewRegionInfo("t1", []byte("a"), []byte("z"), 100)
	txn, _, _ := newTestTransaction(t, parent, []byte("a"), nil)
	_, _, err := txn.Prepare(1000)
	assert.ErrorIs(t, err, errs.ErrSplitPointInvalid)
}

func TestSplitRejectsRowOutsideRange(t *testing.T) {
	parent := core.NewRegionInfo("t1", []byte("a"), []byte("m"), 100)
	txn, _, _ := newTestTransaction(t, parent, []byte("z"), nil)
	_, _, err := txn.Prepare(1000)
	assert.ErrorIs(t, err, errs.ErrSplitPointInvalid)

	txn2, _, _ := newTestTransaction(t, parent, []byte("0"), nil)
	_, _, err = txn2.Prepare(1000)
	assert.ErrorIs(t, err, errs.ErrSplitPointInvalid)
}

func TestSplitDaughterRegionIDClockSkew(t *testing.T) {
	parent := core.NewRegionInfo("t1", []byte("a"), []byte("z"), 1000)
	txn, _, _ := newTestTransaction(t, parent, []byte("m"), nil)

	daughterA, daughterB, err := txn.Prepare(500) // now <= parent.RegionID
	require.NoError(t, err)
	assert.Equal(t, int64(1001), daughterA.RegionID)
	assert.Equal(t, int64(1001), daughterB.RegionID)
}

func TestSplitExecuteCommitsAndOpensDaughters(t *testing.T) {
	parent := core.NewRegionInfo("t1", []byte("a"), []byte("z"), 100)
	txn, hooks, cat := newTestTransaction(t, parent, []byte("m"), []StoreFile{{Name: "store1"}, {Name: "store2"}})

	daughterA, daughterB, err := txn.Prepare(1000)
	require.NoError(t, err)

	err = txn.Execute(context.Background())
	require.NoError(t, err)

	entries := txn.JournalEntries()
	assert.Equal(t, []JournalEntry{CreateSplitDir, ClosedParent, OfflinedParent, StartedRegionA, StartedRegionB, PONR}, entries)
	assert.True(t, txn.journal.PastPONR())

	assert.False(t, hooks.online[parent.EncodedName()])
	assert.True(t, hooks.online[daughterA.EncodedName()])
	assert.True(t, hooks.online[daughterB.EncodedName()])

	// Parent catalog row is offline+split; daughters exist (spec §8
	// "After Split Transaction commit (PONR)...").
	_, ok, err := cat.Location(parent)
	require.NoError(t, err)
	assert.False(t, ok)

	regions, err := cat.GetRegionsOfTable("t1")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, r := range regions {
		names[r.RegionName()] = true
	}
	assert.True(t, names[daughterA.RegionName()])
	assert.True(t, names[daughterB.RegionName()])
}

func TestSplitExecuteRollsBackOnFailureBeforePONR(t *testing.T) {
	parent := core.NewRegionInfo("t1", []byte("a"), []byte("z"), 100)
	txn, hooks, _ := newTestTransaction(t, parent, []byte("m"), nil)
	hooks.failCloseParent = true

	_, _, err := txn.Prepare(1000)
	require.NoError(t, err)

	err = txn.Execute(context.Background())
	require.Error(t, err)
	assert.False(t, txn.journal.PastPONR())
	// CloseParent failed before RemoveOnline ran, so the parent never
	// left the online-regions map.
	assert.True(t, hooks.online[parent.EncodedName()])
}

func TestSplitExecuteRollbackReopensParent(t *testing.T) {
	parent := core.NewRegionInfo("t1", []byte("a"), []byte("z"), 100)
	txn, hooks, _ := newTestTransaction(t, parent, []byte("m"), nil)

	_, _, err := txn.Prepare(1000)
	require.NoError(t, err)

	// Force a failure after ClosedParent/OfflinedParent by making the
	// daughter instantiate step observe no store files and then
	// injecting a catalog failure is hard to simulate generically, so
	// instead simulate failure via a second execute attempt sharing
	// state is avoided: exercise the documented rollback path by
	// manually driving journal + rollback.
	txn.journal.Append(CreateSplitDir)
	txn.journal.Append(ClosedParent)
	hooks.closed = true
	require.NoError(t, txn.rollback(context.Background()))
	assert.Equal(t, 1, hooks.reopenParentCount)
}

func TestSplitRollbackRefusedPastPONR(t *testing.T) {
	parent := core.NewRegionInfo("t1", []byte("a"), []byte("z"), 100)
	txn, _, _ := newTestTransaction(t, parent, []byte("m"), nil)
	txn.journal.Append(PONR)
	err := txn.rollback(context.Background())
	assert.ErrorIs(t, err, errs.ErrPastPointOfNoReturn)
}
