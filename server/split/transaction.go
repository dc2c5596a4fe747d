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
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/coredb/regionmaster/server/catalog"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/errs"
	"github.com/coredb/regionmaster/server/log"
	"github.com/coredb/regionmaster/server/metrics"
	"github.com/coredb/regionmaster/server/split/splitstore"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// StoreFile names one of the parent region's on-disk data files at
// the moment Execute closes it (spec §4.G step 2 "collect its store
// files").
type StoreFile struct {
	Name string
}

// Hooks is the RegionServer-local collaborator a Transaction drives
// through the steps spec §4.G does not itself define the physical
// shape of: closing/reopening the parent region object, the
// online-regions map, and opening a daughter (which folds in
// postOpenDeployTasks, spec §6). A real RegionServer implements this
// against its live region table; tests implement it against a fake
// (see transaction_test.go), the same collaborator-fake shape
// assign/assigntest gives the Assignment Manager's RPC side.
type Hooks interface {
	// VerifyOpen returns an error if parent is already closed or
	// closing (spec §4.G Prepare: "verify parent not closed/closing").
	VerifyOpen(parent *core.RegionInfo) error

	// CloseParent closes the parent region locally and returns its
	// store files (spec §4.G step 2).
	CloseParent(ctx context.Context, parent *core.RegionInfo) ([]StoreFile, error)

	// RemoveOnline removes parent from the server's online-regions
	// map (spec §4.G step 3).
	RemoveOnline(parent *core.RegionInfo) error

	// ReinstateOnline is RemoveOnline's rollback inverse (spec §4.G
	// rollback table, OFFLINED_PARENT -> "re-add parent to online
	// regions").
	ReinstateOnline(parent *core.RegionInfo) error

	// ReopenParent is CloseParent's rollback inverse (spec §4.G
	// rollback table, CLOSED_PARENT -> "re-initialize parent (reopen
	// locally)").
	ReopenParent(ctx context.Context, parent *core.RegionInfo) error

	// InstantiateDaughter registers a daughter region at dir in the
	// server's region table without yet opening it (spec §4.G steps
	// 5/6: "instantiate daughter A/B").
	InstantiateDaughter(daughter *core.RegionInfo, dir string) error

	// OpenDaughter opens daughter, publishes it into the
	// online-regions map, and runs postOpenDeployTasks (its own
	// catalog location update) (spec §4.G step 8).
	OpenDaughter(ctx context.Context, daughter *core.RegionInfo) error
}

// Transaction is the per-region Split Transaction (spec §4.G). One
// Transaction drives exactly one split of exactly one parent region;
// it is not reusable.
type Transaction struct {
	Parent   *core.RegionInfo
	SplitRow []byte
	TableDir string

	FS      splitstore.FileSystem
	Catalog catalog.Catalog
	Hooks   Hooks

	// Lock is the parent region's write lock (spec §5: "the write
	// lock is held across the entire Split Transaction execute step,
	// released only after daughters are live or rollback completes").
	Lock sync.Locker

	journal   Journal
	daughterA *core.RegionInfo
	daughterB *core.RegionInfo
	parentDir string
	splitDir  string

	log *zap.Logger
}

// New builds a Transaction. The daughters' RegionID is derived later,
// in Prepare, from its now argument (a wall-clock timestamp in ns or
// ms, matching whatever unit RegionID uses elsewhere) via
// core.NextRegionID.
func New(parent *core.RegionInfo, splitRow []byte, tableDir string, fs splitstore.FileSystem, cat catalog.Catalog, hooks Hooks, lock sync.Locker) *Transaction {
	return &Transaction{
		Parent:   parent,
		SplitRow: splitRow,
		TableDir: tableDir,
		FS:       fs,
		Catalog:  cat,
		Hooks:    hooks,
		Lock:     lock,
		log:      log.Named("split"),
	}
}

// Prepare validates splitRow and the parent's status and computes the
// two daughter descriptors (spec §4.G "Prepare"). It does not take
// the write lock or mutate anything; Execute does both.
func (t *Transaction) Prepare(now int64) (daughterA, daughterB *core.RegionInfo, err error) {
	if bytes.Equal(t.SplitRow, t.Parent.StartKey) {
		return nil, nil, errs.ErrSplitPointInvalid
	}
	if bytes.Compare(t.SplitRow, t.Parent.StartKey) < 0 {
		return nil, nil, errs.ErrSplitPointInvalid
	}
	if len(t.Parent.EndKey) > 0 && bytes.Compare(t.SplitRow, t.Parent.EndKey) >= 0 {
		return nil, nil, errs.ErrSplitPointInvalid
	}
	if err := t.Hooks.VerifyOpen(t.Parent); err != nil {
		return nil, nil, errors.Wrap(err, "split prepare: parent not open")
	}

	regionID := core.NextRegionID(now, t.Parent.RegionID)
	t.daughterA = core.NewRegionInfo(t.Parent.Table, t.Parent.StartKey, t.SplitRow, regionID)
	t.daughterB = core.NewRegionInfo(t.Parent.Table, t.SplitRow, t.Parent.EndKey, regionID)
	t.parentDir = splitstore.RegionDir(t.TableDir, t.Parent.EncodedName())
	return t.daughterA, t.daughterB, nil
}

// Execute runs the full split protocol (spec §4.G "Execute"),
// journaling each step: CreateSplitDir, ClosedParent and
// OfflinedParent are appended once their step succeeds;
// StartedRegionA and StartedRegionB are appended before that
// daughter's files are moved into place, so rollback also removes a
// daughter whose move or instantiation failed partway. On any
// failure before the PONR it rolls back and returns the original
// error. A failure at or after the PONR returns an error wrapping
// errs.ErrPastPointOfNoReturn: per spec §4.G step 7 and §9, the caller
// must abort the process rather than retry or roll back.
func (t *Transaction) Execute(ctx context.Context) (err error) {
	if t.daughterA == nil || t.daughterB == nil {
		return errors.New("split execute: Prepare was not called")
	}

	t.Lock.Lock()
	defer t.Lock.Unlock()

	start := time.Now()
	outcome := "committed"
	defer func() {
		metrics.SplitDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	if err := t.execute(ctx); err != nil {
		if t.journal.PastPONR() {
			outcome = "abort"
			t.log.Error("split failed past point of no return; process must abort",
				zap.String("parent", t.Parent.RegionName()), zap.Error(err))
			return errors.Wrap(errs.ErrPastPointOfNoReturn, err.Error())
		}
		outcome = "rolled-back"
		if rerr := t.rollback(ctx); rerr != nil {
			t.log.Error("split rollback failed", zap.String("parent", t.Parent.RegionName()), zap.Error(rerr))
			return errors.Wrap(err, "split execute failed and rollback also failed: "+rerr.Error())
		}
		return err
	}
	return nil
}

func (t *Transaction) execute(ctx context.Context) error {
	splitDir, err := splitstore.CreateSplitDir(t.FS, t.parentDir)
	if err != nil {
		return errors.Wrap(err, "split: create split directory")
	}
	t.splitDir = splitDir
	t.journal.Append(CreateSplitDir)

	storeFiles, err := t.Hooks.CloseParent(ctx, t.Parent)
	if err != nil {
		return errors.Wrap(err, "split: close parent")
	}
	t.journal.Append(ClosedParent)

	if err := t.Hooks.RemoveOnline(t.Parent); err != nil {
		return errors.Wrap(err, "split: remove parent from online regions")
	}
	t.journal.Append(OfflinedParent)

	for _, sf := range storeFiles {
		if err := splitstore.WriteReference(t.FS, t.splitDir, t.daughterA.EncodedName(), splitstore.Reference{
			ParentFile: sf.Name, Tag: splitstore.Bottom, SplitRow: t.SplitRow,
		}); err != nil {
			return errors.Wrap(err, "split: write bottom reference")
		}
		if err := splitstore.WriteReference(t.FS, t.splitDir, t.daughterB.EncodedName(), splitstore.Reference{
			ParentFile: sf.Name, Tag: splitstore.Top, SplitRow: t.SplitRow,
		}); err != nil {
			return errors.Wrap(err, "split: write top reference")
		}
	}

	t.journal.Append(StartedRegionA)
	aDir, err := splitstore.MoveIntoPlace(t.FS, t.splitDir, t.daughterA.EncodedName(), t.TableDir)
	if err != nil {
		return errors.Wrap(err, "split: move daughter A into place")
	}
	if err := t.Hooks.InstantiateDaughter(t.daughterA, aDir); err != nil {
		return errors.Wrap(err, "split: instantiate daughter A")
	}

	t.journal.Append(StartedRegionB)
	bDir, err := splitstore.MoveIntoPlace(t.FS, t.splitDir, t.daughterB.EncodedName(), t.TableDir)
	if err != nil {
		return errors.Wrap(err, "split: move daughter B into place")
	}
	if err := t.Hooks.InstantiateDaughter(t.daughterB, bDir); err != nil {
		return errors.Wrap(err, "split: instantiate daughter B")
	}

	// PONR (spec §4.G step 7): edit the catalog through OfflineParent,
	// whose three row writes are not atomic. No rollback is possible
	// past this point.
	if err := t.Catalog.OfflineParent(t.Parent, t.daughterA, t.daughterB); err != nil {
		t.journal.Append(PONR)
		return errors.Wrap(err, "split: catalog commit (PONR)")
	}
	t.journal.Append(PONR)

	// Open both daughters in parallel; join before returning (spec
	// §4.G step 8).
	var wg sync.WaitGroup
	errsCh := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := t.Hooks.OpenDaughter(ctx, t.daughterA); err != nil {
			errsCh <- errors.Wrap(err, "split: open daughter A")
		}
	}()
	go func() {
		defer wg.Done()
		if err := t.Hooks.OpenDaughter(ctx, t.daughterB); err != nil {
			errsCh <- errors.Wrap(err, "split: open daughter B")
		}
	}()
	wg.Wait()
	close(errsCh)
	for err := range errsCh {
		if err != nil {
			// Past PONR: the catalog already commits the split, so
			// Execute reports a daughter that fails to open as
			// errs.ErrPastPointOfNoReturn, like any other failure
			// after the PONR.
			return err
		}
	}

	// Split directory is left in place; the reaper cleans it once the
	// parent's files are garbage collected (spec §4.G step 9).
	return nil
}

// Rollback is exposed so callers that choose to drive Execute's
// sub-steps manually (or need to retry a partially-run transaction)
// can invoke the same inverse-step interpreter Execute uses
// internally. Ordinary callers never need it: Execute already rolls
// back on failure before the PONR.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.Lock.Lock()
	defer t.Lock.Unlock()
	return t.rollback(ctx)
}

// rollback walks the journal in reverse applying each entry's inverse
// (spec §4.G "Rollback", spec §9 design note). Never called once
// PastPONR; Execute checks that before calling it.
func (t *Transaction) rollback(ctx context.Context) error {
	if t.journal.PastPONR() {
		return errors.Wrap(errs.ErrPastPointOfNoReturn, "rollback attempted past point of no return")
	}
	for _, entry := range t.journal.reversed() {
		var err error
		switch entry {
		case StartedRegionB:
			err = splitstore.DeleteDaughterDir(t.FS, t.TableDir, t.daughterB.EncodedName())
		case StartedRegionA:
			err = splitstore.DeleteDaughterDir(t.FS, t.TableDir, t.daughterA.EncodedName())
		case OfflinedParent:
			err = t.Hooks.ReinstateOnline(t.Parent)
		case ClosedParent:
			err = t.Hooks.ReopenParent(ctx, t.Parent)
		case CreateSplitDir:
			err = splitstore.DeleteSplitDir(t.FS, t.parentDir)
		}
		if err != nil {
			return errors.Wrapf(err, "split rollback: inverse of %s failed", entry)
		}
	}
	return nil
}

// JournalEntries exposes the transaction's append-only journal for tests and
// diagnostics.
func (t *Transaction) JournalEntries() []JournalEntry {
	return t.journal.Entries()
}
