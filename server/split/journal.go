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

// Package split implements the per-region Split Transaction (spec
// §4.G): a RegionServer-side protocol that atomically divides one
// region into two daughters across in-memory state, on-disk files,
// and the catalog table. It is grounded in pingcap-pd's
// server/schedule/operator.go (a multi-step operator with a step
// list and a cursor), adapted from PD's "steps applied forward only"
// shape to the journaled, reversible shape spec §9 requires ("exception
// propagation cannot express partially rolled back to here"): the
// journal is a tagged-variant sequence plus a pure inverse-step
// function, exactly the design note's prescription.
package split

// JournalEntry tags one sub-step of a split's Execute phase
// (spec §3 "Journal"). The zero value is not a valid entry; entries
// are only ever appended by Transaction.Execute in the fixed order
// spec §4.G specifies.
type JournalEntry int

const (
	// CreateSplitDir records that the temporary split directory was
	// created under the parent's region directory.
	CreateSplitDir JournalEntry = iota
	// ClosedParent records that the parent region was closed locally
	// and its store files collected.
	ClosedParent
	// OfflinedParent records that the parent was removed from the
	// server's online-regions map.
	OfflinedParent
	// StartedRegionA is appended just before daughter A's files are
	// moved into place and the daughter instantiated; its inverse
	// deletes daughter A's region directory, a no-op if it is absent.
	StartedRegionA
	// StartedRegionB is the same for daughter B.
	StartedRegionB
	// PONR is the point of no return: the catalog edit committing
	// the split. It is never rolled back; its presence in the
	// journal switches the interpreter to "abort process" on any
	// subsequent failure (spec §9).
	PONR
)

func (e JournalEntry) String() string {
	switch e {
	case CreateSplitDir:
		return "CREATE_SPLIT_DIR"
	case ClosedParent:
		return "CLOSED_PARENT"
	case OfflinedParent:
		return "OFFLINED_PARENT"
	case StartedRegionA:
		return "STARTED_REGION_A"
	case StartedRegionB:
		return "STARTED_REGION_B"
	case PONR:
		return "PONR"
	default:
		return "UNKNOWN"
	}
}

// Journal is the append-only sequence of split sub-steps
// (spec §3, §9). It is not safe for concurrent use; a split
// transaction runs under the parent region's write lock (spec §5),
// which already serializes access.
type Journal struct {
	entries []JournalEntry
}

// Append records entry; each entry's doc says whether Execute appends
// it before or after its step.
func (j *Journal) Append(entry JournalEntry) {
	j.entries = append(j.entries, entry)
}

// Entries returns the recorded entries in append order. The slice is
// a copy; callers may not mutate the journal through it.
func (j *Journal) Entries() []JournalEntry {
	out := make([]JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// PastPONR reports whether PONR has been appended. Once true, no
// further rollback is possible (spec §4.G step 7, §9).
func (j *Journal) PastPONR() bool {
	for _, e := range j.entries {
		if e == PONR {
			return true
		}
	}
	return false
}

// reversed walks the journal in reverse order, skipping PONR itself
// (it has no inverse; Rollback never reaches it because the
// transaction aborts the process instead of rolling back once PONR
// is appended). This is the pure function spec §9 calls for: given a
// completed sequence, produce the exact steps that undo it.
func (j *Journal) reversed() []JournalEntry {
	out := make([]JournalEntry, 0, len(j.entries))
	for i := len(j.entries) - 1; i >= 0; i-- {
		if j.entries[i] == PONR {
			continue
		}
		out = append(out, j.entries[i])
	}
	return out
}
