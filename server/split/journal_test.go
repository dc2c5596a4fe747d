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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJournalPastPONR(t *testing.T) {
	var j Journal
	assert.False(t, j.PastPONR())
	j.Append(CreateSplitDir)
	j.Append(ClosedParent)
	assert.False(t, j.PastPONR())
	j.Append(PONR)
	assert.True(t, j.PastPONR())
}

func TestJournalReversedSkipsPONR(t *testing.T) {
	var j Journal
	j.Append(CreateSplitDir)
	j.Append(ClosedParent)
	j.Append(OfflinedParent)
	j.Append(StartedRegionA)
	j.Append(StartedRegionB)

	rev := j.reversed()
	assert.Equal(t, []JournalEntry{StartedRegionB, StartedRegionA, OfflinedParent, ClosedParent, CreateSplitDir}, rev)
}

func TestJournalEntriesIsACopy(t *testing.T) {
	var j Journal
	j.Append(CreateSplitDir)
	entries := j.Entries()
	entries[0] = PONR
	assert.Equal(t, CreateSplitDir, j.Entries()[0])
}

func TestJournalEntryStringUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", JournalEntry(99).String())
	assert.Equal(t, "PONR", PONR.String())
}
