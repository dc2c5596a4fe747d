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

package splitstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSplitDirAndWriteReference(t *testing.T) {
	fs := NewMemFS()
	parentDir := RegionDir("tbl1", "parent-enc")

	splitDir, err := CreateSplitDir(fs, parentDir)
	require.NoError(t, err)
	assert.True(t, fs.Exists(splitDir))

	err = WriteReference(fs, splitDir, "daughterA-enc", Reference{
		ParentFile: "store1", Tag: Bottom, SplitRow: []byte("m"),
	})
	require.NoError(t, err)

	refs, err := ListReferences(fs, splitDir+"/daughterA-enc")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "store1", refs[0].ParentFile)
	assert.Equal(t, Bottom, refs[0].Tag)
	assert.Equal(t, []byte("m"), refs[0].SplitRow)
}

func TestMoveIntoPlaceThenIdempotentNoop(t *testing.T) {
	fs := NewMemFS()
	parentDir := RegionDir("tbl1", "parent-enc")
	splitDir, err := CreateSplitDir(fs, parentDir)
	require.NoError(t, err)

	require.NoError(t, WriteReference(fs, splitDir, "daughterA-enc", Reference{
		ParentFile: "store1", Tag: Bottom, SplitRow: []byte("m"),
	}))

	dst, err := MoveIntoPlace(fs, splitDir, "daughterA-enc", "tbl1")
	require.NoError(t, err)
	assert.Equal(t, RegionDir("tbl1", "daughterA-enc"), dst)
	assert.True(t, fs.Exists(dst))

	// Crash-recovery relies on a second MoveIntoPlace being a no-op,
	// not an error, when the source was already moved (spec §4.G).
	dst2, err := MoveIntoPlace(fs, splitDir, "daughterA-enc", "tbl1")
	require.NoError(t, err)
	assert.Equal(t, dst, dst2)
}

func TestScanDetritusEmptyWhenNoSplitDir(t *testing.T) {
	fs := NewMemFS()
	daughters, err := ScanDetritus(fs, RegionDir("tbl1", "parent-enc"))
	require.NoError(t, err)
	assert.Empty(t, daughters)
}

func TestScanDetritusFindsDaughters(t *testing.T) {
	fs := NewMemFS()
	parentDir := RegionDir("tbl1", "parent-enc")
	splitDir, err := CreateSplitDir(fs, parentDir)
	require.NoError(t, err)
	require.NoError(t, WriteReference(fs, splitDir, "daughterA-enc", Reference{ParentFile: "store1", Tag: Bottom, SplitRow: []byte("m")}))
	require.NoError(t, WriteReference(fs, splitDir, "daughterB-enc", Reference{ParentFile: "store1", Tag: Top, SplitRow: []byte("m")}))

	daughters, err := ScanDetritus(fs, parentDir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"daughterA-enc", "daughterB-enc"}, daughters)
}

func TestDeleteSplitDirAndDaughterDirAreNoopIfAbsent(t *testing.T) {
	fs := NewMemFS()
	assert.NoError(t, DeleteSplitDir(fs, RegionDir("tbl1", "parent-enc")))
	assert.NoError(t, DeleteDaughterDir(fs, "tbl1", "never-existed"))
}
