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

// Package splitstore implements the on-disk bookkeeping a Split
// Transaction performs (spec §4.G steps 1, 4-6, 9): a temporary split
// directory under the parent's region directory, small reference
// files (no data copy) that point back at a parent store file with a
// {bottom|top, splitRow} tag, and the crash-recovery scan spec §4.G's
// "Crash recovery at next deploy" describes.
//
// Filesystem access goes through the FileSystem interface rather than
// the os package directly, the same abstraction-over-storage shape
// kv.Base gives the catalog and coordstore.Client gives etcd: no
// example repo in this pack ships a library for bare local-directory
// bookkeeping (the one filesystem-shaped dependency in the pack,
// objectfs's AWS S3 SDK, models remote object storage, not a region
// server's local region directories), so this package follows the
// same storage-abstraction pattern used elsewhere in this repo
// instead of a third-party library.
package splitstore

import (
	"path"
	"sort"
	"strings"
)

// ReferenceTag marks which half of the parent's key range a reference
// file covers.
type ReferenceTag byte

const (
	// Bottom references the part of a parent store file below
	// splitRow; it belongs to daughter A.
	Bottom ReferenceTag = iota
	// Top references the part at or above splitRow; it belongs to
	// daughter B.
	Top
)

func (t ReferenceTag) String() string {
	if t == Bottom {
		return "bottom"
	}
	return "top"
}

// Reference is the metadata a split reference file carries: which
// parent store file it points at, which half it covers, and the
// split row that divides the two halves. No store data is copied;
// future reads filter the parent file by (Tag, SplitRow).
type Reference struct {
	ParentFile string
	Tag        ReferenceTag
	SplitRow   []byte
}

// FileSystem is the minimal directory/file capability a Split
// Transaction needs against a RegionServer's local store. A real
// implementation wraps the os package (OSFS); tests use the in-memory
// MemFS in this package, which server/split's own tests reuse.
type FileSystem interface {
	MkdirAll(dir string) error
	WriteFile(path string, data []byte) error
	ReadFile(path string) ([]byte, bool, error)
	ListDir(dir string) ([]string, error)
	Rename(oldPath, newPath string) error
	RemoveAll(dir string) error
	Exists(path string) bool
}

// RegionDir returns the on-disk directory for a region given its
// table directory and encoded name: <tableDir>/<encodedName>.
func RegionDir(tableDir, encodedName string) string {
	return path.Join(tableDir, encodedName)
}

// SplitDir returns the temporary split directory created under the
// parent's region directory (spec §4.G step 1): <regionDir>/.splits.
func SplitDir(parentRegionDir string) string {
	return path.Join(parentRegionDir, ".splits")
}

// daughterDir is where a daughter's reference files accumulate inside
// the split directory before being moved into their final region
// directory (spec §4.G step 5/6).
func daughterDir(splitDir, daughterEncodedName string) string {
	return path.Join(splitDir, daughterEncodedName)
}

// CreateSplitDir creates the temporary split directory (spec §4.G
// step 1, journal entry CreateSplitDir).
func CreateSplitDir(fs FileSystem, parentRegionDir string) (string, error) {
	dir := SplitDir(parentRegionDir)
	if err := fs.MkdirAll(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// referenceFileName derives a stable, sortable reference file name
// from the parent store file and tag so ListReferences's output order
// is deterministic for tests.
func referenceFileName(parentFile string, tag ReferenceTag) string {
	return parentFile + "." + tag.String() + ".ref"
}

// WriteReference creates one reference file for daughterEncodedName
// inside splitDir, pointing at parentFile with the given tag and
// splitRow (spec §4.G step 4). It does not copy any store data.
func WriteReference(fs FileSystem, splitDir, daughterEncodedName string, ref Reference) error {
	dir := daughterDir(splitDir, daughterEncodedName)
	if err := fs.MkdirAll(dir); err != nil {
		return err
	}
	data := encodeReference(ref)
	return fs.WriteFile(path.Join(dir, referenceFileName(ref.ParentFile, ref.Tag)), data)
}

// encodeReference is a tiny line-oriented encoding. Physical on-disk
// format is out of scope here, so this stays simple and
// human-readable rather than reaching for a serialization library no
// example repo needs for anything this small.
func encodeReference(ref Reference) []byte {
	return []byte(ref.Tag.String() + "\n" + ref.ParentFile + "\n" + string(ref.SplitRow))
}

func decodeReference(data []byte) Reference {
	parts := strings.SplitN(string(data), "\n", 3)
	ref := Reference{}
	if len(parts) > 0 {
		if parts[0] == "top" {
			ref.Tag = Top
		} else {
			ref.Tag = Bottom
		}
	}
	if len(parts) > 1 {
		ref.ParentFile = parts[1]
	}
	if len(parts) > 2 {
		ref.SplitRow = []byte(parts[2])
	}
	return ref
}

// MoveIntoPlace moves a daughter's reference files out of the split
// directory into its final region directory under tableDir (spec
// §4.G steps 5/6: "Move daughter's materialized files into their
// final region directory"). It is a no-op, not an error, if the
// source directory is already absent — crash recovery relies on that
// idempotence (spec §4.G "Crash recovery at next deploy").
func MoveIntoPlace(fs FileSystem, splitDir, daughterEncodedName, tableDir string) (string, error) {
	src := daughterDir(splitDir, daughterEncodedName)
	if !fs.Exists(src) {
		return RegionDir(tableDir, daughterEncodedName), nil
	}
	dst := RegionDir(tableDir, daughterEncodedName)
	if err := fs.Rename(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// ListReferences returns every reference file materialized for
// regionDir, decoded, ordered by file name for determinism.
func ListReferences(fs FileSystem, regionDir string) ([]Reference, error) {
	names, err := fs.ListDir(regionDir)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	refs := make([]Reference, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, ".ref") {
			continue
		}
		data, ok, err := fs.ReadFile(path.Join(regionDir, name))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		refs = append(refs, decodeReference(data))
	}
	return refs, nil
}

// DeleteSplitDir recursively removes the split directory (spec §4.G
// rollback inverse of CreateSplitDir, and the step 9 reaper's
// eventual cleanup). It is a no-op if already absent.
func DeleteSplitDir(fs FileSystem, parentRegionDir string) error {
	return fs.RemoveAll(SplitDir(parentRegionDir))
}

// DeleteDaughterDir removes a daughter's final region directory (spec
// §4.G rollback inverse of StartedRegionA/StartedRegionB: "ok if
// absent").
func DeleteDaughterDir(fs FileSystem, tableDir, daughterEncodedName string) error {
	return fs.RemoveAll(RegionDir(tableDir, daughterEncodedName))
}

// ScanDetritus inspects the split directory under parentRegionDir and
// returns the encoded names of daughters found there (spec §4.G
// "Crash recovery at next deploy": "inspect split directory. For any
// daughter encoded-name found..."). Returns an empty slice, not an
// error, if no split directory exists.
func ScanDetritus(fs FileSystem, parentRegionDir string) ([]string, error) {
	dir := SplitDir(parentRegionDir)
	if !fs.Exists(dir) {
		return nil, nil
	}
	names, err := fs.ListDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
