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
	"os"
	"path/filepath"
)

// OSFS implements FileSystem directly on the os package: the
// production RegionServer path. Directory layout mirrors the
// region-directory-per-region convention spec §4.G assumes
// throughout ("the parent's region directory", "daughter A's final
// region directory").
type OSFS struct {
	Root string
}

// NewOSFS returns a FileSystem rooted at root, creating it if absent.
func NewOSFS(root string) (*OSFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &OSFS{Root: root}, nil
}

func (fs *OSFS) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(fs.Root, p)
}

func (fs *OSFS) MkdirAll(dir string) error {
	return os.MkdirAll(fs.resolve(dir), 0o755)
}

func (fs *OSFS) WriteFile(p string, data []byte) error {
	full := fs.resolve(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func (fs *OSFS) ReadFile(p string) ([]byte, bool, error) {
	data, err := os.ReadFile(fs.resolve(p))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (fs *OSFS) ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(fs.resolve(dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (fs *OSFS) Rename(oldPath, newPath string) error {
	full := fs.resolve(newPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.Rename(fs.resolve(oldPath), full)
}

func (fs *OSFS) RemoveAll(dir string) error {
	return os.RemoveAll(fs.resolve(dir))
}

func (fs *OSFS) Exists(p string) bool {
	_, err := os.Stat(fs.resolve(p))
	return err == nil
}
