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

package assign

import "path"

// Coord-store layout (spec §6), all relative to a configured root
// that the coordstore.Client already joins onto every path.
const (
	unassignedDir = "/unassigned"
	rsDir         = "/rs"
	tableDir      = "/table"
	masterPath    = "/master"
)

func unassignedPath(encodedName string) string {
	return path.Join(unassignedDir, encodedName)
}

func serverPath(server string) string {
	return path.Join(rsDir, server)
}

func tablePath(table string) string {
	return path.Join(tableDir, table)
}
