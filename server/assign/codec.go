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

import (
	"encoding/binary"
	"time"

	"github.com/coredb/regionmaster/server/core"
	"github.com/pkg/errors"
)

// encodeNode serializes the data a /unassigned/<region> coord-store
// node carries (spec §6): (stateEnum byte, ownerServer string,
// timestamp long). There is no ecosystem wire-format library wired
// elsewhere in this module suited to a single fixed-shape internal
// record this small; a hand-rolled binary layout following the exact
// 3-field shape spec.md §6 names is the simplest faithful encoding.
func encodeNode(state core.RegionState, owner core.ServerName, ts time.Time) []byte {
	ownerStr := owner.String()
	buf := make([]byte, 1+8+len(ownerStr))
	buf[0] = byte(state)
	binary.BigEndian.PutUint64(buf[1:9], uint64(ts.UnixNano()))
	copy(buf[9:], ownerStr)
	return buf
}

// EncodeNode and DecodeNode expose the coord-store wire codec to
// callers outside this package that need to build their own
// RegionServerRPC fake or scripting harness against the same
// coord-store nodes this package writes (e.g. cmd/regionmaster-ctl's
// in-process demo cluster, which hands them to assigntest.New).
func EncodeNode(state core.RegionState, owner core.ServerName, ts time.Time) []byte {
	return encodeNode(state, owner, ts)
}

func DecodeNode(data []byte) (core.RegionState, core.ServerName, time.Time, error) {
	return decodeNode(data)
}

func decodeNode(data []byte) (core.RegionState, core.ServerName, time.Time, error) {
	if len(data) < 9 {
		return 0, core.ServerName{}, time.Time{}, errors.New("truncated transition node")
	}
	state := core.RegionState(data[0])
	ts := time.Unix(0, int64(binary.BigEndian.Uint64(data[1:9])))
	owner, err := core.ParseServerName(string(data[9:]))
	if err != nil {
		return 0, core.ServerName{}, time.Time{}, errors.Wrap(err, "decode transition node owner")
	}
	return state, owner, ts, nil
}
