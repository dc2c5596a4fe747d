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
	"context"

	"github.com/coredb/regionmaster/server/core"
)

// RegionServerRPC is the Master's outbound side of the logical
// Master<->RegionServer contract (spec §6). Wire encoding is
// explicitly out of scope; this interface is the whole of that
// contract as far as the Assignment Manager is concerned. Every
// method is idempotent: a duplicate openRegion to a server already
// hosting the region at the intended owner succeeds without
// re-running local open work (spec §4.F master-failover notes).
type RegionServerRPC interface {
	OpenRegion(ctx context.Context, server core.ServerName, region *core.RegionInfo) error
	CloseRegion(ctx context.Context, server core.ServerName, region *core.RegionInfo) error
	SplitRegion(ctx context.Context, server core.ServerName, region *core.RegionInfo, splitRow []byte) error
}

// WALRecovery is the collaborator contract from spec §6: a dead
// server's write-ahead log must be fully replayed before any of its
// former regions may be opened elsewhere. HandleServerDown awaits
// Recover before re-planning; a Recover error is logged and
// reassignment proceeds without retrying Recover (§9 leaves the
// WAL-replay-failure policy undefined).
type WALRecovery interface {
	Recover(ctx context.Context, server core.ServerName) error
}
