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
	"sort"

	"github.com/coredb/regionmaster/server/core"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// liveServers lists the current /rs ephemeral children, parsed back
// into ServerNames. A malformed child is logged and skipped rather
// than failing the whole listing: one corrupt ephemeral node must not
// blind the balancer to every other live server.
func (m *Manager) liveServers(ctx context.Context) ([]core.ServerName, error) {
	names, err := m.coord.List(ctx, rsDir)
	if err != nil {
		return nil, errors.Wrap(err, "list live servers")
	}
	out := make([]core.ServerName, 0, len(names))
	for _, name := range names {
		srv, perr := core.ParseServerName(name)
		if perr != nil {
			m.log.Error("malformed server ephemeral node name", zap.String("name", name), zap.Error(perr))
			continue
		}
		out = append(out, srv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// pickDestination returns the live server with the fewest regions
// currently open, per the current placement snapshot, excluding
// exclude if given. Used for single-region re-plans (server-down
// handling, timeout re-drive) where running the full balancer over
// the whole cluster would be overkill.
func pickDestination(live []core.ServerName, placement map[core.ServerName][]*core.RegionInfo, exclude core.ServerName) (core.ServerName, bool) {
	var best core.ServerName
	bestCount := -1
	found := false
	for _, srv := range live {
		if srv == exclude {
			continue
		}
		count := len(placement[srv])
		if !found || count < bestCount || (count == bestCount && srv.String() < best.String()) {
			best = srv
			bestCount = count
			found = true
		}
	}
	return best, found
}
