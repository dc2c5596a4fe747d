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
	"sync"

	"github.com/coredb/regionmaster/server/core"
	"go.uber.org/zap"
)

// bulkConcurrency bounds how many OPEN RPCs a bulk assignment
// pipelines at once (spec §9 "Bulk operations": "pipeline them with
// bounded concurrency"), grounded in pingcap-pd's
// server/schedule operator-controller concurrency limiting.
const bulkConcurrency = 64

// BulkAssign issues Assign for every plan entry concurrently, bounded
// by bulkConcurrency, used at cluster start (spec §4.F step 5) once
// the balancer has computed the full placement for a fresh cluster.
// It returns once every OFFLINE node is written and every OPEN RPC
// has been sent (or failed and logged); it does not wait for the
// corresponding OPENED transitions, which land asynchronously through
// the normal watch path.
func (m *Manager) BulkAssign(ctx context.Context, plans []core.RegionPlan) {
	sem := make(chan struct{}, bulkConcurrency)
	var wg sync.WaitGroup
	for i := range plans {
		plan := plans[i]
		if plan.Destination == nil {
			continue
		}
		region, ok := m.states.Region(plan.RegionName)
		if !ok {
			m.log.Error("bulk assign: plan names an unregistered region", zap.String("region", plan.RegionName))
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := m.Assign(ctx, region, *plan.Destination); err != nil {
				m.log.Error("bulk assign: assign failed", zap.String("region", region.RegionName()), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}
