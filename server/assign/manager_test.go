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
	"testing"
	"time"

	"github.com/coredb/regionmaster/server/assign/assigntest"
	"github.com/coredb/regionmaster/server/catalog"
	"github.com/coredb/regionmaster/server/coordstore"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/kv"
	"github.com/stretchr/testify/assert"
)

// managerOnSession builds a Manager wired to coord, sharing newTestManager's
// conventions but letting the caller pick which coordstore session (and
// thus which shared namespace) it uses, so two Managers can compete for
// the same /master node the way two Master processes share one etcd
// cluster.
func managerOnSession(t *testing.T, coord coordstore.Client) *Manager {
	t.Helper()
	cat := catalog.New(kv.NewMemoryBase())
	rpc := assigntest.New(coord, cat,
		func(s core.RegionState, o core.ServerName) []byte { return encodeNode(s, o, time.Now()) },
		func(data []byte) (core.RegionState, core.ServerName, error) {
			s, o, _, err := decodeNode(data)
			return s, o, err
		})
	cfg := DefaultConfig()
	cfg.Dispatcher.BalanceInterval = 0
	return New(cfg, coord, cat, rpc, assigntest.NoopWAL{})
}

func TestCampaignMasterRunsFnWhileHeldAndStopsOnCancel(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	ran := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- m.CampaignMaster(ctx, "node-a", func(ctx context.Context) error {
			close(ran)
			<-ctx.Done()
			return nil
		})
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("fn never ran after acquiring /master")
	}
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("CampaignMaster never returned after cancel")
	}
}

func TestCampaignMasterSecondNodeWaitsForFirstToRelease(t *testing.T) {
	store := coordstore.NewMemStore()
	a := managerOnSession(t, store.Session())
	b := managerOnSession(t, store.Session())

	aHeld := make(chan struct{})
	aCtx, aCancel := context.WithCancel(context.Background())
	defer aCancel()
	go func() {
		_ = a.CampaignMaster(aCtx, "node-a", func(ctx context.Context) error {
			close(aHeld)
			<-ctx.Done()
			return nil
		})
	}()
	<-aHeld

	bAcquired := make(chan struct{})
	bCtx, bCancel := context.WithCancel(context.Background())
	defer bCancel()
	go func() {
		_ = b.CampaignMaster(bCtx, "node-b", func(ctx context.Context) error {
			close(bAcquired)
			<-ctx.Done()
			return nil
		})
	}()

	select {
	case <-bAcquired:
		t.Fatal("second node acquired /master while the first still holds it")
	case <-time.After(50 * time.Millisecond):
	}

	aCancel()

	select {
	case <-bAcquired:
	case <-time.After(time.Second):
		t.Fatal("second node never acquired /master after the first released it")
	}
}
