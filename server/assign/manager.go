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

// Package assign implements the region-transition state machine
// (spec §4.F): assign/unassign, open/close RPC issuance, timeout
// re-drive, server-failure handling, and master failover. It is
// grounded in pingcap-pd's server/cluster.go (the struct carrying
// process-wide cluster state) and server/coordinator.go (the single
// façade driving that state from watch events), adapted from PD's
// multi-replica placement model to the single-owner open/close model
// spec.md §3 actually specifies.
package assign

import (
	"context"
	"sync"
	"time"

	"github.com/coredb/regionmaster/server/balancer"
	"github.com/coredb/regionmaster/server/catalog"
	"github.com/coredb/regionmaster/server/coordstore"
	"github.com/coredb/regionmaster/server/core"
	"github.com/coredb/regionmaster/server/dispatcher"
	"github.com/coredb/regionmaster/server/errs"
	"github.com/coredb/regionmaster/server/log"
	"github.com/coredb/regionmaster/server/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config carries the timeouts and startup thresholds spec §4.F names.
type Config struct {
	OpeningTimeout time.Duration
	ClosingTimeout time.Duration
	OfflineTimeout time.Duration

	MinServersToStart  int
	FreshStartDeadline time.Duration

	Dispatcher dispatcher.Config
}

// DefaultConfig returns the timeouts spec §4.F names as approximate
// defaults.
func DefaultConfig() Config {
	return Config{
		OpeningTimeout:     30 * time.Second,
		ClosingTimeout:     30 * time.Second,
		OfflineTimeout:     10 * time.Second,
		MinServersToStart:  1,
		FreshStartDeadline: 30 * time.Second,
		Dispatcher:         dispatcher.DefaultConfig(),
	}
}

// Manager is the single façade carrying the Master's process-wide
// assignment state (spec §9 "Global Master state"): initialized on
// acquiring /master, torn down on losing it. All access to it is
// confined to the Dispatcher's event-processing goroutines.
type Manager struct {
	cfg Config

	coord        coordstore.Client
	states       *core.RegionStates
	cat          catalog.Catalog
	rpc          RegionServerRPC
	wal          WALRecovery
	disp         *dispatcher.Dispatcher
	localityHint balancer.LocalityHint

	log *zap.Logger

	mu      sync.Mutex
	started bool
}

// New builds a Manager. Start must be called before it processes
// events.
func New(cfg Config, coord coordstore.Client, cat catalog.Catalog, rpc RegionServerRPC, wal WALRecovery) *Manager {
	m := &Manager{
		cfg:    cfg,
		coord:  coord,
		states: core.NewRegionStates(),
		cat:    cat,
		rpc:    rpc,
		wal:    wal,
		log:    log.Named("assign"),
	}
	m.disp = dispatcher.New(cfg.Dispatcher, m.handleEvent)
	return m
}

// SetLocalityHint installs the balancer's locality tie-break callback
// (spec §4.D (b)).
func (m *Manager) SetLocalityHint(hint balancer.LocalityHint) {
	m.localityHint = hint
}

// States exposes the in-memory store for read-only inspection (tests,
// admin surfaces).
func (m *Manager) States() *core.RegionStates {
	return m.states
}

func (m *Manager) handleEvent(ctx context.Context, ev dispatcher.Event) {
	switch ev.Kind {
	case dispatcher.EventRegionTransition:
		m.onTransitionEvent(ctx, ev.Region)
	case dispatcher.EventServerDown:
		server, err := core.ParseServerName(ev.Server)
		if err != nil {
			m.log.Error("malformed server name in server-down event", zap.String("server", ev.Server), zap.Error(err))
			return
		}
		m.HandleServerDown(ctx, server)
	case dispatcher.EventBalanceTick:
		m.runBalancer(ctx)
	case dispatcher.EventTimeoutTick:
		m.scanTimeouts(ctx)
	}
}

// Start launches the dispatcher's worker pool and timers. Bootstrap
// (fresh-start detection, root/meta assignment, bulk plan) is driven
// separately via Bootstrap, since it only runs once per Master
// incarnation and needs the live server list up front.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.disp.Start(ctx, m.cfg.Dispatcher)
}

// Stop tears down the dispatcher. Called when this Master loses
// /master.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	m.disp.Stop()
}

// recordTransition counts a transition metric and logs it.
func (m *Manager) recordTransition(region string, state core.RegionState) {
	metrics.TransitionCounter.WithLabelValues(state.String()).Inc()
	m.log.Debug("region transition observed", zap.String("region", region), zap.String("state", state.String()))
}

// CampaignMaster blocks until this process acquires /master (spec §9
// "Global Master state"), then runs fn for as long as it holds that
// node, returning when fn returns, the coord-store session is lost,
// or ctx is canceled. If another process already holds /master, it
// waits for that node's deletion before retrying. This is grounded in
// pingcap-pd's server/leader.go campaignLeader/watchLeader loop,
// adapted from etcd leases and txns directly to this repo's
// ephemeral-Create-plus-one-shot-watch coord-store primitives.
func (m *Manager) CampaignMaster(ctx context.Context, id string, fn func(context.Context) error) error {
	for {
		err := m.coord.Create(ctx, masterPath, []byte(id), true)
		if err == nil {
			m.log.Info("acquired /master", zap.String("id", id))
			return m.holdMaster(ctx, fn)
		}
		if !errors.Is(err, errs.ErrNodeExists) {
			return errors.Wrap(err, "campaign master: create")
		}

		watch, err := m.coord.WatchData(ctx, masterPath)
		if err != nil {
			return errors.Wrap(err, "campaign master: watch existing master")
		}
		select {
		case ev, ok := <-watch:
			if ok && ev.Type != coordstore.EventDeleted {
				// Data changed but the node is still held; go back
				// around and watch again rather than busy-spin.
				continue
			}
		case <-m.coord.SessionExpired():
			return errs.ErrSessionExpired
		case <-ctx.Done():
			return ctx.Err()
		}
		m.log.Info("/master released, re-campaigning")
	}
}

// holdMaster runs fn while this process holds /master, cutting it
// short if the coord-store session backing the ephemeral node is
// lost (the node is gone the instant that happens) or ctx is
// canceled. A normal return or cancellation deletes masterPath
// explicitly: the node is ephemeral on this client's session, not on
// ctx, so it otherwise outlives a voluntary resignation and no other
// process could ever campaign again.
func (m *Manager) holdMaster(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		m.releaseMaster()
		return err
	case <-m.coord.SessionExpired():
		m.log.Warn("lost coord-store session while holding /master")
		<-done
		return errs.ErrSessionExpired
	case <-ctx.Done():
		<-done
		m.releaseMaster()
		return ctx.Err()
	}
}

func (m *Manager) releaseMaster() {
	if err := m.coord.Delete(context.Background(), masterPath, -1); err != nil && !errs.IsNotFound(err) {
		m.log.Warn("failed to release /master", zap.Error(err))
	}
}
