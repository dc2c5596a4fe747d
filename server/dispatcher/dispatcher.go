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

// Package dispatcher is the single-writer serialization point for
// every coord-store watch event and timer tick the Assignment Manager
// reacts to (spec §4.E). It is grounded in pingcap-pd's
// server/coordinator.go, which likewise funnels scheduling decisions
// and watch-driven events through one goroutine guarding cluster
// state, plus server/cluster_worker.go's per-region event handling.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/coredb/regionmaster/server/log"
	"go.uber.org/zap"
)

// EventKind distinguishes the origin of a dispatched Event.
type EventKind int

const (
	// EventRegionTransition carries a coord-store watch delivery for
	// /unassigned/<region>.
	EventRegionTransition EventKind = iota
	// EventServerDown carries the loss of a /rs/<server> ephemeral
	// node.
	EventServerDown
	// EventBalanceTick fires on the balancer's timer.
	EventBalanceTick
	// EventTimeoutTick fires on the transition-timeout scan timer.
	EventTimeoutTick
)

// Event is one unit of work handed to the single consumer. Region is
// the region-transition de-duplication key; events with the same
// non-empty Region never run concurrently with each other.
type Event struct {
	Kind   EventKind
	Region string
	Server string
}

// Handler processes one Event. It runs on one of the Dispatcher's
// worker-pool goroutines. Events with the same non-empty Region are
// mutually exclusive (see Dispatcher's in-flight tracking below);
// events with an empty Region (ticks, server-down) get no such
// exclusion and may run alongside any other event.
type Handler func(ctx context.Context, ev Event)

// Dispatcher serializes assignment-state mutation through one logical
// consumer, exactly as spec §4.E requires: "No mutation of §4.B
// happens off this thread except by the AM through the same entry
// point." Distinct regions may still be handled concurrently by
// worker-pool goroutines fed from this single queue (spec §5); what
// is guaranteed is that the SAME region is never processed twice at
// once.
type Dispatcher struct {
	queue   chan Event
	handler Handler
	workers int

	mu       sync.Mutex
	inFlight map[string]bool
	pending  map[string][]Event

	balanceTicker *time.Ticker
	timeoutTicker *time.Ticker

	wg     sync.WaitGroup
	cancel context.CancelFunc
	log    *zap.Logger
}

// Config controls queue depth, worker-pool width, and the two timer
// intervals (spec §4.F names ~30s OPENING/CLOSING, ~10s OFFLINE; the
// balancer interval is independent and operator-configured).
type Config struct {
	QueueDepth      int
	Workers         int
	BalanceInterval time.Duration
	TimeoutInterval time.Duration
}

// DefaultConfig returns sane defaults for a small-to-medium cluster.
func DefaultConfig() Config {
	return Config{
		QueueDepth:      4096,
		Workers:         16,
		BalanceInterval: time.Minute,
		TimeoutInterval: 5 * time.Second,
	}
}

// New builds a Dispatcher that calls handler for every event. Start
// must be called before events are processed.
func New(cfg Config, handler Handler) *Dispatcher {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	return &Dispatcher{
		queue:    make(chan Event, cfg.QueueDepth),
		handler:  handler,
		workers:  cfg.Workers,
		inFlight: make(map[string]bool),
		pending:  make(map[string][]Event),
		log:      log.Named("dispatcher"),
	}
}

// Start launches the worker pool and the two timers. ctx cancellation
// (or Stop) tears them down.
func (d *Dispatcher) Start(ctx context.Context, cfg Config) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	if cfg.BalanceInterval > 0 {
		d.balanceTicker = time.NewTicker(cfg.BalanceInterval)
		d.wg.Add(1)
		go d.tick(ctx, d.balanceTicker, Event{Kind: EventBalanceTick})
	}
	if cfg.TimeoutInterval > 0 {
		d.timeoutTicker = time.NewTicker(cfg.TimeoutInterval)
		d.wg.Add(1)
		go d.tick(ctx, d.timeoutTicker, Event{Kind: EventTimeoutTick})
	}
}

// Stop cancels all goroutines and waits for them to exit.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.balanceTicker != nil {
		d.balanceTicker.Stop()
	}
	if d.timeoutTicker != nil {
		d.timeoutTicker.Stop()
	}
	d.wg.Wait()
}

func (d *Dispatcher) tick(ctx context.Context, ticker *time.Ticker, ev Event) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Submit(ev)
		}
	}
}

// Submit enqueues ev. Region-keyed events for a region already being
// processed are queued behind it instead of running concurrently;
// non-region events (balance/timeout ticks, server-down) are always
// queued directly.
func (d *Dispatcher) Submit(ev Event) {
	if ev.Region == "" {
		d.queue <- ev
		return
	}
	d.mu.Lock()
	if d.inFlight[ev.Region] {
		d.pending[ev.Region] = append(d.pending[ev.Region], ev)
		d.mu.Unlock()
		return
	}
	d.inFlight[ev.Region] = true
	d.mu.Unlock()
	d.queue <- ev
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.process(ctx, ev)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event handler panicked", zap.Any("event", ev), zap.Any("recover", r))
		}
		if ev.Region != "" {
			d.finishRegion(ev.Region)
		}
	}()
	d.handler(ctx, ev)
}

// finishRegion releases a region's in-flight slot and requeues the
// oldest pending event for it, if any.
func (d *Dispatcher) finishRegion(region string) {
	d.mu.Lock()
	next, ok := d.popPending(region)
	if !ok {
		delete(d.inFlight, region)
	}
	d.mu.Unlock()
	if ok {
		d.queue <- next
	}
}

func (d *Dispatcher) popPending(region string) (Event, bool) {
	q := d.pending[region]
	if len(q) == 0 {
		return Event{}, false
	}
	next := q[0]
	if len(q) == 1 {
		delete(d.pending, region)
	} else {
		d.pending[region] = q[1:]
	}
	return next, true
}
