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

package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameRegionEventsNeverRunConcurrently(t *testing.T) {
	var active int32
	var maxActive int32
	var processed int32

	d := New(Config{QueueDepth: 100, Workers: 8}, func(ctx context.Context, ev Event) {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&maxActive)
			if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		atomic.AddInt32(&processed, 1)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx, Config{})
	defer d.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Submit(Event{Kind: EventRegionTransition, Region: "r1"})
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&processed) == 20 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxActive))
}

func TestDistinctRegionsProceedConcurrently(t *testing.T) {
	var concurrent int32
	var sawConcurrency int32
	d := New(Config{QueueDepth: 100, Workers: 8}, func(ctx context.Context, ev Event) {
		n := atomic.AddInt32(&concurrent, 1)
		if n > 1 {
			atomic.StoreInt32(&sawConcurrency, 1)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx, Config{})
	defer d.Stop()

	d.Submit(Event{Kind: EventRegionTransition, Region: "r1"})
	d.Submit(Event{Kind: EventRegionTransition, Region: "r2"})

	require.Eventually(t, func() bool { return atomic.LoadInt32(&sawConcurrency) == 1 }, time.Second, time.Millisecond)
}

func TestBalanceTicksFire(t *testing.T) {
	var ticks int32
	d := New(DefaultConfig(), func(ctx context.Context, ev Event) {
		if ev.Kind == EventBalanceTick {
			atomic.AddInt32(&ticks, 1)
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx, Config{BalanceInterval: 10 * time.Millisecond})
	defer d.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&ticks) >= 2 }, time.Second, time.Millisecond)
}
