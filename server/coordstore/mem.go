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

package coordstore

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/coredb/regionmaster/server/errs"
)

type memNode struct {
	data      []byte
	version   int64
	ephemeral bool
	owner     *memClient
}

// memClient is an in-memory Client used by every package's tests
// instead of a live etcd cluster, the same role pingcap-pd's
// server/core/kv_base.go NewMemoryKV plays for its Storage tests —
// extended here with versions, ephemeral-by-session, and one-shot
// watches so the CAS and failure-detection semantics of spec §4.A are
// exercised without a real coordination service.
type memClient struct {
	store     *memStore
	expiredCh chan struct{}
	once      sync.Once
}

// memStore is the shared namespace a family of memClient "sessions"
// (produced by NewMemStore().Session()) observe together, the way
// several RegionServers and the Master share one real etcd cluster.
type memStore struct {
	mu       sync.Mutex
	nodes    map[string]*memNode
	watchers map[string][]*watcher
}

type watcher struct {
	ch chan Event
}

// NewMemStore creates a fresh empty namespace.
func NewMemStore() *memStore {
	return &memStore{
		nodes:    make(map[string]*memNode),
		watchers: make(map[string][]*watcher),
	}
}

// Session returns a new Client sharing this namespace, modelling one
// process's coord-store session (its own ephemeral ownership and its
// own SessionExpired channel).
func (s *memStore) Session() Client {
	return &memClient{store: s, expiredCh: make(chan struct{})}
}

// ExpireSession simulates the session behind c being lost: its
// ephemeral nodes vanish and its SessionExpired channel closes, the
// way losing an etcd lease does. Tests use this to exercise the
// "component-level restart" error handling path (spec §7).
func ExpireSession(c Client) {
	mc, ok := c.(*memClient)
	if !ok {
		return
	}
	mc.once.Do(func() { close(mc.expiredCh) })
	_ = mc.Close()
}

func clean(p string) string {
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

func (c *memClient) Get(ctx context.Context, p string) (Node, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	n, ok := c.store.nodes[clean(p)]
	if !ok {
		return Node{}, errs.ErrNotFound
	}
	return Node{Data: append([]byte(nil), n.data...), Version: n.version}, nil
}

func (c *memClient) Exists(ctx context.Context, p string) (bool, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	_, ok := c.store.nodes[clean(p)]
	return ok, nil
}

func (c *memClient) Create(ctx context.Context, p string, data []byte, ephemeral bool) error {
	p = clean(p)
	c.store.mu.Lock()
	if _, ok := c.store.nodes[p]; ok {
		c.store.mu.Unlock()
		return errs.ErrNodeExists
	}
	n := &memNode{data: append([]byte(nil), data...), version: 0, ephemeral: ephemeral}
	if ephemeral {
		n.owner = c
	}
	c.store.nodes[p] = n
	c.store.mu.Unlock()
	c.store.fire(p, Event{Type: EventCreated, Path: p, Data: n.data})
	c.store.fireChildren(path.Dir(p))
	return nil
}

func (c *memClient) SetData(ctx context.Context, p string, data []byte, expectedVersion int64) error {
	p = clean(p)
	c.store.mu.Lock()
	n, ok := c.store.nodes[p]
	if !ok {
		c.store.mu.Unlock()
		return errs.ErrNotFound
	}
	if n.version != expectedVersion {
		c.store.mu.Unlock()
		return errs.ErrBadVersion
	}
	n.data = append([]byte(nil), data...)
	n.version++
	c.store.mu.Unlock()
	c.store.fire(p, Event{Type: EventDataChanged, Path: p, Data: n.data})
	return nil
}

func (c *memClient) Delete(ctx context.Context, p string, expectedVersion int64) error {
	p = clean(p)
	c.store.mu.Lock()
	n, ok := c.store.nodes[p]
	if !ok {
		c.store.mu.Unlock()
		return errs.ErrNotFound
	}
	if expectedVersion >= 0 && n.version != expectedVersion {
		c.store.mu.Unlock()
		return errs.ErrBadVersion
	}
	delete(c.store.nodes, p)
	c.store.mu.Unlock()
	c.store.fire(p, Event{Type: EventDeleted, Path: p})
	c.store.fireChildren(path.Dir(p))
	return nil
}

func (c *memClient) List(ctx context.Context, p string) ([]string, error) {
	p = clean(p)
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for k := range c.store.nodes {
		if !strings.HasPrefix(k, prefix) || k == p {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		child := strings.SplitN(rest, "/", 2)[0]
		if !seen[child] {
			seen[child] = true
			out = append(out, child)
		}
	}
	return out, nil
}

func (c *memClient) WatchExists(ctx context.Context, p string) (<-chan Event, error) {
	p = clean(p)
	c.store.mu.Lock()
	if n, ok := c.store.nodes[p]; ok {
		c.store.mu.Unlock()
		ch := make(chan Event, 1)
		ch <- Event{Type: EventCreated, Path: p, Data: n.data}
		return ch, nil
	}
	ch := make(chan Event, 1)
	c.store.watchers[p] = append(c.store.watchers[p], &watcher{ch: ch})
	c.store.mu.Unlock()
	return ch, nil
}

func (c *memClient) WatchData(ctx context.Context, p string) (<-chan Event, error) {
	p = clean(p)
	ch := make(chan Event, 1)
	c.store.mu.Lock()
	c.store.watchers[p] = append(c.store.watchers[p], &watcher{ch: ch})
	c.store.mu.Unlock()
	return ch, nil
}

func (c *memClient) WatchChildren(ctx context.Context, p string) (<-chan Event, error) {
	p = clean(p)
	ch := make(chan Event, 1)
	c.store.mu.Lock()
	c.store.watchers["children:"+p] = append(c.store.watchers["children:"+p], &watcher{ch: ch})
	c.store.mu.Unlock()
	return ch, nil
}

func (c *memClient) SessionExpired() <-chan struct{} {
	return c.expiredCh
}

// Close ends this session, deleting every ephemeral node it owns, the
// way a lost etcd lease auto-deletes attached keys.
func (c *memClient) Close() error {
	c.store.mu.Lock()
	var orphaned []string
	for p, n := range c.store.nodes {
		if n.ephemeral && n.owner == c {
			orphaned = append(orphaned, p)
			delete(c.store.nodes, p)
		}
	}
	c.store.mu.Unlock()
	for _, p := range orphaned {
		c.store.fire(p, Event{Type: EventDeleted, Path: p})
		c.store.fireChildren(path.Dir(p))
	}
	return nil
}

func (s *memStore) fire(p string, ev Event) {
	s.mu.Lock()
	ws := s.watchers[p]
	delete(s.watchers, p)
	s.mu.Unlock()
	for _, w := range ws {
		w.ch <- ev
	}
}

func (s *memStore) fireChildren(dir string) {
	key := "children:" + dir
	s.mu.Lock()
	ws := s.watchers[key]
	delete(s.watchers, key)
	s.mu.Unlock()
	for _, w := range ws {
		w.ch <- Event{Type: EventDataChanged, Path: dir}
	}
}
