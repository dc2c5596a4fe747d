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
	"time"

	"github.com/coredb/regionmaster/server/errs"
	"github.com/coredb/regionmaster/server/metrics"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// leaseTTL is the session TTL backing ephemeral nodes, grounded in
// pingcap-pd/server/member.go's leadership lease pattern.
const leaseTTL = 10 * time.Second

// EtcdClient implements Client directly on etcd's KV/Lease/Watch
// APIs, the way pingcap-pd's server/core/storage.go and
// server/member package use clientv3: mod-revision stands in for
// "version", a single session lease backs every ephemeral node this
// client creates, and a keep-alive failure surfaces as SessionExpired.
type EtcdClient struct {
	cli  *clientv3.Client
	root string

	mu        sync.Mutex
	leaseID   clientv3.LeaseID
	expiredCh chan struct{}
	closeOnce sync.Once
}

// NewEtcdClient establishes a coord-store session rooted at root
// (every path passed to Client methods is joined under root) and
// starts the lease keep-alive loop backing ephemeral nodes.
func NewEtcdClient(ctx context.Context, cli *clientv3.Client, root string) (*EtcdClient, error) {
	lease, err := cli.Grant(ctx, int64(leaseTTL/time.Second))
	if err != nil {
		return nil, errors.Wrap(err, "grant coord-store session lease")
	}
	keepAlive, err := cli.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return nil, errors.Wrap(err, "start coord-store session keep-alive")
	}
	c := &EtcdClient{
		cli:       cli,
		root:      root,
		leaseID:   lease.ID,
		expiredCh: make(chan struct{}),
	}
	go c.watchKeepAlive(keepAlive)
	return c, nil
}

func (c *EtcdClient) watchKeepAlive(ch <-chan *clientv3.LeaseKeepAliveResponse) {
	for range ch {
	}
	// The channel closes when etcd stops renewing: the lease expired
	// or the client can no longer reach the cluster within the TTL.
	log.Warn("coord-store session lease expired", zap.Int64("lease", int64(c.leaseID)))
	c.closeOnce.Do(func() { close(c.expiredCh) })
}

func (c *EtcdClient) path(p string) string {
	return path.Join(c.root, p)
}

// observeOp records how long an etcd round trip for op took, feeding
// the same coordstore_op_duration_seconds histogram every EtcdClient
// method issuing a request against etcd reports into.
func observeOp(op string, start time.Time) {
	metrics.CoordStoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (c *EtcdClient) Get(ctx context.Context, p string) (Node, error) {
	defer observeOp("get", time.Now())
	resp, err := c.cli.Get(ctx, c.path(p))
	if err != nil {
		return Node{}, errors.Wrap(errs.ErrCoordStoreUnavailable, err.Error())
	}
	if len(resp.Kvs) == 0 {
		return Node{}, errs.ErrNotFound
	}
	kv := resp.Kvs[0]
	return Node{Data: kv.Value, Version: kv.ModRevision}, nil
}

func (c *EtcdClient) Exists(ctx context.Context, p string) (bool, error) {
	defer observeOp("exists", time.Now())
	resp, err := c.cli.Get(ctx, c.path(p), clientv3.WithCountOnly())
	if err != nil {
		return false, errors.Wrap(errs.ErrCoordStoreUnavailable, err.Error())
	}
	return resp.Count > 0, nil
}

func (c *EtcdClient) Create(ctx context.Context, p string, data []byte, ephemeral bool) error {
	defer observeOp("create", time.Now())
	full := c.path(p)
	var ops []clientv3.OpOption
	if ephemeral {
		ops = append(ops, clientv3.WithLease(c.leaseID))
	}
	resp, err := c.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(full), "=", 0)).
		Then(clientv3.OpPut(full, string(data), ops...)).
		Commit()
	if err != nil {
		return errors.Wrap(errs.ErrCoordStoreUnavailable, err.Error())
	}
	if !resp.Succeeded {
		return errs.ErrNodeExists
	}
	return nil
}

func (c *EtcdClient) SetData(ctx context.Context, p string, data []byte, expectedVersion int64) error {
	defer observeOp("set_data", time.Now())
	full := c.path(p)
	resp, err := c.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(full), "=", expectedVersion)).
		Then(clientv3.OpPut(full, string(data))).
		Commit()
	if err != nil {
		return errors.Wrap(errs.ErrCoordStoreUnavailable, err.Error())
	}
	if !resp.Succeeded {
		exists, existsErr := c.Exists(ctx, p)
		if existsErr == nil && !exists {
			return errs.ErrNotFound
		}
		return errs.ErrBadVersion
	}
	return nil
}

func (c *EtcdClient) Delete(ctx context.Context, p string, expectedVersion int64) error {
	defer observeOp("delete", time.Now())
	full := c.path(p)
	var cmp clientv3.Cmp
	if expectedVersion < 0 {
		cmp = clientv3.Compare(clientv3.CreateRevision(full), ">", 0)
	} else {
		cmp = clientv3.Compare(clientv3.ModRevision(full), "=", expectedVersion)
	}
	resp, err := c.cli.Txn(ctx).
		If(cmp).
		Then(clientv3.OpDelete(full)).
		Commit()
	if err != nil {
		return errors.Wrap(errs.ErrCoordStoreUnavailable, err.Error())
	}
	if !resp.Succeeded {
		exists, existsErr := c.Exists(ctx, p)
		if existsErr == nil && !exists {
			return errs.ErrNotFound
		}
		return errs.ErrBadVersion
	}
	return nil
}

func (c *EtcdClient) List(ctx context.Context, p string) ([]string, error) {
	defer observeOp("list", time.Now())
	prefix := c.path(p)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	resp, err := c.cli.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, errors.Wrap(errs.ErrCoordStoreUnavailable, err.Error())
	}
	seen := make(map[string]bool)
	var out []string
	for _, kv := range resp.Kvs {
		rest := strings.TrimPrefix(string(kv.Key), prefix)
		child := strings.SplitN(rest, "/", 2)[0]
		if child != "" && !seen[child] {
			seen[child] = true
			out = append(out, child)
		}
	}
	return out, nil
}

func (c *EtcdClient) WatchExists(ctx context.Context, p string) (<-chan Event, error) {
	exists, err := c.Exists(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make(chan Event, 1)
	if exists {
		node, err := c.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		out <- Event{Type: EventCreated, Path: p, Data: node.Data}
		return out, nil
	}
	full := c.path(p)
	watchCh := c.cli.Watch(ctx, full)
	go func() {
		for resp := range watchCh {
			for _, ev := range resp.Events {
				if ev.Type == clientv3.EventTypePut {
					out <- Event{Type: EventCreated, Path: p, Data: ev.Kv.Value}
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *EtcdClient) WatchData(ctx context.Context, p string) (<-chan Event, error) {
	full := c.path(p)
	watchCh := c.cli.Watch(ctx, full)
	out := make(chan Event, 1)
	go func() {
		for resp := range watchCh {
			for _, ev := range resp.Events {
				if ev.Type == clientv3.EventTypeDelete {
					out <- Event{Type: EventDeleted, Path: p}
				} else {
					out <- Event{Type: EventDataChanged, Path: p, Data: ev.Kv.Value}
				}
				return
			}
		}
	}()
	return out, nil
}

func (c *EtcdClient) WatchChildren(ctx context.Context, p string) (<-chan Event, error) {
	prefix := c.path(p)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	watchCh := c.cli.Watch(ctx, prefix, clientv3.WithPrefix())
	out := make(chan Event, 1)
	go func() {
		for resp := range watchCh {
			if len(resp.Events) == 0 {
				continue
			}
			out <- Event{Type: EventDataChanged, Path: p}
			return
		}
	}()
	return out, nil
}

func (c *EtcdClient) SessionExpired() <-chan struct{} {
	return c.expiredCh
}

func (c *EtcdClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.cli.Revoke(ctx, c.leaseID)
	if err != nil {
		return errors.Wrap(err, "revoke coord-store session lease")
	}
	return nil
}
