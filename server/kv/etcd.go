// Copyright 2017 The regionmaster Authors.
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

package kv

import (
	"context"
	"path"
	"time"

	"github.com/coredb/regionmaster/server/errs"
	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultTimeout = 5 * time.Second

// etcdBase stores catalog rows directly in etcd under a root path,
// the way pingcap-pd/server/core/storage.go persists cluster metadata
// via clientv3 — without any of the CAS/lease machinery coordstore
// needs, since the catalog has no mutual-exclusion requirement of its
// own (spec §4.C).
type etcdBase struct {
	cli  *clientv3.Client
	root string
}

// NewEtcdBase returns a Base persisting rows under root in cli.
func NewEtcdBase(cli *clientv3.Client, root string) Base {
	return &etcdBase{cli: cli, root: root}
}

func (b *etcdBase) path(key string) string {
	return path.Join(b.root, key)
}

func (b *etcdBase) Load(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	resp, err := b.cli.Get(ctx, b.path(key))
	if err != nil {
		return "", false, errors.Wrap(errs.ErrCatalogUnavailable, err.Error())
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (b *etcdBase) LoadRange(startKey, endKey string, limit int) ([]string, []string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	opts := []clientv3.OpOption{clientv3.WithRange(b.path(endKey))}
	if limit > 0 {
		opts = append(opts, clientv3.WithLimit(int64(limit)))
	}
	resp, err := b.cli.Get(ctx, b.path(startKey), opts...)
	if err != nil {
		return nil, nil, errors.Wrap(errs.ErrCatalogUnavailable, err.Error())
	}
	keys := make([]string, 0, len(resp.Kvs))
	values := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, string(kv.Key))
		values = append(values, string(kv.Value))
	}
	return keys, values, nil
}

func (b *etcdBase) Save(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if _, err := b.cli.Put(ctx, b.path(key), value); err != nil {
		return errors.Wrap(errs.ErrCatalogUnavailable, err.Error())
	}
	return nil
}

func (b *etcdBase) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if _, err := b.cli.Delete(ctx, b.path(key)); err != nil {
		return errors.Wrap(errs.ErrCatalogUnavailable, err.Error())
	}
	return nil
}
