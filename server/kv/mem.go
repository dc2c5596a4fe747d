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
	"sync"

	"github.com/google/btree"
)

type memItem struct {
	key, value string
}

func (it memItem) Less(than btree.Item) bool {
	return it.key < than.(memItem).key
}

// memoryBase is an in-memory Base backed by a B-tree, the direct
// analogue of pingcap-pd's NewMemoryKV, used by catalog tests.
type memoryBase struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// NewMemoryBase returns an in-memory Base for tests.
func NewMemoryBase() Base {
	return &memoryBase{tree: btree.New(2)}
}

func (kv *memoryBase) Load(key string) (string, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	item := kv.tree.Get(memItem{key: key})
	if item == nil {
		return "", false, nil
	}
	return item.(memItem).value, true, nil
}

func (kv *memoryBase) LoadRange(startKey, endKey string, limit int) ([]string, []string, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	var keys, values []string
	kv.tree.AscendRange(memItem{key: startKey}, memItem{key: endKey}, func(i btree.Item) bool {
		it := i.(memItem)
		keys = append(keys, it.key)
		values = append(values, it.value)
		return limit <= 0 || len(keys) < limit
	})
	return keys, values, nil
}

func (kv *memoryBase) Save(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.tree.ReplaceOrInsert(memItem{key: key, value: value})
	return nil
}

func (kv *memoryBase) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.tree.Delete(memItem{key: key})
	return nil
}
