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

// Package kv provides the plain load/save/scan abstraction the
// catalog is built on, grounded in pingcap-pd's server/core/kv_base.go
// KVBase + memoryKV. Unlike the coord-store, catalog storage has no
// CAS or watch requirement (spec §4.C: the catalog is a set of
// logical operations on two system tables, not a coordination
// primitive) — a plain ordered key-value store is sufficient.
package kv

// Base is an abstract interface for loading/saving catalog rows,
// kept stateless the way pingcap-pd's Storage wraps it.
type Base interface {
	Load(key string) (string, bool, error)
	LoadRange(startKey, endKey string, limit int) (keys []string, values []string, err error)
	Save(key, value string) error
	Delete(key string) error
}
