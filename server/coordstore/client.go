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

// Package coordstore is the thin capability layer over the
// coordination store (spec §4.A): versioned reads, CAS writes,
// ephemeral session-bound nodes, and one-shot watches. The production
// implementation is backed by etcd's clientv3 (mod-revision plays the
// role of "version", leases play the role of session-bound
// ephemerals); server/coordstore/mem.go provides an in-memory fake
// with identical semantics for tests, grounded in pingcap-pd's
// server/core/kv_base.go memoryKV.
package coordstore

import "context"

// EventType classifies a single watch delivery. Each watch delivers
// at most one event per registration (spec §4.A) — callers that want
// to keep observing re-register after each delivery.
type EventType int

const (
	EventCreated EventType = iota
	EventDataChanged
	EventDeleted
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDataChanged:
		return "dataChanged"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is delivered to a watch's channel exactly once.
type Event struct {
	Type EventType
	Path string
	Data []byte
}

// Node is a path's data plus its CAS version (etcd mod-revision).
type Node struct {
	Data    []byte
	Version int64
}

// Client is the capability surface every other package programs
// against. All methods are safe for concurrent use.
type Client interface {
	// Get reads a path's current data and version. Returns
	// errs.ErrNotFound if the path does not exist.
	Get(ctx context.Context, path string) (Node, error)

	// Exists reports whether path currently exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Create makes path with data. If ephemeral, the node is deleted
	// automatically when this client's session is lost. Returns
	// errs.ErrNodeExists if path already exists.
	Create(ctx context.Context, path string, data []byte, ephemeral bool) error

	// SetData performs a CAS write: it succeeds only if path's
	// current version equals expectedVersion. Returns
	// errs.ErrBadVersion on mismatch, errs.ErrNotFound if absent.
	SetData(ctx context.Context, path string, data []byte, expectedVersion int64) error

	// Delete performs a CAS delete. Returns errs.ErrBadVersion on
	// mismatch, errs.ErrNotFound if absent. expectedVersion < 0 means
	// "delete unconditionally if present".
	Delete(ctx context.Context, path string, expectedVersion int64) error

	// List returns the immediate child names of path.
	List(ctx context.Context, path string) ([]string, error)

	// WatchExists fires once when path is created (if it does not
	// already exist) or immediately reports it already exists.
	WatchExists(ctx context.Context, path string) (<-chan Event, error)

	// WatchData fires once the next time path's data changes or it
	// is deleted.
	WatchData(ctx context.Context, path string) (<-chan Event, error)

	// WatchChildren fires once the next time path gains or loses a
	// child.
	WatchChildren(ctx context.Context, path string) (<-chan Event, error)

	// SessionExpired returns a channel closed exactly once, the
	// moment this client's coord-store session is lost. Every
	// component must stop issuing writes and let the Master rebuild
	// its watches after reconnect.
	SessionExpired() <-chan struct{}

	// Close releases the underlying session (and all ephemeral nodes
	// it owns).
	Close() error
}
